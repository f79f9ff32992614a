package serialbus

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Config describes the serial CAN gateway.
type Config struct {
	Port     string `yaml:"port" default:"/dev/ttyUSB0"`
	BaudRate int    `yaml:"baud_rate" default:"115200" validate:"gt=0"`
	DataBits int    `yaml:"data_bits" default:"8" validate:"gte=5,lte=8"`
	StopBits int    `yaml:"stop_bits" default:"1" validate:"oneof=1 2"`
	Parity   string `yaml:"parity" default:"N"`
	// Start is written after opening to make the gateway stream; empty sends nothing.
	Start          string        `yaml:"start" default:"START"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"2s"`
	Buffer         int           `yaml:"buffer" default:"4096" validate:"gt=0"`
}

// Normalize validates the port settings and fills defaults for unset values.
func (c Config) Normalize() (Config, error) {
	if c.BaudRate <= 0 {
		c.BaudRate = 115200
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return c, fmt.Errorf("invalid data bits %d: must be between 5 and 8", c.DataBits)
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return c, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", c.StopBits)
	}
	switch p := strings.TrimSpace(strings.ToUpper(c.Parity)); p {
	case "", "N", "NONE":
		c.Parity = "N"
	case "E", "EVEN":
		c.Parity = "E"
	case "O", "ODD":
		c.Parity = "O"
	default:
		return c, fmt.Errorf("unsupported parity %q: expected N, E, or O", c.Parity)
	}
	if c.Buffer <= 0 {
		c.Buffer = 4096
	}
	return c, nil
}

// Mode converts the settings into the structure serial.Open expects.
func (c Config) Mode() (*serial.Mode, error) {
	c, err := c.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: c.BaudRate, DataBits: c.DataBits, StopBits: serial.OneStopBit}
	if c.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch c.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}
