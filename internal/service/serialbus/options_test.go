package serialbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Config{Port: "/dev/ttyACM0"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 115200, cfg.BaudRate)
	assert.Equal(t, 8, cfg.DataBits)
	assert.Equal(t, 1, cfg.StopBits)
	assert.Equal(t, "N", cfg.Parity)
	assert.Equal(t, 4096, cfg.Buffer)
}

func TestNormalizeRejects(t *testing.T) {
	t.Parallel()

	for name, cfg := range map[string]Config{
		"data bits": {DataBits: 9},
		"stop bits": {StopBits: 3},
		"parity":    {Parity: "mark"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := cfg.Normalize()
			assert.Error(t, err)
		})
	}
}

func TestMode(t *testing.T) {
	t.Parallel()

	mode, err := Config{BaudRate: 500000, DataBits: 7, StopBits: 2, Parity: "even"}.Mode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{BaudRate: 500000, DataBits: 7, StopBits: serial.TwoStopBits, Parity: serial.EvenParity}, mode)

	mode, err = Config{}.Mode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}
