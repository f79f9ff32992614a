package usecase

import (
	"time"

	"BusScope/internal/services/render"
	"BusScope/internal/services/samples"
	"BusScope/internal/services/window"
)

// EngineConfig sizes every session the manager creates.
type EngineConfig struct {
	Window window.Config `yaml:"window"`
	// Capacity is the hard per-signal sample cap.
	Capacity int     `yaml:"capacity" default:"20000" validate:"gt=0"`
	Preroll  float64 `yaml:"preroll" default:"0.25" validate:"gte=0"`
	// RetentionSlack keeps samples this many seconds past the oldest start still reachable.
	RetentionSlack  float64         `yaml:"retention_slack" default:"1" validate:"gte=0"`
	AdvanceInterval time.Duration   `yaml:"advance_interval" default:"50ms" validate:"gt=0"`
	FPS             int             `yaml:"fps" default:"30" validate:"gt=0,lte=240"`
	Viewport        render.Viewport `yaml:"viewport"`
	Mode            string          `yaml:"mode" default:"combined" validate:"oneof=combined separate"`
	QueueSize       int             `yaml:"queue_size" default:"4096" validate:"gt=0"`
	// FrameTTL bounds how long encoded frames stay in the frame cache.
	FrameTTL time.Duration `yaml:"frame_ttl" default:"10s"`
	// AutoStart starts rendering as soon as a session is created.
	AutoStart bool `yaml:"auto_start" default:"true"`
}

// DefaultEngineConfig mirrors the struct tag defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Window:          window.DefaultConfig(),
		Capacity:        samples.DefaultCapacity,
		Preroll:         samples.DefaultPreroll,
		RetentionSlack:  1,
		AdvanceInterval: 50 * time.Millisecond,
		FPS:             render.DefaultFPS,
		Viewport:        render.Viewport{Width: 960, Height: 540, PixelRatio: 1},
		Mode:            string(render.ModeCombined),
		QueueSize:       4096,
		FrameTTL:        10 * time.Second,
		AutoStart:       true,
	}
}
