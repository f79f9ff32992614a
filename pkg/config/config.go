package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	drepo "BusScope/internal/domain/repository"
	"BusScope/internal/service/cache"
	"BusScope/internal/service/catalog"
	"BusScope/internal/service/serialbus"
	"BusScope/internal/service/tracestream"
	"BusScope/internal/usecase"
	xhttp "BusScope/pkg/http"
	pkgkafka "BusScope/pkg/kafka"
	"BusScope/pkg/logger"
)

type Config struct {
	Environment string               `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server      ServerConfig         `yaml:"server"`
	Metrics     MetricsConfig        `yaml:"metrics"`
	Logging     LoggingConfig        `yaml:"logging"`
	Engine      usecase.EngineConfig `yaml:"engine"`
	Ingest      IngestConfig         `yaml:"ingest"`
	Kafka       pkgkafka.Config      `yaml:"kafka"`
	TraceStream tracestream.Config   `yaml:"tracestream"`
	Serial      serialbus.Config     `yaml:"serial"`
	Catalog     catalog.Config       `yaml:"catalog"`
	Cache       CacheConfig          `yaml:"cache"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"500ms"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics" validate:"startswith=/"`
}

type LoggingConfig struct {
	logger.Config `yaml:",inline"`
	// Collector aggregates error logs onto kafka.log_topic.
	Collector struct {
		Enabled   bool          `yaml:"enabled"`
		Interval  time.Duration `yaml:"interval" default:"30s"`
		Threshold int           `yaml:"threshold" default:"100" validate:"gt=0"`
	} `yaml:"collector"`
}

// IngestConfig selects where decoded signal values come from and how they
// reach the sessions.
type IngestConfig struct {
	Backend string `yaml:"backend" default:"websocket" validate:"oneof=none websocket kafka serial"`
	// Relay is local to ingest captured entries in this process, or kafka to
	// publish them to kafka.topic for every replica.
	Relay    string `yaml:"relay" default:"local" validate:"oneof=local kafka"`
	Pipeline struct {
		MaxRPS     float64 `yaml:"max_rps" default:"0" validate:"gte=0"`
		Burst      float64 `yaml:"burst" default:"50" validate:"gte=1"`
		BufferSize int     `yaml:"buffer_size" default:"1000" validate:"gt=0"`
	} `yaml:"pipeline"`
}

type CacheConfig struct {
	Type     string            `yaml:"type" default:"memory" validate:"oneof=memory redis"`
	Entries  int               `yaml:"entries" default:"1024" validate:"gt=0"`
	LocalTTL time.Duration     `yaml:"local_ttl" default:"2s"`
	Redis    cache.RedisConfig `yaml:"redis"`
}

// Default returns the configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with BUSSCOPE_* environment
// variables. An empty path starts from the defaults.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("BUSSCOPE_ENV", &c.Environment)
	str("BUSSCOPE_LOG_LEVEL", &c.Logging.Level)
	str("BUSSCOPE_BACKEND", &c.Ingest.Backend)
	str("BUSSCOPE_RELAY", &c.Ingest.Relay)
	list("BUSSCOPE_KAFKA_BROKERS", &c.Kafka.Brokers)
	str("BUSSCOPE_KAFKA_TOPIC", &c.Kafka.Topic)
	str("BUSSCOPE_TRACE_URL", &c.TraceStream.URL)
	str("BUSSCOPE_SERIAL_PORT", &c.Serial.Port)
	str("BUSSCOPE_CATALOG_URL", &c.Catalog.BaseURL)
	list("BUSSCOPE_CATALOG_MESSAGES", &c.Catalog.Messages)
	str("BUSSCOPE_CACHE", &c.Cache.Type)
	str("BUSSCOPE_REDIS_ADDR", &c.Cache.Redis.Addr)
	str("BUSSCOPE_REDIS_PASSWORD", &c.Cache.Redis.Password)
	list("BUSSCOPE_CORS_ORIGINS", &c.Server.CORSOrigins)

	if v, ok := lookup("BUSSCOPE_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BUSSCOPE_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks struct rules and the cross-section requirements.
func (c *Config) Validate() error {
	if err := xhttp.Validator().Struct(c); err != nil {
		msgs := make([]string, 0)
		for _, v := range xhttp.ValidationErrors(err) {
			msgs = append(msgs, v.Message)
		}
		return errors.New(strings.Join(msgs, "; "))
	}

	needKafka := c.Ingest.Backend == string(drepo.BackendKafka) ||
		c.Ingest.Relay == usecase.RelayKafka ||
		c.Logging.Collector.Enabled
	if needKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is used for ingest, relay or log collection")
	}
	if c.Logging.Collector.Enabled && c.Kafka.LogTopic == "" {
		return fmt.Errorf("kafka.log_topic is required when logging.collector is enabled")
	}
	if c.Ingest.Backend == string(drepo.BackendSerial) && c.Serial.Port == "" {
		return fmt.Errorf("serial.port is required for the serial backend")
	}
	if c.Cache.Type == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required for the redis cache")
	}
	if _, err := c.Serial.Normalize(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	return nil
}

// Backend returns the configured ingest backend.
func (c *Config) Backend() drepo.Backend {
	return drepo.NormalizeBackend(c.Ingest.Backend)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool { return c.Environment == "production" }
