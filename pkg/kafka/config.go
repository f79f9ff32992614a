package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"BusScope/pkg/logger"
)

// Config is the kafka section of the application config.
type Config struct {
	Brokers      []string `yaml:"brokers" validate:"omitempty,dive,hostname_port"`
	Topic        string   `yaml:"topic" default:"busscope.trace"`
	RequiredAcks int      `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"20ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"200"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"busscope"`
		Workers    int           `yaml:"workers" default:"2" validate:"gt=0"`
		BufferSize int           `yaml:"buffer_size" default:"256" validate:"gt=0"`
		RetryMax   int           `yaml:"retry_max" default:"2"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`

		// SlowHandle logs handling that takes longer; 0 disables it.
		SlowHandle time.Duration `yaml:"slow_handle" default:"250ms"`
		// SkipOlderThan drops trace messages older than this; 0 keeps all.
		SkipOlderThan time.Duration `yaml:"skip_older_than"`
	} `yaml:"consumer"`
	// LogTopic receives aggregated error logs; empty disables the collector.
	LogTopic string `yaml:"log_topic"`
}

// ProducerOptions translates the config into producer options.
func (c Config) ProducerOptions() []ProducerOption {
	return []ProducerOption{
		WithBrokers(c.Brokers),
		WithCompression(c.Compression),
		WithRequiredAcks(c.RequiredAcks),
		WithBatchSize(c.Producer.BatchSize),
		WithBatchBytes(c.Producer.BatchBytes),
		WithBatchTimeout(c.Producer.Linger),
		WithTimeouts(c.Producer.WriteTimeout, c.Producer.ReadTimeout),
		WithMaxAttempts(c.Producer.MaxAttempts),
		WithAsync(c.Producer.Async),
		WithHashByKey(true),
	}
}

// ConsumerOptions translates the config into consumer options.
func (c Config) ConsumerOptions() []ConsumerOption {
	return []ConsumerOption{
		WithConsumerBrokers(c.Brokers),
		WithConsumerGroupID(c.Consumer.GroupID),
		WithConsumerWorkers(c.Consumer.Workers),
		WithConsumerBufferSize(c.Consumer.BufferSize),
		WithConsumerRetry(c.Consumer.RetryMax, c.Consumer.BackoffMin, c.Consumer.BackoffMax),
		WithConsumerDLQ(c.Consumer.DLQTopic),
		WithConsumerFetch(c.Consumer.MinBytes, c.Consumer.MaxBytes),
	}
}

// ConsumerHooks returns the hooks the config asks for.
func (c Config) ConsumerHooks(log *logger.Logger) ConsumerHook {
	return NewHookChain(
		StaleHook{MaxAge: c.Consumer.SkipOlderThan},
		LoggingHook{Log: log, Slow: c.Consumer.SlowHandle},
	)
}

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds producer configuration.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Async        bool
	HashByKey    bool
	Registerer   prometheus.Registerer
	Logger       *logger.Logger
}

// WithBrokers sets Kafka brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Brokers = brokers
	}
}

// WithCompression sets compression type.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Compression = compression
	}
}

// WithRequiredAcks sets required acknowledgements (-1 = all).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = acks
	}
}

// WithMaxAttempts sets max retry attempts by the writer.
func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) {
		c.MaxAttempts = n
	}
}

// WithBatchSize sets batch size.
func WithBatchSize(size int) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchSize = size
	}
}

// WithBatchTimeout sets how long the writer lingers to fill a batch.
func WithBatchTimeout(timeout time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchTimeout = timeout
	}
}

// WithBatchBytes sets target aggregate batch bytes.
func WithBatchBytes(bytes int) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchBytes = bytes
	}
}

// WithTimeouts sets writer read/write timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.WriteTimeout = write
		c.ReadTimeout = read
	}
}

// WithAsync toggles async writes (fire-and-forget).
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.Async = async
	}
}

// WithHashByKey keeps messages with equal keys on one partition.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.HashByKey = hash
	}
}

// WithProducerMetrics registers producer metrics with reg.
func WithProducerMetrics(reg prometheus.Registerer) ProducerOption {
	return func(c *ProducerConfig) {
		c.Registerer = reg
	}
}

// WithProducerLogger sets the producer logger.
func WithProducerLogger(l *logger.Logger) ProducerOption {
	return func(c *ProducerConfig) {
		c.Logger = l
	}
}
