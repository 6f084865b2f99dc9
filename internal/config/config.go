package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/logger"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/postgresql"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/rabbitmq"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultWaitTime is the pause between batches when none is configured
	DefaultWaitTime = 5 * time.Second
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Sink       DatabaseConfig   `yaml:"sink"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Downloader DownloaderConfig `yaml:"downloader"`
	EventLog   EventLogConfig   `yaml:"event_log"`
	Payload    PayloadConfig    `yaml:"payload"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration. It is used for both the
// queue database and the sink.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name string `yaml:"name"`
}

// DeadLetterConfig routes rejected log events; both empty disables it
type DeadLetterConfig struct {
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableSource bool   `yaml:"enable_source"`
	TimeFormat   string `yaml:"time_format"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ProcessorConfig holds the per-kind batch limits
type ProcessorConfig struct {
	Scheduled  KindConfig    `yaml:"scheduled"`
	Manual     KindConfig    `yaml:"manual"`
	ClaimLease time.Duration `yaml:"claim_lease"`
	// IdleWait is the minimum pause after a pipeline found nothing to do
	IdleWait   time.Duration `yaml:"idle_wait"`
}

// KindConfig limits the pipelines of one job kind
type KindConfig struct {
	Enabled             bool          `yaml:"enabled"`
	SimultaneousBatches int           `yaml:"simultaneous_batches"`
	QueueBatchSize      int           `yaml:"queue_batch_size"`
	WaitTime            time.Duration `yaml:"wait_time"`
}

// DownloaderConfig holds reporting API settings
type DownloaderConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	PageDelay      time.Duration `yaml:"page_delay"`
	PageSize       int           `yaml:"page_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Endpoint       string        `yaml:"endpoint"` // optional API endpoint override
}

// EventLogConfig holds log service batching settings
type EventLogConfig struct {
	BufferSize    int           `yaml:"buffer_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// PayloadConfig holds the job payload key, hex encoded
type PayloadConfig struct {
	Key string `yaml:"key"`
}

// MetricsConfig holds the Prometheus listener address; empty disables it
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads the configuration file, expands ${VAR} references from the environment
// and fills defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Processor.ClaimLease <= 0 {
		c.Processor.ClaimLease = time.Hour
	}
	if c.Processor.IdleWait <= 0 {
		c.Processor.IdleWait = DefaultWaitTime
	}
	if c.Processor.Scheduled.WaitTime == 0 {
		c.Processor.Scheduled.WaitTime = DefaultWaitTime
	}
	if c.Processor.Manual.WaitTime == 0 {
		c.Processor.Manual.WaitTime = DefaultWaitTime
	}
	if c.Downloader.MaxAttempts <= 0 {
		c.Downloader.MaxAttempts = 3
	}
	if c.Downloader.RetryDelay <= 0 {
		c.Downloader.RetryDelay = 3 * time.Second
	}
	if c.Downloader.PageDelay <= 0 {
		c.Downloader.PageDelay = 5 * time.Second
	}
	if c.Downloader.PageSize <= 0 {
		c.Downloader.PageSize = 10000
	}
	if c.EventLog.BufferSize <= 0 {
		c.EventLog.BufferSize = 1000
	}
	if c.EventLog.BatchSize <= 0 {
		c.EventLog.BatchSize = 100
	}
	if c.EventLog.FlushInterval <= 0 {
		c.EventLog.FlushInterval = 5 * time.Second
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "direct"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
}

// ValidateAPIConfig checks what the admin API needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	return c.Payload.validate()
}

// ValidateWorkerConfig checks what the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if err := c.Sink.validate("sink"); err != nil {
		return err
	}

	if err := c.RabbitMQ.validate(); err != nil {
		return err
	}

	if err := c.Payload.validate(); err != nil {
		return err
	}

	if !c.Processor.Scheduled.Enabled && !c.Processor.Manual.Enabled {
		return fmt.Errorf("at least one processor kind must be enabled")
	}

	for _, kind := range domain.Kinds() {
		kc := c.Processor.For(kind)
		if !kc.Enabled {
			continue
		}
		if kc.SimultaneousBatches <= 0 {
			return fmt.Errorf("processor %s simultaneous_batches must be greater than 0", kind)
		}
		if kc.QueueBatchSize <= 0 {
			return fmt.Errorf("processor %s queue_batch_size must be greater than 0", kind)
		}
		if kc.WaitTime <= 0 {
			return fmt.Errorf("processor %s wait_time must be greater than 0", kind)
		}
	}

	if c.Downloader.PageSize > 10000 {
		return fmt.Errorf("downloader page_size must not exceed 10000")
	}

	return nil
}

// ValidateLogServiceConfig checks what the log persistence service needs
func (c *Config) ValidateLogServiceConfig() error {
	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if err := c.RabbitMQ.validate(); err != nil {
		return err
	}

	if c.EventLog.BatchSize > c.EventLog.BufferSize {
		return fmt.Errorf("event_log batch_size (%d) must not exceed buffer_size (%d)", c.EventLog.BatchSize, c.EventLog.BufferSize)
	}

	return nil
}

// ValidateEnqueueConfig checks what queuectl enqueue needs
func (c *Config) ValidateEnqueueConfig() error {
	if err := c.Database.validate("database"); err != nil {
		return err
	}
	return c.Payload.validate()
}

func (d *DatabaseConfig) validate(section string) error {
	if d.Host == "" {
		return fmt.Errorf("%s host is required", section)
	}

	if d.Port < MinPort || d.Port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", section, d.Port, MinPort, MaxPort)
	}

	if d.Database == "" {
		return fmt.Errorf("%s name is required", section)
	}

	return nil
}

func (r *RabbitMQConfig) validate() error {
	if r.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if r.Port < MinPort || r.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", r.Port, MinPort, MaxPort)
	}

	if r.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if r.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if (r.DeadLetter.Exchange == "") != (r.DeadLetter.Queue == "") {
		return fmt.Errorf("rabbitmq dead_letter needs both exchange and queue")
	}

	return nil
}

func (p *PayloadConfig) validate() error {
	if p.Key == "" {
		return fmt.Errorf("payload key is required")
	}

	key, err := hex.DecodeString(p.Key)
	if err != nil {
		return fmt.Errorf("payload key must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("payload key must be 32 bytes, got %d", len(key))
	}

	return nil
}

// For returns the limits of kind
func (p ProcessorConfig) For(kind domain.Kind) KindConfig {
	if kind == domain.KindManual {
		return p.Manual
	}
	return p.Scheduled
}

// Client converts to the shared PostgreSQL client configuration
func (d DatabaseConfig) Client() *postgresql.Config {
	return &postgresql.Config{
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
	}
}

// Client converts to the shared RabbitMQ client configuration
func (r RabbitMQConfig) Client() *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               r.Host,
		Port:               r.Port,
		User:               r.User,
		Password:           r.Password,
		VHost:              r.VHost,
		ExchangeName:       r.Exchange.Name,
		ExchangeType:       r.Exchange.Type,
		QueueName:          r.Queue.Name,
		RoutingKey:         r.RoutingKey,
		DeadLetterExchange: r.DeadLetter.Exchange,
		DeadLetterQueue:    r.DeadLetter.Queue,
		PrefetchCount:      r.Consumer.PrefetchCount,
		RetryAttempts:      r.Connection.RetryAttempts,
		RetryInterval:      r.Connection.RetryInterval,
		Heartbeat:          r.Connection.Heartbeat,
		PublishRetries:     r.Publish.RetryAttempts,
		PublishRetryDelay:  r.Publish.RetryInterval,
		PublishBackoffMult: r.Publish.BackoffMultiplier,
	}
}

// Logger converts to the shared logger configuration
func (l LoggingConfig) Logger() *logger.Config {
	return &logger.Config{
		Level:        l.Level,
		Format:       l.Format,
		Output:       l.Output,
		EnableSource: l.EnableSource,
		TimeFormat:   l.TimeFormat,
	}
}
