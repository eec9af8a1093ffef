package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Admission modes accepted by admission.default_mode.
const (
	ModeAsync  = "async"
	ModeWait   = "wait"
	ModeDirect = "direct"
)

// Quota and content store backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendS3     = "s3"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Renderer  RendererConfig  `yaml:"renderer"`
	Quota     QuotaConfig     `yaml:"quota"`
	Admission AdmissionConfig `yaml:"admission"`
	Worker    WorkerConfig    `yaml:"worker"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment" env:"APP_ENV"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"DATABASE_HOST"`
	Port            int           `yaml:"port" env:"DATABASE_PORT"`
	User            string        `yaml:"user" env:"DATABASE_USER"`
	Password        string        `yaml:"password" env:"DATABASE_PASSWORD"`
	Database        string        `yaml:"database" env:"DATABASE_NAME"`
	SSLMode         string        `yaml:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	MigrateOnStart  bool          `yaml:"migrate_on_start" env:"DATABASE_MIGRATE"`
}

// RabbitMQConfig holds RabbitMQ connection settings and the two work queue topologies
type RabbitMQConfig struct {
	Host       string           `yaml:"host" env:"RABBITMQ_HOST"`
	Port       int              `yaml:"port" env:"RABBITMQ_PORT"`
	User       string           `yaml:"user" env:"RABBITMQ_USER"`
	Password   string           `yaml:"password" env:"RABBITMQ_PASSWORD"`
	VHost      string           `yaml:"vhost" env:"RABBITMQ_VHOST"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
	Render     TopologyConfig   `yaml:"render"`
	Webhook    TopologyConfig   `yaml:"webhook"`
}

// TopologyConfig describes one work queue and its dead-letter path
type TopologyConfig struct {
	Exchange      ExchangeConfig `yaml:"exchange"`
	Queue         QueueConfig    `yaml:"queue"`
	RoutingKey    string         `yaml:"routing_key"`
	DeadLetter    DeadLetter     `yaml:"dead_letter"`
	MaxDeliveries int            `yaml:"max_deliveries"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// DeadLetter names the exchange and queue rejected messages end up in
type DeadLetter struct {
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds the shared counter store connection
type RedisConfig struct {
	URL            string        `yaml:"url" env:"REDIS_URL"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// StorageConfig holds the content store settings
type StorageConfig struct {
	Backend         string `yaml:"backend" env:"STORAGE_BACKEND"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET"`
	Region          string `yaml:"region" env:"AWS_REGION"`
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"S3_USE_PATH_STYLE"`
}

// RendererConfig points at the Chromium rendering service
type RendererConfig struct {
	URL      string        `yaml:"url" env:"RENDERER_URL"`
	Timeout  time.Duration `yaml:"timeout"`
	Username string        `yaml:"username" env:"RENDERER_USERNAME"`
	Password string        `yaml:"password" env:"RENDERER_PASSWORD"`
}

// QuotaConfig holds the per-tenant daily job quota. DailyLimit 0 disables it.
type QuotaConfig struct {
	DailyLimit int    `yaml:"daily_limit" env:"QUOTA_DAILY_LIMIT"`
	Backend    string `yaml:"backend" env:"QUOTA_BACKEND"`
	KeyPrefix  string `yaml:"key_prefix"`
}

// AdmissionConfig holds job submission behaviour
type AdmissionConfig struct {
	DefaultMode        string        `yaml:"default_mode" env:"ADMISSION_DEFAULT_MODE"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	PollTimeout        time.Duration `yaml:"poll_timeout"`
	MaxInlineHTMLBytes int           `yaml:"max_inline_html_bytes"`
	DownloadURLTTL     time.Duration `yaml:"download_url_ttl"`
	RedirectURLTTL     time.Duration `yaml:"redirect_url_ttl"`
}

// WorkerConfig holds render worker configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency" env:"WORKER_CONCURRENCY"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ConsumerTag     string        `yaml:"consumer_tag"`
}

// WebhookConfig holds webhook dispatcher configuration
type WebhookConfig struct {
	Concurrency     int           `yaml:"concurrency" env:"WEBHOOK_CONCURRENCY"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	PresignTTL      time.Duration `yaml:"presign_ttl"`
	UserAgent       string        `yaml:"user_agent"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ConsumerTag     string        `yaml:"consumer_tag"`
}

// AuthConfig holds API key to tenant resolution settings
type AuthConfig struct {
	APIKeys     map[string]string `yaml:"api_keys" env:"API_KEYS"`
	LookupDB    bool              `yaml:"lookup_db"`
	DevAPIKey   string            `yaml:"dev_api_key" env:"DEV_API_KEY"`
	DevTenantID string            `yaml:"dev_tenant_id" env:"DEV_TENANT_ID"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LOG_LEVEL"`
	Format       string `yaml:"format" env:"LOG_FORMAT"`
	Output       string `yaml:"output" env:"LOG_OUTPUT"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// Load reads and parses the configuration file, then applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	config.setDefaults()

	return &config, nil
}

// setDefaults fills zero values the services cannot run without
func (c *Config) setDefaults() {
	if c.Admission.DefaultMode == "" {
		c.Admission.DefaultMode = ModeAsync
	}
	if c.Admission.PollInterval <= 0 {
		c.Admission.PollInterval = time.Second
	}
	if c.Admission.PollTimeout <= 0 {
		c.Admission.PollTimeout = 25 * time.Second
	}
	if c.Admission.DownloadURLTTL <= 0 {
		c.Admission.DownloadURLTTL = 10 * time.Minute
	}
	if c.Admission.RedirectURLTTL <= 0 {
		c.Admission.RedirectURLTTL = 5 * time.Minute
	}
	if c.Webhook.DeliveryTimeout <= 0 {
		c.Webhook.DeliveryTimeout = 10 * time.Second
	}
	if c.Webhook.PresignTTL <= 0 {
		c.Webhook.PresignTTL = 30 * time.Minute
	}
	if c.Webhook.UserAgent == "" {
		c.Webhook.UserAgent = "Morphy-Webhooks/1.0"
	}
	if c.Quota.KeyPrefix == "" {
		c.Quota.KeyPrefix = "quota"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendS3
	}
	if c.RabbitMQ.Render.MaxDeliveries <= 0 {
		c.RabbitMQ.Render.MaxDeliveries = 3
	}
	if c.RabbitMQ.Webhook.MaxDeliveries <= 0 {
		c.RabbitMQ.Webhook.MaxDeliveries = 5
	}
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(&c.RabbitMQ.Render, "render"); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateQuota(); err != nil {
		return err
	}

	if !slices.Contains([]string{ModeAsync, ModeWait, ModeDirect}, c.Admission.DefaultMode) {
		return fmt.Errorf("invalid admission default_mode: %q", c.Admission.DefaultMode)
	}

	if c.Admission.PollInterval >= c.Admission.PollTimeout {
		return fmt.Errorf("admission poll_interval must be shorter than poll_timeout")
	}

	if c.Admission.DefaultMode == ModeDirect || c.Renderer.URL != "" {
		if err := c.validateRenderer(); err != nil {
			return err
		}
	}

	if len(c.Auth.APIKeys) == 0 && !c.Auth.LookupDB && c.Auth.DevAPIKey == "" {
		return fmt.Errorf("auth requires api_keys, lookup_db or dev_api_key")
	}

	if c.Auth.DevAPIKey != "" && c.Auth.DevTenantID == "" {
		return fmt.Errorf("auth dev_tenant_id is required with dev_api_key")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the render worker depends on
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(&c.RabbitMQ.Render, "render"); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(&c.RabbitMQ.Webhook, "webhook"); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	return c.validateRenderer()
}

// ValidateDispatcherConfig checks the settings the webhook dispatcher depends on
func (c *Config) ValidateDispatcherConfig() error {
	if c.Webhook.Concurrency <= 0 {
		return fmt.Errorf("webhook concurrency must be greater than 0")
	}

	if c.Webhook.ShutdownTimeout <= 0 {
		return fmt.Errorf("webhook shutdown_timeout must be greater than 0")
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(&c.RabbitMQ.Webhook, "webhook"); err != nil {
		return err
	}

	return c.validateStorage()
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ(t *TopologyConfig, name string) error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if t.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq %s exchange name is required", name)
	}

	if t.Queue.Name == "" {
		return fmt.Errorf("rabbitmq %s queue name is required", name)
	}

	if t.DeadLetter.Exchange != "" && t.DeadLetter.Queue == "" {
		return fmt.Errorf("rabbitmq %s dead_letter queue is required with a dead_letter exchange", name)
	}

	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case BackendMemory:
		return nil
	case BackendS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required")
		}
		if c.Storage.Region == "" {
			return fmt.Errorf("storage region is required")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage backend: %q", c.Storage.Backend)
	}
}

func (c *Config) validateQuota() error {
	if c.Quota.DailyLimit < 0 {
		return fmt.Errorf("quota daily_limit must not be negative")
	}

	if c.Quota.DailyLimit == 0 {
		return nil
	}

	switch c.Quota.Backend {
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis url is required for the redis quota backend")
		}
		return nil
	case BackendMemory:
		return nil
	case "":
		return fmt.Errorf("quota backend is required when daily_limit is set")
	default:
		return fmt.Errorf("invalid quota backend: %q", c.Quota.Backend)
	}
}

func (c *Config) validateRenderer() error {
	if c.Renderer.URL == "" {
		return fmt.Errorf("renderer url is required")
	}

	u, err := url.Parse(c.Renderer.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid renderer url: %q", c.Renderer.URL)
	}

	if c.Renderer.Timeout <= 0 {
		return fmt.Errorf("renderer timeout must be greater than 0")
	}

	return nil
}
