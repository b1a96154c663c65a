package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Composer ComposerConfig
	Auth     AuthConfig
	Webhook  WebhookConfig
	Metrics  MetricsConfig
	Tracing  TracingConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the pgx connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	ProgressTTL time.Duration
	ProbeTTL    time.Duration
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	PresignExpiry   time.Duration
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	Vhost     string
	Prefetch  int
	QueueName string
}

// URL returns the AMQP connection URL
func (c QueueConfig) URL() string {
	vhost := strings.TrimPrefix(c.Vhost, "/")
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, vhost)
}

// ComposerConfig holds render and export configuration
type ComposerConfig struct {
	FPS          float64
	Width        int
	Height       int
	Warmup       time.Duration
	RecordLead   time.Duration
	Grace        time.Duration
	SampleRate   int
	Channels     int
	FFmpegPath   string
	FFprobePath  string
	TempDir      string
	Container    string
	VideoBitrate string
	AudioBitrate string
	Realtime     bool
	JobTimeout   time.Duration
}

// AuthConfig enables JWT auth on the API when Secret is set
type AuthConfig struct {
	Secret        string
	Issuer        string
	RatePerSecond float64
	Burst         int
}

// WebhookConfig holds outgoing webhook configuration
type WebhookConfig struct {
	Secret     string
	Timeout    time.Duration
	MaxRetries int
}

// MetricsConfig holds the metrics server configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds the tracer configuration
type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	AgentHost    string
	AgentPort    int
	SamplingRate float64
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load reads configuration from file and environment variables.
// Environment variables use the REELFUSE_ prefix with dots replaced by
// underscores, e.g. REELFUSE_COMPOSER_FPS.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("reelfuse")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return unmarshal(v)
}

// Defaults returns the configuration with every default applied and no file
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := unmarshal(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the composer cannot run with
func (c *Config) Validate() error {
	if c.Composer.FPS <= 0 {
		return fmt.Errorf("composer.fps must be positive, got %v", c.Composer.FPS)
	}
	if c.Composer.Width <= 0 || c.Composer.Height <= 0 {
		return fmt.Errorf("composer size must be positive, got %dx%d", c.Composer.Width, c.Composer.Height)
	}
	if c.Composer.Channels != 1 && c.Composer.Channels != 2 {
		return fmt.Errorf("composer.channels must be 1 or 2, got %d", c.Composer.Channels)
	}
	switch c.Composer.Container {
	case "webm", "mp4":
	default:
		return fmt.Errorf("composer.container must be webm or mp4, got %q", c.Composer.Container)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "60s")
	v.SetDefault("server.shutdownTimeout", "10s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "reelfuse")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.progressTTL", "24h")
	v.SetDefault("redis.probeTTL", "1h")

	// Storage defaults
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "reelfuse")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.presignExpiry", "24h")

	// Queue defaults
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")
	v.SetDefault("queue.prefetch", 1)
	v.SetDefault("queue.queueName", "export_jobs")

	// Composer defaults
	v.SetDefault("composer.fps", 30)
	v.SetDefault("composer.width", 1080)
	v.SetDefault("composer.height", 1920)
	v.SetDefault("composer.warmup", "600ms")
	v.SetDefault("composer.recordLead", "150ms")
	v.SetDefault("composer.grace", "1200ms")
	v.SetDefault("composer.sampleRate", 44100)
	v.SetDefault("composer.channels", 1)
	v.SetDefault("composer.ffmpegPath", "ffmpeg")
	v.SetDefault("composer.ffprobePath", "ffprobe")
	v.SetDefault("composer.tempDir", "/tmp/reelfuse")
	v.SetDefault("composer.container", "webm")
	v.SetDefault("composer.videoBitrate", "10M")
	v.SetDefault("composer.audioBitrate", "128k")
	v.SetDefault("composer.realtime", false)
	v.SetDefault("composer.jobTimeout", "15m")

	// Auth defaults
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "reelfuse")
	v.SetDefault("auth.ratePerSecond", 10)
	v.SetDefault("auth.burst", 20)

	// Webhook defaults
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("webhook.maxRetries", 3)

	// Observability defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "reelfuse")
	v.SetDefault("tracing.agentHost", "localhost")
	v.SetDefault("tracing.agentPort", 6831)
	v.SetDefault("tracing.samplingRate", 1.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}
