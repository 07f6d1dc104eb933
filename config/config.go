// Package config defines gateline's configuration tree and the machinery
// that loads, validates, and hot-reloads it.
package config

import (
	"fmt"
	"time"
)

// Config is the root of gateline's configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Log       LogConfig       `mapstructure:"log" validate:"required"`
	Saga      SagaConfig      `mapstructure:"saga"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Ticketing TicketingConfig `mapstructure:"ticketing"`
	Mail      MailConfig      `mapstructure:"mail"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// AppConfig identifies the deployment.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig covers the public API listener.
type ServerConfig struct {
	Host      string          `mapstructure:"host"`
	Port      int             `mapstructure:"port" validate:"required,min=1,max=65535"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// HTTPConfig carries the http.Server knobs plus the graceful shutdown
// budget.
type HTTPConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
}

// CORSConfig controls cross-origin access for storefront frontends.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`

	// MaxAge is how long browsers may cache a preflight answer, in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// RateLimitConfig throttles per-client request rates during on-sales.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `mapstructure:"burst" validate:"min=0"`
}

// LogConfig feeds logger.New; level and format can change on hot reload.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
	Output string `mapstructure:"output"`
}

// SagaConfig tunes the purchase workflow.
type SagaConfig struct {
	// Timeout bounds a whole purchase execution; zero means unbounded.
	Timeout time.Duration `mapstructure:"timeout"`

	// ReserveRetries is the retry count of the inventory reservation step.
	ReserveRetries int `mapstructure:"reserve_retries" validate:"min=0"`

	// ReserveRetryDelay is the base delay between reservation retries.
	ReserveRetryDelay time.Duration `mapstructure:"reserve_retry_delay"`
}

// InventoryConfig selects and tunes the ticket inventory backend.
type InventoryConfig struct {
	Type  string      `mapstructure:"type" validate:"oneof=memory redis"`
	Redis RedisConfig `mapstructure:"redis"`

	// ReservationTTL bounds how long an unreleased reservation stays
	// releasable in the redis backend.
	ReservationTTL time.Duration `mapstructure:"reservation_ttl"`
}

// RedisConfig points at the shared inventory Redis.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// KeyPrefix namespaces all keys written by this instance.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// StorageConfig selects the order/event persistence backend.
type StorageConfig struct {
	Type   string       `mapstructure:"type" validate:"oneof=memory badger"`
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig tunes the embedded BadgerDB store.
type BadgerConfig struct {
	Path              string `mapstructure:"path"`
	SyncWrites        bool   `mapstructure:"sync_writes"`
	ValueLogFileSize  int64  `mapstructure:"value_log_file_size"`
	NumVersionsToKeep int    `mapstructure:"num_versions_to_keep"`
}

// TicketingConfig covers ticket issuance.
type TicketingConfig struct {
	// SigningKey is the HMAC key for ticket entry tokens.
	SigningKey string `mapstructure:"signing_key"`

	// QRSize is the rendered QR edge length in pixels.
	QRSize int `mapstructure:"qr_size" validate:"min=0"`
}

// MailConfig covers confirmation email delivery.
type MailConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Sender is the delivery mechanism (log).
	Sender string `mapstructure:"sender" validate:"oneof=log"`

	// FromAddress is the sender address on outbound mail.
	FromAddress string `mapstructure:"from_address"`
}

// MetricsConfig covers the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig covers OTLP trace export.
type TracingConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Exporter string        `mapstructure:"exporter" validate:"omitempty,oneof=otlpgrpc"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// Headers are extra headers sent to the collector, e.g. auth tokens.
	Headers map[string]string `mapstructure:"headers"`

	Sampler string `mapstructure:"sampler" validate:"omitempty,oneof=always_on always_off parentbased_traceidratio"`

	// SampleRate is the fraction of traces kept by the ratio sampler.
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate runs the struct tags plus the custom validators over the whole
// tree.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String is a one-line summary for the startup log; it deliberately omits
// secrets like the signing key and Redis password.
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s}",
		c.App.Name, c.Server.Port, c.App.Environment)
}
