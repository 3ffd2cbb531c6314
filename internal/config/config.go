package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the portal.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Session   SessionConfig   `mapstructure:"session"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	Environment      string        `mapstructure:"environment"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins      []string      `mapstructure:"cors_origins"`
	BootstrapOnStart bool          `mapstructure:"bootstrap_on_start"`
	SearchRPS        float64       `mapstructure:"search_rps"`
	SearchBurst      int           `mapstructure:"search_burst"`
}

// IsProduction reports whether cookies must be marked Secure.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
	// LogFile, when set, receives a copy of every log line as JSON.
	LogFile      string `mapstructure:"log_file"`
}

type SessionConfig struct {
	Secret     string        `mapstructure:"secret"`
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type UploadsConfig struct {
	MaxFileSize       int64    `mapstructure:"max_file_size"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

type BootstrapConfig struct {
	Timeout  time.Duration  `mapstructure:"timeout"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN renders the connection string understood by pgx.
func (p PostgresConfig) DSN() string {
	return p.URL("postgres")
}

// URL renders the connection URL under scheme with credentials escaped.
func (p PostgresConfig) URL(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.DB,
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String()
}

// NATSConfig configures the event stream. An empty URL disables events.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig configures login throttling. An empty host disables it.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	MaxFailures int           `mapstructure:"max_failures"`
	Window      time.Duration `mapstructure:"window"`
}

// StorageConfig points at an S3-compatible bucket (Cloudflare R2 in production).
type StorageConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl"`
	UsePathStyle    bool          `mapstructure:"use_path_style"`
	CreateBucket    bool          `mapstructure:"create_bucket"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the PORTAL_ prefix (e.g. PORTAL_SERVER_PORT).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.bootstrap_on_start", true)
	v.SetDefault("server.search_rps", 1.0)
	v.SetDefault("server.search_burst", 10)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "portal-creditos")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_file", "")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.cookie_name", "portal-creditos-session")
	v.SetDefault("session.ttl", 14*24*time.Hour)

	v.SetDefault("uploads.max_file_size", 10<<20)
	v.SetDefault("uploads.allowed_extensions", []string{".pdf", ".jpg", ".jpeg", ".png"})

	v.SetDefault("bootstrap.timeout", 2*time.Minute)

	v.SetDefault("bootstrap.postgres.host", "localhost")
	v.SetDefault("bootstrap.postgres.port", 5432)
	v.SetDefault("bootstrap.postgres.user", "portal")
	v.SetDefault("bootstrap.postgres.password", "")
	v.SetDefault("bootstrap.postgres.db", "portal_creditos")
	v.SetDefault("bootstrap.postgres.ssl_mode", "disable")
	v.SetDefault("bootstrap.postgres.max_conns", 10)

	v.SetDefault("bootstrap.nats.url", "")

	v.SetDefault("bootstrap.redis.host", "")
	v.SetDefault("bootstrap.redis.port", 6379)
	v.SetDefault("bootstrap.redis.password", "")
	v.SetDefault("bootstrap.redis.db", 0)
	v.SetDefault("bootstrap.redis.max_failures", 5)
	v.SetDefault("bootstrap.redis.window", 15*time.Minute)

	v.SetDefault("bootstrap.storage.endpoint", "")
	v.SetDefault("bootstrap.storage.region", "auto")
	v.SetDefault("bootstrap.storage.bucket", "")
	v.SetDefault("bootstrap.storage.access_key_id", "")
	v.SetDefault("bootstrap.storage.secret_access_key", "")
	v.SetDefault("bootstrap.storage.key_prefix", "documentos")
	v.SetDefault("bootstrap.storage.presign_ttl", 5*time.Minute)
	v.SetDefault("bootstrap.storage.use_path_style", false)
	v.SetDefault("bootstrap.storage.create_bucket", false)
}
