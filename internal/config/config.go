package config

import (
	"fmt"
	"strings"
	"time"

	"storyroom-server/shared/utils"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreBackendRedis  = "redis"
	StoreBackendMemory = "memory"

	StorySourceS3 = "s3"
	StorySourceFS = "fs"
)

// Config is the storyroom-server configuration.
type Config struct {
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	Env         string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Where identities, rooms and sessions live: redis or memory.
	StoreBackend string `envconfig:"STORE_BACKEND" default:"redis"`
	RedisAddr    string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB      int    `envconfig:"REDIS_DB" default:"0"`

	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBName        string        `envconfig:"DB_NAME" default:"storyroom"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_IDLE_TIMEOUT" default:"5m"`
	DBPassword    string        `ignored:"true"`

	// Empty disables the client update relay and push notifications.
	RabbitMQURL            string `envconfig:"RABBITMQ_URL"`
	ClientUpdatesQueue     string `envconfig:"CLIENT_UPDATES_QUEUE" default:"client_updates"`
	PushNotificationsQueue string `envconfig:"PUSH_NOTIFICATIONS_QUEUE" default:"push_notifications"`

	HandshakeTokenTTL     time.Duration `envconfig:"HANDSHAKE_TOKEN_TTL" default:"5m"`
	RoomStartGrace        time.Duration `envconfig:"ROOM_START_GRACE" default:"1s"`
	SessionEndedRetention time.Duration `envconfig:"SESSION_ENDED_RETENTION" default:"24h"`
	SocketTokenRateLimit  uint          `envconfig:"SOCKET_TOKEN_RATE_LIMIT" default:"30"` // per user per minute

	StorySource string `envconfig:"STORY_SOURCE" default:"fs"`
	StoriesDir  string `envconfig:"STORIES_DIR" default:"./stories"`
	StoryBucket string `envconfig:"STORY_BUCKET"`
	StoryPrefix string `envconfig:"STORY_PREFIX" default:"stories/"`
	S3Region    string `envconfig:"S3_REGION" default:"eu-west-3"`
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `ignored:"true"`

	OTLPEndpoint       string   `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	JWTSecret string `ignored:"true"`
}

// GetDSN returns the PostgreSQL connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// UsesPostgres reports whether progress records and the catalog live in
// PostgreSQL. The memory backend keeps everything in process.
func (c *Config) UsesPostgres() bool {
	return c.StoreBackend == StoreBackendRedis
}

// LoadConfig reads the environment and the docker secrets.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load storyroom-server config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var err error
	if cfg.JWTSecret, err = utils.ReadSecret("jwt_secret"); err != nil {
		return nil, err
	}
	if cfg.UsesPostgres() {
		if cfg.DBPassword, err = utils.ReadSecret("db_password"); err != nil {
			return nil, err
		}
	}
	if cfg.StorySource == StorySourceS3 {
		if cfg.S3SecretKey, err = utils.ReadOptionalSecret("s3_secret_key"); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.StoreBackend = strings.ToLower(c.StoreBackend)
	c.StorySource = strings.ToLower(c.StorySource)
	switch c.StoreBackend {
	case StoreBackendRedis, StoreBackendMemory:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.StorySource {
	case StorySourceFS:
	case StorySourceS3:
		if c.StoryBucket == "" {
			return fmt.Errorf("STORY_BUCKET is required when STORY_SOURCE=s3")
		}
	default:
		return fmt.Errorf("unsupported STORY_SOURCE %q", c.StorySource)
	}
	if c.HandshakeTokenTTL <= 0 {
		return fmt.Errorf("HANDSHAKE_TOKEN_TTL must be positive, got %s", c.HandshakeTokenTTL)
	}
	if c.SocketTokenRateLimit == 0 {
		return fmt.Errorf("SOCKET_TOKEN_RATE_LIMIT must be positive")
	}
	return nil
}
