package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// DBDriver selects the channel store backend: postgres, mongo or memory.
	DBDriver   string `env:"DB_DRIVER" envDefault:"postgres"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"consult"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"consult_dev_password"`
	DBName     string `env:"DB_NAME" envDefault:"consult"`

	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"consult"`

	JWTSecret      string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	LifecycleToken string `env:"LIFECYCLE_TOKEN"`
	EncryptionKey  string `env:"ENCRYPTION_KEY"`
	WorkerID       uint   `env:"WORKER_ID" envDefault:"1"`

	ChannelTTL    time.Duration `env:"CHANNEL_TTL" envDefault:"168h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	UploadBackend      string   `env:"UPLOAD_BACKEND" envDefault:"fs"`
	UploadDir          string   `env:"UPLOAD_DIR" envDefault:"./uploads"`
	UploadMaxBytes     int64    `env:"UPLOAD_MAX_BYTES" envDefault:"5242880"`
	UploadAllowedTypes []string `env:"UPLOAD_ALLOWED_TYPES" envSeparator:"," envDefault:"image/jpeg,image/png,image/gif,application/pdf"`
	PublicBaseURL      string   `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	S3Region          string `env:"S3_REGION"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"S3_FORCE_PATH_STYLE"`

	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string   `env:"LOG_FORMAT" envDefault:"text"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.DBDriver {
	case "postgres", "mongo", "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	switch cfg.UploadBackend {
	case "fs", "s3":
	default:
		return nil, fmt.Errorf("unsupported UPLOAD_BACKEND %q", cfg.UploadBackend)
	}
	if cfg.UploadMaxBytes <= 0 {
		return nil, fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	if cfg.ChannelTTL <= 0 {
		return nil, fmt.Errorf("CHANNEL_TTL must be positive")
	}

	return &cfg, nil
}

// DSN returns the postgres connection string.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
