package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Lock     LockConfig     `mapstructure:"lock"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Events   EventsConfig   `mapstructure:"events"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port"`
	Mode                    string        `mapstructure:"mode"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
	MaxUploadBytes          int64         `mapstructure:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              string        `mapstructure:"db"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	Migrator        string        `mapstructure:"migrator"` // "gorm" | "goose"
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type LockConfig struct {
	Backend string `mapstructure:"backend"` // "redis" | "memory"
}

type JWTConfig struct {
	SigningKey      string        `mapstructure:"signing_key"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" | "console"
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type StorageConfig struct {
	Root string `mapstructure:"root"`
}

type EventsConfig struct {
	DefaultExpiryDays int    `mapstructure:"default_expiry_days"`
	CodeLength        int    `mapstructure:"code_length"`
	PublicBaseURL     string `mapstructure:"public_base_url"`
}

type CleanupConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

type MirrorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Backend  string        `mapstructure:"backend"` // "smb" | "s3" | "local"
	Timeout  time.Duration `mapstructure:"timeout"`
	BasePath string        `mapstructure:"base_path"`
	SMB      SMBConfig     `mapstructure:"smb"`
	S3       S3Config      `mapstructure:"s3"`
	Local    LocalConfig   `mapstructure:"local"`
}

type SMBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Domain   string `mapstructure:"domain"`
	Share    string `mapstructure:"share"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type LocalConfig struct {
	MountPoint string `mapstructure:"mount_point"`
}

type AdminConfig struct {
	BootstrapPassword string `mapstructure:"bootstrap_password"`
}

// Defaults lists every setting with its fallback value. Registering them with
// viper also makes each key visible to AutomaticEnv.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.host":                      "0.0.0.0",
		"server.port":                      8080,
		"server.mode":                      "release",
		"server.read_timeout":              "60s",
		"server.write_timeout":             "120s",
		"server.graceful_shutdown_timeout": "15s",
		"server.max_upload_bytes":          int64(500 << 20),

		"database.postgres.host":              "localhost",
		"database.postgres.port":              5432,
		"database.postgres.db":                "eventhub",
		"database.postgres.user":              "eventhub",
		"database.postgres.password":          "",
		"database.postgres.sslmode":           "disable",
		"database.postgres.max_idle_conns":    5,
		"database.postgres.max_open_conns":    20,
		"database.postgres.conn_max_lifetime": "30m",
		"database.postgres.auto_migrate":      true,
		"database.postgres.migrator":          "gorm",

		"database.redis.host":      "localhost",
		"database.redis.port":      6379,
		"database.redis.password":  "",
		"database.redis.db":        0,
		"database.redis.pool_size": 10,

		"lock.backend": "memory",

		"jwt.signing_key":       "",
		"jwt.issuer":            "eventhub",
		"jwt.access_token_ttl":  "24h",
		"jwt.refresh_token_ttl": "720h",

		"cors.allowed_origins":   []string{"http://localhost:3000"},
		"cors.allowed_methods":   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		"cors.allowed_headers":   []string{"Origin", "Content-Type", "Authorization"},
		"cors.allow_credentials": true,
		"cors.max_age":           "12h",

		"log.level":        "info",
		"log.format":       "json",
		"log.path":         "",
		"log.max_size_mb":  100,
		"log.max_backups":  3,
		"log.max_age_days": 7,
		"log.compress":     false,

		"storage.root": "uploads",

		"events.default_expiry_days": 14,
		"events.code_length":         8,
		"events.public_base_url":     "http://localhost:3000",

		"cleanup.interval":     "6h",
		"cleanup.run_on_start": true,

		"mirror.enabled":           false,
		"mirror.backend":           "smb",
		"mirror.timeout":           "30s",
		"mirror.base_path":         "/fotoapp",
		"mirror.smb.host":          "",
		"mirror.smb.port":          445,
		"mirror.smb.username":      "",
		"mirror.smb.password":      "",
		"mirror.smb.domain":        "",
		"mirror.smb.share":         "fotoapp",
		"mirror.s3.endpoint":       "",
		"mirror.s3.region":         "us-east-1",
		"mirror.s3.bucket":         "",
		"mirror.s3.access_key":     "",
		"mirror.s3.secret_key":     "",
		"mirror.local.mount_point": "",

		"admin.bootstrap_password": "",
	}
}

// Load reads config.yaml, overlays environment variables, and returns Config.
// A missing file is not an error; defaults and the environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Environment variable override: MIRROR_SMB_HOST -> mirror.smb.host
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would make the service misbehave silently.
func (c *Config) Validate() error {
	if c.JWT.SigningKey == "" {
		return errors.New("jwt.signing_key is required")
	}
	if c.Events.DefaultExpiryDays <= 0 {
		return fmt.Errorf("events.default_expiry_days must be positive, got %d", c.Events.DefaultExpiryDays)
	}
	if c.Cleanup.Interval <= 0 {
		return fmt.Errorf("cleanup.interval must be positive, got %s", c.Cleanup.Interval)
	}
	if c.Storage.Root == "" {
		return errors.New("storage.root is required")
	}
	switch c.Lock.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}
	switch c.Database.Postgres.Migrator {
	case "gorm", "goose":
	default:
		return fmt.Errorf("unknown migrator %q", c.Database.Postgres.Migrator)
	}
	return nil
}
