// Package config provides configuration management for memchat
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for structured environment overrides (MEMCHAT_SERVER_PORT, ...)
const EnvPrefix = "MEMCHAT"

// Config is the process-wide configuration, built once at startup
type Config struct {
	Server         ServerConfig   `yaml:"server" json:"server" mapstructure:"server"`
	Database       DatabaseConfig `yaml:"database" json:"database" mapstructure:"database"`
	Auth           AuthConfig     `yaml:"auth" json:"auth" mapstructure:"auth"`
	Redis          RedisConfig    `yaml:"redis" json:"redis" mapstructure:"redis"`
	NATS           NATSConfig     `yaml:"nats" json:"nats" mapstructure:"nats"`
	Uploads        UploadsConfig  `yaml:"uploads" json:"uploads" mapstructure:"uploads"`
	Log            LogConfig      `yaml:"log" json:"log" mapstructure:"log"`
	StartupTimeout time.Duration  `yaml:"startup_timeout" json:"startup_timeout" mapstructure:"startup_timeout" validate:"gt=0"`
}

// ServerConfig represents API server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" mapstructure:"host"`
	Port         int           `yaml:"port" json:"port" mapstructure:"port" validate:"required,gt=0,lte=65535"`
	Mode         string        `yaml:"mode" json:"mode" mapstructure:"mode" validate:"oneof=debug release test"`
	CORSOrigins  []string      `yaml:"cors_origins" json:"cors_origins" mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`
}

// DatabaseConfig selects and tunes the relational store
type DatabaseConfig struct {
	Type         string `yaml:"type" json:"type" mapstructure:"type" validate:"required,oneof=sqlite mysql"`
	Path         string `yaml:"path" json:"path" mapstructure:"path" validate:"required_if=Type sqlite"`
	URL          string `yaml:"url,omitempty" json:"url,omitempty" mapstructure:"url" validate:"required_if=Type mysql"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns" mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `yaml:"max_idle_conns" json:"max_idle_conns" mapstructure:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig holds token, lockout and bootstrap superadmin settings
type AuthConfig struct {
	JWTSecret             string        `yaml:"jwt_secret" json:"-" mapstructure:"jwt_secret" validate:"required"`
	TokenExpiry           time.Duration `yaml:"token_expiry" json:"token_expiry" mapstructure:"token_expiry" validate:"gt=0"`
	SuperadminTokenExpiry time.Duration `yaml:"superadmin_token_expiry" json:"superadmin_token_expiry" mapstructure:"superadmin_token_expiry" validate:"gt=0"`
	SuperadminEmail       string        `yaml:"superadmin_email,omitempty" json:"superadmin_email,omitempty" mapstructure:"superadmin_email" validate:"omitempty,email"`
	SuperadminPassword    string        `yaml:"superadmin_password,omitempty" json:"-" mapstructure:"superadmin_password" validate:"required_with=SuperadminEmail"`
	MaxLoginAttempts      int           `yaml:"max_login_attempts" json:"max_login_attempts" mapstructure:"max_login_attempts" validate:"gte=1"`
	LockoutDuration       time.Duration `yaml:"lockout_duration" json:"lockout_duration" mapstructure:"lockout_duration" validate:"gte=1m"`
	EnableAuditLogging    bool          `yaml:"enable_audit_logging" json:"enable_audit_logging" mapstructure:"enable_audit_logging"`
}

// RedisConfig represents the optional Redis connection backing the login limiter
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" json:"addr" mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string `yaml:"password,omitempty" json:"-" mapstructure:"password"`
	DB       int    `yaml:"db" json:"db" mapstructure:"db" validate:"gte=0"`
	PoolSize int    `yaml:"pool_size" json:"pool_size" mapstructure:"pool_size" validate:"gte=0"`
}

// NATSConfig represents the optional NATS connection used for domain events
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	URL           string `yaml:"url" json:"url" mapstructure:"url" validate:"required_if=Enabled true"`
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix" mapstructure:"subject_prefix" validate:"required"`
}

// UploadsConfig configures the profile image store
type UploadsConfig struct {
	Provider       string        `yaml:"provider" json:"provider" mapstructure:"provider" validate:"oneof=none cloudinary"`
	BaseURL        string        `yaml:"base_url" json:"base_url" mapstructure:"base_url" validate:"required_if=Provider cloudinary"`
	CloudName      string        `yaml:"cloud_name,omitempty" json:"cloud_name,omitempty" mapstructure:"cloud_name" validate:"required_if=Provider cloudinary"`
	APIKey         string        `yaml:"api_key,omitempty" json:"-" mapstructure:"api_key" validate:"required_if=Provider cloudinary"`
	APISecret      string        `yaml:"api_secret,omitempty" json:"-" mapstructure:"api_secret" validate:"required_if=Provider cloudinary"`
	Folder         string        `yaml:"folder" json:"folder" mapstructure:"folder"`
	Format         string        `yaml:"format" json:"format" mapstructure:"format"`
	Transformation string        `yaml:"transformation" json:"transformation" mapstructure:"transformation"`
	MaxSizeBytes   int64         `yaml:"max_size_bytes" json:"max_size_bytes" mapstructure:"max_size_bytes" validate:"gt=0"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
}

// LogConfig controls the process logger
type LogConfig struct {
	Level string `yaml:"level" json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file,omitempty" json:"file,omitempty" mapstructure:"file"`
}

// NewConfig returns a configuration populated with defaults
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "",
			Port:         5000,
			Mode:         "release",
			CORSOrigins:  []string{"http://localhost:3000"},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Type:         "sqlite",
			Path:         "./data/memchat.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Auth: AuthConfig{
			TokenExpiry:           7 * 24 * time.Hour,
			SuperadminTokenExpiry: 24 * time.Hour,
			MaxLoginAttempts:      5,
			LockoutDuration:       15 * time.Minute,
			EnableAuditLogging:    true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "memchat",
		},
		Uploads: UploadsConfig{
			Provider:       "none",
			BaseURL:        "https://api.cloudinary.com",
			Folder:         "user_profiles",
			Format:         "png",
			Transformation: "c_fill,w_300,h_300",
			MaxSizeBytes:   5 << 20,
			Timeout:        30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		StartupTimeout: 30 * time.Second,
	}
}

// configKeys lists every key that can be overridden from the environment
var configKeys = []string{
	"server.host", "server.port", "server.mode", "server.cors_origins",
	"server.read_timeout", "server.write_timeout",
	"database.type", "database.path", "database.url",
	"database.max_open_conns", "database.max_idle_conns",
	"auth.jwt_secret", "auth.token_expiry", "auth.superadmin_token_expiry",
	"auth.superadmin_email", "auth.superadmin_password",
	"auth.max_login_attempts", "auth.lockout_duration", "auth.enable_audit_logging",
	"redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.pool_size",
	"nats.enabled", "nats.url", "nats.subject_prefix",
	"uploads.provider", "uploads.base_url", "uploads.cloud_name", "uploads.api_key",
	"uploads.api_secret", "uploads.folder", "uploads.format", "uploads.transformation",
	"uploads.max_size_bytes", "uploads.timeout",
	"log.level", "log.file",
	"startup_timeout",
}

// legacyEnv maps config keys to the unprefixed variable names deployments already use
var legacyEnv = map[string]string{
	"server.port":              "PORT",
	"server.mode":              "GIN_MODE",
	"database.url":             "DATABASE_URL",
	"auth.jwt_secret":          "JWT_SECRET",
	"auth.superadmin_email":    "SUPERADMIN_EMAIL",
	"auth.superadmin_password": "SUPERADMIN_PASSWORD",
	"redis.addr":               "REDIS_ADDR",
	"nats.url":                 "NATS_URL",
	"uploads.cloud_name":       "CLOUDINARY_CLOUD_NAME",
	"uploads.api_key":          "CLOUDINARY_API_KEY",
	"uploads.api_secret":       "CLOUDINARY_API_SECRET",
}

// Load builds the configuration: defaults, then the optional config file, then
// the optional .env file, then process environment
func Load(configFile, envFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg := NewConfig()
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
		switch ext := strings.ToLower(filepath.Ext(configFile)); ext {
		case ".json":
			v.SetConfigType("json")
		case ".yaml", ".yml":
			v.SetConfigType("yaml")
		default:
			return nil, fmt.Errorf("unsupported config file format: %s", ext)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv returns a viper instance reading prefixed environment variables
func LoadFromEnv(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

func bindEnv(v *viper.Viper) {
	replacer := strings.NewReplacer(".", "_")
	for _, key := range configKeys {
		args := []string{key, EnvPrefix + "_" + strings.ToUpper(replacer.Replace(key))}
		if legacy, ok := legacyEnv[key]; ok {
			args = append(args, legacy)
		}
		// BindEnv only fails when called without a key
		_ = v.BindEnv(args...)
	}
}

func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ToYAMLFile saves the configuration to a YAML file
func (c *Config) ToYAMLFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}
