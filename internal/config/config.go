package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Uploads  UploadsConfig  `yaml:"uploads"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"MAILKITE_LISTEN_ADDR"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"MAILKITE_DB_PATH"`
}

type UploadsConfig struct {
	Path   string        `yaml:"path" env:"MAILKITE_UPLOADS_PATH"`
	MaxAge time.Duration `yaml:"max_age"`
}

type SMTPConfig struct {
	Host        string        `yaml:"host" env:"MAILKITE_SMTP_HOST"`
	Port        int           `yaml:"port" env:"MAILKITE_SMTP_PORT"`
	StartTLS    bool          `yaml:"starttls"` // false means implicit TLS
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type CryptoConfig struct {
	// EncryptionKey is a hex-encoded 32-byte key used to seal sender
	// app passwords at rest.
	EncryptionKey string `yaml:"encryption_key" env:"MAILKITE_ENCRYPTION_KEY"`
}

type DispatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type AuthConfig struct {
	SessionSecret string        `yaml:"session_secret" env:"MAILKITE_SESSION_SECRET"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"MAILKITE_LOG_LEVEL"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file, applies environment
// variable overrides, then fills defaults and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/mailkite/app.db"
	}
	if cfg.Uploads.Path == "" {
		cfg.Uploads.Path = "/var/lib/mailkite/uploads.db"
	}
	if cfg.Uploads.MaxAge == 0 {
		cfg.Uploads.MaxAge = 24 * time.Hour
	}
	if cfg.SMTP.Host == "" {
		cfg.SMTP.Host = "smtp.gmail.com"
	}
	if cfg.SMTP.Port == 0 {
		if cfg.SMTP.StartTLS {
			cfg.SMTP.Port = 587
		} else {
			cfg.SMTP.Port = 465
		}
	}
	if cfg.SMTP.DialTimeout == 0 {
		cfg.SMTP.DialTimeout = 30 * time.Second
	}
	if cfg.Dispatch.Concurrency == 0 {
		cfg.Dispatch.Concurrency = 5
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Crypto.EncryptionKey == "" {
		return fmt.Errorf("crypto.encryption_key is required (generate one with 'mailkite keygen')")
	}
	key, err := hex.DecodeString(cfg.Crypto.EncryptionKey)
	if err != nil {
		return fmt.Errorf("crypto.encryption_key must be hex-encoded: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("crypto.encryption_key must decode to 32 bytes, got %d", len(key))
	}
	if cfg.Auth.SessionSecret == "" {
		return fmt.Errorf("auth.session_secret is required")
	}
	if len(cfg.Auth.SessionSecret) < 32 {
		return fmt.Errorf("auth.session_secret must be at least 32 characters")
	}
	if cfg.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	return nil
}

// EncryptionKey returns the decoded key bytes. Only valid after a
// successful Load.
func (c *Config) EncryptionKey() []byte {
	key, _ := hex.DecodeString(c.Crypto.EncryptionKey)
	return key
}
