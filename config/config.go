package config

import (
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

type Config struct {
	TelegramToken      string `yaml:"telegram_token" envconfig:"TELEGRAM_TOKEN"`
	RegistrationSecret string `yaml:"registration_secret" envconfig:"REGISTRATION_SECRET"`
	AdminID            int64  `yaml:"admin_id" envconfig:"ADMIN_ID"`
	DatabasePath       string `yaml:"database_path" envconfig:"DATABASE_PATH"`
	LogsDatabasePath   string `yaml:"logs_database_path" envconfig:"LOGS_DATABASE_PATH"`
	Domain             string `yaml:"domain" envconfig:"DOMAIN"`
	HTTPAddress        string `yaml:"http_address" envconfig:"HTTP_ADDRESS"`
	TLSCert            string `yaml:"tls_cert" envconfig:"TLS_CERT"`
	TLSKey             string `yaml:"tls_key" envconfig:"TLS_KEY"`
	SweepMinutes       int    `yaml:"sweep_minutes" envconfig:"SWEEP_MINUTES"`
	LogRetentionDays   int    `yaml:"log_retention_days" envconfig:"LOG_RETENTION_DAYS"`
	ConversationTTL    int    `yaml:"conversation_ttl_minutes" envconfig:"CONVERSATION_TTL_MINUTES"`
	BroadcastPerSecond int    `yaml:"broadcast_per_second" envconfig:"BROADCAST_PER_SECOND"`
	Debug              bool   `yaml:"debug" envconfig:"DEBUG"`
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepMinutes) * time.Minute
}

func (c *Config) ConversationTimeout() time.Duration {
	return time.Duration(c.ConversationTTL) * time.Minute
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}
	// Secrets and deployment overrides come from the environment,
	// prefixed STORAGEBOT_, and win over the file.
	if err := envconfig.Process("storagebot", cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Ensure loads the config, generating a default file first if none exists.
func Ensure(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &Config{
			TelegramToken:      "",
			RegistrationSecret: "",
			AdminID:            0,
			DatabasePath:       "storagegate.db",
			LogsDatabasePath:   "downloads.db",
			Domain:             "http://localhost:8080",
			HTTPAddress:        ":8080",
			TLSCert:            "",
			TLSKey:             "",
			SweepMinutes:       60,
			LogRetentionDays:   90,
			ConversationTTL:    15,
			BroadcastPerSecond: 20,
		}
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}
