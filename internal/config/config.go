package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL       string `yaml:"database_url"`
	TemporalAddress   string `yaml:"temporal_address"`
	HTTPListenAddr    string `yaml:"http_listen_addr"`
	MetricsListenAddr string `yaml:"metrics_listen_addr"`
	LogLevel          string `yaml:"log_level"`
	ServiceName       string `yaml:"service_name"`

	// BackupDir is the canonical local backups directory. Artifacts built by
	// the worker always land here first, regardless of the configured remote
	// storage backend.
	BackupDir string `yaml:"backup_dir"`
	// UploadsDir is the site's uploads/static-asset tree included in backups
	// when the installation enables it.
	UploadsDir string `yaml:"uploads_dir"`
	// PgDumpPath overrides the pg_dump binary used for database dumps.
	PgDumpPath string `yaml:"pg_dump_path"`

	// SecretsKey is the base64-encoded 32-byte key encrypting storage
	// credentials at rest.
	SecretsKey string `yaml:"secrets_key"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from"`
	// AdminEmail receives run reports when notifications are on but no
	// recipient was set in the backup settings.
	AdminEmail string `yaml:"admin_email"`
}

// Load reads configuration from the environment. If BACKHAUL_CONFIG points at
// a YAML file, values from the file are applied first and the environment
// overrides them.
func Load() (*Config, error) {
	cfg := &Config{
		TemporalAddress:   "localhost:7233",
		HTTPListenAddr:    ":8090",
		MetricsListenAddr: ":9090",
		LogLevel:          "info",
		BackupDir:         "/var/backups/backhaul",
		UploadsDir:        "/var/www/uploads",
		PgDumpPath:        "pg_dump",
		SMTPPort:          587,
	}

	if path := os.Getenv("BACKHAUL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg.DatabaseURL, "DATABASE_URL")
	applyEnv(&cfg.TemporalAddress, "TEMPORAL_ADDRESS")
	applyEnv(&cfg.HTTPListenAddr, "HTTP_LISTEN_ADDR")
	applyEnv(&cfg.MetricsListenAddr, "METRICS_LISTEN_ADDR")
	applyEnv(&cfg.LogLevel, "LOG_LEVEL")
	applyEnv(&cfg.ServiceName, "SERVICE_NAME")
	applyEnv(&cfg.BackupDir, "BACKUP_DIR")
	applyEnv(&cfg.UploadsDir, "UPLOADS_DIR")
	applyEnv(&cfg.PgDumpPath, "PG_DUMP_PATH")
	applyEnv(&cfg.SecretsKey, "SECRETS_KEY")
	applyEnv(&cfg.SMTPHost, "SMTP_HOST")
	applyEnv(&cfg.SMTPUsername, "SMTP_USERNAME")
	applyEnv(&cfg.SMTPPassword, "SMTP_PASSWORD")
	applyEnv(&cfg.SMTPFrom, "SMTP_FROM")
	applyEnv(&cfg.AdminEmail, "ADMIN_EMAIL")

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		cfg.SMTPPort = port
	}

	return cfg, nil
}

func applyEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the fields required by the given role are set.
func (c *Config) Validate(role string) error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s: DATABASE_URL is required", role)
	}
	if c.SecretsKey == "" {
		return fmt.Errorf("%s: SECRETS_KEY is required", role)
	}
	if c.TemporalAddress == "" {
		return fmt.Errorf("%s: TEMPORAL_ADDRESS is required", role)
	}

	switch role {
	case "api":
		if c.HTTPListenAddr == "" {
			return fmt.Errorf("api: HTTP_LISTEN_ADDR is required")
		}
	case "worker":
		if c.BackupDir == "" {
			return fmt.Errorf("worker: BACKUP_DIR is required")
		}
	}

	return nil
}
