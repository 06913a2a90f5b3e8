// Package config loads ransomwatch settings from an optional YAML file, a
// .env file and the process environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ransomwatch/database"
	"ransomwatch/logger"
	"ransomwatch/pipeline"
	"ransomwatch/reports"
	"ransomwatch/scraper"
	"ransomwatch/services"
)

const DefaultPath = "ransomwatch.yaml"

var validate = validator.New(validator.WithRequiredStructEnabled())

type Config struct {
	Database      database.Config           `yaml:"database"`
	Feeds         services.FeedConfig       `yaml:"feeds"`
	ArchiveDir    string                    `yaml:"archive_dir" validate:"required"`
	Screenshots   scraper.Config            `yaml:"screenshots"`
	Pipeline      pipeline.Config           `yaml:"pipeline"`
	HomeMarket    pipeline.HomeMarketConfig `yaml:"home_market"`
	Notifications reports.Config            `yaml:"notifications"`
	Schedule      ScheduleConfig            `yaml:"schedule"`
	API           APIConfig                 `yaml:"api"`
	MetricsAddr   string                    `yaml:"metrics_addr"`
	Log           logger.Config             `yaml:"log"`
}

// ScheduleConfig holds robfig/cron specs for the schedule command.
type ScheduleConfig struct {
	Ingest       string `yaml:"ingest" validate:"required"`
	DailySummary string `yaml:"daily_summary"`
}

type APIConfig struct {
	Listen            string        `yaml:"listen" validate:"required"`
	AdminUser         string        `yaml:"admin_user" validate:"required"`
	AdminPasswordHash string        `yaml:"admin_password_hash"`
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl" validate:"min=1m"`
}

func Default() *Config {
	return &Config{
		Database: database.Config{
			Driver: "postgres",
			DSN:    database.DefaultDSN,
			Path:   "data/ransomwatch.db",
		},
		Feeds:         services.DefaultFeedConfig(),
		ArchiveDir:    "archive",
		Screenshots:   scraper.DefaultConfig(),
		Pipeline:      pipeline.DefaultConfig(),
		HomeMarket:    pipeline.DefaultHomeMarketConfig(),
		Notifications: reports.DefaultConfig(),
		Schedule: ScheduleConfig{
			Ingest:       "@every 1h",
			DailySummary: "0 9 * * *",
		},
		API: APIConfig{
			Listen:    ":8080",
			AdminUser: "admin",
			TokenTTL:  24 * time.Hour,
		},
		MetricsAddr: ":9090",
		Log:         logger.DefaultConfig(),
	}
}

// Load builds the effective configuration. An empty path reads DefaultPath
// when it exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DB_SOURCE")
	setString(&c.Database.Path, "BOLT_PATH")
	setString(&c.Screenshots.Proxy, "TOR_PROXY")
	setString(&c.ArchiveDir, "ARCHIVE_DIR")

	setString(&c.Notifications.Discord.WebhookURL, "DISCORD_WEBHOOK_URL")
	setString(&c.Notifications.Slack.WebhookURL, "SLACK_WEBHOOK_URL")
	setString(&c.Notifications.Teams.WebhookURL, "TEAMS_WEBHOOK_URL")
	setString(&c.Notifications.NATS.URL, "NATS_URL")

	email := &c.Notifications.Email
	setString(&email.Host, "SMTP_HOST")
	setString(&email.Username, "SMTP_USERNAME")
	setString(&email.Password, "SMTP_PASSWORD")
	setString(&email.From, "SMTP_FROM")
	if v := os.Getenv("SMTP_TO"); v != "" {
		email.To = splitList(v)
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		email.Port = port
	}

	setString(&c.API.JWTSecret, "JWT_SECRET")
	setString(&c.API.AdminPasswordHash, "ADMIN_PASSWORD_HASH")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks every section and reports all failing fields at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: rule '%s' expected '%s', got '%v'",
			fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("invalid config:\n • %s", strings.Join(msgs, "\n • "))
}
