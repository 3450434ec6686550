package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Crypto     CryptoConfig     `yaml:"crypto" mapstructure:"crypto"`
	Odoo       OdooConfig       `yaml:"odoo" mapstructure:"odoo"`
	Firm       FirmConfig       `yaml:"firm" mapstructure:"firm"`
	Indicators IndicatorsConfig `yaml:"indicators" mapstructure:"indicators"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Dashboard  DashboardConfig  `yaml:"dashboard" mapstructure:"dashboard"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CryptoConfig holds the system-wide credential key.
type CryptoConfig struct {
	FernetKey string `yaml:"fernet_key" mapstructure:"fernet_key"`
}

// OdooConfig tunes the remote client.
type OdooConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// FirmConfig names the custom partner fields in the firm's own system.
type FirmConfig struct {
	PartnerLinkField  string `yaml:"partner_link_field" mapstructure:"partner_link_field"`
	CollaboratorField string `yaml:"collaborator_field" mapstructure:"collaborator_field"`
}

// IndicatorsConfig tunes individual extractors.
type IndicatorsConfig struct {
	StaffEmailDomain  string `yaml:"staff_email_domain" mapstructure:"staff_email_domain"`
	CustomModelPrefix string `yaml:"custom_model_prefix" mapstructure:"custom_model_prefix"`
	Timezone          string `yaml:"timezone" mapstructure:"timezone"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	JWTSecret      string   `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTLHours  int      `yaml:"token_ttl_hours" mapstructure:"token_ttl_hours"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// TemporalConfig configures the scheduled trigger.
type TemporalConfig struct {
	HostPort       string `yaml:"host_port" mapstructure:"host_port"`
	Namespace      string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue      string `yaml:"task_queue" mapstructure:"task_queue"`
	ScheduleID     string `yaml:"schedule_id" mapstructure:"schedule_id"`
	Cron           string `yaml:"cron" mapstructure:"cron"`
	RunTimeoutMins int    `yaml:"run_timeout_mins" mapstructure:"run_timeout_mins"`
}

// DashboardConfig holds the category table used by the result views.
type DashboardConfig struct {
	Categories []CategoryConfig `yaml:"categories" mapstructure:"categories"`
}

// CategoryConfig maps a display category to indicator names.
// A list keeps category names out of viper's key lowercasing.
type CategoryConfig struct {
	Name       string   `yaml:"name" mapstructure:"name"`
	Indicators []string `yaml:"indicators" mapstructure:"indicators"`
}

// MonitoringConfig configures post-run alerting.
type MonitoringConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold   float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	PersistErrorsThreshold int     `yaml:"persist_errors_threshold" mapstructure:"persist_errors_threshold"`
	StaleAfterHours        int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// DefaultCategories mirrors the firm's dashboard layout.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{Name: "Closing control", Indicators: []string{
			"annual closing date",
			"last fiscal lock date",
			"vat periodicity",
		}},
		{Name: "Technical data", Indicators: []string{
			"server version",
			"custom models (indicative)",
			"automated actions",
			"active users",
			"staff domain users",
			"active applications",
			"database activation date",
		}},
		{Name: "Accounting production", Indicators: []string{
			"operations to qualify",
			"purchases to process",
			"orphan payments",
			"unreconciled internal transfers",
			"internal transfer balance",
			"encashment pivot",
		}},
		{Name: "Financial health", Indicators: []string{
			"provisional result ytd",
		}},
		{Name: "Other"},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("crypto.fernet_key", "")
	v.SetDefault("odoo.timeout_secs", 60)
	v.SetDefault("odoo.requests_per_second", 0)
	v.SetDefault("firm.partner_link_field", "x_odoo_database")
	v.SetDefault("firm.collaborator_field", "x_collaborateur_1")
	v.SetDefault("indicators.staff_email_domain", "lpde.pro")
	v.SetDefault("indicators.custom_model_prefix", "x_")
	v.SetDefault("indicators.timezone", "Local")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.token_ttl_hours", 24*30)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "ledger-indicators")
	v.SetDefault("temporal.schedule_id", "collect-indicators")
	v.SetDefault("temporal.cron", "0 5 * * *")
	v.SetDefault("temporal.run_timeout_mins", 120)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.persist_errors_threshold", 1)
	v.SetDefault("monitoring.stale_after_hours", 36)
	v.SetDefault("monitoring.check_interval_secs", 900)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if len(cfg.Dashboard.Categories) == 0 {
		cfg.Dashboard.Categories = DefaultCategories()
	}

	return &cfg, nil
}

// Validate checks that the settings needed by the named command are present.
func (c *Config) Validate(command string) error {
	var missing []string
	switch command {
	case "collect", "worker":
		if c.Store.DatabaseURL == "" && c.Store.Driver == "postgres" {
			missing = append(missing, "store.database_url is required")
		}
		if c.Crypto.FernetKey == "" {
			missing = append(missing, "crypto.fernet_key is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			missing = append(missing, "server.port must be between 1 and 65535")
		}
		if c.Server.JWTSecret == "" {
			missing = append(missing, "server.jwt_secret is required")
		}
	case "schedule":
		if c.Temporal.Cron == "" {
			missing = append(missing, "temporal.cron is required")
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
