package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Alerting      AlertingConfig      `mapstructure:"alerting"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Escalation    EscalationConfig    `mapstructure:"escalation"`
	Collectors    CollectorsConfig    `mapstructure:"collectors"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
	// AllowedOrigins lists the dashboard origins CORS admits. Empty
	// admits any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

type AlertingConfig struct {
	EvaluationInterval      time.Duration `mapstructure:"evaluation_interval"`
	EscalationSweepInterval time.Duration `mapstructure:"escalation_sweep_interval"`
	HistoryRetention        time.Duration `mapstructure:"history_retention"`
	HistoryPruneInterval    time.Duration `mapstructure:"history_prune_interval"`
	DefaultCooldown         time.Duration `mapstructure:"default_cooldown"`
}

type NotificationsConfig struct {
	// DefaultChannels receive stage-1 notifications when no escalation
	// policy has been configured at all.
	DefaultChannels []string      `mapstructure:"default_channels"`
	WebhookTimeout  time.Duration `mapstructure:"webhook_timeout"`
	// Webhooks maps channel ids to delivery endpoints for the built-in
	// webhook sender. Channels without an entry are logged and skipped.
	Webhooks map[string]string `mapstructure:"webhooks"`
}

type EscalationConfig struct {
	DefaultPolicy string         `mapstructure:"default_policy"`
	Policies      []PolicyConfig `mapstructure:"policies"`
}

type PolicyConfig struct {
	ID               string        `mapstructure:"id"`
	RepeatFinalStage bool          `mapstructure:"repeat_final_stage"`
	Stages           []StageConfig `mapstructure:"stages"`
}

type StageConfig struct {
	Level        int      `mapstructure:"level"`
	DelayMinutes int      `mapstructure:"delay_minutes"`
	Channels     []string `mapstructure:"channels"`
	NotifyAll    bool     `mapstructure:"notify_all"`
}

type CollectorsConfig struct {
	System SystemCollectorConfig `mapstructure:"system"`
}

type SystemCollectorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads config.yaml from ./configs or the working directory. A missing
// file is not an error; defaults plus environment variables apply.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("server.mode", "VIGIL_MODE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3301)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "development")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("metrics.retention", "168h") // 7 days
	viper.SetDefault("metrics.prune_interval", "1h")

	viper.SetDefault("alerting.evaluation_interval", "30s")
	viper.SetDefault("alerting.escalation_sweep_interval", "60s")
	viper.SetDefault("alerting.history_retention", "2160h") // 90 days
	viper.SetDefault("alerting.history_prune_interval", "1h")
	viper.SetDefault("alerting.default_cooldown", "30m")

	viper.SetDefault("notifications.default_channels", []string{})
	viper.SetDefault("notifications.webhook_timeout", "30s")

	viper.SetDefault("collectors.system.enabled", true)
	viper.SetDefault("collectors.system.interval", "30s")
}
