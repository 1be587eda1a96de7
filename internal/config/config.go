package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`

	Collectors CollectorsConfig `mapstructure:"collectors"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Matcher    MatcherConfig    `mapstructure:"matcher"`
	Aggregates AggregatesConfig `mapstructure:"aggregates"`
	Retention  RetentionConfig  `mapstructure:"retention"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	// LogLevel is one of silent, error, warn, info.
	LogLevel string `mapstructure:"log_level"`
}

type CollectorsConfig struct {
	Feeds   FeedsConfig   `mapstructure:"feeds"`
	Discord DiscordConfig `mapstructure:"discord"`
	Social  SocialConfig  `mapstructure:"social"`
}

// FeedEndpoint is one syndication source (RSS or Atom).
type FeedEndpoint struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type FeedsConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	PollInterval time.Duration  `mapstructure:"poll_interval"`
	FetchTimeout time.Duration  `mapstructure:"fetch_timeout"`
	Endpoints    []FeedEndpoint `mapstructure:"endpoints"`
	MaxPerFeed   int            `mapstructure:"max_per_feed"`
	SafetyMargin time.Duration  `mapstructure:"safety_margin"`
}

type DiscordConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	BotTokenEnv  string        `mapstructure:"bot_token_env"`
	Channels     []string      `mapstructure:"channels"`
	MaxPerBatch  int           `mapstructure:"max_per_batch"`
}

type SocialConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	BaseURL        string        `mapstructure:"base_url"`
	AccessTokenEnv string        `mapstructure:"access_token_env"`
	MaxPerQuery    int           `mapstructure:"max_per_query"`
	// RateBudget is the number of search requests allowed per RateWindow.
	RateBudget int           `mapstructure:"rate_budget"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

type PipelineConfig struct {
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

type MatcherConfig struct {
	SnippetRunes int `mapstructure:"snippet_runes"`
}

type AggregatesConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	RebuildSpec  string `mapstructure:"rebuild_spec"`
	LookbackDays int    `mapstructure:"lookback_days"`
}

type RetentionConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	CleanupSpec string `mapstructure:"cleanup_spec"`
	RunKeepDays int    `mapstructure:"run_keep_days"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.log_level", "silent")

	v.SetDefault("collectors.feeds.enabled", true)
	v.SetDefault("collectors.feeds.poll_interval", "10m")
	v.SetDefault("collectors.feeds.fetch_timeout", "30s")
	v.SetDefault("collectors.feeds.max_per_feed", 50)
	v.SetDefault("collectors.feeds.safety_margin", "15m")

	v.SetDefault("collectors.discord.enabled", false)
	v.SetDefault("collectors.discord.poll_interval", "2m")
	v.SetDefault("collectors.discord.fetch_timeout", "30s")
	v.SetDefault("collectors.discord.bot_token_env", "MM_DISCORD_BOT_TOKEN")
	v.SetDefault("collectors.discord.max_per_batch", 100)

	v.SetDefault("collectors.social.enabled", false)
	v.SetDefault("collectors.social.poll_interval", "5m")
	v.SetDefault("collectors.social.fetch_timeout", "30s")
	v.SetDefault("collectors.social.base_url", "https://mastodon.social")
	v.SetDefault("collectors.social.access_token_env", "MM_SOCIAL_ACCESS_TOKEN")
	v.SetDefault("collectors.social.max_per_query", 40)
	v.SetDefault("collectors.social.rate_budget", 30)
	v.SetDefault("collectors.social.rate_window", "5m")

	v.SetDefault("pipeline.backoff_base", "30s")
	v.SetDefault("pipeline.backoff_max", "30m")
	v.SetDefault("matcher.snippet_runes", 120)

	v.SetDefault("aggregates.enabled", true)
	v.SetDefault("aggregates.rebuild_spec", "@every 1h")
	v.SetDefault("aggregates.lookback_days", 30)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.cleanup_spec", "@every 6h")
	v.SetDefault("retention.run_keep_days", 14)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
