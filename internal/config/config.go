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

	Exchange ExchangeConfig `mapstructure:"exchange"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Store    StoreConfig    `mapstructure:"store"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Threat   ThreatConfig   `mapstructure:"threat"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Trading  TradingConfig  `mapstructure:"trading"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr    string   `mapstructure:"http_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
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
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type ExchangeConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	QuoteAsset   string        `mapstructure:"quote_asset"`
	RetryInitial time.Duration `mapstructure:"retry_initial"`
	RetryMax     time.Duration `mapstructure:"retry_max"`
	RetryLimit   int           `mapstructure:"retry_limit"`
}

type SourcesConfig struct {
	SnapshotPath  string            `mapstructure:"snapshot_path"`
	BackoffCap    float64           `mapstructure:"backoff_cap_multiplier"`
	HighValue     []string          `mapstructure:"high_value_accounts"`
	Social        SocialConfig      `mapstructure:"social"`
	News          NewsConfig        `mapstructure:"news"`
	Technical     TechnicalConfig   `mapstructure:"technical"`
	PriceUpdate   PriceUpdateConfig `mapstructure:"price_update"`
}

type SocialConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	Handles             []string      `mapstructure:"handles"`
	EngagementThreshold int           `mapstructure:"engagement_threshold"`
	BaseURL             string        `mapstructure:"base_url"`
	BearerTokenEnv      string        `mapstructure:"bearer_token_env"`
}

type NewsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BaseURL      string        `mapstructure:"base_url"`
	APIKeyEnv    string        `mapstructure:"api_key_env"`
	Categories   []string      `mapstructure:"categories"`
	Language     string        `mapstructure:"language"`
}

type TechnicalConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Symbols      []string      `mapstructure:"symbols"`
	Timeframe    string        `mapstructure:"timeframe"`
	CandleLimit  int           `mapstructure:"candle_limit"`
}

type PriceUpdateConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type EnrichConfig struct {
	AITimeout    time.Duration `mapstructure:"ai_timeout"`
	AIModel      string        `mapstructure:"ai_model"`
	AIKeyEnv     string        `mapstructure:"ai_key_env"`
	AIBaseURL    string        `mapstructure:"ai_base_url"`
	SummaryCache int           `mapstructure:"summary_cache"`
}

type StoreConfig struct {
	RetentionCap int  `mapstructure:"retention_cap"`
	ArchiveToDB  bool `mapstructure:"archive_to_db"`
}

type AlertsConfig struct {
	EvalInterval  time.Duration `mapstructure:"eval_interval"`
	EmergencyBand float64       `mapstructure:"emergency_band_pct"`
	RearmAfter    time.Duration `mapstructure:"rearm_after"`
}

type ThreatConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	VelocityWindow   time.Duration `mapstructure:"velocity_window"`
	Hysteresis       time.Duration `mapstructure:"hysteresis"`
	CriticalStopPct  float64       `mapstructure:"critical_stop_pct"`
	CriticalVelocity float64       `mapstructure:"critical_velocity_pct"`
	HighStopPct      float64       `mapstructure:"high_stop_pct"`
	HighVelocity     float64       `mapstructure:"high_velocity_pct"`
}

type DeliveryConfig struct {
	PingInterval   time.Duration  `mapstructure:"ping_interval"`
	SendBuffer     int            `mapstructure:"send_buffer"`
	VisualDuration time.Duration  `mapstructure:"visual_duration"`
	MaxVoiceHold   time.Duration  `mapstructure:"max_voice_hold"`
	OHLCVInterval  time.Duration  `mapstructure:"ohlcv_interval"`
	OHLCVTailLimit int            `mapstructure:"ohlcv_tail_limit"`
	Cooldowns      map[string]int `mapstructure:"cooldowns_seconds"`
}

type TTSConfig struct {
	Timeout       time.Duration                `mapstructure:"timeout"`
	ProviderOrder []string                     `mapstructure:"provider_order"`
	Providers     map[string]TTSProviderConfig `mapstructure:"providers"`
	CacheSize     int                          `mapstructure:"cache_size"`
	FailBackoff   time.Duration                `mapstructure:"fail_backoff"`
	RatePerMinute float64                      `mapstructure:"rate_per_minute"`
}

type TTSProviderConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKeyEnv string `mapstructure:"api_key_env"`
	VoiceID   string `mapstructure:"voice_id"`
}

type TradingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8090")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)

	v.SetDefault("db.enabled", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("exchange.base_url", "https://api.binance.com")
	v.SetDefault("exchange.timeout", "10s")
	v.SetDefault("exchange.quote_asset", "USDT")
	v.SetDefault("exchange.retry_initial", "1s")
	v.SetDefault("exchange.retry_max", "30s")
	v.SetDefault("exchange.retry_limit", 5)

	v.SetDefault("sources.snapshot_path", "data/sources.json")
	v.SetDefault("sources.backoff_cap_multiplier", 10)
	v.SetDefault("sources.social.enabled", false)
	v.SetDefault("sources.social.poll_interval", "300s")
	v.SetDefault("sources.social.engagement_threshold", 500)
	v.SetDefault("sources.social.base_url", "https://api.twitter.com")
	v.SetDefault("sources.social.bearer_token_env", "MP_TWITTER_BEARER")
	v.SetDefault("sources.news.enabled", false)
	v.SetDefault("sources.news.poll_interval", "300s")
	v.SetDefault("sources.news.base_url", "https://cryptopanic.com/api/v1")
	v.SetDefault("sources.news.api_key_env", "MP_NEWS_API_KEY")
	v.SetDefault("sources.news.language", "en")
	v.SetDefault("sources.technical.enabled", true)
	v.SetDefault("sources.technical.poll_interval", "60s")
	v.SetDefault("sources.technical.symbols", []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"})
	v.SetDefault("sources.technical.timeframe", "1h")
	v.SetDefault("sources.technical.candle_limit", 100)
	v.SetDefault("sources.price_update.enabled", true)
	v.SetDefault("sources.price_update.poll_interval", "3s")

	v.SetDefault("enrich.ai_timeout", "15s")
	v.SetDefault("enrich.ai_model", "gpt-4o-mini")
	v.SetDefault("enrich.ai_key_env", "MP_OPENAI_API_KEY")
	v.SetDefault("enrich.summary_cache", 512)

	v.SetDefault("store.retention_cap", 10000)
	v.SetDefault("store.archive_to_db", false)

	v.SetDefault("alerts.eval_interval", "30s")
	v.SetDefault("alerts.emergency_band_pct", 3.0)
	v.SetDefault("alerts.rearm_after", "0s")

	v.SetDefault("threat.enabled", true)
	v.SetDefault("threat.velocity_window", "5m")
	v.SetDefault("threat.hysteresis", "60s")
	v.SetDefault("threat.critical_stop_pct", 0.5)
	v.SetDefault("threat.critical_velocity_pct", 5.0)
	v.SetDefault("threat.high_stop_pct", 2.0)
	v.SetDefault("threat.high_velocity_pct", 2.0)

	v.SetDefault("delivery.ping_interval", "30s")
	v.SetDefault("delivery.send_buffer", 64)
	v.SetDefault("delivery.visual_duration", "5s")
	v.SetDefault("delivery.max_voice_hold", "30s")
	v.SetDefault("delivery.ohlcv_interval", "60s")
	v.SetDefault("delivery.ohlcv_tail_limit", 50)
	v.SetDefault("delivery.cooldowns_seconds", map[string]int{
		"critical": 0,
		"high":     3,
		"medium":   5,
		"low":      8,
		"info":     10,
	})

	v.SetDefault("tts.timeout", "10s")
	v.SetDefault("tts.provider_order", []string{"elevenlabs", "google", "azure"})
	v.SetDefault("tts.cache_size", 256)
	v.SetDefault("tts.fail_backoff", "60s")
	v.SetDefault("tts.rate_per_minute", 30)

	v.SetDefault("trading.base_url", "http://127.0.0.1:8095")
	v.SetDefault("trading.timeout", "10s")

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
