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
	Cron   CronConfig   `mapstructure:"cron"`

	Gateway GatewayConfig `mapstructure:"gateway"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Policy  PolicyConfig  `mapstructure:"policy"`

	Finalizer FinalizerConfig `mapstructure:"finalizer"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Reserve   ReserveConfig   `mapstructure:"reserve"`
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
}

type CronConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Finalizer string `mapstructure:"finalizer"`
	Sweep     string `mapstructure:"sweep"`
	Processor string `mapstructure:"processor"`
	Reserve   string `mapstructure:"reserve"`
}

type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PolicyConfig is the platform's money policy: fee schedules per currency,
// reserve treatment per trust tier, and the gate thresholds.
type PolicyConfig struct {
	FreeMode        bool          `mapstructure:"free_mode"`
	MaturityWindow  time.Duration `mapstructure:"maturity_window"`
	RetryLimit      int           `mapstructure:"retry_limit"`
	ChargebackLimit int           `mapstructure:"chargeback_limit"`
	DefaultTier     string        `mapstructure:"default_tier"`

	Fees  map[string]FeeScheduleConfig `mapstructure:"fees"`
	Tiers map[string]TrustTierConfig   `mapstructure:"tiers"`
}

type FeeScheduleConfig struct {
	ProcessorPct   float64 `mapstructure:"processor_pct"`
	ProcessorFixed float64 `mapstructure:"processor_fixed"`
	PlatformPct    float64 `mapstructure:"platform_pct"`
}

type TrustTierConfig struct {
	ReservePct       float64       `mapstructure:"reserve_pct"`
	HoldPeriod       time.Duration `mapstructure:"hold_period"`
	LargePayoutLimit float64       `mapstructure:"large_payout_limit"`
}

type FinalizerConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type SweepConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type ProcessorConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	Parallelism     int           `mapstructure:"parallelism"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`
}

type ReserveConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAYOUT")
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
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.finalizer", "@every 1m")
	v.SetDefault("cron.sweep", "@every 5m")
	v.SetDefault("cron.processor", "@every 10m")
	v.SetDefault("cron.reserve", "@every 1h")
	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.timeout", "15s")
	v.SetDefault("notify.base_url", "")
	v.SetDefault("notify.timeout", "5s")

	v.SetDefault("policy.free_mode", false)
	v.SetDefault("policy.maturity_window", "48h")
	v.SetDefault("policy.retry_limit", 3)
	v.SetDefault("policy.chargeback_limit", 2)
	v.SetDefault("policy.default_tier", "new")
	v.SetDefault("policy.fees.usd.processor_pct", 0.029)
	v.SetDefault("policy.fees.usd.processor_fixed", 0.30)
	v.SetDefault("policy.fees.usd.platform_pct", 0.05)
	v.SetDefault("policy.tiers.new.reserve_pct", 0.10)
	v.SetDefault("policy.tiers.new.hold_period", "336h")
	v.SetDefault("policy.tiers.new.large_payout_limit", 1000)
	v.SetDefault("policy.tiers.standard.reserve_pct", 0.10)
	v.SetDefault("policy.tiers.standard.hold_period", "336h")
	v.SetDefault("policy.tiers.standard.large_payout_limit", 5000)
	v.SetDefault("policy.tiers.trusted.reserve_pct", 0.05)
	v.SetDefault("policy.tiers.trusted.hold_period", "168h")
	v.SetDefault("policy.tiers.trusted.large_payout_limit", 0)

	v.SetDefault("finalizer.batch_size", 100)
	v.SetDefault("sweep.batch_size", 200)
	v.SetDefault("processor.batch_size", 100)
	v.SetDefault("processor.parallelism", 4)
	v.SetDefault("processor.transfer_timeout", "20s")
	v.SetDefault("reserve.batch_size", 100)

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
