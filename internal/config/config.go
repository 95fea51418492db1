package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Purchase  PurchaseConfig  `mapstructure:"purchase"`
	Cycle     CycleConfig     `mapstructure:"cycle"`
	Insurance InsuranceConfig `mapstructure:"insurance"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Identity  IdentityConfig  `mapstructure:"identity"`
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

// JobsConfig holds one cron spec per scheduler job (six-field specs,
// seconds first). The four jobs fire independently.
type JobsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	StartDue    string `mapstructure:"start_due"`
	CompleteDue string `mapstructure:"complete_due"`
	Replenish   string `mapstructure:"replenish"`
	Report      string `mapstructure:"report"`
}

type PurchaseConfig struct {
	UnitPrice    float64 `mapstructure:"unit_price"`
	PoolCapacity int     `mapstructure:"pool_capacity"`
	MaxQuantity  int     `mapstructure:"max_quantity"`
}

type CycleConfig struct {
	DurationDays          int           `mapstructure:"duration_days"`
	TargetProfitRate      float64       `mapstructure:"target_profit_rate"`
	ReplenishCapitalRatio float64       `mapstructure:"replenish_capital_ratio"`
	ReplenishLead         time.Duration `mapstructure:"replenish_lead"`
	ReportLookbackDays    int           `mapstructure:"report_lookback_days"`
}

type InsuranceConfig struct {
	Prefix       string  `mapstructure:"prefix"`
	Provider     string  `mapstructure:"provider"`
	CoverageRate float64 `mapstructure:"coverage_rate"`
	PremiumRate  float64 `mapstructure:"premium_rate"`
}

type LedgerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type IdentityConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TP")
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
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.start_due", "0 0 0 * * *")
	v.SetDefault("jobs.complete_due", "0 5 0 * * *")
	v.SetDefault("jobs.replenish", "0 10 0 * * *")
	v.SetDefault("jobs.report", "0 0 1 * * 0")
	v.SetDefault("purchase.unit_price", 1000000)
	v.SetDefault("purchase.pool_capacity", 10)
	v.SetDefault("purchase.max_quantity", 10)
	v.SetDefault("cycle.duration_days", 37)
	v.SetDefault("cycle.target_profit_rate", 5)
	v.SetDefault("cycle.replenish_capital_ratio", 0.95)
	v.SetDefault("cycle.replenish_lead", "24h")
	v.SetDefault("cycle.report_lookback_days", 7)
	v.SetDefault("insurance.prefix", "INS")
	v.SetDefault("insurance.provider", "Pool Trade Assurance")
	v.SetDefault("insurance.coverage_rate", 1.0)
	v.SetDefault("insurance.premium_rate", 0.02)
	v.SetDefault("ledger.base_url", "")
	v.SetDefault("ledger.api_key", "")
	v.SetDefault("ledger.timeout", "10s")
	v.SetDefault("identity.base_url", "")
	v.SetDefault("identity.timeout", "10s")

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
