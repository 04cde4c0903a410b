package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// 兼容已有部署使用的环境变量名
var envBindings = map[string]string{
	"paypal.client_id":     "PAYPAL_CLIENT_ID",
	"paypal.client_secret": "PAYPAL_CLIENT_SECRET",
	"paypal.base_url":      "PAYPAL_BASE_URL",
	"smtp.username":        "SMTP_USERNAME",
	"smtp.password":        "SMTP_PASSWORD",
	"jwt.secret":           "JWT_SECRET",
	"checkout.app_url":     "APP_URL",
}

// Load 从 dir/config.yaml 读取配置（文件可缺省），再叠加环境变量。
// 未出现的键保留 DefaultConfig 中的值。
func Load(dir string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix("BOOKSCAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	registerDefaults(v, cfg)
	for key, env := range envBindings {
		if err := v.BindEnv(key, "BOOKSCAPE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerDefaults 让 AutomaticEnv 能识别所有键（viper 只覆盖已知键）
func registerDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("admin_server.host", cfg.AdminServer.Host)
	v.SetDefault("admin_server.port", cfg.AdminServer.Port)

	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.log_sql", cfg.Database.LogSQL)

	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.pool_size", cfg.Redis.PoolSize)

	v.SetDefault("rabbitmq.url", cfg.RabbitMQ.URL)
	v.SetDefault("rabbitmq.mail_queue", cfg.RabbitMQ.MailQueue)

	v.SetDefault("auth.token_cache_ttl_seconds", cfg.Auth.TokenCacheTTLSeconds)
	v.SetDefault("auth.token_ttl_minutes", cfg.Auth.TokenTTLMinutes)
	v.SetDefault("jwt.secret", cfg.JWT.Secret)

	v.SetDefault("paypal.base_url", cfg.PayPal.BaseURL)
	v.SetDefault("paypal.client_id", cfg.PayPal.ClientID)
	v.SetDefault("paypal.client_secret", cfg.PayPal.ClientSecret)
	v.SetDefault("paypal.currency", cfg.PayPal.Currency)
	v.SetDefault("paypal.brand_name", cfg.PayPal.BrandName)
	v.SetDefault("paypal.timeout", cfg.PayPal.Timeout)

	v.SetDefault("checkout.app_url", cfg.Checkout.AppURL)
	v.SetDefault("checkout.unverified_payment_policy", cfg.Checkout.UnverifiedPaymentPolicy)
	v.SetDefault("checkout.enforce_catalog_pricing", cfg.Checkout.EnforceCatalogPricing)
	v.SetDefault("checkout.reconcile_lock_ttl", cfg.Checkout.ReconcileLockTTL)
	v.SetDefault("checkout.rate_limit_per_minute", cfg.Checkout.RateLimitPerMinute)
	v.SetDefault("checkout.sweep_interval", cfg.Checkout.SweepInterval)

	v.SetDefault("smtp.host", cfg.SMTP.Host)
	v.SetDefault("smtp.port", cfg.SMTP.Port)
	v.SetDefault("smtp.username", cfg.SMTP.Username)
	v.SetDefault("smtp.password", cfg.SMTP.Password)
	v.SetDefault("smtp.from", cfg.SMTP.From)
	v.SetDefault("smtp.frontend_url", cfg.SMTP.FrontendURL)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.encoding", cfg.Log.Encoding)
}

// Dir 配置目录，默认 ./config
func Dir() string {
	if d := os.Getenv("BOOKSCAPE_CONFIG_DIR"); d != "" {
		return d
	}
	return "config"
}
