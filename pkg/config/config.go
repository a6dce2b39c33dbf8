package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	backend     = "consul"
	backendAddr = "127.0.0.1:8500"
	backendPath = "marketplace/development"
	configType  = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	// BaseURL is the public storefront origin used in sharable links.
	BaseURL string `mapstructure:"BASE_URL"`

	// NodeID seeds the snowflake generator; must be unique per running process.
	NodeID int64 `mapstructure:"NODE_ID"`

	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Metrics struct {
		Enable bool   `mapstructure:"ENABLE"`
		DBName string `mapstructure:"DB_NAME"`
	} `mapstructure:"METRICS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string        `mapstructure:"TYPE"`
		Host           string        `mapstructure:"HOST"`
		Port           string        `mapstructure:"PORT"`
		DBNAME         string        `mapstructure:"DBNAME"`
		User           string        `mapstructure:"USER"`
		Password       string        `mapstructure:"PASSWORD"`
		SSLMode        string        `mapstructure:"SSLMODE"`
		Timezone       string        `mapstructure:"TIMEZONE"`
		QueryTimeout   time.Duration `mapstructure:"QUERY_TIMEOUT"`
		SlowThreshold  time.Duration `mapstructure:"SLOW_THRESHOLD"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	AccessControl struct {
		Model string `mapstructure:"MODEL"`
	} `mapstructure:"ACCESS_CONTROL"`
	Gateway struct {
		BaseURL   string        `mapstructure:"BASE_URL"`
		KeyID     string        `mapstructure:"KEY_ID"`
		KeySecret string        `mapstructure:"KEY_SECRET"`
		Currency  string        `mapstructure:"CURRENCY"`
		Timeout   time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"GATEWAY"`
	Affiliate struct {
		DefaultCommissionRate string        `mapstructure:"DEFAULT_COMMISSION_RATE"`
		CodeMaxAttempts       int           `mapstructure:"CODE_MAX_ATTEMPTS"`
		AttributionWindow     time.Duration `mapstructure:"ATTRIBUTION_WINDOW"`
		StatsWindowDays       int           `mapstructure:"STATS_WINDOW_DAYS"`
	} `mapstructure:"AFFILIATE"`
	Settlement struct {
		Timeout time.Duration `mapstructure:"TIMEOUT"`
		LockTTL time.Duration `mapstructure:"LOCK_TTL"`
	} `mapstructure:"SETTLEMENT"`
	Leaderboard struct {
		DefaultLimit int           `mapstructure:"DEFAULT_LIMIT"`
		CacheTTL     time.Duration `mapstructure:"CACHE_TTL"`
	} `mapstructure:"LEADERBOARD"`
	Worker struct {
		Concurrency   int `mapstructure:"CONCURRENCY"`
		ReconcileHour int `mapstructure:"RECONCILE_HOUR"`
	} `mapstructure:"WORKER"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

// UseRemote reports whether configuration should come from a remote
// key/value provider instead of files and the environment.
func UseRemote() bool {
	v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER")
	return ok && strings.TrimSpace(v) != ""
}

// Select returns RemoteModule when REMOTE_CONFIG_PROVIDER is set and Module
// otherwise.
func Select() fx.Option {
	if UseRemote() {
		return RemoteModule
	}
	return Module
}

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "marketplace")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BASE_URL", "http://localhost:3000")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("TLS.ENABLE", false)
	v.SetDefault("TLS.CERT_PATH", "")
	v.SetDefault("TLS.KEY_PATH", "")
	v.SetDefault("OTEL.ADDR", "")
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("PYROSCOPE.ADDR", "")
	v.SetDefault("METRICS.ENABLE", false)
	v.SetDefault("METRICS.DB_NAME", "marketplace")
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", ":9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "marketplace")
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.QUERY_TIMEOUT", 5*time.Second)
	v.SetDefault("DATABASE.SLOW_THRESHOLD", 200*time.Millisecond)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 4*time.Second)
	v.SetDefault("ACCESS_CONTROL.MODEL", "")
	v.SetDefault("GATEWAY.BASE_URL", "https://api.razorpay.com")
	v.SetDefault("GATEWAY.KEY_ID", "")
	v.SetDefault("GATEWAY.KEY_SECRET", "")
	v.SetDefault("GATEWAY.CURRENCY", "INR")
	v.SetDefault("GATEWAY.TIMEOUT", 10*time.Second)
	v.SetDefault("AFFILIATE.DEFAULT_COMMISSION_RATE", "0.10")
	v.SetDefault("AFFILIATE.CODE_MAX_ATTEMPTS", 5)
	v.SetDefault("AFFILIATE.ATTRIBUTION_WINDOW", 30*24*time.Hour)
	v.SetDefault("AFFILIATE.STATS_WINDOW_DAYS", 30)
	v.SetDefault("SETTLEMENT.TIMEOUT", 10*time.Second)
	v.SetDefault("SETTLEMENT.LOCK_TTL", 30*time.Second)
	v.SetDefault("LEADERBOARD.DEFAULT_LIMIT", 50)
	v.SetDefault("LEADERBOARD.CACHE_TTL", time.Minute)
	v.SetDefault("WORKER.CONCURRENCY", 10)
	v.SetDefault("WORKER.RECONCILE_HOUR", 2)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env, an optional config.yaml and the environment. Every key has
// a default, so a missing config file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType(configType)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func LoadConfig(p Params) *Config {
	cfg, err := Load()
	if err != nil {
		zap.L().Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := applySecrets(context.Background(), p.Vault, cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return cfg
}

func applySecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Gateway.KeyID = get("gateway_key_id", cfg.Gateway.KeyID)
	cfg.Gateway.KeySecret = get("gateway_key_secret", cfg.Gateway.KeySecret)
	return nil
}

func LoadRemote(p Params) *Config {
	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	remote := newViper()
	remote.SetConfigType(configType)
	if err := remote.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		zap.L().Error("invalid remote config provider", zap.Error(err))
		os.Exit(1)
	}

	if err := remote.ReadRemoteConfig(); err != nil {
		zap.L().Error("unable to read remote config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := remote.Unmarshal(&cfg); err != nil {
		zap.L().Error("unable to decode remote config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := applySecrets(context.Background(), p.Vault, &cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return &cfg
}
