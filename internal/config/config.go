package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig points at the object store used for cached response bodies.
// An empty endpoint keeps bodies inline in redis.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type SecurityConfig struct {
	ContextTokenSecret string
	ContextTokenTTL    time.Duration
	AdminToken         string
}

type OfflineConfig struct {
	CacheTag     string
	Origin       string
	CoreManifest []string
	FetchTimeout time.Duration
	SweepCron    string
}

type SessionConfig struct {
	StorageKey string
	IdleTTL    time.Duration
}

type WorkerConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	LogLevel      string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Offline          OfflineConfig
	Session          SessionConfig
	Worker           WorkerConfig
	AllowCORSOrigins []string
}

const devContextSecret = "sarthi-dev-context-secret"

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("SARTHI")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Offline.CacheTag == "" {
		return nil, fmt.Errorf("offline.cachetag must not be empty")
	}
	if cfg.Offline.Origin == "" {
		return nil, fmt.Errorf("offline.origin must not be empty")
	}

	if cfg.Environment == "production" && cfg.Security.ContextTokenSecret == devContextSecret {
		return nil, fmt.Errorf("security.contexttokensecret must be set in production")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucket", "sarthi-offline")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.contexttokensecret", devContextSecret)
	v.SetDefault("security.contexttokenttl", "720h") // 30 days

	v.SetDefault("offline.cachetag", "sarthi-smart-offline-v5.0")
	v.SetDefault("offline.origin", "http://127.0.0.1:5173")
	v.SetDefault("offline.coremanifest", []string{"/", "/index.html", "/manifest.json"})
	v.SetDefault("offline.fetchtimeout", "30s")
	v.SetDefault("offline.sweepcron", "0 0 */1 * * *")

	v.SetDefault("session.storagekey", "sarthi_logged_user")
	v.SetDefault("session.idlettl", "30m")

	v.SetDefault("worker.stream", "offline:lifecycle")
	v.SetDefault("worker.group", "offline-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "10s")
	v.SetDefault("worker.loglevel", "info")
}
