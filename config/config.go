package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Guard      GuardConfig      `mapstructure:"guard"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Reputation ReputationConfig `mapstructure:"reputation"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres | sqlite
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
	Debug        bool   `mapstructure:"debug"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// GuardConfig 私信反滥用阈值
type GuardConfig struct {
	LowReputation         int           `mapstructure:"low_reputation"`
	NewConversationCap    int           `mapstructure:"new_conversation_cap"`
	NewConversationWindow time.Duration `mapstructure:"new_conversation_window"`
	DuplicateCap          int           `mapstructure:"duplicate_cap"`
	DuplicateWindow       time.Duration `mapstructure:"duplicate_window"`
	RestrictedInboundMin  int           `mapstructure:"restricted_inbound_min"`
}

// ClassifierConfig 外部语义审核服务
type ClassifierConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// EscalationConfig 举手/反应信号阈值
type EscalationConfig struct {
	TrendingThreshold int           `mapstructure:"trending_threshold"`
	UrgentThreshold   int           `mapstructure:"urgent_threshold"`
	ConcernThreshold  int           `mapstructure:"concern_threshold"`
	MaxRecipients     int           `mapstructure:"max_recipients"`
	BatchSize         int           `mapstructure:"batch_size"`
	ClaimLimit        int           `mapstructure:"claim_limit"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	ClaimLease        time.Duration `mapstructure:"claim_lease"`
	LinkBase          string        `mapstructure:"link_base"`
}

type ReputationConfig struct {
	RecomputeBatch int `mapstructure:"recompute_batch"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=trust port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.cache_ttl", 30*time.Second)

	v.SetDefault("jwt.issuer", "trustcore")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("tracing.service_name", "trustcore")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 0.1)

	v.SetDefault("ratelimit.rps", 20)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("guard.low_reputation", 10)
	v.SetDefault("guard.new_conversation_cap", 3)
	v.SetDefault("guard.new_conversation_window", time.Hour)
	v.SetDefault("guard.duplicate_cap", 5)
	v.SetDefault("guard.duplicate_window", 2*time.Minute)
	v.SetDefault("guard.restricted_inbound_min", 50)

	v.SetDefault("classifier.model", "moderation-small")
	v.SetDefault("classifier.timeout", 8*time.Second)

	v.SetDefault("escalation.trending_threshold", 5)
	v.SetDefault("escalation.urgent_threshold", 10)
	v.SetDefault("escalation.concern_threshold", 3)
	v.SetDefault("escalation.max_recipients", 25)
	v.SetDefault("escalation.batch_size", 100)
	v.SetDefault("escalation.claim_limit", 32)
	v.SetDefault("escalation.poll_interval", 2*time.Second)
	v.SetDefault("escalation.claim_lease", 30*time.Second)
	v.SetDefault("escalation.link_base", "/contents")

	v.SetDefault("reputation.recompute_batch", 200)
}

// Load 读取 config.yaml 并允许 TRUST_ 前缀的环境变量覆盖
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("TRUST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
