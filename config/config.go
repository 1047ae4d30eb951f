package config

import (
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                string            `mapstructure:"env"`
	LogLevel           string            `mapstructure:"log_level"`
	LogType            string            `mapstructure:"log_type"`
	ServiceName        string            `mapstructure:"service_name"`
	Port               string            `mapstructure:"port"`
	Version            string            `mapstructure:"version"`
	GateSettings       *GateConfig       `mapstructure:"gate"`
	OriginSettings     *OriginConfig     `mapstructure:"origin"`
	DemoSettings       *DemoConfig       `mapstructure:"demo"`
	HttpClientSettings *HttpClientConfig `mapstructure:"http_client"`
	CacheSettings      *CacheConfig      `mapstructure:"cache"`
	DbSettings         *DatabaseConfig   `mapstructure:"database"`
	KafkaSettings      *KafkaConfig      `mapstructure:"kafka"`
	TelemetrySettings  *TelemetryConfig  `mapstructure:"telemetry"`
}

type GateConfig struct {
	// CrawlerRules is the raw json configuration document. Parsed fresh on
	// every request; malformed json degrades to charge-by-default.
	CrawlerRules string `mapstructure:"crawler_rules"`
	// DefaultPrice is a decimal string, e.g. "0.01". Applied when a charge
	// rule carries no explicit price.
	DefaultPrice string `mapstructure:"default_price"`
}

type OriginConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type DemoConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RequestsLimit int           `mapstructure:"requests_limit"`
	TimeInterval  time.Duration `mapstructure:"time_interval"`
}

type HttpClientConfig struct {
	RequestTimeout            time.Duration `mapstructure:"request_timeout"`
	MaxIdleConnections        int           `mapstructure:"max_idle_connections"`
	MaxIdleConnectionsPerHost int           `mapstructure:"max_idle_connections_per_host"`
	MaxConnectionsPerHost     int           `mapstructure:"max_connections_per_host"`
	IdleConnectionTimeout     time.Duration `mapstructure:"idle_connection_timeout"`
	TlsHandshakeTimeout       time.Duration `mapstructure:"tls_handshake_timeout"`
	DialTimeout               time.Duration `mapstructure:"dial_timeout"`
	DialKeepAlive             time.Duration `mapstructure:"dial_keep_alive"`
	TlsInsecureSkipVerify     bool          `mapstructure:"tls_insecure_skip_verify"`
}

type CacheConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Servers        []string      `mapstructure:"servers"`
	TtlForIdentity time.Duration `mapstructure:"ttl_for_identity"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type KafkaConfig struct {
	Producer *ProducerConfig `mapstructure:"producer"`
}

type ProducerConfig struct {
	Addr           []string      `mapstructure:"addr"`
	BillingTopic   string        `mapstructure:"billing_topic_name"`
	AuditTopicName string        `mapstructure:"audit_topic_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequiredAsks   int           `mapstructure:"required_acks"`
	Async          bool          `mapstructure:"async"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CollectorUrl string `mapstructure:"collector_url"`
}

func MustLoad() *Config {
	viper.AddConfigPath(path.Join("."))
	viper.SetConfigName("config")
	viper.AutomaticEnv()
	// The rule document and default price come from the environment in
	// deployed setups; config.yaml values act as local fallbacks.
	_ = viper.BindEnv("gate.crawler_rules", "CRAWLER_RULES")
	_ = viper.BindEnv("gate.default_price", "DEFAULT_PRICE")

	err := viper.ReadInConfig()
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("error unmarshalling viper config.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return &cfg
}
