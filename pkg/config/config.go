package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port     string         `mapstructure:"port"`
	MongoSQL DatabaseConfig `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Member   DatabaseConfig `mapstructure:"pg"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Sync     SyncConfig     `mapstructure:"sync"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	RedisDB  int    `mapstructure:"redis_db"`
	// Sentinel 為 true 時改用 .env 內的 REDIS_SENTINEL*_IP
	Sentinel bool `mapstructure:"sentinel"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// Enabled database configured
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// KafkaConfig definition kafka archive stream
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// Enabled kafka configured
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// SyncConfig definition sync engine setting
type SyncConfig struct {
	// WindowSize 開啟聊天室時載入的最近訊息數
	WindowSize     int           `mapstructure:"window_size"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	DirectoryTTL   time.Duration `mapstructure:"directory_ttl"`
}

const (
	defaultWindowSize     = 50
	defaultFetchTimeout   = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultDirectoryTTL   = 10 * time.Minute
)

// WithDefaults fill zero values
func (s SyncConfig) WithDefaults() SyncConfig {
	if s.WindowSize <= 0 {
		s.WindowSize = defaultWindowSize
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = defaultFetchTimeout
	}
	if s.PublishTimeout <= 0 {
		s.PublishTimeout = defaultPublishTimeout
	}
	if s.DirectoryTTL <= 0 {
		s.DirectoryTTL = defaultDirectoryTTL
	}
	return s
}
