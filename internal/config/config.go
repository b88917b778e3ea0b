package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	RocketMQ RocketMQConfig `mapstructure:"rocketmq"`
	Vendor   VendorConfig   `mapstructure:"vendor"`
	Checker  CheckerConfig  `mapstructure:"checker"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig represents MySQL configuration
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RocketMQConfig represents RocketMQ configuration
type RocketMQConfig struct {
	NameServer string `mapstructure:"nameserver"`
	Topic      string `mapstructure:"topic"`
	Group      string `mapstructure:"group"`
}

// VendorConfig holds the vendor-side contact points and per-call deadlines.
// The VIP detail endpoint order is policy, not contract: the checker walks
// the list and keeps the first structurally valid answer.
type VendorConfig struct {
	GiftAPI        string        `mapstructure:"gift_api"`
	VipDetailAPIs  []string      `mapstructure:"vip_detail_apis"`
	UserAgent      string        `mapstructure:"user_agent"`
	Referer        string        `mapstructure:"referer"`
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`
	APITimeout     time.Duration `mapstructure:"api_timeout"`
	PageTimeout    time.Duration `mapstructure:"page_timeout"`
}

// CheckerConfig represents batch checker configuration
type CheckerConfig struct {
	DefaultConcurrency int `mapstructure:"default_concurrency"`
	MaxConcurrency     int `mapstructure:"max_concurrency"`
	MaxBatchSize       int `mapstructure:"max_batch_size"`
}

// Global config instance
var cfg *Config

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand environment variables
	cfg.Database.Redis.Password = expandEnv(cfg.Database.Redis.Password)
	cfg.Database.MySQL.DSN = expandEnv(cfg.Database.MySQL.DSN)

	return cfg, nil
}

// Get returns the global config instance
func Get() *Config {
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("rocketmq.topic", "check_result")
	v.SetDefault("rocketmq.group", "giftcheck_consumer_group")
	v.SetDefault("vendor.gift_api", "https://music.163.com/weapi/vipgift/app/gift/index")
	v.SetDefault("vendor.vip_detail_apis", []string{
		"https://interface.music.163.com/api/vipactivity/app/vip/invitation/detail/info/get",
		"https://interface.music.163.com/api/vip/invitation/detail",
		"https://music.163.com/api/vip/invitation/detail",
	})
	v.SetDefault("vendor.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("vendor.referer", "https://music.163.com/")
	v.SetDefault("vendor.resolve_timeout", 5*time.Second)
	v.SetDefault("vendor.api_timeout", 10*time.Second)
	v.SetDefault("vendor.page_timeout", 15*time.Second)
	v.SetDefault("checker.default_concurrency", 5)
	v.SetDefault("checker.max_concurrency", 20)
	v.SetDefault("checker.max_batch_size", 50)
}

// expandEnv expands environment variables in the string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envKey := s[2 : len(s)-1]
		return viper.GetString(envKey)
	}
	return s
}
