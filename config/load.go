package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Engine   EngineConfig   `yaml:"engine"`
	Telegram TelegramConfig `yaml:"telegram"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"` // 空值用默认的按机器人分频道模板
}

type ExchangeConfig struct {
	Name      string `yaml:"name"`
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
	BaseURL   string `yaml:"baseURL"`
}

// EngineConfig 引擎行为参数。
type EngineConfig struct {
	EventQueueSize int `yaml:"eventQueueSize"` // 订单事件缓冲大小，满丢
	LockMaxAgeMin  int `yaml:"lockMaxAgeMin"`  // 终态订单锁的最大空闲分钟数
	LockSweepSec   int `yaml:"lockSweepSec"`   // 锁表清理周期（秒）
	RatePerSecond  int `yaml:"ratePerSecond"`  // 交易所请求限速
	RateBurst      int `yaml:"rateBurst"`
}

type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig 直接映射 logger 包配置。
type LoggingConfig struct {
	Level   string   `yaml:"level"`
	Format  string   `yaml:"format"`
	Outputs []string `yaml:"outputs"`
	File    string   `yaml:"file"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("SCALPER_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("SCALPER_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("SCALPER_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("SCALPER_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Engine.EventQueueSize == 0 {
		cfg.Engine.EventQueueSize = 1024
	}
	if cfg.Engine.LockMaxAgeMin == 0 {
		cfg.Engine.LockMaxAgeMin = 60
	}
	if cfg.Engine.LockSweepSec == 0 {
		cfg.Engine.LockSweepSec = 300
	}
	if cfg.Engine.RatePerSecond == 0 {
		cfg.Engine.RatePerSecond = 8
	}
	if cfg.Engine.RateBurst == 0 {
		cfg.Engine.RateBurst = 16
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9100"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if len(cfg.Logging.Outputs) == 0 {
		cfg.Logging.Outputs = []string{"stdout"}
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required (or SCALPER_DB_DSN)")
	}
	if cfg.Exchange.Name == "" {
		return errors.New("exchange.name is required")
	}
	if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
		return errors.New("exchange.apiKey/apiSecret is required (or env overrides)")
	}
	if cfg.Engine.EventQueueSize < 0 {
		return errors.New("engine.eventQueueSize must be >= 0")
	}
	if cfg.Engine.LockMaxAgeMin <= 0 {
		return errors.New("engine.lockMaxAgeMin must be > 0")
	}
	if cfg.Engine.RatePerSecond <= 0 || cfg.Engine.RateBurst <= 0 {
		return errors.New("engine rate limits must be > 0")
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID == "" {
		return errors.New("telegram.chatId is required when botToken is set")
	}
	return nil
}
