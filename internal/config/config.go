package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
	Redis    RedisConfig    `json:"redis"`
	Kafka    KafkaConfig    `json:"kafka"`
	Engine   EngineConfig   `json:"engine"`
}

type ServerConfig struct {
	BindAddr string `json:"bindAddr"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// DSN renders the config as a libpq-style connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type LoggingConfig struct {
	Level string `json:"level"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type KafkaConfig struct {
	Brokers    []string `json:"brokers"`
	AlertTopic string   `json:"alertTopic"`
}

type EngineConfig struct {
	TickInterval     string `json:"tickInterval"`     // e.g. "5m"
	SweepInterval    string `json:"sweepInterval"`    // e.g. "60s"
	BufferRetention  string `json:"bufferRetention"`  // e.g. "48h"
	FeatureWindow    string `json:"featureWindow"`    // e.g. "6h"
	MaxReadingAge    string `json:"maxReadingAge"`    // confidence degrades past this
	StationStaleAge  string `json:"stationStaleAge"`  // system-health check cutoff
	TimelineCacheTTL string `json:"timelineCacheTTL"` // e.g. "5m"
	PolicyFile       string `json:"policyFile"`
}

func Load() (*Config, error) {
	configFile := flag.String("f", "", "Path to configuration file")
	flag.Parse()

	cfg := &Config{
		Server: ServerConfig{
			BindAddr: getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "floodwatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(getEnv("KAFKA_BROKERS", "")),
			AlertTopic: getEnv("KAFKA_ALERT_TOPIC", "flood-alerts"),
		},
		Engine: EngineConfig{
			TickInterval:     getEnv("ENGINE_TICK_INTERVAL", "5m"),
			SweepInterval:    getEnv("ENGINE_SWEEP_INTERVAL", "60s"),
			BufferRetention:  getEnv("ENGINE_BUFFER_RETENTION", "48h"),
			FeatureWindow:    getEnv("ENGINE_FEATURE_WINDOW", "6h"),
			MaxReadingAge:    getEnv("ENGINE_MAX_READING_AGE", "2h"),
			StationStaleAge:  getEnv("ENGINE_STATION_STALE_AGE", "30m"),
			TimelineCacheTTL: getEnv("ENGINE_TIMELINE_CACHE_TTL", "5m"),
			PolicyFile:       getEnv("ALERT_POLICY_FILE", ""),
		},
	}

	if *configFile != "" {
		if err := loadFromFile(cfg, *configFile); err != nil {
			log.Err(err)
			return nil, err
		}
	}

	// fill reasonable defaults when fields omitted in file
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = "0.0.0.0:8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Kafka.AlertTopic == "" {
		cfg.Kafka.AlertTopic = "flood-alerts"
	}
	if cfg.Engine.TickInterval == "" {
		cfg.Engine.TickInterval = "5m"
	}
	if cfg.Engine.SweepInterval == "" {
		cfg.Engine.SweepInterval = "60s"
	}
	if cfg.Engine.BufferRetention == "" {
		cfg.Engine.BufferRetention = "48h"
	}
	if cfg.Engine.FeatureWindow == "" {
		cfg.Engine.FeatureWindow = "6h"
	}
	if cfg.Engine.MaxReadingAge == "" {
		cfg.Engine.MaxReadingAge = "2h"
	}
	if cfg.Engine.StationStaleAge == "" {
		cfg.Engine.StationStaleAge = "30m"
	}
	if cfg.Engine.TimelineCacheTTL == "" {
		cfg.Engine.TimelineCacheTTL = "5m"
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
