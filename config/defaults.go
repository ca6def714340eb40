package config

import "time"

// =============================================================================
// 🎯 默认配置
// =============================================================================

// DefaultConfig 返回默认配置
// 默认值面向本地开发: sqlite 内存库、无鉴权、console 日志
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // websocket push needs long-lived writes
			ShutdownTimeout: 30 * time.Second,
			APIKey:          "",
			RateLimit:       0,
			RateBurst:       20,
		},
		Engine: EngineConfig{
			NodeTimeout:    2 * time.Minute,
			MaxSteps:       0,
			PoolMaxWorkers: 64,
			PoolQueueSize:  256,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Host:            "localhost",
			Port:            5432,
			User:            "canvasflow",
			Password:        "",
			Name:            "file::memory:?cache=shared",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			Password:  "",
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "canvasflow:",
			TTL:       0,
		},
		Log: LogConfig{
			Level:            "info",
			Format:           "console",
			OutputPaths:      []string{"stdout"},
			EnableCaller:     true,
			EnableStacktrace: false,
		},
	}
}
