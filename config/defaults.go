// =============================================================================
// 📦 MediaFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Tasks:     DefaultTaskStoreConfig(),
		Storage:   DefaultStorageConfig(),
		Providers: DefaultProvidersConfig(),
		Polling:   DefaultPollingConfig(),
		Assembly:  DefaultAssemblyConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute, // 同步合成请求可能较慢
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:        false,
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "mediaflow",
		SampleRate:     0.1,
		Environment:    "development",
		Insecure:       true,
		ExportInterval: 30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "mediaflow",
		Password:        "",
		Name:            "data/mediaflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultTaskStoreConfig 返回默认任务存储配置
func DefaultTaskStoreConfig() TaskStoreConfig {
	return TaskStoreConfig{
		Type:      "memory",
		BaseDir:   "data/tasks",
		KeyPrefix: "mediaflow:task:",
	}
}

// DefaultStorageConfig 返回默认素材存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Root:            "data/assets",
		CatalogFile:     "data/assets/catalog.json",
		DownloadTimeout: 5 * time.Minute,
		MaxAssetBytes:   2 << 30,
	}
}

// DefaultProvidersConfig 返回默认服务商配置（不含 API Key）
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Runway: ProviderConfig{
			BaseURL: "https://api.dev.runwayml.com",
			Model:   "gen4_turbo",
			Timeout: 60 * time.Second,
		},
		Veo: ProviderConfig{
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "veo-3.0-generate-preview",
			Timeout: 60 * time.Second,
		},
		Suno: ProviderConfig{
			BaseURL: "https://api.sunoapi.org",
			Model:   "V4_5",
			Timeout: 60 * time.Second,
		},
		MiniMax: ProviderConfig{
			BaseURL: "https://api.minimax.io",
			Model:   "music-1.5",
			Timeout: 5 * time.Minute,
		},
		ElevenLabs: ProviderConfig{
			BaseURL: "https://api.elevenlabs.io",
			Model:   "eleven_multilingual_v2",
			Timeout: 2 * time.Minute,
		},
	}
}

// DefaultPollingConfig 返回默认轮询配置
func DefaultPollingConfig() PollingConfig {
	return PollingConfig{
		Video:  PollProfile{Interval: 5 * time.Second, MaxWait: 180 * time.Second},
		Music:  PollProfile{Interval: 3 * time.Second, MaxWait: 60 * time.Second},
		Speech: PollProfile{Interval: 2 * time.Second, MaxWait: 60 * time.Second},
	}
}

// DefaultAssemblyConfig 返回默认合成配置
func DefaultAssemblyConfig() AssemblyConfig {
	return AssemblyConfig{
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		OutputDir:    "data/assets/videos",
		FrameRate:    30,
		FadeSeconds:  2,
		ZoomMax:      1.2,
		Preset:       "medium",
		CRF:          23,
		AudioBitrate: "192k",
		Timeout:      10 * time.Minute,
	}
}
