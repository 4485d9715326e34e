// =============================================================================
// 📦 deepresearch 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"runtime"
	"time"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Research:  DefaultResearchConfig(),
		LLM:       DefaultLLMConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		CORSAllowedOrigins: nil,
		APIKeys:            nil,
		AllowQueryAPIKey:   false,
	}
}

// defaultParallelSearches implements "default auto":
// max(4, 2×CPU), capped at 16.
func defaultParallelSearches() int {
	n := 2 * runtime.NumCPU()
	if n < 4 {
		n = 4
	}
	if n > 16 {
		n = 16
	}
	return n
}

// DefaultResearchConfig 返回研究编排的默认配置
func DefaultResearchConfig() ResearchConfig {
	return ResearchConfig{
		LMAPIKey:         "",
		LMDefaultModel:   "claude-sonnet-4-5",
		LMFallbackAPIKey: "",
		LMFallbackModel:  "",

		Providers: ProvidersConfig{
			GoogleCSEID:  "",
			GoogleAPIKey: "",
			SearchAPIKey: "",
		},

		SessionDeadline:     120 * time.Second,
		PerProviderTimeout:  10 * time.Second,
		PerProviderRetries:  2,
		ProviderConcurrency: 4,
		ParallelSearches:    defaultParallelSearches(),

		InitialQueryCountDefault: 3,
		FollowupQueryCount:       2,
		MaxLoopsDefault:          2,
		MaxSourcesTotal:          50,

		QualityThresholdDefault: 0.6,

		HTTPMaxConnections: 64,
	}
}

// DefaultLLMConfig 返回默认的辅助聊天端点配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:    "",
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
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
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "deepresearch",
		SampleRate:   0.1,
	}
}
