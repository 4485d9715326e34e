// =============================================================================
// 📦 deepresearch 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("DEEPRESEARCH").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config is the complete configuration for the research service.
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Research 研究编排配置
	Research ResearchConfig `yaml:"research" env:"RESEARCH"`

	// LLM 通用 LLM 调用配置（聊天辅助端点使用）
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求限制（令牌桶速率）
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 令牌桶突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的 CORS 来源（空表示不启用跨域）
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 有效的 API Key 列表（空表示不校验）
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过查询参数传递 API Key（不建议在生产开启）
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
}

// ProvidersConfig holds credentials for the external search providers
// the Dispatcher chains. A provider with an empty
// credential is removed from the chain rather than erroring.
type ProvidersConfig struct {
	GoogleCSEID  string `yaml:"google_cse_id" env:"GOOGLE_CSE_ID"`
	GoogleAPIKey string `yaml:"google_api_key" env:"GOOGLE_API_KEY"`
	SearchAPIKey string `yaml:"searchapi_key" env:"SEARCHAPI_KEY"`
}

// ResearchConfig is the effective configuration surface for the research
// control plane, embedded by research.Params.
type ResearchConfig struct {
	// LMAPIKey drives Planner/Reflector/Finalizer and the LMGrounded
	// provider. Validate accepts an empty value; with no key, "serve" starts
	// with /v1/research answering 503 and "ask" exits with an error.
	LMAPIKey string `yaml:"lm_api_key" env:"LM_API_KEY"`
	// LMDefaultModel is the default reasoning_model.
	LMDefaultModel string `yaml:"lm_default_model" env:"LM_DEFAULT_MODEL"`
	// LMFallbackAPIKey, if set, registers a second reasoning-model provider
	// under LMFallbackModel's name in the provider registry. Only the
	// registry's default provider is handed to the research and chat
	// handlers, so a request naming that model in reasoning_model is sent
	// through the default provider's credentials; an empty value leaves the
	// fallback slot unregistered.
	LMFallbackAPIKey string `yaml:"lm_fallback_api_key" env:"LM_FALLBACK_API_KEY"`
	// LMFallbackModel names the model the fallback provider serves.
	LMFallbackModel string `yaml:"lm_fallback_model" env:"LM_FALLBACK_MODEL"`

	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`

	SessionDeadline     time.Duration `yaml:"session_deadline" env:"SESSION_DEADLINE"`
	PerProviderTimeout  time.Duration `yaml:"per_provider_timeout" env:"PER_PROVIDER_TIMEOUT"`
	PerProviderRetries  int           `yaml:"per_provider_retries" env:"PER_PROVIDER_RETRIES"`
	ProviderConcurrency int           `yaml:"provider_concurrency" env:"PROVIDER_CONCURRENCY"`
	ParallelSearches    int           `yaml:"parallel_searches" env:"PARALLEL_SEARCHES"`

	InitialQueryCountDefault int `yaml:"initial_query_count_default" env:"INITIAL_QUERY_COUNT_DEFAULT"`
	FollowupQueryCount       int `yaml:"followup_query_count" env:"FOLLOWUP_QUERY_COUNT"`
	MaxLoopsDefault          int `yaml:"max_loops_default" env:"MAX_LOOPS_DEFAULT"`
	MaxSourcesTotal          int `yaml:"max_sources_total" env:"MAX_SOURCES_TOTAL"`

	QualityThresholdDefault float64 `yaml:"quality_threshold_default" env:"QUALITY_THRESHOLD_DEFAULT"`

	HTTPMaxConnections int `yaml:"http_max_connections" env:"HTTP_MAX_CONNECTIONS"`
}

// LLMConfig holds the transport knobs (BaseURL, Timeout) of the Claude
// client. That one client, built from the research LM credentials, backs
// both the research LM calls and the auxiliary passthrough chat endpoint.
type LLMConfig struct {
	// 基础 URL（可选，覆盖 Claude 默认端点）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "DEEPRESEARCH",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	if c.Research.SessionDeadline <= 0 {
		errs = append(errs, "research.session_deadline must be positive")
	}
	if c.Research.MaxLoopsDefault <= 0 {
		errs = append(errs, "research.max_loops_default must be positive")
	}
	if c.Research.InitialQueryCountDefault <= 0 {
		errs = append(errs, "research.initial_query_count_default must be positive")
	}
	if c.Research.QualityThresholdDefault < 0 || c.Research.QualityThresholdDefault > 1 {
		errs = append(errs, "research.quality_threshold_default must be between 0 and 1")
	}
	if c.Research.ProviderConcurrency <= 0 {
		errs = append(errs, "research.provider_concurrency must be positive")
	}
	if c.Research.ParallelSearches <= 0 || c.Research.ParallelSearches > 16 {
		errs = append(errs, "research.parallel_searches must be in (0,16]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
