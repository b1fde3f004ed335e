// =============================================================================
// 📦 MediaFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("MEDIAFLOW").
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

// Config 是 MediaFlow 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Redis 配置（redis 任务存储）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置（database 任务存储）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Tasks 任务存储配置
	Tasks TaskStoreConfig `yaml:"tasks" env:"TASKS"`

	// Storage 素材存储配置
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`

	// Providers 生成服务商配置
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`

	// Polling 轮询配置
	Polling PollingConfig `yaml:"polling" env:"POLLING"`

	// Assembly 合成配置
	Assembly AssemblyConfig `yaml:"assembly" env:"ASSEMBLY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// 监听地址（为空时监听所有网卡）
	Host string `yaml:"host" env:"HOST"`
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
	// TLS 证书与私钥（PEM 文件，两者同时设置时 API 端口启用 HTTPS）
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
	// API Keys（为空时不启用 API Key 认证）
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 query 参数传递 API Key（websocket 客户端需要）
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 每个 IP 每秒请求数
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// JWT 认证
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	// HMAC 密钥（HS256）
	Secret string `yaml:"secret" env:"SECRET"`
	// RSA 公钥 PEM（RS256）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	// 签发者
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 受众
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了 JWT 密钥
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
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
	// 采样率（根 span，子 span 跟随上游）
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 部署环境，写入 deployment.environment 资源属性
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	// 使用明文 gRPC 连接 collector
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 指标导出周期
	ExportInterval time.Duration `yaml:"export_interval" env:"EXPORT_INTERVAL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 启用 TLS（托管 Redis 通常要求）
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// TaskStoreConfig 任务存储配置
type TaskStoreConfig struct {
	// 存储类型: memory, file, redis, database
	Type string `yaml:"type" env:"TYPE"`
	// 文件存储目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// Redis key 前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// StorageConfig 素材存储配置
type StorageConfig struct {
	// 素材根目录（videos/、musics/ 等子目录位于其下）
	Root string `yaml:"root" env:"ROOT"`
	// 素材目录文件
	CatalogFile string `yaml:"catalog_file" env:"CATALOG_FILE"`
	// 下载超时
	DownloadTimeout time.Duration `yaml:"download_timeout" env:"DOWNLOAD_TIMEOUT"`
	// 单个素材最大字节数（0 为不限制）
	MaxAssetBytes int64 `yaml:"max_asset_bytes" env:"MAX_ASSET_BYTES"`
}

// ProvidersConfig 生成服务商配置
type ProvidersConfig struct {
	Runway     ProviderConfig `yaml:"runway" env:"RUNWAY"`
	Veo        ProviderConfig `yaml:"veo" env:"VEO"`
	Suno       ProviderConfig `yaml:"suno" env:"SUNO"`
	MiniMax    ProviderConfig `yaml:"minimax" env:"MINIMAX"`
	ElevenLabs ProviderConfig `yaml:"elevenlabs" env:"ELEVENLABS"`
}

// ProviderConfig 单个服务商配置
type ProviderConfig struct {
	// API Key，为空时该服务商不注册
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 默认模型
	Model string `yaml:"model" env:"MODEL"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// PollingConfig 轮询配置（按生成类型区分）
type PollingConfig struct {
	Video  PollProfile `yaml:"video" env:"VIDEO"`
	Music  PollProfile `yaml:"music" env:"MUSIC"`
	Speech PollProfile `yaml:"speech" env:"SPEECH"`
}

// PollProfile 轮询间隔与最长等待时间
type PollProfile struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	MaxWait  time.Duration `yaml:"max_wait" env:"MAX_WAIT"`
}

// AssemblyConfig 视频合成配置
type AssemblyConfig struct {
	// ffmpeg 可执行文件
	FFmpegPath string `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`
	// ffprobe 可执行文件
	FFprobePath string `yaml:"ffprobe_path" env:"FFPROBE_PATH"`
	// 输出目录
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`
	// 输出帧率
	FrameRate int `yaml:"frame_rate" env:"FRAME_RATE"`
	// 淡出时长（秒）
	FadeSeconds float64 `yaml:"fade_seconds" env:"FADE_SECONDS"`
	// 最大缩放倍数
	ZoomMax float64 `yaml:"zoom_max" env:"ZOOM_MAX"`
	// x264 preset
	Preset string `yaml:"preset" env:"PRESET"`
	// x264 CRF
	CRF int `yaml:"crf" env:"CRF"`
	// 音频码率
	AudioBitrate string `yaml:"audio_bitrate" env:"AUDIO_BITRATE"`
	// 单次合成超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
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
		envPrefix:  "MEDIAFLOW",
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
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

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

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

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

	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}

	switch c.Tasks.Type {
	case "memory", "file", "redis", "database":
	default:
		errs = append(errs, fmt.Sprintf("unknown task store type %q", c.Tasks.Type))
	}
	if c.Tasks.Type == "file" && c.Tasks.BaseDir == "" {
		errs = append(errs, "tasks.base_dir is required for file store")
	}

	if c.Storage.Root == "" {
		errs = append(errs, "storage.root is required")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be within [0, 1]")
	}

	for name, p := range map[string]PollProfile{
		"video":  c.Polling.Video,
		"music":  c.Polling.Music,
		"speech": c.Polling.Speech,
	} {
		if p.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("polling.%s.interval must be positive", name))
		}
		if p.MaxWait < p.Interval {
			errs = append(errs, fmt.Sprintf("polling.%s.max_wait must be >= interval", name))
		}
	}

	if c.Assembly.FrameRate <= 0 {
		errs = append(errs, "assembly.frame_rate must be positive")
	}
	if c.Assembly.ZoomMax < 1 {
		errs = append(errs, "assembly.zoom_max must be >= 1")
	}
	if c.Assembly.FadeSeconds < 0 {
		errs = append(errs, "assembly.fade_seconds must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
