// =============================================================================
// 📦 ReplyFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("REPLYFLOW").
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

// Config 是 ReplyFlow 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Redis 缓存后端配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 执行历史数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Cache 结果缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// LLM 补全提供者配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Embedding 嵌入提供者配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Workflow 工作流执行配置
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// RedisConfig Redis 配置。Addr 为空时使用内存缓存。
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig 执行历史数据库配置（SQLite）。Path 为空时关闭历史记录。
type DatabaseConfig struct {
	// SQLite 文件路径，":memory:" 表示内存库
	Path string `yaml:"path" env:"PATH"`
}

// CacheConfig 结果缓存配置
type CacheConfig struct {
	// 工作流结果 TTL
	WorkflowResultTTL time.Duration `yaml:"workflow_result_ttl" env:"WORKFLOW_RESULT_TTL"`
	// 档案查询 TTL
	ProfileLookupTTL time.Duration `yaml:"profile_lookup_ttl" env:"PROFILE_LOOKUP_TTL"`
	// FAQ 答案 TTL
	FAQAnswerTTL time.Duration `yaml:"faq_answer_ttl" env:"FAQ_ANSWER_TTL"`
	// 语义命中的最低余弦相似度
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
	// 内存后端的过期清理间隔
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

// LLMConfig 补全提供者配置
type LLMConfig struct {
	// 基础 URL（OpenAI 兼容）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 客户端限速（每秒请求数）
	RPS float64 `yaml:"rps" env:"RPS"`
	// 限速突发量
	Burst int `yaml:"burst" env:"BURST"`
}

// EmbeddingConfig 嵌入提供者配置
type EmbeddingConfig struct {
	// 是否启用语义缓存
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 嵌入计算超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 嵌入计算并发上限
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
}

// WorkflowConfig 工作流执行配置
type WorkflowConfig struct {
	// 单步默认超时
	DefaultStepTimeout time.Duration `yaml:"default_step_timeout" env:"DEFAULT_STEP_TIMEOUT"`
	// 整体超时
	OverallTimeout time.Duration `yaml:"overall_timeout" env:"OVERALL_TIMEOUT"`
	// 全局并发步骤上限
	MaxConcurrentSteps int `yaml:"max_concurrent_steps" env:"MAX_CONCURRENT_STEPS"`
	// 重复提交检测时间窗
	DuplicateWindow time.Duration `yaml:"duplicate_window" env:"DUPLICATE_WINDOW"`
}

// DefaultConfig 返回带默认值的配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{
			PoolSize:  10,
			KeyPrefix: "replyflow:cache:",
		},
		Cache: CacheConfig{
			WorkflowResultTTL:   time.Hour,
			ProfileLookupTTL:    24 * time.Hour,
			FAQAnswerTTL:        7 * 24 * time.Hour,
			SimilarityThreshold: 0.85,
			CleanupInterval:     5 * time.Minute,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
			RPS:         5,
			Burst:       10,
		},
		Embedding: EmbeddingConfig{
			Enabled:    true,
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			Timeout:    10 * time.Second,
			PoolSize:   8,
		},
		Workflow: WorkflowConfig{
			DefaultStepTimeout: 60 * time.Second,
			OverallTimeout:     5 * time.Minute,
			MaxConcurrentSteps: 50,
			DuplicateWindow:    10 * time.Minute,
		},
	}
}

// Validate 校验配置的合法性
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be in (0, 65535], got %d", c.Server.HTTPPort)
	}
	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be in (0, 1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Workflow.MaxConcurrentSteps <= 0 {
		return fmt.Errorf("workflow.max_concurrent_steps must be positive, got %d", c.Workflow.MaxConcurrentSteps)
	}
	return nil
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: "REPLYFLOW"}
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
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

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
