// =============================================================================
// 📦 FourBlocks 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.Load("config.yaml")
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/fourblocks/embedding"
	"github.com/BaSui01/fourblocks/retrieval"
)

// Config 是 FourBlocks 服务的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server"`

	// Embeddings 语料工件配置
	Embeddings EmbeddingsConfig `yaml:"embeddings"`

	// Embedding 在线查询嵌入提供者配置
	Embedding embedding.OpenAIConfig `yaml:"embedding"`

	// Retrieval 检索引擎配置
	Retrieval retrieval.EngineConfig `yaml:"retrieval"`

	// ABTest A/B 账本配置
	ABTest ABTestConfig `yaml:"abtest"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// 每秒请求限制（0 表示不限流）
	RateLimit float64 `yaml:"rate_limit"`
	// 限流突发量
	RateBurst int `yaml:"rate_burst"`
}

// EmbeddingsConfig 语料工件配置
type EmbeddingsConfig struct {
	// 离线脚本产出的 embeddings JSON 路径
	Path string `yaml:"path"`
}

// ABTestConfig A/B 账本配置
type ABTestConfig struct {
	// 容量上限，超出后 FIFO 逐出
	Capacity int `yaml:"capacity"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug/info/warn/error
	Level string `yaml:"level"`
	// 输出格式: json/console
	Format string `yaml:"format"`
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       20,
			RateBurst:       40,
		},
		Embeddings: EmbeddingsConfig{
			Path: "data/embeddings.json",
		},
		Embedding: embedding.DefaultOpenAIConfig(),
		Retrieval: retrieval.DefaultEngineConfig(),
		ABTest: ABTestConfig{
			Capacity: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load 加载配置: 默认值 → YAML 文件（path 为空则跳过）→ 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 应用环境变量覆盖（前缀 FOURBLOCKS_）
func (c *Config) applyEnv() {
	if v := os.Getenv("FOURBLOCKS_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("FOURBLOCKS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.MetricsPort = port
		}
	}
	if v := os.Getenv("FOURBLOCKS_EMBEDDINGS_PATH"); v != "" {
		c.Embeddings.Path = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embedding.APIKey == "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("FOURBLOCKS_EMBEDDING_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("FOURBLOCKS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics_port: %d", c.Server.MetricsPort)
	}
	if c.ABTest.Capacity < 0 {
		return fmt.Errorf("invalid abtest capacity: %d", c.ABTest.Capacity)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	return nil
}
