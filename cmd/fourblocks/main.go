// =============================================================================
// FourBlocks 检索服务主入口
// =============================================================================
// 四块理论（CBT/REBT）情绪知识库的混合检索服务：
// 向量 + 关键词混合检索、关联块图扩展、A/B 成对响应实验账本
//
// 使用方法:
//
//	fourblocks serve                        # 启动服务
//	fourblocks serve --config config.yaml   # 指定配置文件
//	fourblocks version                      # 显示版本信息
//	fourblocks health                       # 健康检查
// =============================================================================
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/fourblocks/abtest"
	"github.com/BaSui01/fourblocks/config"
	"github.com/BaSui01/fourblocks/embedding"
	"github.com/BaSui01/fourblocks/internal/metrics"
	"github.com/BaSui01/fourblocks/retrieval"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	// 解析命令行参数
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	embeddingsPath := fs.String("embeddings", "", "Path to embeddings JSON (overrides config)")
	fs.Parse(args)

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *embeddingsPath != "" {
		cfg.Embeddings.Path = *embeddingsPath
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting FourBlocks",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// 初始化指标收集器（独立 registry，附带 Go 运行时指标）
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("fourblocks", registry, logger)

	// 初始化查询嵌入提供者。未配置 API Key 时引擎以纯关键词模式工作，
	// 检索质量下降但服务照常可用。
	var embedder retrieval.QueryEmbedder
	if cfg.Embedding.APIKey != "" {
		embedder = embedding.NewOpenAIProvider(cfg.Embedding, logger)
		logger.Info("Embedding provider initialized",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions))
	} else {
		logger.Warn("Embedding API key not configured, running in keyword-only mode")
	}

	// 创建检索引擎并加载知识库
	engine := retrieval.NewEngine(cfg.Retrieval, embedder, collector, logger)
	if err := engine.LoadDatabaseFile(cfg.Embeddings.Path); err != nil {
		logger.Fatal("Failed to load embeddings database",
			zap.String("path", cfg.Embeddings.Path),
			zap.Error(err))
	}

	// 创建 A/B 实验账本
	ledger := abtest.NewLedger(cfg.ABTest.Capacity, logger,
		abtest.WithMetricsHooks(collector.SetABEntries, collector.IncABChoice, collector.IncABEviction))

	// 创建并启动服务器
	server := NewServer(cfg, engine, ledger, registry, collector, logger)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	// 等待关闭信号
	server.WaitForShutdown()

	logger.Info("FourBlocks stopped")
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("FourBlocks %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`FourBlocks - Emotional wellness knowledge retrieval service

Usage:
  fourblocks <command> [options]

Commands:
  serve     Start the FourBlocks server
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>       Path to configuration file (YAML)
  --embeddings <path>   Path to embeddings JSON artifact

Examples:
  fourblocks serve
  fourblocks serve --config /etc/fourblocks/config.yaml
  fourblocks serve --embeddings data/embeddings.json
  fourblocks health --addr http://localhost:8080
  fourblocks version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
