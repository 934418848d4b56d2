package retrieval

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/fourblocks/internal/metrics"
	"github.com/BaSui01/fourblocks/types"
)

// QueryEmbedder 是引擎对外部嵌入服务的最小依赖：
// 只为在线用户查询生成向量，语料向量由离线脚本产出。
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
}

// EngineConfig 引擎配置。
type EngineConfig struct {
	// 检索默认参数
	Defaults SearchOptions `yaml:"defaults"`
	// token 记账使用的模型名
	TokenModel string `yaml:"token_model"`
}

// DefaultEngineConfig 返回默认引擎配置。
func DefaultEngineConfig() EngineConfig {
	defaults := DefaultSearchOptions()
	defaults.ExpandRelated = true
	return EngineConfig{
		Defaults:   defaults,
		TokenModel: "gpt-4o",
	}
}

// Engine 是进程级检索子系统。语料快照放在 atomic.Pointer 后面：
// 加载即整体替换、加载后只读，读路径无锁，也不存在模块级布尔标志
// 可能带来的半初始化竞态。
type Engine struct {
	db       atomic.Pointer[types.EmbeddingsDatabase]
	embedder QueryEmbedder
	cfg      EngineConfig
	tokens   *TokenCounter
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewEngine 创建检索引擎。embedder 与 collector 均可为 nil：
// 无 embedder 时引擎以纯关键词模式工作。
func NewEngine(cfg EngineConfig, embedder QueryEmbedder, collector *metrics.Collector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Defaults.TopK <= 0 {
		cfg.Defaults = DefaultEngineConfig().Defaults
	}
	if cfg.TokenModel == "" {
		cfg.TokenModel = DefaultEngineConfig().TokenModel
	}
	return &Engine{
		embedder: embedder,
		cfg:      cfg,
		tokens:   NewTokenCounter(cfg.TokenModel, logger),
		metrics:  collector,
		logger:   logger.With(zap.String("component", "retrieval_engine")),
	}
}

// LoadDatabase 原子替换语料快照。幂等：重复调用即整体换新。
func (e *Engine) LoadDatabase(db *types.EmbeddingsDatabase) error {
	if db == nil || len(db.Chunks) == 0 {
		return types.NewError(types.ErrInvalidDatabase, "embeddings database has no chunks")
	}
	if db.TotalChunks == 0 {
		db.TotalChunks = len(db.Chunks)
	}

	e.db.Store(db)
	if e.metrics != nil {
		e.metrics.SetChunksLoaded(len(db.Chunks))
	}
	e.logger.Info("embeddings database loaded",
		zap.Int("chunks", len(db.Chunks)),
		zap.String("model", db.Model),
		zap.Int("dimensions", db.Dimensions))
	return nil
}

// EngineStats 供健康检查/调试端点使用的自省信息。
type EngineStats struct {
	IsLoaded    bool                `json:"is_loaded"`
	TotalChunks int                 `json:"total_chunks"`
	Model       string              `json:"model"`
	Chapters    []types.ChapterInfo `json:"chapters"`
}

// Stats 返回当前知识库概况。未加载时 IsLoaded=false，其余字段为零值。
func (e *Engine) Stats() EngineStats {
	db := e.db.Load()
	if db == nil {
		return EngineStats{Model: "not loaded"}
	}
	return EngineStats{
		IsLoaded:    true,
		TotalChunks: db.TotalChunks,
		Model:       db.Model,
		Chapters:    db.Chapters,
	}
}

// Result 是一次完整检索的产出。
type Result struct {
	// 主结果
	Chunks []types.ScoredChunk `json:"chunks"`
	// 图扩展出的补充上下文
	Expanded []types.Chunk `json:"expanded_chunks,omitempty"`
	// 本次查询使用的向量（降级时为 nil）
	QueryEmbedding []float64 `json:"-"`
	TotalMatches   int       `json:"total_matches"`
	// 语义路径失败、已退化为纯关键词
	Degraded   bool          `json:"degraded"`
	SearchTime time.Duration `json:"search_time"`
}

// Retrieve 执行完整检索管线：查询向量化 → 混合检索 → 图扩展。
//
// 嵌入服务不可用或返回坏向量时记日志并退化为纯关键词检索——
// 检索失败绝不阻断响应生成，也绝不作为硬错误浮出。
func (e *Engine) Retrieve(ctx context.Context, query string, opts SearchOptions) (*Result, error) {
	db := e.db.Load()
	if db == nil {
		return nil, types.NewError(types.ErrNotLoaded, "embeddings not loaded, call LoadDatabase first")
	}
	start := time.Now()
	opts = normalizeOptions(opts)

	// 图扩展由引擎统一执行，检索阶段只出主结果
	expandRelated := opts.ExpandRelated
	opts.ExpandRelated = false

	var (
		results        []types.ScoredChunk
		queryEmbedding []float64
		degraded       bool
	)

	if e.embedder == nil {
		degraded = true
	} else {
		embedding, err := e.embedder.EmbedQuery(ctx, query)
		if err != nil {
			e.logger.Warn("query embedding failed, falling back to keyword search",
				zap.Error(err))
			degraded = true
		} else {
			queryEmbedding = embedding
		}
	}

	if !degraded {
		hybrid, err := HybridSearch(query, queryEmbedding, db.Chunks, opts)
		if err != nil {
			// 维度不匹配等语义路径故障：降级，不中断请求
			e.logger.Warn("hybrid search failed, falling back to keyword search",
				zap.Error(err))
			degraded = true
		} else {
			results = hybrid
		}
	}
	if degraded {
		results = HybridSearchKeywordOnly(query, db.Chunks, opts.TopK)
		queryEmbedding = nil
	}

	var expanded []types.Chunk
	if expandRelated {
		expanded = ExpandWithRelated(results, db.Chunks, opts.MaxExpansion)
	}

	elapsed := time.Since(start)
	mode := "hybrid"
	if degraded {
		mode = "keyword"
	}
	if e.metrics != nil {
		e.metrics.ObserveSearch(mode, elapsed)
		if degraded {
			e.metrics.IncKeywordFallback()
		}
	}
	e.logger.Debug("retrieval complete",
		zap.String("mode", mode),
		zap.Int("main", len(results)),
		zap.Int("expanded", len(expanded)),
		zap.Duration("elapsed", elapsed))

	return &Result{
		Chunks:         results,
		Expanded:       expanded,
		QueryEmbedding: queryEmbedding,
		TotalMatches:   len(results) + len(expanded),
		Degraded:       degraded,
		SearchTime:     elapsed,
	}, nil
}

// FindRelevantWisdom 是路由层最常用的最高层入口：
// 跑完整管线并返回可直接注入提示词的上下文串。
// 空结果返回哨兵串，调用方按"无上下文继续"处理。
func (e *Engine) FindRelevantWisdom(ctx context.Context, query string, topK int) (string, error) {
	opts := e.cfg.Defaults
	if topK > 0 {
		opts.TopK = topK
	}
	opts.ExpandRelated = true

	result, err := e.Retrieve(ctx, query, opts)
	if err != nil {
		return "", err
	}

	var formatted string
	if len(result.Expanded) > 0 {
		formatted = FormatExpandedContext(result.Chunks, result.Expanded)
	} else {
		formatted = FormatContextForPrompt(result.Chunks, true)
	}

	e.logger.Debug("wisdom context built",
		zap.Int("sources", result.TotalMatches),
		zap.Int("tokens", e.tokens.Count(formatted)))
	return formatted, nil
}

// RetrieveKeywordOnly 显式降级模式入口，零嵌入成本。
func (e *Engine) RetrieveKeywordOnly(query string, topK int) ([]types.ScoredChunk, error) {
	db := e.db.Load()
	if db == nil {
		return nil, types.NewError(types.ErrNotLoaded, "embeddings not loaded, call LoadDatabase first")
	}
	return HybridSearchKeywordOnly(query, db.Chunks, topK), nil
}
