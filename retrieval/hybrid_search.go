package retrieval

import (
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/fourblocks/types"
)

// SearchOptions 混合检索配置。
type SearchOptions struct {
	// Top-K 主结果数
	TopK int `json:"top_k" yaml:"top_k"`
	// 关键词分权重
	KeywordWeight float64 `json:"keyword_weight" yaml:"keyword_weight"`
	// 语义分权重
	SemanticWeight float64 `json:"semantic_weight" yaml:"semantic_weight"`
	// 限定候选池到单个情绪块（空值表示自动检测并 boost）
	FilterBlockType types.BlockType `json:"filter_block_type,omitempty" yaml:"filter_block_type,omitempty"`
	// 是否追加图扩展作为补充上下文
	ExpandRelated bool `json:"expand_related" yaml:"expand_related"`
	// 每个主结果最多扩展的关联块数
	MaxExpansion int `json:"max_expansion" yaml:"max_expansion"`
}

// DefaultSearchOptions 返回默认检索配置。
// 70% 语义 + 30% 关键词：语义检索通常更强，关键词兜住精确匹配。
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		TopK:           5,
		KeywordWeight:  0.3,
		SemanticWeight: 0.7,
		MaxExpansion:   2,
	}
}

// blockBoost 是命中检测到的情绪块时施加的分数放大系数。
const blockBoost = 1.2

// relatedScoreDecay 关联块继承父结果相关度的比例。
const relatedScoreDecay = 0.5

// mergedResult 聚合单个 chunk 在两条检索路径上的得分。
type mergedResult struct {
	chunk         types.Chunk
	semanticScore float64
	keywordScore  float64
	inSemantic    bool
	inKeyword     bool
}

// HybridSearch 融合关键词与语义检索为单一排名。
//
// 两条路径独立打分后按 chunk ID 合并：双路命中的 chunk 得加权和
// （matchType=hybrid）；单路命中的保留原始 matchType，分数不乘权重。
// 关键词分做 max 归一化以便与余弦分可比。检测到情绪块时，
// 匹配该块的结果获得 20% boost。ExpandRelated 开启时，
// 图扩展结果以派生分追加在主结果之后（低优先级补充）。
func HybridSearch(query string, queryEmbedding []float64, chunks []types.Chunk, opts SearchOptions) ([]types.ScoredChunk, error) {
	opts = normalizeOptions(opts)

	candidates := chunks
	detectedBlock := opts.FilterBlockType
	if detectedBlock != "" {
		candidates = FilterByBlockType(chunks, detectedBlock)
	} else {
		detectedBlock, _ = DetectBlockFromQuery(query)
	}

	// 两条路径都是同步 CPU 循环，并发执行纯属降低尾延迟
	var (
		semanticResults []types.ScoredChunk
		keywordResults  []types.ScoredChunk
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		semanticResults, err = SearchEmbeddings(queryEmbedding, candidates, opts.TopK*2)
		return err
	})
	g.Go(func() error {
		keywordResults = KeywordSearch(query, candidates, opts.TopK*2)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 关键词分 max 归一化（下限 1 避免除零）；余弦分本身已在 0-1 量级
	maxKeyword := 1.0
	for _, r := range keywordResults {
		if r.Score > maxKeyword {
			maxKeyword = r.Score
		}
	}

	merged := make(map[string]*mergedResult)
	var order []string

	for _, r := range semanticResults {
		merged[r.Chunk.ID] = &mergedResult{
			chunk:         r.Chunk,
			semanticScore: r.Score,
			inSemantic:    true,
		}
		order = append(order, r.Chunk.ID)
	}
	for _, r := range keywordResults {
		normalized := r.Score / maxKeyword
		if existing, ok := merged[r.Chunk.ID]; ok {
			existing.keywordScore = normalized
			existing.inKeyword = true
			continue
		}
		merged[r.Chunk.ID] = &mergedResult{
			chunk:        r.Chunk,
			keywordScore: normalized,
			inKeyword:    true,
		}
		order = append(order, r.Chunk.ID)
	}

	results := make([]types.ScoredChunk, 0, len(order))
	for _, id := range order {
		m := merged[id]

		var score float64
		var matchType types.MatchType
		switch {
		case m.inSemantic && m.inKeyword:
			score = m.semanticScore*opts.SemanticWeight + m.keywordScore*opts.KeywordWeight
			matchType = types.MatchHybrid
		case m.inSemantic:
			score = m.semanticScore
			matchType = types.MatchSemantic
		default:
			score = m.keywordScore
			matchType = types.MatchKeyword
		}

		if detectedBlock != "" && m.chunk.BlockType == detectedBlock {
			score *= blockBoost
		}

		results = append(results, types.ScoredChunk{
			Chunk:     m.chunk,
			Score:     score,
			MatchType: matchType,
		})
	}

	sortByScore(results)
	if opts.TopK < len(results) {
		results = results[:opts.TopK]
	}

	if opts.ExpandRelated {
		results = append(results, expandWithRelatedScored(results, candidates, opts.MaxExpansion)...)
	}

	return results, nil
}

// HybridSearchKeywordOnly 无 embedding 时的降级入口。
// 输出形状与完整混合路径兼容，调用方无需按模式分支。
func HybridSearchKeywordOnly(query string, chunks []types.Chunk, topK int) []types.ScoredChunk {
	if topK <= 0 {
		topK = DefaultSearchOptions().TopK
	}

	results := KeywordSearch(query, chunks, topK)

	if detectedBlock, ok := DetectBlockFromQuery(query); ok {
		for i := range results {
			if results[i].Chunk.BlockType == detectedBlock {
				results[i].Score *= blockBoost
			}
		}
		sortByScore(results)
	}

	return results
}

func normalizeOptions(opts SearchOptions) SearchOptions {
	defaults := DefaultSearchOptions()
	if opts.TopK <= 0 {
		opts.TopK = defaults.TopK
	}
	if opts.KeywordWeight == 0 && opts.SemanticWeight == 0 {
		opts.KeywordWeight = defaults.KeywordWeight
		opts.SemanticWeight = defaults.SemanticWeight
	}
	if opts.MaxExpansion <= 0 {
		opts.MaxExpansion = defaults.MaxExpansion
	}
	return opts
}
