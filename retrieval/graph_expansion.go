package retrieval

import (
	"github.com/BaSui01/fourblocks/types"
)

// ExpandWithRelated 沿已检索 chunk 的 related 交叉引用做一跳扩展，
// 在不引入图数据库的前提下近似 graph-RAG。
//
// 每个源 chunk 最多检视 2×maxExpansion 个候选 ID；已检索到的 ID 不重复
// 提升；悬空 ID 静默忽略。派生分数 = 父分数 × 0.5（被多个源命中时保留
// 最高派生分）。输出按派生分降序，截断到 len(retrieved)×maxExpansion。
//
// 刻意不做多跳递归：限制成本，避免主题漂移。
func ExpandWithRelated(retrieved []types.ScoredChunk, allChunks []types.Chunk, maxExpansion int) []types.Chunk {
	expanded := expandWithRelatedScored(retrieved, allChunks, maxExpansion)
	chunks := make([]types.Chunk, len(expanded))
	for i, sc := range expanded {
		chunks[i] = sc.Chunk
	}
	return chunks
}

// expandWithRelatedScored 是保留派生分数的内部形式，
// 供 HybridSearch 把扩展结果作为低优先级补充上下文追加。
func expandWithRelatedScored(retrieved []types.ScoredChunk, allChunks []types.Chunk, maxExpansion int) []types.ScoredChunk {
	if len(retrieved) == 0 || maxExpansion <= 0 {
		return nil
	}

	chunkIndex := BuildChunkIndex(allChunks)

	retrievedIDs := make(map[string]struct{}, len(retrieved))
	for _, sc := range retrieved {
		retrievedIDs[sc.Chunk.ID] = struct{}{}
	}

	// 按最高派生分去重；order 记录首见顺序保证稳定输出
	best := make(map[string]types.ScoredChunk)
	var order []string

	for _, scored := range retrieved {
		relatedIDs := scored.Chunk.Metadata.Related
		limit := maxExpansion * 2
		if limit > len(relatedIDs) {
			limit = len(relatedIDs)
		}

		for _, relatedID := range relatedIDs[:limit] {
			if _, dup := retrievedIDs[relatedID]; dup {
				continue
			}
			relatedChunk, ok := chunkIndex[relatedID]
			if !ok {
				// 悬空引用：语料迭代中正常出现，不是错误
				continue
			}

			// 关联块继承一半的父相关度
			derived := scored.Score * 0.5
			existing, seen := best[relatedID]
			if !seen {
				order = append(order, relatedID)
			}
			if !seen || existing.Score < derived {
				best[relatedID] = types.ScoredChunk{
					Chunk:     relatedChunk,
					Score:     derived,
					MatchType: scored.MatchType,
				}
			}
		}
	}

	results := make([]types.ScoredChunk, 0, len(order))
	for _, id := range order {
		results = append(results, best[id])
	}
	sortByScore(results)

	maxTotal := len(retrieved) * maxExpansion
	if maxTotal > len(results) {
		maxTotal = len(results)
	}
	return results[:maxTotal]
}

// AllRelatedIDs 收集一组 chunk 的全部 related ID（去重）。
func AllRelatedIDs(chunks []types.Chunk) map[string]struct{} {
	related := make(map[string]struct{})
	for _, chunk := range chunks {
		for _, id := range chunk.Metadata.Related {
			related[id] = struct{}{}
		}
	}
	return related
}

// ConnectivityStats 描述一组检索结果的互联程度，用于调试与质量评估。
type ConnectivityStats struct {
	TotalRelations      int     `json:"total_relations"`
	AvgRelationsPerChunk float64 `json:"avg_relations_per_chunk"`
	InternalLinks       int     `json:"internal_links"`
	ExternalLinks       int     `json:"external_links"`
}

// AnalyzeConnectivity 统计 chunk 集合内部/外部交叉引用的数量。
func AnalyzeConnectivity(chunks []types.Chunk) ConnectivityStats {
	chunkIDs := make(map[string]struct{}, len(chunks))
	for _, chunk := range chunks {
		chunkIDs[chunk.ID] = struct{}{}
	}

	var stats ConnectivityStats
	for _, chunk := range chunks {
		stats.TotalRelations += len(chunk.Metadata.Related)
		for _, id := range chunk.Metadata.Related {
			if _, ok := chunkIDs[id]; ok {
				stats.InternalLinks++
			} else {
				stats.ExternalLinks++
			}
		}
	}
	if len(chunks) > 0 {
		stats.AvgRelationsPerChunk = float64(stats.TotalRelations) / float64(len(chunks))
	}
	return stats
}
