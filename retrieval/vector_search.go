package retrieval

import (
	"math"
	"sort"

	"github.com/BaSui01/fourblocks/types"
)

// CosineSimilarity 计算两个向量的余弦相似度。
// 维度不一致是硬错误（DIMENSION_MISMATCH）：静默给错误答案比失败更糟。
// 任一向量模为零时相似度定义为 0，避免除零——这是刻意的边界策略。
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, types.NewErrorf(types.ErrDimensionMismatch,
			"vector dimensions must match: %d vs %d", len(a), len(b))
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	magnitude := math.Sqrt(normA) * math.Sqrt(normB)
	if magnitude == 0 {
		return 0, nil
	}
	return dotProduct / magnitude, nil
}

// SearchEmbeddings 对每个 chunk 计算与查询向量的余弦相似度，
// 按分数降序取 Top-K。排序使用稳定排序：同分结果保持语料原始顺序。
// 没有 embedding 的 chunk 被跳过。
func SearchEmbeddings(queryEmbedding []float64, chunks []types.Chunk, topK int) ([]types.ScoredChunk, error) {
	scored := make([]types.ScoredChunk, 0, len(chunks))

	for _, chunk := range chunks {
		if chunk.Embedding == nil {
			continue
		}
		score, err := CosineSimilarity(queryEmbedding, chunk.Embedding)
		if err != nil {
			return nil, err
		}
		scored = append(scored, types.ScoredChunk{
			Chunk:     chunk,
			Score:     score,
			MatchType: types.MatchSemantic,
		})
	}

	sortByScore(scored)

	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

// FilterByBlockType 按情绪块过滤。General 或空值返回全部。
func FilterByBlockType(chunks []types.Chunk, blockType types.BlockType) []types.Chunk {
	if blockType == "" || blockType == types.BlockGeneral {
		return chunks
	}
	filtered := make([]types.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.BlockType == blockType {
			filtered = append(filtered, chunk)
		}
	}
	return filtered
}

// BuildChunkIndex 构建 ID → chunk 的 O(1) 查找索引，供图扩展使用。
func BuildChunkIndex(chunks []types.Chunk) map[string]types.Chunk {
	index := make(map[string]types.Chunk, len(chunks))
	for _, chunk := range chunks {
		index[chunk.ID] = chunk
	}
	return index
}

// sortByScore 按分数降序稳定排序。
func sortByScore(results []types.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
