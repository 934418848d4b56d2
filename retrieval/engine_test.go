package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/BaSui01/fourblocks/types"
)

// fakeEmbedder 返回固定向量或固定错误。
type fakeEmbedder struct {
	vector []float64
	err    error
	calls  int
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func engineTestDB() *types.EmbeddingsDatabase {
	return &types.EmbeddingsDatabase{
		Model:      "text-embedding-3-small",
		Dimensions: 3,
		Chunks: []types.Chunk{
			{
				ID:        "anger_01",
				Text:      "Anger arises from rigid demands.",
				Embedding: []float64{1, 0, 0},
				BlockType: types.BlockAnger,
				Metadata:  types.ChunkMetadata{Title: "The demand behind anger", Related: []string{"anxiety_01"}},
			},
			{
				ID:        "anxiety_01",
				Text:      "Anxiety is fueled by catastrophizing.",
				Embedding: []float64{0, 1, 0},
				BlockType: types.BlockAnxiety,
				Metadata:  types.ChunkMetadata{Title: "Catastrophizing"},
			},
		},
	}
}

func TestEngineRetrieveBeforeLoad(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultEngineConfig(), nil, nil, zap.NewNop())
	_, err := engine.Retrieve(context.Background(), "anger", SearchOptions{})
	if err == nil {
		t.Fatal("expected error before LoadDatabase")
	}
	var typedErr *types.Error
	if !errors.As(err, &typedErr) || typedErr.Code != types.ErrNotLoaded {
		t.Fatalf("error = %v, want code %s", err, types.ErrNotLoaded)
	}
}

func TestEngineLoadDatabaseRejectsEmpty(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultEngineConfig(), nil, nil, zap.NewNop())
	if err := engine.LoadDatabase(&types.EmbeddingsDatabase{}); err == nil {
		t.Fatal("expected error for empty database")
	}
	if err := engine.LoadDatabase(nil); err == nil {
		t.Fatal("expected error for nil database")
	}
}

func TestEngineStats(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultEngineConfig(), nil, nil, zap.NewNop())

	stats := engine.Stats()
	if stats.IsLoaded {
		t.Fatal("IsLoaded = true before load")
	}
	if stats.Model != "not loaded" {
		t.Fatalf("Model = %q, want \"not loaded\"", stats.Model)
	}

	if err := engine.LoadDatabase(engineTestDB()); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}
	stats = engine.Stats()
	if !stats.IsLoaded {
		t.Fatal("IsLoaded = false after load")
	}
	if stats.TotalChunks != 2 {
		t.Fatalf("TotalChunks = %d, want 2", stats.TotalChunks)
	}
	if stats.Model != "text-embedding-3-small" {
		t.Fatalf("Model = %q", stats.Model)
	}
}

func TestEngineRetrieveHybrid(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{vector: []float64{1, 0, 0}}
	engine := NewEngine(DefaultEngineConfig(), embedder, nil, zap.NewNop())
	if err := engine.LoadDatabase(engineTestDB()); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}

	result, err := engine.Retrieve(context.Background(), "Why am I so angry?", SearchOptions{TopK: 2})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.Degraded {
		t.Fatal("Degraded = true with working embedder")
	}
	if len(result.Chunks) == 0 || result.Chunks[0].Chunk.ID != "anger_01" {
		t.Fatalf("chunks = %+v, want anger_01 first", result.Chunks)
	}
	if result.QueryEmbedding == nil {
		t.Error("QueryEmbedding = nil, want query vector")
	}
	if embedder.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", embedder.calls)
	}
}

func TestEngineRetrieveDegradesOnEmbedFailure(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{err: errors.New("upstream down")}
	engine := NewEngine(DefaultEngineConfig(), embedder, nil, zap.NewNop())
	if err := engine.LoadDatabase(engineTestDB()); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}

	// 嵌入失败不是用户可见错误：退化为纯关键词
	result, err := engine.Retrieve(context.Background(), "Why am I so angry?", SearchOptions{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v, want degraded success", err)
	}
	if !result.Degraded {
		t.Fatal("Degraded = false, want true")
	}
	if result.QueryEmbedding != nil {
		t.Error("QueryEmbedding should be nil when degraded")
	}
	if len(result.Chunks) == 0 || result.Chunks[0].Chunk.ID != "anger_01" {
		t.Fatalf("chunks = %+v, want keyword hit on anger_01", result.Chunks)
	}
	for _, c := range result.Chunks {
		if c.MatchType != types.MatchKeyword {
			t.Errorf("match type = %s, want %s", c.MatchType, types.MatchKeyword)
		}
	}
}

func TestEngineRetrieveDegradesOnBadVector(t *testing.T) {
	t.Parallel()

	// 返回与语料维度不符的向量：语义路径失败后仍退化成功
	embedder := &fakeEmbedder{vector: []float64{1, 0}}
	engine := NewEngine(DefaultEngineConfig(), embedder, nil, zap.NewNop())
	if err := engine.LoadDatabase(engineTestDB()); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}

	result, err := engine.Retrieve(context.Background(), "angry", SearchOptions{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v, want degraded success", err)
	}
	if !result.Degraded {
		t.Fatal("Degraded = false, want true")
	}
}

func TestEngineRetrieveNoEmbedder(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultEngineConfig(), nil, nil, zap.NewNop())
	if err := engine.LoadDatabase(engineTestDB()); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}

	result, err := engine.Retrieve(context.Background(), "angry", SearchOptions{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !result.Degraded {
		t.Fatal("Degraded = false without embedder")
	}
}

func TestEngineRetrieveExpansion(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{vector: []float64{1, 0, 0}}
	engine := NewEngine(DefaultEngineConfig(), embedder, nil, zap.NewNop())
	if err := engine.LoadDatabase(engineTestDB()); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}

	opts := SearchOptions{TopK: 1, ExpandRelated: true, MaxExpansion: 2}
	result, err := engine.Retrieve(context.Background(), "Why am I so angry?", opts)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Expanded) != 1 || result.Expanded[0].ID != "anxiety_01" {
		t.Fatalf("Expanded = %+v, want [anxiety_01]", result.Expanded)
	}
	if result.TotalMatches != len(result.Chunks)+len(result.Expanded) {
		t.Errorf("TotalMatches = %d, want %d", result.TotalMatches,
			len(result.Chunks)+len(result.Expanded))
	}
}

func TestEngineFindRelevantWisdom(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{vector: []float64{1, 0, 0}}
	engine := NewEngine(DefaultEngineConfig(), embedder, nil, zap.NewNop())
	if err := engine.LoadDatabase(engineTestDB()); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}

	wisdom, err := engine.FindRelevantWisdom(context.Background(), "Why am I so angry?", 1)
	if err != nil {
		t.Fatalf("FindRelevantWisdom() error = %v", err)
	}
	// 有扩展结果时使用分节格式
	if !strings.Contains(wisdom, "## Primary Sources") {
		t.Errorf("missing primary section in:\n%s", wisdom)
	}
	if !strings.Contains(wisdom, "Anger arises from rigid demands.") {
		t.Errorf("missing chunk text in:\n%s", wisdom)
	}
}

func TestEngineFindRelevantWisdomNoMatch(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultEngineConfig(), nil, nil, zap.NewNop())
	if err := engine.LoadDatabase(engineTestDB()); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}

	// 无 embedder、查询与语料零词法交集：空结果返回哨兵串
	wisdom, err := engine.FindRelevantWisdom(context.Background(), "quantum chromodynamics", 5)
	if err != nil {
		t.Fatalf("FindRelevantWisdom() error = %v", err)
	}
	if wisdom != NoWisdomSentinel {
		t.Fatalf("wisdom = %q, want sentinel", wisdom)
	}
}

func TestEngineRetrieveKeywordOnly(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultEngineConfig(), nil, nil, zap.NewNop())

	if _, err := engine.RetrieveKeywordOnly("angry", 5); err == nil {
		t.Fatal("expected error before load")
	}

	if err := engine.LoadDatabase(engineTestDB()); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}
	results, err := engine.RetrieveKeywordOnly("angry", 5)
	if err != nil {
		t.Fatalf("RetrieveKeywordOnly() error = %v", err)
	}
	if len(results) == 0 || results[0].Chunk.ID != "anger_01" {
		t.Fatalf("results = %+v, want anger_01", results)
	}
}

func TestEngineLoadDatabaseReplacesSnapshot(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultEngineConfig(), nil, nil, zap.NewNop())
	if err := engine.LoadDatabase(engineTestDB()); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}

	replacement := &types.EmbeddingsDatabase{
		Model: "replacement",
		Chunks: []types.Chunk{
			{ID: "only", Text: "single chunk"},
		},
	}
	if err := engine.LoadDatabase(replacement); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}

	stats := engine.Stats()
	if stats.TotalChunks != 1 || stats.Model != "replacement" {
		t.Fatalf("stats = %+v, want replacement snapshot", stats)
	}
}
