package retrieval

import (
	"testing"

	"github.com/BaSui01/fourblocks/types"
)

func TestDetectBlockFromQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query     string
		wantBlock types.BlockType
		wantOK    bool
	}{
		{"Why am I so angry?", types.BlockAnger, true},
		{"I'm furious at my coworker", types.BlockAnger, true},
		{"I keep worrying about what if it all goes wrong", types.BlockAnxiety, true},
		{"everything feels pointless", types.BlockDepression, true},
		{"I should have known better, it's my fault", types.BlockGuilt, true},
		{"What is REBT?", "", false},
		{"tell me about the weather", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, ok := DetectBlockFromQuery(tt.query)
			if ok != tt.wantOK {
				t.Fatalf("DetectBlockFromQuery(%q) ok = %v, want %v", tt.query, ok, tt.wantOK)
			}
			if got != tt.wantBlock {
				t.Fatalf("DetectBlockFromQuery(%q) = %s, want %s", tt.query, got, tt.wantBlock)
			}
		})
	}
}

// 检测顺序是行为的一部分：anger 的模式先于 guilt 检查，
// "I'm mad about my mistake" 命中 Anger 而不是 Guilt。
func TestDetectBlockOrderWins(t *testing.T) {
	t.Parallel()

	got, ok := DetectBlockFromQuery("I'm mad about my mistake")
	if !ok || got != types.BlockAnger {
		t.Fatalf("DetectBlockFromQuery() = (%s, %v), want (%s, true)", got, ok, types.BlockAnger)
	}
}

func TestTokenizeQuery(t *testing.T) {
	t.Parallel()

	// 标点剥离、小写化、停用词过滤
	terms := tokenizeQuery("Why am I SO ANGRY!!! at the world?")
	want := map[string]bool{"angry": true, "world": true}
	if len(terms) != len(want) {
		t.Fatalf("tokenizeQuery() = %v, want terms %v", terms, want)
	}
	for _, term := range terms {
		if !want[term] {
			t.Errorf("unexpected term %q", term)
		}
	}
}

func TestTokenizeQueryDropsShortTerms(t *testing.T) {
	t.Parallel()

	terms := tokenizeQuery("I am ok")
	if len(terms) != 0 {
		t.Fatalf("tokenizeQuery() = %v, want empty", terms)
	}

	// "mad" 有 3 个字符，保留
	terms = tokenizeQuery("so mad")
	if len(terms) != 1 || terms[0] != "mad" {
		t.Fatalf("tokenizeQuery() = %v, want [mad]", terms)
	}
}

func TestTokenizeQueryKeepsShould(t *testing.T) {
	t.Parallel()

	// "should" 在 CBT 语境是信号词，刻意不在停用词表里
	terms := tokenizeQuery("I should be better")
	found := false
	for _, term := range terms {
		if term == "should" {
			found = true
		}
	}
	if !found {
		t.Fatalf("tokenizeQuery() = %v, want to contain should", terms)
	}
}

func TestExpandTerms(t *testing.T) {
	t.Parallel()

	expanded := expandTerms([]string{"angry"})
	want := map[string]bool{"anger": true, "angry": true}
	if len(expanded) != 2 {
		t.Fatalf("expandTerms() = %v, want 2 terms", expanded)
	}
	for _, term := range expanded {
		if !want[term] {
			t.Errorf("unexpected term %q", term)
		}
	}

	// 未知词原样保留
	expanded = expandTerms([]string{"mindfulness"})
	if len(expanded) != 1 || expanded[0] != "mindfulness" {
		t.Fatalf("expandTerms() = %v, want [mindfulness]", expanded)
	}

	// 去重保持首见顺序
	expanded = expandTerms([]string{"angry", "anger"})
	if len(expanded) != 2 {
		t.Fatalf("expandTerms() = %v, want deduplicated 2 terms", expanded)
	}
}

func TestKeywordSearchFieldWeights(t *testing.T) {
	t.Parallel()

	chunks := []types.Chunk{
		{
			ID:   "title-hit",
			Text: "general advice about emotions",
			Metadata: types.ChunkMetadata{
				Title: "Working with resentment",
			},
		},
		{
			ID:   "content-hit",
			Text: "resentment builds when demands go unmet",
		},
	}

	results := KeywordSearch("resentment", chunks, 10)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	// 标题命中 +2 高于正文命中 +1
	if results[0].Chunk.ID != "title-hit" {
		t.Fatalf("top result = %s, want title-hit", results[0].Chunk.ID)
	}
	for _, r := range results {
		if r.MatchType != types.MatchKeyword {
			t.Errorf("match type = %s, want %s", r.MatchType, types.MatchKeyword)
		}
	}
}

func TestKeywordSearchEmotionMultiplier(t *testing.T) {
	t.Parallel()

	chunks := []types.Chunk{
		{ID: "emotion", Text: "anger is a secondary emotion"},
		{ID: "neutral", Text: "chapter is a secondary division"},
	}

	// "anger" 是情绪信号词（2x），"chapter" 不是
	emotionResults := KeywordSearch("anger", chunks, 10)
	neutralResults := KeywordSearch("chapter", chunks, 10)
	if len(emotionResults) == 0 || len(neutralResults) == 0 {
		t.Fatal("expected hits on both queries")
	}
	if emotionResults[0].Score <= neutralResults[0].Score {
		t.Fatalf("emotion term score = %v, want > neutral term score %v",
			emotionResults[0].Score, neutralResults[0].Score)
	}
}

func TestKeywordSearchOccurrenceBonusCap(t *testing.T) {
	t.Parallel()

	// 8 次出现的加成应被钳制到 0.5
	chunks := []types.Chunk{
		{ID: "dense", Text: "demand demand demand demand demand demand demand demand"},
		{ID: "sparse", Text: "demand once"},
	}

	results := KeywordSearch("demand", chunks, 10)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	// demand 是情绪词: 正文 1*2 + bonus；dense bonus=0.5（钳制），sparse bonus=0.1
	diff := results[0].Score - results[1].Score
	if diff <= 0 || diff > 0.5 {
		t.Fatalf("score gap = %v, want in (0, 0.5]", diff)
	}
}

func TestKeywordSearchZeroScoreDropped(t *testing.T) {
	t.Parallel()

	chunks := []types.Chunk{
		{ID: "miss", Text: "completely unrelated text"},
	}
	results := KeywordSearch("resentment", chunks, 10)
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
}

func TestKeywordSearchEmptyQuery(t *testing.T) {
	t.Parallel()

	chunks := []types.Chunk{{ID: "a", Text: "anger"}}
	if results := KeywordSearch("", chunks, 10); results != nil {
		t.Fatalf("KeywordSearch(\"\") = %v, want nil", results)
	}
	// 全是停用词的查询也返回空
	if results := KeywordSearch("the and of", chunks, 10); results != nil {
		t.Fatalf("KeywordSearch(stopwords) = %v, want nil", results)
	}
}

func TestKeywordSearchWordFormExpansion(t *testing.T) {
	t.Parallel()

	// "angry" 的查询必须命中只含 "anger" 的 chunk
	chunks := []types.Chunk{
		{ID: "anger-chunk", Text: "anger management starts with noticing the demand behind it"},
	}
	results := KeywordSearch("angry", chunks, 10)
	if len(results) != 1 || results[0].Chunk.ID != "anger-chunk" {
		t.Fatalf("results = %+v, want anger-chunk hit", results)
	}
}
