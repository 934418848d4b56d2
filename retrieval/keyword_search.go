package retrieval

import (
	"strings"

	"github.com/BaSui01/fourblocks/types"
)

// stopwords 是被过滤的常见词。注意保留 "should"——它在 CBT 语境里是信号词。
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "as": {}, "is": {}, "was": {}, "are": {}, "were": {},
	"been": {}, "be": {}, "have": {}, "has": {}, "had": {}, "do": {},
	"does": {}, "did": {}, "will": {}, "would": {}, "could": {}, "may": {},
	"might": {}, "must": {}, "can": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "it": {}, "its": {}, "you": {}, "he": {}, "she": {},
	"we": {}, "they": {}, "my": {}, "your": {}, "our": {}, "their": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "how": {}, "why": {},
	"when": {}, "where": {}, "all": {}, "any": {}, "both": {}, "each": {},
	"few": {}, "more": {}, "most": {}, "other": {}, "some": {}, "such": {},
	"than": {}, "too": {}, "very": {}, "just": {}, "only": {}, "also": {},
	"even": {}, "still": {}, "about": {}, "after": {}, "before": {},
	"between": {}, "into": {}, "through": {}, "during": {}, "again": {},
	"then": {}, "once": {}, "here": {}, "there": {}, "so": {}, "if": {},
	"because": {}, "while": {}, "although": {}, "though": {}, "unless": {},
	"until": {}, "whether": {}, "not": {}, "no": {}, "nor": {}, "now": {},
	"out": {}, "over": {}, "own": {}, "same": {}, "up": {}, "down": {},
	"off": {}, "much": {}, "many": {}, "get": {}, "got": {}, "like": {},
	"know": {}, "think": {}, "feel": {}, "time": {}, "way": {}, "thing": {},
	"things": {},
}

// emotionKeywords 获得 2x 权重的情绪信号词。
var emotionKeywords = map[string]struct{}{
	// Anger
	"anger": {}, "angry": {}, "rage": {}, "furious": {}, "frustrated": {},
	"irritated": {}, "mad": {}, "annoyed": {}, "resentful": {}, "hostile": {},
	"hate": {}, "pissed": {}, "demand": {}, "demands": {},
	// Anxiety
	"anxiety": {}, "anxious": {}, "worry": {}, "worried": {}, "fear": {},
	"scared": {}, "nervous": {}, "panic": {}, "dread": {}, "terrified": {},
	"uncertain": {}, "catastrophe": {}, "awful": {},
	// Depression
	"depression": {}, "depressed": {}, "sad": {}, "hopeless": {}, "stuck": {},
	"worthless": {}, "empty": {}, "numb": {}, "despair": {}, "meaningless": {},
	"pointless": {},
	// Guilt
	"guilt": {}, "guilty": {}, "shame": {}, "ashamed": {}, "regret": {},
	"blame": {}, "fault": {},
	// REBT/CBT concepts
	"belief": {}, "beliefs": {}, "irrational": {}, "rational": {},
	"dispute": {}, "disputing": {}, "abc": {}, "activating": {},
	"consequence": {}, "thoughts": {}, "emotions": {}, "feelings": {},
	"should": {}, "narrator": {}, "observer": {},
}

// wordExpansions 把词形归一到基本形并补充近义词，
// 解决 "angry" 搜不到 "anger" 的问题。
var wordExpansions = map[string][]string{
	"angry":      {"anger", "angry"},
	"anger":      {"anger", "angry"},
	"mad":        {"anger", "mad"},
	"furious":    {"anger", "furious"},
	"frustrated": {"frustration", "frustrated", "anger"},
	"anxious":    {"anxiety", "anxious"},
	"anxiety":    {"anxiety", "anxious"},
	"worried":    {"worry", "worried", "anxiety"},
	"worry":      {"worry", "worried", "anxiety"},
	"scared":     {"fear", "scared", "anxiety"},
	"fear":       {"fear", "scared", "anxiety"},
	"nervous":    {"nervous", "anxiety"},
	"depressed":  {"depression", "depressed"},
	"depression": {"depression", "depressed"},
	"sad":        {"sad", "depression", "sadness"},
	"hopeless":   {"hopeless", "depression", "hopelessness"},
	"guilty":     {"guilt", "guilty"},
	"guilt":      {"guilt", "guilty"},
	"ashamed":    {"shame", "ashamed", "guilt"},
	"shame":      {"shame", "ashamed", "guilt"},
}

// blockPattern 将关键词/短语模式映射到情绪块。检测按声明顺序进行，
// 首个命中的块胜出，因此顺序是行为的一部分。
type blockPattern struct {
	block    types.BlockType
	patterns []string
}

var blockPatterns = []blockPattern{
	{types.BlockAnger, []string{
		"anger", "angry", "rage", "furious", "frustrated", "irritated", "mad",
		"annoyed", "resentful", "hostile", "hate", "pissed",
	}},
	{types.BlockAnxiety, []string{
		"anxiety", "anxious", "worry", "worried", "fear", "scared", "nervous",
		"panic", "what if", "dread", "terrified", "uneasy", "apprehensive",
		"can't stand", "something bad", "future", "uncertain",
	}},
	{types.BlockDepression, []string{
		"depression", "depressed", "sad", "hopeless", "stuck", "unmotivated",
		"down", "worthless", "nothing matters", "pointless", "empty", "numb",
		"despair", "meaningless", "no point", "give up",
	}},
	{types.BlockGuilt, []string{
		"guilt", "guilty", "shame", "ashamed", "regret", "mistake",
		"should have", "shouldn't have", "my fault", "blame myself", "wrong",
		"apologize",
	}},
}

// DetectBlockFromQuery 从查询文本推断情绪块。
// 未命中返回 ("", false)——这是"无意见"，不是错误；
// 调用方不得把它默认成 General。
func DetectBlockFromQuery(query string) (types.BlockType, bool) {
	queryLower := strings.ToLower(query)

	for _, bp := range blockPatterns {
		for _, pattern := range bp.patterns {
			if strings.Contains(queryLower, pattern) {
				return bp.block, true
			}
		}
	}
	return "", false
}

// tokenizeQuery 小写化、去标点、按空白切分，过滤停用词和 ≤2 字符的噪音词。
func tokenizeQuery(query string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9', r == '_':
			return r
		case r == ' ', r == '\t', r == '\n', r == '\r':
			return r
		default:
			// 去掉标点，ANGRY!!!! 仍能匹配 "angry"
			return -1
		}
	}, strings.ToLower(query))

	var terms []string
	for _, term := range strings.Fields(cleaned) {
		if len(term) <= 2 {
			continue
		}
		if _, ok := stopwords[term]; ok {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// expandTerms 对检索词做词形扩展并去重，保持首见顺序。
func expandTerms(terms []string) []string {
	seen := make(map[string]struct{})
	var expanded []string
	for _, term := range terms {
		forms, ok := wordExpansions[term]
		if !ok {
			forms = []string{term}
		}
		for _, form := range forms {
			if _, dup := seen[form]; dup {
				continue
			}
			seen[form] = struct{}{}
			expanded = append(expanded, form)
		}
	}
	return expanded
}

// KeywordSearch 基于词频的词法检索，零 embedding 成本，
// 是语义检索不可用时的关键回退路径。
//
// 打分规则：正文命中 +1（重复出现按 0.1/次 加成，上限 0.5），
// 标题命中 +2，人工整理的 keywords 命中 +1.5，tags 命中 +1.5；
// 情绪信号词整体 2x。得分为 0 的 chunk 在排序前剔除。
func KeywordSearch(query string, chunks []types.Chunk, topK int) []types.ScoredChunk {
	rawTerms := tokenizeQuery(query)
	if len(rawTerms) == 0 {
		return nil
	}
	searchTerms := expandTerms(rawTerms)

	scored := make([]types.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		contentLower := strings.ToLower(chunk.Text)
		titleLower := strings.ToLower(chunk.Metadata.Title)
		keywordsStr := strings.ToLower(strings.Join(chunk.Metadata.Keywords, " "))
		tagsStr := strings.ToLower(strings.Join(chunk.Metadata.Tags, " "))

		var score float64
		for _, term := range searchTerms {
			multiplier := 1.0
			if _, ok := emotionKeywords[term]; ok {
				multiplier = 2.0
			}

			if strings.Contains(contentLower, term) {
				score += 1 * multiplier
				// 密度加成：奖励反复出现，而不只是出现
				occurrences := strings.Count(contentLower, term)
				bonus := float64(occurrences) * 0.1
				if bonus > 0.5 {
					bonus = 0.5
				}
				score += bonus
			}
			if strings.Contains(titleLower, term) {
				score += 2 * multiplier
			}
			if strings.Contains(keywordsStr, term) {
				score += 1.5 * multiplier
			}
			if strings.Contains(tagsStr, term) {
				score += 1.5 * multiplier
			}
		}

		if score > 0 {
			scored = append(scored, types.ScoredChunk{
				Chunk:     chunk,
				Score:     score,
				MatchType: types.MatchKeyword,
			})
		}
	}

	sortByScore(scored)

	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK]
}
