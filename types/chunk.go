package types

// BlockType 表示情绪块分类（Four Blocks 知识体系的闭合类别集）。
type BlockType string

const (
	BlockAnger               BlockType = "Anger"
	BlockAnxiety             BlockType = "Anxiety"
	BlockDepression          BlockType = "Depression"
	BlockGuilt               BlockType = "Guilt"
	BlockMentalContamination BlockType = "Mental Contamination"
	BlockABCs                BlockType = "ABCs"
	BlockThreeInsights       BlockType = "Three Insights"
	BlockIrrationalBeliefs   BlockType = "Irrational Beliefs"
	BlockHappiness           BlockType = "Happiness"
	BlockGeneral             BlockType = "General"
)

// Audience 表示内容面向的读者群体。
type Audience string

const (
	AudienceGeneral        Audience = "general"
	AudienceFirstResponder Audience = "first_responder"
)

// ChunkMetadata 是每个知识块附带的元数据。
// Related 保存交叉引用的 chunk ID，是图扩展的边；
// 引用的 ID 允许悬空（指向当前库中不存在的块）。
type ChunkMetadata struct {
	Chapter  string   `json:"chapter"`
	Section  string   `json:"section"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags"`
	Keywords []string `json:"keywords"`
	Related  []string `json:"related"`
	Audience Audience `json:"audience"`
	Category string   `json:"category"`
}

// Chunk 是可检索知识的不可变单元。
// Embedding 仅在启用语义检索时存在；同一数据库内所有
// embedding 维度必须一致（不一致在相似度计算时报硬错误）。
type Chunk struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Embedding []float64     `json:"embedding,omitempty"`
	BlockType BlockType     `json:"block_type"`
	Metadata  ChunkMetadata `json:"metadata"`
}

// MatchType 标记一条检索结果来自哪条路径。
type MatchType string

const (
	MatchSemantic MatchType = "semantic"
	MatchKeyword  MatchType = "keyword"
	MatchHybrid   MatchType = "hybrid"
)

// ScoredChunk 是检索阶段产出的带分结果。仅在单次查询内有效，
// 从不持久化。
type ScoredChunk struct {
	Chunk     Chunk     `json:"chunk"`
	Score     float64   `json:"score"`
	MatchType MatchType `json:"match_type"`
}

// ChapterInfo 描述语料中一个章节的概况。
type ChapterInfo struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DatabaseMetadata 是语料级元数据。
type DatabaseMetadata struct {
	Source           string   `json:"source"`
	Description      string   `json:"description"`
	Blocks           []string `json:"blocks"`
	AdditionalTopics []string `json:"additional_topics"`
}

// EmbeddingsDatabase 是整个语料的容器，由离线摄取脚本产出的
// 静态 JSON 工件反序列化而来。进程启动时加载一次，加载后只读。
type EmbeddingsDatabase struct {
	Version     string           `json:"version"`
	Model       string           `json:"model"`
	Dimensions  int              `json:"dimensions"`
	TotalChunks int              `json:"total_chunks"`
	Chapters    []ChapterInfo    `json:"chapters"`
	Chunks      []Chunk          `json:"chunks"`
	Metadata    DatabaseMetadata `json:"metadata"`
}
