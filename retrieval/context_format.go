package retrieval

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/BaSui01/fourblocks/types"
)

// NoWisdomSentinel 空结果时返回的固定哨兵串。
// 调用方应把它理解为"不带检索上下文继续"，而不是错误。
const NoWisdomSentinel = "No crystallized wisdom found - rely on your inherent knowledge."

// seeAlsoLimit 每条结果最多提示的交叉引用数。
const seeAlsoLimit = 3

// FormatContextForPrompt 把检索结果渲染成可直接注入提示词的上下文块。
// 每条结果带编号 [Source N - Title (BlockType)]: 头部，---分隔；
// 有交叉引用的结果附加 See also 提示行。
func FormatContextForPrompt(scoredChunks []types.ScoredChunk, includeMetadata bool) string {
	if len(scoredChunks) == 0 {
		return NoWisdomSentinel
	}

	sections := make([]string, 0, len(scoredChunks))
	for i, item := range scoredChunks {
		var b strings.Builder
		b.WriteString(fmt.Sprintf("[Source %d", i+1))
		if includeMetadata {
			b.WriteString(fmt.Sprintf(" - %s (%s)", item.Chunk.Metadata.Title, item.Chunk.BlockType))
		}
		b.WriteString("]:\n")
		b.WriteString(item.Chunk.Text)

		if related := item.Chunk.Metadata.Related; len(related) > 0 {
			limit := seeAlsoLimit
			if limit > len(related) {
				limit = len(related)
			}
			b.WriteString("\nSee also: ")
			b.WriteString(strings.Join(related[:limit], ", "))
		}
		sections = append(sections, b.String())
	}

	return strings.Join(sections, "\n\n---\n\n")
}

// FormatExpandedContext 渲染主结果 + 图扩展结果的分节上下文，
// 两部分明确标注，便于语言模型区分优先级。
func FormatExpandedContext(mainChunks []types.ScoredChunk, relatedChunks []types.Chunk) string {
	var sections []string

	if len(mainChunks) > 0 {
		sections = append(sections, "## Primary Sources")
		for i, item := range mainChunks {
			title := item.Chunk.Metadata.Title
			if title == "" {
				title = snippet(item.Chunk.Text, 50)
			}
			sections = append(sections, fmt.Sprintf("\n### [%d] %s (%s)\n%s",
				i+1, title, item.Chunk.BlockType, item.Chunk.Text))
		}
	}

	if len(relatedChunks) > 0 {
		sections = append(sections, "\n## Related Context")
		for i, chunk := range relatedChunks {
			title := chunk.Metadata.Title
			if title == "" {
				title = snippet(chunk.Text, 50)
			}
			sections = append(sections, fmt.Sprintf("\n### [Related %d] %s\n%s",
				i+1, title, chunk.Text))
		}
	}

	return strings.Join(sections, "\n")
}

func snippet(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

// TokenCounter 统计上下文的 token 数，用于预算记账。
// tiktoken 初始化或编码失败时回退到 len/4 字符估算并记警告，
// 从不因计数失败中断检索。
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	logger   *zap.Logger
}

// NewTokenCounter 创建指定模型的 token 计数器（如 "gpt-4o"）。
// 模型不被 tiktoken 识别时返回仅估算的计数器，不报错。
func NewTokenCounter(model string, logger *zap.Logger) *TokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, using character estimate",
			zap.String("model", model),
			zap.Error(err))
		enc = nil
	}
	return &TokenCounter{encoding: enc, logger: logger}
}

// Count 返回文本的 token 数。
func (c *TokenCounter) Count(text string) int {
	if c.encoding == nil {
		return len(text) / 4
	}
	return len(c.encoding.Encode(text, nil, nil))
}
