// Package abtest implements the bounded, FIFO-evicting ledger of paired
// response experiments: store two candidate responses, record the user's
// choice, and aggregate win-rate statistics.
package abtest

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCapacity 是 ledger 的默认容量上限。
const DefaultCapacity = 100

// Choice 表示用户对一组 A/B 响应的裁决。
type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
	// ChoiceNone 表示尚未裁决（或永远不会裁决）
	ChoiceNone Choice = ""
)

// Valid reports whether the choice is A or B.
func (c Choice) Valid() bool {
	return c == ChoiceA || c == ChoiceB
}

// Metadata 记录实验上下文：模型、温度、提示词变体、检测到的情绪块、
// 响应耗时、自定义标签，以及任意附加数据。
type Metadata struct {
	ModelA         string         `json:"model_a,omitempty"`
	ModelB         string         `json:"model_b,omitempty"`
	TemperatureA   float64        `json:"temperature_a,omitempty"`
	TemperatureB   float64        `json:"temperature_b,omitempty"`
	PromptVariantA string         `json:"prompt_variant_a,omitempty"`
	PromptVariantB string         `json:"prompt_variant_b,omitempty"`
	DetectedBlock  string         `json:"detected_block,omitempty"`
	ResponseTimeA  time.Duration  `json:"response_time_a,omitempty"`
	ResponseTimeB  time.Duration  `json:"response_time_b,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// clone 深拷贝，防止调用方透过返回值改动内部状态。
func (m Metadata) clone() Metadata {
	out := m
	if m.Tags != nil {
		out.Tags = make([]string, len(m.Tags))
		copy(out.Tags, m.Tags)
	}
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Entry 是一次成对响应实验的记录。
// 生命周期：created(choice="") → judged(choice=A|B)，允许改判覆盖；
// 没有单条删除，只有整体 Clear 或容量满时的 FIFO 逐出。
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	UserQuery  string    `json:"user_query"`
	ResponseA  string    `json:"response_a"`
	ResponseB  string    `json:"response_b"`
	UserChoice Choice    `json:"user_choice"`
	Metadata   Metadata  `json:"metadata"`
}

func (e Entry) clone() Entry {
	out := e
	out.Metadata = e.Metadata.clone()
	return out
}

// Stats 是 ledger 的聚合统计。胜率按 WithChoice（而非 Total）计算，
// 百分比保留一位小数；WithChoice 为零时胜率为 0 而不是 NaN。
type Stats struct {
	Total      int     `json:"total"`
	WithChoice int     `json:"with_choice"`
	AWins      int     `json:"a_wins"`
	BWins      int     `json:"b_wins"`
	NoChoice   int     `json:"no_choice"`
	AWinRate   float64 `json:"a_win_rate"`
	BWinRate   float64 `json:"b_win_rate"`
}

// Ledger 是有界的内存实验账本。所有变更方法由互斥锁串行化，
// 写入量低，单把锁足够。
type Ledger struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	logger   *zap.Logger

	// 可选指标回调（避免反向依赖 internal/metrics 的具体类型）
	onSize     func(int)
	onChoice   func(string)
	onEviction func()
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMetricsHooks 注册容量/选择/逐出的观测回调。
func WithMetricsHooks(onSize func(int), onChoice func(string), onEviction func()) Option {
	return func(l *Ledger) {
		l.onSize = onSize
		l.onChoice = onChoice
		l.onEviction = onEviction
	}
}

// NewLedger 创建容量受限的 ledger。capacity ≤ 0 时使用 DefaultCapacity。
func NewLedger(capacity int, logger *zap.Logger, opts ...Option) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		logger:   logger.With(zap.String("component", "abtest_ledger")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// newEntryID 生成实验 ID：毫秒时间戳（base36）前缀 + 随机后缀。
// 非密码学唯一，在预期规模下碰撞概率可忽略。
func newEntryID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return "ab_" + ts + "_" + suffix
}

// Store 记录一组成对响应，返回实验 ID。
// 容量已满时先逐出最旧一条——严格 FIFO，不是 LRU。
func (l *Ledger) Store(userQuery, responseA, responseB string, metadata Metadata) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		ID:         newEntryID(),
		Timestamp:  time.Now(),
		UserQuery:  userQuery,
		ResponseA:  responseA,
		ResponseB:  responseB,
		UserChoice: ChoiceNone,
		Metadata:   metadata.clone(),
	}

	if len(l.entries) >= l.capacity {
		evicted := l.entries[0]
		l.entries = l.entries[1:]
		if l.onEviction != nil {
			l.onEviction()
		}
		l.logger.Debug("ledger at capacity, evicted oldest entry",
			zap.String("evicted_id", evicted.ID))
	}

	l.entries = append(l.entries, entry)
	if l.onSize != nil {
		l.onSize(len(l.entries))
	}
	l.logger.Debug("ab test stored",
		zap.String("id", entry.ID),
		zap.Int("used", len(l.entries)),
		zap.Int("capacity", l.capacity))

	return entry.ID
}

// RecordChoice 记录用户裁决。ID 不存在返回 false（不是错误——
// 条目可能已被 FIFO 逐出）；已有裁决时允许覆盖。
func (l *Ledger) RecordChoice(id string, choice Choice) bool {
	if !choice.Valid() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].ID != id {
			continue
		}
		previous := l.entries[i].UserChoice
		l.entries[i].UserChoice = choice
		if l.onChoice != nil {
			l.onChoice(string(choice))
		}
		if previous != ChoiceNone {
			l.logger.Debug("choice overwritten",
				zap.String("id", id),
				zap.String("previous", string(previous)),
				zap.String("choice", string(choice)))
		}
		return true
	}

	l.logger.Debug("choice for unknown entry", zap.String("id", id))
	return false
}

// Get 按 ID 查询单条记录。
func (l *Ledger) Get(id string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := range l.entries {
		if l.entries[i].ID == id {
			return l.entries[i].clone(), true
		}
	}
	return Entry{}, false
}

// Len 返回当前条目数。
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Stats 返回聚合统计。
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{Total: len(l.entries)}
	for i := range l.entries {
		switch l.entries[i].UserChoice {
		case ChoiceA:
			stats.AWins++
			stats.WithChoice++
		case ChoiceB:
			stats.BWins++
			stats.WithChoice++
		}
	}
	stats.NoChoice = stats.Total - stats.WithChoice

	if stats.WithChoice > 0 {
		stats.AWinRate = roundRate(float64(stats.AWins) / float64(stats.WithChoice))
		stats.BWinRate = roundRate(float64(stats.BWins) / float64(stats.WithChoice))
	}
	return stats
}

// roundRate 将比例转为保留一位小数的百分比。
func roundRate(ratio float64) float64 {
	return math.Round(ratio*100*10) / 10
}

// Recent 返回最近 limit 条记录，最新在前。
func (l *Ledger) Recent(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}

	out := make([]Entry, 0, limit)
	for i := len(l.entries) - 1; i >= len(l.entries)-limit; i-- {
		out = append(out, l.entries[i].clone())
	}
	return out
}

// Filter 返回满足谓词的所有记录（按插入顺序）。
func (l *Ledger) Filter(predicate func(Entry) bool) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for i := range l.entries {
		if predicate(l.entries[i]) {
			out = append(out, l.entries[i].clone())
		}
	}
	return out
}

// ExportAll 导出全部记录的防御性拷贝，供外部分析。
func (l *Ledger) ExportAll() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	for i := range l.entries {
		out[i] = l.entries[i].clone()
	}
	return out
}

// Clear 清空账本，返回被清除的条目数。
func (l *Ledger) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := len(l.entries)
	l.entries = l.entries[:0]
	if l.onSize != nil {
		l.onSize(0)
	}
	l.logger.Info("ledger cleared", zap.Int("removed", count))
	return count
}

// VariantStats 是按元数据字段分组的胜率统计。
type VariantStats struct {
	Tests   int     `json:"tests"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
}

// WinRateByModelA 按 Metadata.ModelA 分组统计 A 方案的胜率，
// 用于回答"模型 X 作为 A 时表现如何"。
func (l *Ledger) WinRateByModelA() map[string]VariantStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]VariantStats)
	for i := range l.entries {
		entry := &l.entries[i]
		if entry.Metadata.ModelA == "" || entry.UserChoice == ChoiceNone {
			continue
		}
		stats := out[entry.Metadata.ModelA]
		stats.Tests++
		if entry.UserChoice == ChoiceA {
			stats.Wins++
		}
		stats.WinRate = roundRate(float64(stats.Wins) / float64(stats.Tests))
		out[entry.Metadata.ModelA] = stats
	}
	return out
}
