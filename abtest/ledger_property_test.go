package abtest

import (
	"fmt"
	"testing"

	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// 任意操作序列下，账本条目数不超过容量，且保留的总是最新的条目。
func TestProperty_LedgerCapacityInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(rt, "capacity")
		numStores := rapid.IntRange(0, 60).Draw(rt, "numStores")

		ledger := NewLedger(capacity, zap.NewNop())

		var ids []string
		for i := 0; i < numStores; i++ {
			ids = append(ids, ledger.Store(fmt.Sprintf("q%d", i), "a", "b", Metadata{}))
		}

		wantLen := numStores
		if wantLen > capacity {
			wantLen = capacity
		}
		if ledger.Len() != wantLen {
			rt.Fatalf("Len() = %d, want %d", ledger.Len(), wantLen)
		}

		// 严格 FIFO：只有最后 capacity 条存活
		survivorStart := numStores - wantLen
		for i, id := range ids {
			_, ok := ledger.Get(id)
			if i < survivorStart && ok {
				rt.Fatalf("entry %d should have been evicted", i)
			}
			if i >= survivorStart && !ok {
				rt.Fatalf("entry %d should have survived", i)
			}
		}
	})
}

// 任意裁决序列下，统计量恒自洽：Total = WithChoice + NoChoice，
// WithChoice = AWins + BWins，胜率在 [0, 100] 内。
func TestProperty_LedgerStatsConsistency(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numStores := rapid.IntRange(1, 30).Draw(rt, "numStores")

		ledger := NewLedger(50, zap.NewNop())
		var ids []string
		for i := 0; i < numStores; i++ {
			ids = append(ids, ledger.Store(fmt.Sprintf("q%d", i), "a", "b", Metadata{}))
		}

		// 对随机子集随机裁决（允许改判）
		numChoices := rapid.IntRange(0, numStores*2).Draw(rt, "numChoices")
		for i := 0; i < numChoices; i++ {
			idx := rapid.IntRange(0, numStores-1).Draw(rt, fmt.Sprintf("idx_%d", i))
			choice := ChoiceA
			if rapid.Bool().Draw(rt, fmt.Sprintf("choice_%d", i)) {
				choice = ChoiceB
			}
			if !ledger.RecordChoice(ids[idx], choice) {
				rt.Fatalf("RecordChoice failed for live entry %s", ids[idx])
			}
		}

		stats := ledger.Stats()
		if stats.Total != numStores {
			rt.Fatalf("Total = %d, want %d", stats.Total, numStores)
		}
		if stats.WithChoice+stats.NoChoice != stats.Total {
			rt.Fatalf("WithChoice(%d) + NoChoice(%d) != Total(%d)",
				stats.WithChoice, stats.NoChoice, stats.Total)
		}
		if stats.AWins+stats.BWins != stats.WithChoice {
			rt.Fatalf("AWins(%d) + BWins(%d) != WithChoice(%d)",
				stats.AWins, stats.BWins, stats.WithChoice)
		}
		for _, rate := range []float64{stats.AWinRate, stats.BWinRate} {
			if rate < 0 || rate > 100 {
				rt.Fatalf("win rate %v outside [0, 100]", rate)
			}
		}
		if stats.WithChoice == 0 && (stats.AWinRate != 0 || stats.BWinRate != 0) {
			rt.Fatalf("win rates nonzero with no choices: %+v", stats)
		}
	})
}
