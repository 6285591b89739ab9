package batch

import (
	"fmt"
	"math/rand"
	"testing"

	"fileident/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paths 生成 n 条连续 ID 的记录
func paths(start, n int) []FilePathToLink {
	out := make([]FilePathToLink, 0, n)
	for i := 0; i < n; i++ {
		id := types.FilePathID(start + i)
		out = append(out, FilePathToLink{ID: id, PubID: fmt.Sprintf("fp-%d", id)})
	}
	return out
}

func TestSplit_Scenario(t *testing.T) {
	// A, B, C 内容相同 (h1)，D 内容不同 (h2)，阈值 = 2
	groups := []Group{
		{CasID: "h1", Paths: paths(1, 3)},
		{CasID: "h2", Paths: paths(4, 1)},
	}

	units := Split(groups, 2)

	require.Len(t, units, 2, "应该恰好派发两个单元")
	assert.Equal(t, Batch{"h1": paths(1, 3)}, units[0], "h1 独立成单元")
	assert.Equal(t, Batch{"h2": paths(4, 1)}, units[1], "h2 作为剩余记录最后派发")
}

func TestChunker_MergesSmallGroupsUntilThreshold(t *testing.T) {
	c := NewChunker(3)

	assert.Empty(t, c.Add("a", paths(1, 1)))
	assert.Empty(t, c.Add("b", paths(2, 1)))
	assert.Equal(t, 2, c.PendingLen())

	units := c.Add("c", paths(3, 1))
	require.Len(t, units, 1)
	assert.Equal(t, Batch{"a": paths(1, 1), "b": paths(2, 1), "c": paths(3, 1)}, units[0])
	assert.Zero(t, c.PendingLen())
	assert.Nil(t, c.Flush())
}

func TestChunker_LargeGroupNeverMerged(t *testing.T) {
	c := NewChunker(2)

	assert.Empty(t, c.Add("small", paths(1, 1)))
	units := c.Add("big", paths(10, 5))

	require.Len(t, units, 1)
	assert.Equal(t, Batch{"big": paths(10, 5)}, units[0])
	// 累加器不受影响
	assert.Equal(t, Batch{"small": paths(1, 1)}, c.Pending())
}

func TestChunker_SameCasIDAcrossCalls(t *testing.T) {
	c := NewChunker(4)

	assert.Empty(t, c.Add("h", paths(1, 2)))
	units := c.Add("h", paths(3, 2))

	require.Len(t, units, 1)
	assert.Equal(t, Batch{"h": paths(1, 4)}, units[0], "同一 CasID 的记录按顺序拼接")
}

func TestChunker_ResumeFromPending(t *testing.T) {
	pending := Batch{"h1": paths(1, 1), "h2": paths(9, 1)}

	t.Run("merged group below threshold", func(t *testing.T) {
		c := NewChunker(3)
		units := c.AddGroups(Merge(pending, Batch{"h1": paths(2, 1)}).Groups())
		require.Len(t, units, 1)
		assert.Equal(t, Batch{"h1": paths(1, 2), "h2": paths(9, 1)}, units[0])
		// 修改 Chunker 不应影响调用方传入的 pending
		assert.Equal(t, Batch{"h1": paths(1, 1), "h2": paths(9, 1)}, pending)
	})

	t.Run("pending already at threshold", func(t *testing.T) {
		c := NewChunker(2)
		units := c.AddGroups(Batch{"h1": paths(1, 3)}.Groups())
		require.Len(t, units, 1)
		assert.Equal(t, Batch{"h1": paths(1, 3)}, units[0])
		assert.Nil(t, c.Flush())
	})
}

func TestChunker_AccumulatedCasIDNeverSplit(t *testing.T) {
	c := NewChunker(2)

	assert.Empty(t, c.Add("h1", paths(1, 1)))
	units := c.Add("h1", paths(2, 2))

	// 累加器中的 h1 与新记录一起独立成单元
	require.Len(t, units, 1)
	assert.Equal(t, Batch{"h1": paths(1, 3)}, units[0])
	assert.Zero(t, c.PendingLen())
	assert.Nil(t, c.Flush())
}

func TestChunker_StandaloneLeavesOtherGroupsPending(t *testing.T) {
	c := NewChunker(3)

	assert.Empty(t, c.Add("a", paths(1, 1)))
	assert.Empty(t, c.Add("h", paths(2, 1)))
	units := c.Add("h", paths(3, 2))

	require.Len(t, units, 1)
	assert.Equal(t, Batch{"h": paths(2, 3)}, units[0])
	assert.Equal(t, Batch{"a": paths(1, 1)}, c.Pending())
	assert.Equal(t, 1, c.PendingLen())
}

func TestNewChunker_DefaultSize(t *testing.T) {
	assert.Equal(t, DefaultChunkSize, NewChunker(0).Size())
}

func TestSplit_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		size := 1 + rng.Intn(10)
		var groups []Group
		next := 1
		total := 0
		groupCount := rng.Intn(30)
		for g := 0; g < groupCount; g++ {
			n := 1 + rng.Intn(15)
			groups = append(groups, Group{CasID: types.CasID(fmt.Sprintf("cas-%02d", g)), Paths: paths(next, n)})
			next += n
			total += n
		}

		units := Split(groups, size)

		// 1. 守恒：不丢失、不重复
		seen := map[types.FilePathID]int{}
		sum := 0
		for _, u := range units {
			sum += u.Len()
			for _, ps := range u {
				for _, p := range ps {
					seen[p.ID]++
				}
			}
		}
		assert.Equal(t, total, sum)
		for id, n := range seen {
			assert.Equal(t, 1, n, "record %d dispatched %d times", id, n)
		}

		// 2. 非最后单元都不低于阈值；大分组独占单元
		for i, u := range units {
			if i < len(units)-1 {
				assert.GreaterOrEqual(t, u.Len(), size)
			}
			for _, ps := range u {
				if len(ps) >= size {
					assert.Len(t, u, 1, "large group must be alone")
				}
			}
		}

		// 3. 同一个 CasID 只出现在一个单元里
		owner := map[types.CasID]int{}
		for i, u := range units {
			for casID := range u {
				if prev, ok := owner[casID]; ok {
					t.Fatalf("cas id %s split across units %d and %d", casID, prev, i)
				}
				owner[casID] = i
			}
		}
	}
}

func TestMerge(t *testing.T) {
	a := Batch{"x": paths(1, 1), "y": paths(2, 1)}
	b := Batch{"x": paths(3, 1), "z": paths(4, 1)}

	got := Merge(a, b)

	assert.Equal(t, Batch{
		"x": {paths(1, 1)[0], paths(3, 1)[0]},
		"y": paths(2, 1),
		"z": paths(4, 1),
	}, got)
	// 参数不被修改
	assert.Len(t, a["x"], 1)
	assert.Len(t, b["x"], 1)
	assert.Equal(t, 4, got.Len())

	assert.Equal(t, Batch{"z": paths(4, 1)}, Merge(nil, Batch{"z": paths(4, 1)}))
}

func TestAccumulate(t *testing.T) {
	acc := Batch{"x": paths(1, 1)}
	Accumulate(Batch{"x": paths(2, 1), "y": paths(3, 2)}, acc)

	assert.Equal(t, paths(1, 2), acc["x"])
	assert.Equal(t, 4, acc.Len())
}

func TestBatch_GroupsSorted(t *testing.T) {
	b := Batch{"c": paths(1, 1), "a": paths(2, 1), "b": paths(3, 1)}
	groups := b.Groups()

	require.Len(t, groups, 3)
	assert.Equal(t, types.CasID("a"), groups[0].CasID)
	assert.Equal(t, types.CasID("b"), groups[1].CasID)
	assert.Equal(t, types.CasID("c"), groups[2].CasID)
}
