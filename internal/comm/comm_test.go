package comm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllreduceSum(t *testing.T) {
	for _, size := range []int{1, 2, 3, 5, 8} {
		var mu sync.Mutex
		results := make(map[int][]float64)
		err := RunCluster(size, func(c *Comm) error {
			vals := []float64{float64(c.Rank() + 1), 1}
			c.AllreduceSum(vals)
			mu.Lock()
			results[c.Rank()] = vals
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		want := []float64{float64(size*(size+1)) / 2, float64(size)}
		for r := 0; r < size; r++ {
			require.Equal(t, want, results[r], "size %d rank %d", size, r)
		}
	}
}

func TestAllreduceMax(t *testing.T) {
	err := RunCluster(4, func(c *Comm) error {
		vals := []float64{float64(c.Rank()), float64(-c.Rank())}
		c.AllreduceMax(vals)
		if vals[0] != 3 || vals[1] != 0 {
			t.Errorf("rank %d: got %v, want [3 0]", c.Rank(), vals)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestAllreduceSumInt64(t *testing.T) {
	err := RunCluster(5, func(c *Comm) error {
		vals := []int64{1, int64(c.Rank())}
		c.AllreduceSumInt64(vals)
		if vals[0] != 5 || vals[1] != 10 {
			t.Errorf("rank %d: got %v, want [5 10]", c.Rank(), vals)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestAllgather(t *testing.T) {
	for _, size := range []int{1, 3, 6} {
		err := RunCluster(size, func(c *Comm) error {
			got := c.Allgather([]int64{int64(c.Rank()), int64(10 * c.Rank())})
			for r := 0; r < size; r++ {
				if got[2*r] != int64(r) || got[2*r+1] != int64(10*r) {
					t.Errorf("size %d rank %d: bad gather %v", size, c.Rank(), got)
					break
				}
			}
			return nil
		})
		require.NoError(t, err)
	}
}

func TestNotifyRing(t *testing.T) {
	const size = 5
	err := RunCluster(size, func(c *Comm) error {
		next := (c.Rank() + 1) % size
		senders := c.Notify([]int{next})
		prev := (c.Rank() + size - 1) % size
		require.Equal(t, []int{prev}, senders, "rank %d", c.Rank())
		return nil
	})
	require.NoError(t, err)
}

func TestNotifyAllToOne(t *testing.T) {
	const size = 6
	err := RunCluster(size, func(c *Comm) error {
		var to []int
		if c.Rank() != 0 {
			to = []int{0}
		}
		senders := c.Notify(to)
		if c.Rank() == 0 {
			require.Equal(t, []int{1, 2, 3, 4, 5}, senders)
		} else {
			require.Empty(t, senders)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestNotifyEmpty(t *testing.T) {
	err := RunCluster(3, func(c *Comm) error {
		require.Empty(t, c.Notify(nil))
		return nil
	})
	require.NoError(t, err)
}

func TestIsendProbeRecv(t *testing.T) {
	const size = 4
	err := RunCluster(size, func(c *Comm) error {
		// Everyone sends its rank to everyone else, then receives size-1
		// messages of unknown origin.
		for r := 0; r < size; r++ {
			if r != c.Rank() {
				c.Isend(r, TagParticles, []float64{float64(c.Rank())})
			}
		}
		seen := make(map[int]bool)
		for i := 0; i < size-1; i++ {
			from, data := c.ProbeRecv(TagParticles)
			payload := data.([]float64)
			require.Len(t, payload, 1)
			require.Equal(t, float64(from), payload[0])
			require.False(t, seen[from], "duplicate message from %d", from)
			seen[from] = true
		}
		c.WaitAll()
		return nil
	})
	require.NoError(t, err)
}

func TestRecvFiltersByTagAndSource(t *testing.T) {
	err := RunCluster(2, func(c *Comm) error {
		if c.Rank() == 0 {
			c.Isend(1, TagParticles, "particles")
			c.Isend(1, TagPartition, "partition")
			c.WaitAll()
			return nil
		}
		// Ask for the partition message first even though interleaved
		// delivery may queue the particle payload ahead of it.
		require.Equal(t, "partition", c.Recv(0, TagPartition))
		require.Equal(t, "particles", c.Recv(0, TagParticles))
		return nil
	})
	require.NoError(t, err)
}
