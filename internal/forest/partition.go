package forest

import (
	"fmt"

	"github.com/signalsfoundry/particle-mesh-simulator/internal/comm"
)

// TransferRange describes one contiguous run of leaves exchanged during
// Partition. For sends, Begin and End index the pre-partition local slice.
// For receives they index the post-partition slice and SrcBegin gives the
// run's position in the source rank's pre-partition slice.
type TransferRange struct {
	Rank     int
	Begin    int
	End      int
	SrcBegin int
}

// TransferPlan records which leaf runs Partition moved where, so callers can
// ship per-leaf payloads stored outside the forest along the same routes.
// Sends excludes the local rank; Recvs lists the new local slice in order and
// includes the kept run under the local rank.
type TransferPlan struct {
	Sends []TransferRange
	Recvs []TransferRange
}

// Partition redistributes the leaves into equal-count contiguous Morton
// blocks across all ranks, moving leaf payloads along. Ownership markers are
// resynchronized afterwards so point location keeps working. The returned
// plan describes the exchange.
func (f *Forest[T]) Partition() TransferPlan {
	size := f.comm.Size()
	rank := f.comm.Rank()

	counts := f.comm.Allgather([]int64{int64(len(f.leaves))})
	oldFirst := make([]int64, size+1)
	for r := 0; r < size; r++ {
		oldFirst[r+1] = oldFirst[r] + counts[r]
	}
	total := oldFirst[size]
	newFirst := make([]int64, size+1)
	for r := 0; r <= size; r++ {
		newFirst[r] = int64(r) * total / int64(size)
	}

	var plan TransferPlan

	// Ship every slice of my old range that lands in someone else's new one.
	myOld := oldFirst[rank]
	for d := 0; d < size; d++ {
		if d == rank {
			continue
		}
		beg := max64(myOld, newFirst[d])
		end := min64(oldFirst[rank+1], newFirst[d+1])
		if beg >= end {
			continue
		}
		chunk := make([]Quadrant[T], end-beg)
		copy(chunk, f.leaves[beg-myOld:end-myOld])
		f.comm.Isend(d, comm.TagPartition, chunk)
		plan.Sends = append(plan.Sends, TransferRange{
			Rank:  d,
			Begin: int(beg - myOld),
			End:   int(end - myOld),
		})
	}

	// Assemble my new range: pieces arrive from ranks whose old ranges
	// overlap it, in rank order, which is Morton order.
	incoming := make([]Quadrant[T], 0, newFirst[rank+1]-newFirst[rank])
	for s := 0; s < size; s++ {
		beg := max64(oldFirst[s], newFirst[rank])
		end := min64(oldFirst[s+1], newFirst[rank+1])
		if beg >= end {
			continue
		}
		rr := TransferRange{
			Rank:     s,
			Begin:    len(incoming),
			SrcBegin: int(beg - oldFirst[s]),
		}
		if s == rank {
			incoming = append(incoming, f.leaves[beg-myOld:end-myOld]...)
		} else {
			chunk := f.comm.Recv(s, comm.TagPartition).([]Quadrant[T])
			if int64(len(chunk)) != end-beg {
				panic(fmt.Sprintf("forest: partition chunk %d from rank %d, want %d", len(chunk), s, end-beg))
			}
			incoming = append(incoming, chunk...)
		}
		rr.End = len(incoming)
		plan.Recvs = append(plan.Recvs, rr)
	}
	f.comm.WaitAll()

	f.leaves = incoming
	f.syncPartition()
	return plan
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
