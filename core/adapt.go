package core

import (
	"fmt"

	"github.com/signalsfoundry/particle-mesh-simulator/internal/comm"
	"github.com/signalsfoundry/particle-mesh-simulator/internal/forest"
	"github.com/signalsfoundry/particle-mesh-simulator/model"
)

// adapt adjusts the mesh to the expected particle counts of the finished
// stage: arrivals are counted into their target leaves, then families whose
// expected count drops below half the target are coarsened and leaves above
// the target are refined. The coarsen and refine sweeps maintain running
// cursors over the store offsets and the iremain list so the per-leaf
// windows stay consistent through the topology change.
func (s *Sim) adapt() {
	leaves := s.fst.Leaves()

	// Count arrivals into their target leaves.
	numArr := len(s.arrivals) / 3
	claimed := make([]bool, numArr)
	found := 0
	s.fst.SearchLocal(nil, func(q *forest.Quadrant[model.LeafData], localIdx, pt int) bool {
		if claimed[pt] {
			return false
		}
		if !s.contains(q, s.arrivals[3*pt:3*pt+3]) {
			return false
		}
		if localIdx >= 0 {
			claimed[pt] = true
			found++
			leaves[localIdx].Data.Receive++
			return false
		}
		return true
	}, numArr)
	if found != numArr {
		panic(fmt.Sprintf("core: %d of %d arrivals missed the local leaves", numArr-found, numArr))
	}

	// Coarsen families whose expected count dropped below half the target.
	var prevEnd int64
	irIndex := 0
	var qremain, qreceive int
	s.fst.Coarsen(func(family []*forest.Quadrant[model.LeafData]) bool {
		if len(family) == 1 {
			q := family[0]
			prevEnd = q.Data.End
			irIndex += q.Data.Remain
			return false
		}
		remain, receive := 0, 0
		for _, q := range family {
			remain += q.Data.Remain
			receive += q.Data.Receive
		}
		if float64(remain+receive) < .5*s.cfg.ElemParticles {
			qremain, qreceive = remain, receive
			return true
		}
		// Declined; only the first sibling is consumed here, the rest come
		// back as single leaves.
		first := family[0]
		prevEnd = first.Data.End
		irIndex += first.Data.Remain
		return false
	}, func(outgoing, incoming []*forest.Quadrant[model.LeafData]) {
		parent := incoming[0]
		parent.Data.End = outgoing[len(outgoing)-1].Data.End
		parent.Data.Remain = qremain
		parent.Data.Receive = qreceive
		prevEnd = parent.Data.End
		irIndex += qremain
	})
	s.checkCursors(prevEnd, irIndex)

	// Refine leaves whose expected count exceeds the target, splitting the
	// remaining particles among the children by coordinate.
	prevEnd = 0
	irIndex = 0
	ir2 := 0
	s.fst.Refine(s.cfg.MaxLevel, func(q *forest.Quadrant[model.LeafData]) bool {
		if float64(q.Data.Remain+q.Data.Receive) > s.cfg.ElemParticles {
			prevEnd = q.Data.End
			ir2, irIndex = irIndex, irIndex+q.Data.Remain
			return true
		}
		prevEnd = q.Data.End
		irIndex += q.Data.Remain
		return false
	}, func(outgoing, incoming []*forest.Quadrant[model.LeafData]) {
		parent := outgoing[0]
		window := append([]int(nil), s.iremain[ir2:irIndex]...)
		lo, _, d := s.fst.Bounds(parent)

		var zParts [][]int
		if s.cfg.Dim == 3 {
			zlo, zhi := s.splitByCoord(window, 2, lo, d)
			zParts = [][]int{zlo, zhi}
		} else {
			zParts = [][]int{window}
		}
		pos := ir2
		ci := 0
		for _, zw := range zParts {
			ylo, yhi := s.splitByCoord(zw, 1, lo, d)
			for _, yw := range [][]int{ylo, yhi} {
				xlo, xhi := s.splitByCoord(yw, 0, lo, d)
				for _, xw := range [][]int{xlo, xhi} {
					child := incoming[ci]
					child.Data.End = parent.Data.End
					child.Data.Remain = len(xw)
					copy(s.iremain[pos:], xw)
					pos += len(xw)
					ci++
				}
			}
		}
		if pos != irIndex {
			panic(fmt.Sprintf("core: split scattered %d of %d particles", pos-ir2, irIndex-ir2))
		}
	})
	s.checkCursors(prevEnd, irIndex)
}

// contains reports whether the search position x lies in quadrant q, with
// inclusive bounds on both ends.
func (s *Sim) contains(q *forest.Quadrant[model.LeafData], x []float64) bool {
	lo, hi, _ := s.fst.Bounds(q)
	for i := 0; i < s.cfg.Dim; i++ {
		if !(lo[i] <= x[i] && x[i] <= hi[i]) {
			return false
		}
	}
	return true
}

func (s *Sim) checkCursors(prevEnd int64, irIndex int) {
	if prevEnd != int64(s.store.Len()) || irIndex != len(s.iremain) {
		panic(fmt.Sprintf("core: adaptation cursors %d/%d, want %d/%d",
			prevEnd, irIndex, s.store.Len(), len(s.iremain)))
	}
}

// splitByCoord partitions a window of remaining particle indices by one
// coordinate of their search position against the parent midpoint; ties go
// to the low side.
func (s *Sim) splitByCoord(window []int, component int, lo, d [3]float64) (low, high []int) {
	mid := lo[component] + .5*d[component]
	for _, idx := range window {
		x := s.lookfor(s.store.At(idx))
		if x[component] <= mid {
			low = append(low, idx)
		} else {
			high = append(high, idx)
		}
	}
	return low, high
}

// regather rebuilds the particle store after adaptation: remaining particles
// are laid out in leaf order from the iremain windows, arrivals are searched
// into the adapted leaves and appended to theirs with the transferred
// position and zero velocity. Leaf offsets and the transient counters are
// reset for the next stage.
func (s *Sim) regather() {
	leaves := s.fst.Leaves()
	numArr := len(s.arrivals) / 3

	arrByLeaf := make([][]int, len(leaves))
	claimed := make([]bool, numArr)
	s.fst.SearchLocal(nil, func(q *forest.Quadrant[model.LeafData], localIdx, pt int) bool {
		if claimed[pt] {
			return false
		}
		if !s.contains(q, s.arrivals[3*pt:3*pt+3]) {
			return false
		}
		if localIdx >= 0 {
			claimed[pt] = true
			arrByLeaf[localIdx] = append(arrByLeaf[localIdx], pt)
			return false
		}
		return true
	}, numArr)

	rebuilt := make([]model.Particle, 0, len(s.iremain)+numArr)
	idx := 0
	for li := range leaves {
		ld := &leaves[li].Data
		for j := 0; j < ld.Remain; j++ {
			rebuilt = append(rebuilt, *s.store.At(s.iremain[idx]))
			idx++
		}
		for _, ai := range arrByLeaf[li] {
			var p model.Particle
			p.State[0] = s.arrivals[3*ai]
			p.State[1] = s.arrivals[3*ai+1]
			p.State[2] = s.arrivals[3*ai+2]
			p.Eval = p.State
			rebuilt = append(rebuilt, p)
		}
		ld.End = int64(len(rebuilt))
		ld.Remain = 0
		ld.Receive = 0
	}
	if idx != len(s.iremain) {
		panic(fmt.Sprintf("core: regather consumed %d of %d remaining", idx, len(s.iremain)))
	}

	s.store.Replace(rebuilt)
	s.found = nil
	s.iremain = s.iremain[:0]
	s.arrivals = s.arrivals[:0]
}

// particleChunk is the wire payload of a contiguous particle window
// following its leaves to a new owner. Base is the window's first offset in
// the sender's store, so the receiver can rebuild per-leaf counts from the
// shipped leaf offsets.
type particleChunk struct {
	Base      int64
	Particles []model.Particle
}

// rebalance repartitions the mesh into equal leaf counts and ships every
// particle window along with its leaves, then rewrites the leaf offsets in
// the new local numbering.
func (s *Sim) rebalance() {
	old := s.store.All()
	oldEnds := make([]int64, s.fst.NumLocal())
	for i, q := range s.fst.Leaves() {
		oldEnds[i] = q.Data.End
	}
	offsetAt := func(i int) int64 {
		if i == 0 {
			return 0
		}
		return oldEnds[i-1]
	}

	plan := s.fst.Partition()

	for _, sr := range plan.Sends {
		beg, end := offsetAt(sr.Begin), oldEnds[sr.End-1]
		chunk := particleChunk{Base: beg}
		chunk.Particles = append(chunk.Particles, old[beg:end]...)
		s.comm.Isend(sr.Rank, comm.TagTransfer, chunk)
	}

	leaves := s.fst.Leaves()
	counts := make([]int64, len(leaves))
	rebuilt := make([]model.Particle, 0, len(old))
	for _, rr := range plan.Recvs {
		if rr.Rank == s.comm.Rank() {
			beg := offsetAt(rr.SrcBegin)
			prev := beg
			for i := 0; i < rr.End-rr.Begin; i++ {
				end := oldEnds[rr.SrcBegin+i]
				counts[rr.Begin+i] = end - prev
				prev = end
			}
			rebuilt = append(rebuilt, old[beg:prev]...)
			continue
		}
		chunk := s.comm.Recv(rr.Rank, comm.TagTransfer).(particleChunk)
		prev := chunk.Base
		for i := rr.Begin; i < rr.End; i++ {
			// Leaf offsets still carry the sender's numbering here.
			end := leaves[i].Data.End
			counts[i] = end - prev
			prev = end
		}
		if int64(len(chunk.Particles)) != prev-chunk.Base {
			panic(fmt.Sprintf("core: transfer of %d particles from rank %d, want %d",
				len(chunk.Particles), rr.Rank, prev-chunk.Base))
		}
		rebuilt = append(rebuilt, chunk.Particles...)
	}
	s.comm.WaitAll()

	var total int64
	for i := range leaves {
		total += counts[i]
		leaves[i].Data.End = total
	}
	s.store.Replace(rebuilt)
}
