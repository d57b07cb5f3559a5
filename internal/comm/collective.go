package comm

import (
	"fmt"
	"slices"
	"sort"
)

// Collectives run over a binary rank tree rooted at 0: contributions are
// merged on the way up, results fan out on the way down. Every rank must
// call the same collectives in the same order; the lock-step phase structure
// of the simulation guarantees that.

func (c *Comm) parent() int { return (c.rank - 1) / 2 }

func (c *Comm) children() []int {
	var out []int
	for _, ch := range [2]int{2*c.rank + 1, 2*c.rank + 2} {
		if ch < c.cluster.size {
			out = append(out, ch)
		}
	}
	return out
}

// AllreduceSum sums vals element-wise across all ranks, in place.
func (c *Comm) AllreduceSum(vals []float64) {
	c.allreduceFloat64(vals, func(dst, src []float64) {
		for i := range dst {
			dst[i] += src[i]
		}
	})
}

// AllreduceMax takes the element-wise maximum of vals across all ranks, in
// place.
func (c *Comm) AllreduceMax(vals []float64) {
	c.allreduceFloat64(vals, func(dst, src []float64) {
		for i := range dst {
			if src[i] > dst[i] {
				dst[i] = src[i]
			}
		}
	})
}

// AllreduceSumInt64 sums vals element-wise across all ranks, in place.
// Particle accounting reduces exact integer counts, not floats.
func (c *Comm) AllreduceSumInt64(vals []int64) {
	acc := slices.Clone(vals)
	for _, ch := range c.children() {
		sub := c.Recv(ch, tagCollective).([]int64)
		if len(sub) != len(acc) {
			panic(fmt.Sprintf("comm: reduction size %d != %d", len(sub), len(acc)))
		}
		for i := range acc {
			acc[i] += sub[i]
		}
	}
	if c.rank != 0 {
		c.send(c.parent(), tagCollective, acc)
		acc = c.Recv(c.parent(), tagCollective).([]int64)
	}
	for _, ch := range c.children() {
		c.send(ch, tagCollective, acc)
	}
	copy(vals, acc)
}

func (c *Comm) allreduceFloat64(vals []float64, op func(dst, src []float64)) {
	acc := slices.Clone(vals)
	for _, ch := range c.children() {
		sub := c.Recv(ch, tagCollective).([]float64)
		if len(sub) != len(acc) {
			panic(fmt.Sprintf("comm: reduction size %d != %d", len(sub), len(acc)))
		}
		op(acc, sub)
	}
	if c.rank != 0 {
		c.send(c.parent(), tagCollective, acc)
		acc = c.Recv(c.parent(), tagCollective).([]float64)
	}
	for _, ch := range c.children() {
		c.send(ch, tagCollective, acc)
	}
	copy(vals, acc)
}

// Allgather concatenates every rank's equally-sized vals in rank order and
// returns the result on all ranks.
func (c *Comm) Allgather(vals []int64) []int64 {
	width := len(vals)
	// Up: collect subtree contributions as (rank, vals...) tuples.
	gathered := make([]int64, 0, (width+1)*4)
	gathered = append(gathered, int64(c.rank))
	gathered = append(gathered, vals...)
	for _, ch := range c.children() {
		gathered = append(gathered, c.Recv(ch, tagCollective).([]int64)...)
	}
	var full []int64
	if c.rank != 0 {
		c.send(c.parent(), tagCollective, gathered)
		full = c.Recv(c.parent(), tagCollective).([]int64)
	} else {
		full = gathered
	}
	for _, ch := range c.children() {
		c.send(ch, tagCollective, full)
	}
	// Unscramble the tuples into rank order.
	size := c.cluster.size
	if len(full) != size*(width+1) {
		panic(fmt.Sprintf("comm: allgather size %d for %d ranks width %d", len(full), size, width))
	}
	out := make([]int64, size*width)
	for i := 0; i < size; i++ {
		tuple := full[i*(width+1) : (i+1)*(width+1)]
		r := int(tuple[0])
		copy(out[r*width:(r+1)*width], tuple[1:])
	}
	return out
}

// Notify performs the sparse reverse pattern discovery: given the sorted-or-
// unsorted set of ranks this rank will send to, it returns the sorted set of
// ranks that will send to this rank. Pair lists ride up the rank tree and the
// inverted lists ride back down, so no rank ever materializes a dense
// size-by-size structure.
func (c *Comm) Notify(to []int) []int {
	// (receiver, sender) pairs for this rank's outgoing messages.
	pairs := make([]int64, 0, 2*len(to))
	for _, t := range to {
		c.checkRank(t)
		if t == c.rank {
			panic("comm: Notify to self")
		}
		pairs = append(pairs, int64(t), int64(c.rank))
	}
	for _, ch := range c.children() {
		pairs = append(pairs, c.Recv(ch, tagNotify).([]int64)...)
	}
	if c.rank != 0 {
		c.send(c.parent(), tagNotify, pairs)
		// The parent returns only pairs whose receiver is in our subtree.
		pairs = c.Recv(c.parent(), tagNotify).([]int64)
	}
	for _, ch := range c.children() {
		sub := make([]int64, 0, len(pairs))
		for i := 0; i < len(pairs); i += 2 {
			if inSubtree(int(pairs[i]), ch) {
				sub = append(sub, pairs[i], pairs[i+1])
			}
		}
		c.send(ch, tagNotify, sub)
	}
	var senders []int
	for i := 0; i < len(pairs); i += 2 {
		if int(pairs[i]) == c.rank {
			senders = append(senders, int(pairs[i+1]))
		}
	}
	sort.Ints(senders)
	return senders
}

// inSubtree reports whether rank r lies in the binary subtree rooted at root.
func inSubtree(r, root int) bool {
	for r > root {
		r = (r - 1) / 2
	}
	return r == root
}
