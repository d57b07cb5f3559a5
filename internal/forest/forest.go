package forest

import (
	"fmt"

	"github.com/signalsfoundry/particle-mesh-simulator/internal/comm"
)

// Forest holds the local part of the distributed mesh: a Morton-ordered
// slice of owned leaves plus the replicated partition markers telling every
// rank where each rank's ownership begins.
type Forest[T any] struct {
	comm     *comm.Comm
	dim      int
	children int

	leaves []Quadrant[T]

	// markers[r] is the Morton key of the first possible descendant owned
	// by rank r; markers[size] is the end sentinel. A rank owning no leaves
	// shares its successor's marker.
	markers []mkey

	globalCount int64
}

// New builds a forest over the unit domain uniformly refined to level,
// with the leaves split in contiguous Morton blocks across all ranks.
// dim must be 2 or 3.
func New[T any](c *comm.Comm, dim, level int) *Forest[T] {
	if dim != 2 && dim != 3 {
		panic(fmt.Sprintf("forest: dimension %d", dim))
	}
	if level < 0 || level > MaxLevel {
		panic(fmt.Sprintf("forest: level %d", level))
	}
	f := &Forest[T]{comm: c, dim: dim, children: 1 << uint(dim)}

	total := int64(1) << uint(dim*level)
	rank, size := int64(c.Rank()), int64(c.Size())
	first := rank * total / size
	last := (rank + 1) * total / size
	f.leaves = make([]Quadrant[T], 0, last-first)
	for idx := first; idx < last; idx++ {
		f.leaves = append(f.leaves, quadrantAt[T](dim, level, idx))
	}
	f.syncPartition()
	return f
}

// quadrantAt decodes the idx-th quadrant of a uniform refinement in Morton
// order.
func quadrantAt[T any](dim, level int, idx int64) Quadrant[T] {
	var q Quadrant[T]
	q.Level = level
	for l := 0; l < level; l++ {
		id := idx >> uint(dim*(level-1-l)) & int64(1<<uint(dim)-1)
		shift := uint(MaxLevel - 1 - l)
		q.X |= (id & 1) << shift
		q.Y |= (id >> 1 & 1) << shift
		q.Z |= (id >> 2 & 1) << shift
	}
	return q
}

// Dim returns the spatial dimension (2 or 3).
func (f *Forest[T]) Dim() int { return f.dim }

// ChildCount returns the number of children per refined quadrant.
func (f *Forest[T]) ChildCount() int { return f.children }

// NumLocal returns the number of locally owned leaves.
func (f *Forest[T]) NumLocal() int { return len(f.leaves) }

// GlobalCount returns the global number of leaves.
func (f *Forest[T]) GlobalCount() int64 { return f.globalCount }

// Leaves exposes the local leaves in Morton order. Callers may mutate leaf
// payloads in place but never the coordinates.
func (f *Forest[T]) Leaves() []Quadrant[T] { return f.leaves }

// Bounds returns the physical lower corner, upper corner and extent of a
// quadrant in the unit domain. In two dimensions the z components are zero.
func (f *Forest[T]) Bounds(q *Quadrant[T]) (lo, hi, d [3]float64) {
	inv := 1.0 / float64(RootLen)
	l := float64(Length(q.Level)) * inv
	lo = [3]float64{float64(q.X) * inv, float64(q.Y) * inv, float64(q.Z) * inv}
	for i := 0; i < f.dim; i++ {
		hi[i] = lo[i] + l
		d[i] = l
	}
	return lo, hi, d
}

// Refine performs one non-recursive refinement sweep. The predicate runs
// for every leaf in Morton order so callers can keep running cursors; a true
// return splits the leaf into its children (respecting maxLevel) and invokes
// replace with the outgoing parent and the incoming children before the
// sweep moves on. Children start with zero payloads.
func (f *Forest[T]) Refine(maxLevel int, refine func(q *Quadrant[T]) bool, replace func(outgoing, incoming []*Quadrant[T])) {
	out := make([]Quadrant[T], 0, len(f.leaves))
	for i := range f.leaves {
		q := &f.leaves[i]
		if !refine(q) || q.Level >= maxLevel {
			out = append(out, *q)
			continue
		}
		base := len(out)
		for c := 0; c < f.children; c++ {
			out = append(out, childOf(q, c))
		}
		if replace != nil {
			incoming := make([]*Quadrant[T], f.children)
			for c := range incoming {
				incoming[c] = &out[base+c]
			}
			replace([]*Quadrant[T]{q}, incoming)
		}
	}
	f.leaves = out
	f.refreshGlobalCount()
}

// Coarsen performs one non-recursive coarsening sweep. Wherever a complete
// sibling family sits in the local leaf sequence the predicate is offered
// the whole family; returning true merges it into the parent (zero payload)
// and invokes replace with the outgoing siblings and the incoming parent.
// Every other visit passes a single leaf so the caller can advance its
// cursors; its return value is ignored, and a declined family is consumed
// one leaf at a time the same way.
func (f *Forest[T]) Coarsen(coarsen func(family []*Quadrant[T]) bool, replace func(outgoing, incoming []*Quadrant[T])) {
	out := make([]Quadrant[T], 0, len(f.leaves))
	i := 0
	for i < len(f.leaves) {
		if fam := f.familyAt(i); fam != nil {
			if coarsen(fam) {
				parent := parentOf(fam[0])
				out = append(out, parent)
				if replace != nil {
					replace(fam, []*Quadrant[T]{&out[len(out)-1]})
				}
				i += f.children
				continue
			}
			// The predicate consumed only the first sibling; the rest are
			// revisited individually.
			out = append(out, f.leaves[i])
			i++
			continue
		}
		coarsen([]*Quadrant[T]{&f.leaves[i]})
		out = append(out, f.leaves[i])
		i++
	}
	f.leaves = out
	f.refreshGlobalCount()
}

// familyAt returns pointers to the complete sibling family starting at leaf
// index i, or nil if the leaves starting there do not form one.
func (f *Forest[T]) familyAt(i int) []*Quadrant[T] {
	first := &f.leaves[i]
	if first.Level == 0 || first.ChildID() != 0 || i+f.children > len(f.leaves) {
		return nil
	}
	parent := parentOf(first)
	fam := make([]*Quadrant[T], f.children)
	for c := 0; c < f.children; c++ {
		q := &f.leaves[i+c]
		if q.Level != first.Level || q.ChildID() != c {
			return nil
		}
		if p := parentOf(q); !sameCell(&p, &parent) {
			return nil
		}
		fam[c] = q
	}
	return fam
}

func (f *Forest[T]) refreshGlobalCount() {
	count := []int64{int64(len(f.leaves))}
	f.comm.AllreduceSumInt64(count)
	f.globalCount = count[0]
}

// syncPartition rebuilds the replicated partition markers and the global
// leaf count from the local leaf slices.
func (f *Forest[T]) syncPartition() {
	vals := make([]int64, 4)
	if len(f.leaves) > 0 {
		k := firstKey(&f.leaves[0])
		vals[0], vals[1], vals[2] = k.x, k.y, k.z
		vals[3] = int64(len(f.leaves))
	} else {
		vals[0] = RootLen // placeholder, patched below
	}
	all := f.comm.Allgather(vals)

	size := f.comm.Size()
	f.markers = make([]mkey, size+1)
	f.markers[size] = endKey()
	f.globalCount = 0
	for r := size - 1; r >= 0; r-- {
		count := all[4*r+3]
		f.globalCount += count
		if count == 0 {
			f.markers[r] = f.markers[r+1]
			continue
		}
		f.markers[r] = mkey{x: all[4*r], y: all[4*r+1], z: all[4*r+2]}
	}
}

// ownerOf returns the rank owning the leaf that contains the given Morton
// key. Empty ranks are never selected because their ownership range is
// empty.
func (f *Forest[T]) ownerOf(k mkey) int {
	lo, hi := 0, f.comm.Size()-1
	for lo < hi {
		mid := (lo + hi) / 2
		if keyLess(k, f.markers[mid+1]) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// ownerRange returns the first and last rank owning any descendant of q.
func (f *Forest[T]) ownerRange(q *Quadrant[T]) (pfirst, plast int) {
	return f.ownerOf(firstKey(q)), f.ownerOf(lastKey(q, f.dim))
}
