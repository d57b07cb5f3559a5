package forest

import "sort"

// SearchQuad is called once per traversed quadrant, before any points.
// localIdx is the index of the quadrant in the local leaf slice when the
// quadrant is a local leaf, -1 otherwise. Returning false prunes the
// subtree.
type SearchQuad[T any] func(q *Quadrant[T], pfirst, plast, localIdx int) bool

// SearchPoint classifies one point against one quadrant. pfirst and plast
// bound the ranks owning descendants of the quadrant; when they coincide
// the quadrant is entirely owned by that rank, and localIdx names the local
// leaf if that rank is ours. The return value decides whether the point
// descends further; it is ignored on terminal quadrants.
type SearchPoint[T any] func(q *Quadrant[T], pfirst, plast, localIdx, point int) bool

// SearchAll runs the distributed point search: a top-down traversal of the
// implicit global tree carrying every point index from 0 to numPoints-1,
// calling quadFn per quadrant and pointFn per (quadrant, surviving point).
// Traversal stops descending where a quadrant is a local leaf or is owned
// entirely by a remote rank; pointFn observes both cases.
func (f *Forest[T]) SearchAll(quadFn SearchQuad[T], pointFn SearchPoint[T], numPoints int) {
	pts := make([]int, numPoints)
	for i := range pts {
		pts[i] = i
	}
	root := Quadrant[T]{}
	f.searchAll(&root, 0, len(f.leaves), pts, quadFn, pointFn)
}

func (f *Forest[T]) searchAll(q *Quadrant[T], lo, hi int, pts []int, quadFn SearchQuad[T], pointFn SearchPoint[T]) {
	pfirst, plast := f.ownerRange(q)
	localIdx := -1
	terminal := false
	if pfirst == plast {
		if pfirst == f.comm.Rank() {
			if hi <= lo {
				// Ownership says local but no leaf intersects; stale range.
				return
			}
			if hi-lo == 1 && sameCell(q, &f.leaves[lo]) {
				localIdx = lo
				terminal = true
			}
		} else {
			// Entirely remote; report and stop descending.
			terminal = true
		}
	}
	if quadFn != nil && !quadFn(q, pfirst, plast, localIdx) {
		return
	}
	var live []int
	if terminal {
		for _, p := range pts {
			pointFn(q, pfirst, plast, localIdx, p)
		}
		return
	}
	for _, p := range pts {
		if pointFn(q, pfirst, plast, localIdx, p) {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return
	}
	f.descend(q, lo, hi, live, func(c *Quadrant[T], clo, chi int, sub []int) {
		f.searchAll(c, clo, chi, sub, quadFn, pointFn)
	})
}

// SearchLocalQuad mirrors SearchQuad for the local search; there is no
// process range.
type SearchLocalQuad[T any] func(q *Quadrant[T], localIdx int) bool

// SearchLocalPoint mirrors SearchPoint for the local search.
type SearchLocalPoint[T any] func(q *Quadrant[T], localIdx, point int) bool

// SearchLocal runs the point search over the local leaves only, skipping
// all subtrees that contain none of them.
func (f *Forest[T]) SearchLocal(quadFn SearchLocalQuad[T], pointFn SearchLocalPoint[T], numPoints int) {
	if len(f.leaves) == 0 || numPoints == 0 {
		return
	}
	pts := make([]int, numPoints)
	for i := range pts {
		pts[i] = i
	}
	root := Quadrant[T]{}
	f.searchLocal(&root, 0, len(f.leaves), pts, quadFn, pointFn)
}

func (f *Forest[T]) searchLocal(q *Quadrant[T], lo, hi int, pts []int, quadFn SearchLocalQuad[T], pointFn SearchLocalPoint[T]) {
	if hi <= lo {
		return
	}
	localIdx := -1
	if hi-lo == 1 && sameCell(q, &f.leaves[lo]) {
		localIdx = lo
	}
	if quadFn != nil && !quadFn(q, localIdx) {
		return
	}
	if localIdx >= 0 {
		for _, p := range pts {
			pointFn(q, localIdx, p)
		}
		return
	}
	var live []int
	for _, p := range pts {
		if pointFn(q, localIdx, p) {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return
	}
	f.descend(q, lo, hi, live, func(c *Quadrant[T], clo, chi int, sub []int) {
		f.searchLocal(c, clo, chi, sub, quadFn, pointFn)
	})
}

// descend recurses into the children of q in Morton order, narrowing the
// local leaf window [lo, hi) per child by binary search over the leaf
// corners.
func (f *Forest[T]) descend(q *Quadrant[T], lo, hi int, pts []int, visit func(c *Quadrant[T], clo, chi int, pts []int)) {
	if q.Level >= MaxLevel {
		return
	}
	clo := lo
	for c := 0; c < f.children; c++ {
		child := childOf(q, c)
		last := lastKey(&child, f.dim)
		// First leaf beyond the child's key range.
		chi := clo + sort.Search(hi-clo, func(i int) bool {
			return keyLess(last, firstKey(&f.leaves[clo+i]))
		})
		visit(&child, clo, chi, pts)
		clo = chi
	}
}
