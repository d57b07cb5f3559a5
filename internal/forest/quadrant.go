// Package forest implements a distributed, adaptively refined quadtree or
// octree over the unit domain. Quadrants are plain records in a flat,
// Morton-ordered arena; parent, child and sibling relations are computed
// from the integer coordinates instead of being stored as pointers.
package forest

import "fmt"

const (
	// MaxLevel bounds the refinement depth.
	MaxLevel = 29
	// RootLen is the integer coordinate length of the root quadrant.
	RootLen int64 = 1 << MaxLevel
)

// Quadrant is one mesh cell. X, Y, Z are the integer coordinates of the
// lower corner (Z stays 0 in two dimensions). Data is the caller's payload.
type Quadrant[T any] struct {
	X, Y, Z int64
	Level   int
	Data    T
}

// Length returns the integer side length of a quadrant at the given level.
func Length(level int) int64 { return RootLen >> uint(level) }

// ChildID returns which child of its parent a quadrant is: bit 0 is the x
// side, bit 1 the y side, bit 2 the z side.
func (q *Quadrant[T]) ChildID() int {
	if q.Level == 0 {
		return 0
	}
	l := Length(q.Level)
	id := 0
	if q.X&l != 0 {
		id |= 1
	}
	if q.Y&l != 0 {
		id |= 2
	}
	if q.Z&l != 0 {
		id |= 4
	}
	return id
}

// parentOf returns the parent quadrant with zero payload.
func parentOf[T any](q *Quadrant[T]) Quadrant[T] {
	if q.Level == 0 {
		panic("forest: root has no parent")
	}
	mask := ^(Length(q.Level - 1) - 1)
	return Quadrant[T]{X: q.X & mask, Y: q.Y & mask, Z: q.Z & mask, Level: q.Level - 1}
}

// childOf returns child i of q with zero payload.
func childOf[T any](q *Quadrant[T], i int) Quadrant[T] {
	l := Length(q.Level + 1)
	c := Quadrant[T]{X: q.X, Y: q.Y, Z: q.Z, Level: q.Level + 1}
	if i&1 != 0 {
		c.X += l
	}
	if i&2 != 0 {
		c.Y += l
	}
	if i&4 != 0 {
		c.Z += l
	}
	return c
}

// sameCell reports whether two quadrants denote the same cell.
func sameCell[T any](a, b *Quadrant[T]) bool {
	return a.Level == b.Level && a.X == b.X && a.Y == b.Y && a.Z == b.Z
}

// mkey is a Morton position at full resolution: the coordinates of a
// quadrant's first descendant. x == RootLen marks the end-of-domain
// sentinel used as the last partition marker.
type mkey struct {
	x, y, z int64
}

func endKey() mkey { return mkey{x: RootLen} }

func (k mkey) isEnd() bool { return k.x >= RootLen }

// firstKey returns the Morton key of q's first descendant (its corner).
func firstKey[T any](q *Quadrant[T]) mkey {
	return mkey{x: q.X, y: q.Y, z: q.Z}
}

// lastKey returns the Morton key of q's last descendant, with only the
// first dim axes extended.
func lastKey[T any](q *Quadrant[T], dim int) mkey {
	d := Length(q.Level) - 1
	k := mkey{x: q.X + d, y: q.Y + d, z: q.Z}
	if dim == 3 {
		k.z += d
	}
	return k
}

// keyLess orders Morton keys by interleaved coordinate bits (z-order).
func keyLess(a, b mkey) bool {
	if b.isEnd() {
		return !a.isEnd()
	}
	if a.isEnd() {
		return false
	}
	for s := MaxLevel - 1; s >= 0; s-- {
		va := (a.x>>uint(s))&1 | ((a.y>>uint(s))&1)<<1 | ((a.z>>uint(s))&1)<<2
		vb := (b.x>>uint(s))&1 | ((b.y>>uint(s))&1)<<1 | ((b.z>>uint(s))&1)<<2
		if va != vb {
			return va < vb
		}
	}
	return false
}

// less is the Morton order over quadrants, ancestors before descendants.
func less[T any](a, b *Quadrant[T]) bool {
	ka, kb := firstKey(a), firstKey(b)
	if ka != kb {
		return keyLess(ka, kb)
	}
	return a.Level < b.Level
}

func (q *Quadrant[T]) String() string {
	return fmt.Sprintf("quad{%d %d %d l%d}", q.X, q.Y, q.Z, q.Level)
}
