package core

import (
	"github.com/signalsfoundry/particle-mesh-simulator/internal/forest"
	"github.com/signalsfoundry/particle-mesh-simulator/model"
)

// foundLost marks a particle that left the unit domain.
const foundLost = -1

// lookfor returns the position that determines a particle's owner in the
// current stage: the staged evaluation point for intermediate stages, the
// updated state for the final one.
func (s *Sim) lookfor(p *model.Particle) [3]float64 {
	if s.stage+1 < s.cfg.Order {
		return [3]float64{p.Eval[0], p.Eval[1], p.Eval[2]}
	}
	return p.Position()
}

// locate classifies every local particle after a stage via the distributed
// point search. found receives size+leafIdx for particles staying in a local
// leaf (first match wins), the lowest matching remote rank for departures,
// and foundLost for particles outside the domain. Remaining particles are
// appended to iremain grouped by leaf, and the leaf Remain counters are
// bumped.
func (s *Sim) locate() {
	n := s.store.Len()
	s.found = make([]int, n)
	for i := range s.found {
		s.found[i] = foundLost
	}
	s.iremain = s.iremain[:0]

	size := s.comm.Size()
	rank := s.comm.Rank()
	leaves := s.fst.Leaves()

	s.fst.SearchAll(nil, func(q *forest.Quadrant[model.LeafData], pfirst, plast, localIdx, pt int) bool {
		x := s.lookfor(s.store.At(pt))
		lo, hi, _ := s.fst.Bounds(q)
		for i := 0; i < s.cfg.Dim; i++ {
			// Inclusive on both ends; roundoff may match several leaves.
			if !(lo[i] <= x[i] && x[i] <= hi[i]) {
				return false
			}
		}
		if localIdx >= 0 {
			if s.found[pt] < size {
				s.found[pt] = size + localIdx
				s.iremain = append(s.iremain, pt)
				leaves[localIdx].Data.Remain++
			}
			return false
		}
		if pfirst == plast {
			if pfirst == rank {
				return true
			}
			// A local match always beats a remote one, and among remote
			// ranks the lowest wins.
			if s.found[pt] < 0 || (pfirst < s.found[pt] && s.found[pt] < size) {
				s.found[pt] = pfirst
			}
			return false
		}
		return true
	}, n)
}
