package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/signalsfoundry/particle-mesh-simulator/internal/comm"
	"github.com/signalsfoundry/particle-mesh-simulator/internal/logging"
)

// route ships every departing particle's search position to its new owner:
// pack per-receiver coordinate buffers, verify global conservation, post the
// sends, discover the senders through Notify, and drain exactly one message
// per sender into the arrival buffer. Returns the local balance.
func (s *Sim) route(ctx context.Context) (remain, sent, lost int) {
	size := s.comm.Size()
	byRank := make(map[int][]float64)
	for i, f := range s.found {
		switch {
		case f == foundLost:
			lost++
		case f >= size:
			remain++
		default:
			x := s.lookfor(s.store.At(i))
			byRank[f] = append(byRank[f], x[0], x[1], x[2])
			sent++
		}
	}
	receivers := make([]int, 0, len(byRank))
	for r := range byRank {
		receivers = append(receivers, r)
	}
	sort.Ints(receivers)

	counts := []int64{int64(remain), int64(sent), int64(lost), int64(len(receivers))}
	s.comm.AllreduceSumInt64(counts)
	if got := counts[0] + counts[1] + counts[2]; got != s.globalNum {
		panic(fmt.Sprintf("core: particle balance %d, want %d", got, s.globalNum))
	}
	s.globalNum = counts[0] + counts[1]
	s.globalLost += counts[2]
	s.log.Debug(ctx, "stage balance",
		logging.Int("stage", s.stage),
		logging.Int64("remain", counts[0]),
		logging.Int64("sent", counts[1]),
		logging.Int64("lost", counts[2]),
		logging.Float64("avg_peers", float64(counts[3])/float64(size)),
	)

	for _, r := range receivers {
		s.comm.Isend(r, comm.TagParticles, byRank[r])
	}

	senders := s.comm.Notify(receivers)
	expect := make(map[int]bool, len(senders))
	for _, r := range senders {
		expect[r] = true
	}
	s.arrivals = s.arrivals[:0]
	for range senders {
		from, data := s.comm.ProbeRecv(comm.TagParticles)
		if !expect[from] {
			panic(fmt.Sprintf("core: unexpected particle message from rank %d", from))
		}
		delete(expect, from)
		msg := data.([]float64)
		if len(msg) == 0 || len(msg)%3 != 0 {
			panic(fmt.Sprintf("core: particle message of %d doubles from rank %d", len(msg), from))
		}
		s.arrivals = append(s.arrivals, msg...)
	}
	s.comm.WaitAll()
	return remain, sent, lost
}
