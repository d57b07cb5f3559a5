// Package comm provides the messaging channel between cooperating ranks:
// point-to-point non-blocking sends, blocking probe/receive of messages of
// unknown length, global reductions, and the sparse "who sends to me"
// pattern discovery.
//
// Ranks run as goroutines inside one process and exchange messages through
// per-rank inboxes with FIFO delivery per sender/receiver pair. The protocol
// built on top is tightly synchronized and all-or-nothing: any misuse of the
// channel (unexpected source, malformed payload) panics and takes the whole
// run down with it. There is no retry path.
package comm

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Tag separates message classes sharing one inbox. Receives filter by tag;
// messages for other tags are stashed until asked for.
type Tag int

const (
	// TagParticles carries relocated particle coordinates.
	TagParticles Tag = iota + 1
	// TagPartition carries mesh leaves during repartitioning.
	TagPartition
	// TagTransfer carries particle windows following their leaves during
	// repartitioning.
	TagTransfer
	tagCollective
	tagNotify
)

type envelope struct {
	from int
	tag  Tag
	data any
}

// Cluster is a set of ranks wired together by in-memory inboxes.
type Cluster struct {
	size  int
	inbox []chan envelope
}

// NewCluster creates the mailboxes for size ranks.
func NewCluster(size int) *Cluster {
	if size < 1 {
		panic(fmt.Sprintf("comm: cluster size %d", size))
	}
	c := &Cluster{size: size, inbox: make([]chan envelope, size)}
	for i := range c.inbox {
		// Capacity absorbs every in-flight message of a lock-step phase;
		// receivers always drain what the protocol promised them.
		c.inbox[i] = make(chan envelope, 4*size+64)
	}
	return c
}

// Rank returns the endpoint for rank r.
func (cl *Cluster) Rank(r int) *Comm {
	if r < 0 || r >= cl.size {
		panic(fmt.Sprintf("comm: rank %d out of range", r))
	}
	return &Comm{cluster: cl, rank: r}
}

// RunCluster runs fn once per rank, each on its own goroutine, and waits for
// all of them. The first error aborts the wait and is returned.
func RunCluster(size int, fn func(*Comm) error) error {
	cl := NewCluster(size)
	var g errgroup.Group
	for r := 0; r < size; r++ {
		c := cl.Rank(r)
		g.Go(func() error { return fn(c) })
	}
	return g.Wait()
}

// Comm is one rank's endpoint. It is owned by a single goroutine; none of
// its methods are safe for concurrent use by the same rank.
type Comm struct {
	cluster *Cluster
	rank    int

	// pending holds messages taken off the inbox that did not match the
	// receive filter in flight.
	pending []envelope

	sends sync.WaitGroup
}

// Rank returns this endpoint's rank.
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the cluster.
func (c *Comm) Size() int { return c.cluster.size }

// Isend posts a non-blocking send. The payload must not be mutated until
// WaitAll returns; the receiver must treat it as read-only.
func (c *Comm) Isend(to int, tag Tag, data any) {
	if to == c.rank {
		panic("comm: Isend to self")
	}
	c.checkRank(to)
	env := envelope{from: c.rank, tag: tag, data: data}
	c.sends.Add(1)
	go func() {
		c.cluster.inbox[to] <- env
		c.sends.Done()
	}()
}

// WaitAll blocks until every posted Isend has been delivered. Send buffers
// may be reused or released afterwards.
func (c *Comm) WaitAll() {
	c.sends.Wait()
}

// ProbeRecv blocks until a message with the given tag arrives from any
// source and returns its origin and payload.
func (c *Comm) ProbeRecv(tag Tag) (from int, data any) {
	env := c.recv(-1, tag)
	return env.from, env.data
}

// Recv blocks until a message with the given tag arrives from the given
// rank and returns its payload.
func (c *Comm) Recv(from int, tag Tag) any {
	c.checkRank(from)
	return c.recv(from, tag).data
}

// send delivers synchronously from the caller's goroutine. Used by the
// collective implementations, which rely on per-pair FIFO ordering.
func (c *Comm) send(to int, tag Tag, data any) {
	c.checkRank(to)
	c.cluster.inbox[to] <- envelope{from: c.rank, tag: tag, data: data}
}

func (c *Comm) recv(from int, tag Tag) envelope {
	for i, env := range c.pending {
		if env.tag == tag && (from < 0 || env.from == from) {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return env
		}
	}
	for {
		env := <-c.cluster.inbox[c.rank]
		if env.tag == tag && (from < 0 || env.from == from) {
			return env
		}
		c.pending = append(c.pending, env)
	}
}

func (c *Comm) checkRank(r int) {
	if r < 0 || r >= c.cluster.size {
		panic(fmt.Sprintf("comm: rank %d out of range", r))
	}
}
