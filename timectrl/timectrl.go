package timectrl

import "sync"

// Step describes one simulation time step: its index, start time, step size
// and end time. The last step of a run may be shortened so the run ends
// exactly at the configured final time.
type Step struct {
	Index int
	Time  float64
	Dt    float64
	End   float64
}

// SimClock is the read-only view of simulation time handed to components
// that only need to observe it.
type SimClock interface {
	// Now returns the current simulation time.
	Now() float64
	// Steps returns the number of completed steps.
	Steps() int
}

// StepClock drives simulation time from zero to a final time in fixed steps
// and notifies registered listeners as steps complete. It implements
// SimClock.
type StepClock struct {
	mu    sync.RWMutex
	dt    float64
	final float64

	now   float64
	steps int

	listeners []func(Step)
}

// NewStepClock constructs a clock stepping by dt until final.
func NewStepClock(dt, final float64) *StepClock {
	return &StepClock{dt: dt, final: final}
}

// Now returns the current simulation time. Implements SimClock.
func (c *StepClock) Now() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Steps returns the number of completed steps. Implements SimClock.
func (c *StepClock) Steps() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.steps
}

// AddListener registers a callback invoked after every completed step.
func (c *StepClock) AddListener(fn func(Step)) {
	c.listeners = append(c.listeners, fn)
}

// Next returns the parameters of the upcoming step, or ok=false when the
// final time has been reached. A step whose nominal end would land within
// one thousandth of a step of the final time is clamped onto it, so the run
// never produces a vanishing trailing step.
func (c *StepClock) Next() (Step, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.now >= c.final {
		return Step{}, false
	}
	h := c.dt
	end := c.now + h
	if end > c.final-1e-3*c.dt {
		end = c.final
		h = end - c.now
	}
	return Step{Index: c.steps, Time: c.now, Dt: h, End: end}, true
}

// Complete advances the clock past the given step and notifies listeners.
func (c *StepClock) Complete(s Step) {
	c.mu.Lock()
	c.now = s.End
	c.steps++
	c.mu.Unlock()
	for _, fn := range c.listeners {
		fn(s)
	}
}
