package node

import (
	"math/rand"
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer ticks at a jittered period until it is shut down. It paces
// anti-entropy pushes.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{} //sends a signal to listening process
	shutdownCh   chan struct{} //receives instruction to exit Run loop
}

// NewControlTimer ...
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewRandomControlTimer returns a ControlTimer whose ticks are spaced by
// somewhere between one and two periods.
func NewRandomControlTimer() *ControlTimer {
	randomTimeout := func(min time.Duration) <-chan time.Time {
		if min <= 0 {
			return nil
		}
		extra := (time.Duration(rand.Int63()) % min)
		return time.After(min + extra)
	}
	return NewControlTimer(randomTimeout)
}

// Run ticks until Shutdown is called. A non-positive period never ticks.
func (c *ControlTimer) Run(period time.Duration) {
	timer := c.timerFactory(period)
	for {
		select {
		case <-timer:
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				return
			}
			timer = c.timerFactory(period)
		case <-c.shutdownCh:
			return
		}
	}
}

// Shutdown stops Run. It must be called once.
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
