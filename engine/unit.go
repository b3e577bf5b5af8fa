package engine

import (
	"sync"
)

// Unit handles the lifecycle of an engine's worker routines: launching
// them, exposing readiness, and signaling shutdown.
type Unit struct {
	wg   sync.WaitGroup
	once sync.Once
	quit chan struct{}
}

func NewUnit() *Unit {
	return &Unit{
		quit: make(chan struct{}),
	}
}

// Launch runs f in a worker routine tracked by the unit.
func (u *Unit) Launch(f func()) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		f()
	}()
}

// Quit returns the channel closed when the unit shuts down. Workers
// select on it to terminate.
func (u *Unit) Quit() <-chan struct{} {
	return u.quit
}

// Ready returns a channel that closes immediately; workers are already
// running once launched. Kept for interface symmetry with Done.
func (u *Unit) Ready() <-chan struct{} {
	ready := make(chan struct{})
	close(ready)
	return ready
}

// Done signals shutdown and returns a channel closed once every
// launched worker has returned.
func (u *Unit) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		u.once.Do(func() {
			close(u.quit)
		})
		u.wg.Wait()
		close(done)
	}()
	return done
}
