package controller

import "fmt"

type dispatchResult struct {
	err error
}

// dispatcher serializes all controller work onto a single goroutine.
//
// User commands, inbound frames, and connection signals can originate from
// different goroutines (UI loop, transport read loop, reconnect timer);
// funnelling them through one mailbox gives the controller strict arrival
// ordering and removes the need for locks around its state.
type dispatcher struct {
	q chan func()
}

func newDispatcher(queueSize int) *dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &dispatcher{
		q: make(chan func(), queueSize),
	}
	go func() {
		for fn := range d.q {
			if fn != nil {
				fn()
			}
		}
	}()
	return d
}

// do enqueues work without waiting for it.
func (d *dispatcher) do(fn func()) error {
	if d == nil {
		return fmt.Errorf("dispatcher not initialized")
	}
	if fn == nil {
		return nil
	}
	d.q <- fn
	return nil
}

// call enqueues work and waits for its result.
func (d *dispatcher) call(fn func() error) error {
	if d == nil {
		return fmt.Errorf("dispatcher not initialized")
	}
	if fn == nil {
		return nil
	}
	done := make(chan dispatchResult, 1)
	d.q <- func() {
		done <- dispatchResult{err: fn()}
	}
	res := <-done
	return res.err
}
