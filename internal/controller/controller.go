// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller implements the level-triggered reconcile loop shared by
// the Ripper, Sender, and Reporter: a latched, edge-collapsed trigger signal,
// an optional deferred self-poll, and cooperative cancellation that runs
// exactly one final cleanup pass before the worker exits.
package controller

import (
	"fmt"
	"time"

	"github.com/stratastor/logger"
)

// Result is returned by a Reconciler's Reconcile method.
type Result interface {
	isResult()
}

// Reconciled means no further work is needed until the next Poll.
type Reconciled struct{}

func (Reconciled) isResult() {}

// RepollAfter schedules an internal self-poll after Delay elapses, unless an
// external Poll arrives first and cancels the pending timer.
type RepollAfter struct {
	Delay time.Duration
}

func (RepollAfter) isResult() {}

// Reconciler is implemented by Ripper, Sender, and Reporter. Reconcile reads
// observable state and performs converging actions; an unhandled panic
// escaping Reconcile is reported to the Controller's onFault callback as a
// fatal worker fault. Cleanup runs
// exactly once, on the final pass after Cancel, and should release any
// in-flight resources (e.g. wait for a subprocess to exit).
type Reconciler interface {
	Reconcile() Result
	Cleanup()
}

// Controller runs a Reconciler on its own worker goroutine. Reconciliation is
// strictly single-threaded within a controller.
type Controller struct {
	name string
	r    Reconciler
	log  logger.Logger

	trigger  chan struct{}
	canceled chan struct{}
	done     chan struct{}

	// onFault is invoked from the worker goroutine if Reconcile panics; it
	// must not return (it should terminate the process), since the worker
	// cannot safely continue after an unhandled fault.
	onFault func(name string, err error)
}

// New starts a controller named name running r, invoking onFault if
// Reconcile panics.
func New(name string, r Reconciler, log logger.Logger, onFault func(name string, err error)) *Controller {
	c := &Controller{
		name:     name,
		r:        r,
		log:      log,
		trigger:  make(chan struct{}, 1),
		canceled: make(chan struct{}),
		done:     make(chan struct{}),
		onFault:  onFault,
	}
	go c.run()
	return c
}

// Poll collapses onto any already-pending trigger; multiple calls while a
// reconcile is pending or running produce exactly one subsequent reconcile.
func (c *Controller) Poll() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Cancel latches the controller into its shutdown path: the next reconcile
// pass invokes Cleanup instead of Reconcile, and the worker then exits.
func (c *Controller) Cancel() {
	select {
	case <-c.canceled:
	default:
		close(c.canceled)
	}
	c.Poll()
}

// Join blocks until the worker goroutine has exited.
func (c *Controller) Join() {
	<-c.done
}

func (c *Controller) run() {
	defer close(c.done)

	var repollTimer *time.Timer
	var repollC <-chan time.Time

	stopRepoll := func() {
		if repollTimer != nil {
			repollTimer.Stop()
			repollTimer = nil
			repollC = nil
		}
	}
	defer stopRepoll()

	for {
		select {
		case <-c.trigger:
		case <-repollC:
		}
		stopRepoll()

		select {
		case <-c.canceled:
			c.r.Cleanup()
			return
		default:
		}

		result := c.reconcileSafely()
		switch res := result.(type) {
		case Reconciled:
		case RepollAfter:
			repollTimer = time.NewTimer(res.Delay)
			repollC = repollTimer.C
		}
	}
}

func (c *Controller) reconcileSafely() (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			var err error
			if e, ok := rec.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("panic: %v", rec)
			}
			c.onFault(c.name, err)
			result = Reconciled{}
		}
	}()
	return c.r.Reconcile()
}
