// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import "sync"

// EventSet is a small synchronous publish/subscribe table. Subscribers
// register a callable; Dispatch invokes every subscriber synchronously, in
// unspecified order. Controllers use event hooks to Poll each other without
// holding a reference to one another beyond the registered function value.
type EventSet struct {
	mu         sync.Mutex
	subscribers []func()
}

// Add registers fn to be invoked on every future Dispatch.
func (e *EventSet) Add(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// Dispatch synchronously invokes every registered subscriber.
func (e *EventSet) Dispatch() {
	e.mu.Lock()
	subs := make([]func(), len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
