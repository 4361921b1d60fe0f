// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package procsup

import (
	"sync"
	"time"
)

// FakeHandle is a scriptable Process test double. Tests drive it by calling
// Finish to simulate a subprocess exit; Terminate/Kill/TerminateAndEscalate
// are recorded rather than signaling a real process.
type FakeHandle struct {
	mu            sync.Mutex
	state         State
	exitCode      int
	terminateCall int
	killCall      int
	escalateCall  int
}

// NewFakeHandle returns a FakeHandle in the Running state.
func NewFakeHandle() *FakeHandle {
	return &FakeHandle{state: Running}
}

// Finish transitions the fake to Exited with the given exit code.
func (f *FakeHandle) Finish(exitCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = Exited
	f.exitCode = exitCode
}

func (f *FakeHandle) Poll() (State, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.exitCode
}

func (f *FakeHandle) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminateCall++
}

func (f *FakeHandle) Kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killCall++
}

func (f *FakeHandle) TerminateAndEscalate(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminateCall++
	f.escalateCall++
}

// Terminated reports how many times Terminate (including via
// TerminateAndEscalate) was called.
func (f *FakeHandle) Terminated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminateCall
}

// Killed reports how many times Kill was called.
func (f *FakeHandle) Killed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killCall
}

var _ Process = (*FakeHandle)(nil)
