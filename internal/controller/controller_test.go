// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stratastor/logger"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewTag(logger.Config{LogLevel: "debug"}, "test")
	require.NoError(t, err)
	return log
}

type countingReconciler struct {
	mu        sync.Mutex
	calls     int
	cleanedUp bool
	result    Result
}

func (r *countingReconciler) Reconcile() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.result != nil {
		return r.result
	}
	return Reconciled{}
}

func (r *countingReconciler) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanedUp = true
}

func (r *countingReconciler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestPollCollapsesConcurrentTriggers(t *testing.T) {
	r := &countingReconciler{}
	c := New("test", r, testLogger(t), func(string, error) { t.Fatal("unexpected fault") })

	for i := 0; i < 100; i++ {
		c.Poll()
	}

	time.Sleep(50 * time.Millisecond)
	c.Cancel()
	c.Join()

	require.Less(t, r.count(), 100, "edge-collapsed trigger must not run a reconcile per Poll call")
	require.True(t, r.cleanedUp)
}

func TestCancelRunsCleanupAndExits(t *testing.T) {
	r := &countingReconciler{}
	c := New("test", r, testLogger(t), func(string, error) { t.Fatal("unexpected fault") })

	c.Cancel()
	c.Join()

	require.True(t, r.cleanedUp)
}

func TestRepollAfterSchedulesSelfPoll(t *testing.T) {
	var calls int32
	r := &countingReconciler{}
	c := New("test", r, testLogger(t), func(string, error) { t.Fatal("unexpected fault") })

	r.mu.Lock()
	r.result = RepollAfter{Delay: 20 * time.Millisecond}
	r.mu.Unlock()

	c.Poll()
	time.Sleep(80 * time.Millisecond)

	atomic.StoreInt32(&calls, int32(r.count()))
	require.GreaterOrEqual(t, int(atomic.LoadInt32(&calls)), 2, "RepollAfter should trigger further reconciles without an external Poll")

	c.Cancel()
	c.Join()
}

func TestFaultIsReportedAndWorkerContinues(t *testing.T) {
	faulting := &panickingReconciler{}
	var faultName string
	var faultErr error
	c := New("faulter", faulting, testLogger(t), func(name string, err error) {
		faultName = name
		faultErr = err
	})

	c.Poll()
	time.Sleep(30 * time.Millisecond)

	require.Equal(t, "faulter", faultName)
	require.Error(t, faultErr)

	c.Cancel()
	c.Join()
}

type panickingReconciler struct {
	done bool
}

func (r *panickingReconciler) Reconcile() Result {
	if r.done {
		return Reconciled{}
	}
	r.done = true
	panic("boom")
}

func (r *panickingReconciler) Cleanup() {}

func TestEventSetDispatchInvokesAllSubscribers(t *testing.T) {
	var set EventSet
	var a, b int32

	set.Add(func() { atomic.AddInt32(&a, 1) })
	set.Add(func() { atomic.AddInt32(&b, 1) })

	set.Dispatch()
	set.Dispatch()

	require.Equal(t, int32(2), atomic.LoadInt32(&a))
	require.Equal(t, int32(2), atomic.LoadInt32(&b))
}
