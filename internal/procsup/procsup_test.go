// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package procsup

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartPollReportsExitCode(t *testing.T) {
	var out bytes.Buffer
	done := make(chan struct{})

	h, err := Start(context.Background(), "/bin/sh", []string{"-c", "exit 0"}, &out, &out, func() { close(done) })
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onExit was never invoked")
	}

	state, code := h.Poll()
	require.Equal(t, Exited, state)
	require.Equal(t, 0, code)
}

func TestStartPollReportsNonZeroExit(t *testing.T) {
	done := make(chan struct{})
	h, err := Start(context.Background(), "/bin/sh", []string{"-c", "exit 7"}, nil, nil, func() { close(done) })
	require.NoError(t, err)

	<-done

	state, code := h.Poll()
	require.Equal(t, Exited, state)
	require.Equal(t, 7, code)
}

func TestTerminateStopsLongRunningProcess(t *testing.T) {
	done := make(chan struct{})
	h, err := Start(context.Background(), "/bin/sh", []string{"-c", "sleep 30"}, nil, nil, func() { close(done) })
	require.NoError(t, err)

	state, _ := h.Poll()
	require.Equal(t, Running, state)

	h.Terminate()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit after Terminate")
	}
}

func TestTerminateAndEscalateKillsUnresponsiveProcess(t *testing.T) {
	done := make(chan struct{})
	h, err := Start(context.Background(), "/bin/sh", []string{"-c", "trap '' TERM; sleep 30"}, nil, nil, func() { close(done) })
	require.NoError(t, err)

	h.TerminateAndEscalate(50 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process was not force-killed after grace period")
	}
}
