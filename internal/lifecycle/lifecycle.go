// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle handles daemon startup/shutdown plumbing: single-instance
// PID locking, signal-driven graceful shutdown, and the exit-code contract of
// clean shutdown (0), startup failure (1), and unhandled worker fault (>99).
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/stratastor/logger"
)

// WorkerFaultExitCode is returned when a controller's reconcile loop panics
// or otherwise exits on an unhandled fault; a distinct code lets an external
// supervisor distinguish it from a clean exit and restart the daemon.
const WorkerFaultExitCode = 100

var (
	shutdownHooks []func()
	cancel        context.CancelFunc
)

// RegisterShutdownHook queues fn to run, in registration order, during a
// graceful shutdown.
func RegisterShutdownHook(fn func()) {
	shutdownHooks = append(shutdownHooks, fn)
}

// RegisterContextCanceller installs the cancel function invoked first on
// shutdown, unblocking any context-aware goroutine before the hooks run.
func RegisterContextCanceller(c context.CancelFunc) {
	cancel = c
}

// HandleSignals blocks until SIGTERM, SIGINT, or ctx is done, running a
// graceful shutdown (exit code 0) on the former two. It never returns on
// receipt of a termination signal.
func HandleSignals(ctx context.Context, log logger.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-stop:
		log.Info("received shutdown signal", "signal", sig.String())
		shutdown()
	case <-ctx.Done():
	}
}

func shutdown() {
	if cancel != nil {
		cancel()
	}
	for _, hook := range shutdownHooks {
		hook()
	}
	os.Exit(0)
}

// FatalWorkerFault logs err and terminates the process with
// WorkerFaultExitCode. Per the daemon's failure policy, an unhandled fault in
// any controller's reconcile pass is fatal to the whole process rather than
// leaving a reconciler in an inconsistent state.
func FatalWorkerFault(log logger.Logger, controller string, err error) {
	log.Error("unhandled controller fault, terminating", "controller", controller, "err", err)
	os.Exit(WorkerFaultExitCode)
}

// FatalStartup logs err and exits with code 1, the daemon's startup-failure
// exit code.
func FatalStartup(log logger.Logger, err error) {
	log.Error("startup failed", "err", err)
	os.Exit(1)
}

// EnsureSingleInstance writes the current PID to pidPath, refusing to start
// if a live process already holds it, and registers its own removal as a
// shutdown hook.
func EnsureSingleInstance(pidPath string) error {
	if pidPath == "" {
		return fmt.Errorf("invalid PID file path")
	}

	if _, err := os.Stat(pidPath); err == nil {
		pidBytes, err := os.ReadFile(pidPath)
		if err != nil {
			return fmt.Errorf("failed to read PID file: %w", err)
		}

		content := strings.TrimSpace(string(pidBytes))
		if content == "" {
			os.Remove(pidPath)
		} else {
			pid, err := strconv.Atoi(content)
			if err != nil {
				return fmt.Errorf("invalid PID file contents: %w", err)
			}
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("another instance is already running (pid %d)", pid)
				}
			}
			os.Remove(pidPath)
		}
	}

	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	RegisterShutdownHook(func() { os.Remove(pidPath) })
	return nil
}
