// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package sender drains SENDABLE disc records to a remote target via
// rsync, one transfer at a time, with exponential backoff on failure.
package sender

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ondisk/isopod/internal/constants"
	"github.com/ondisk/isopod/internal/controller"
	"github.com/ondisk/isopod/internal/procsup"
	"github.com/ondisk/isopod/internal/registry"
	"github.com/stratastor/logger"
)

// Config configures a Sender instance.
type Config struct {
	Workdir      string
	TargetBase   string
	Now          func() time.Time
	StartProcess procsup.StartFunc
}

// Sender owns the transfer subprocess. It implements controller.Reconciler.
type Sender struct {
	cfg Config
	reg *registry.Registry
	log logger.Logger

	OnDiscSent controller.EventSet

	poll func()

	mu          sync.Mutex
	proc        procsup.Process
	currentDisc *registry.Disc
}

// New constructs a Sender. Callers must call SetPoller before the
// surrounding controller starts dispatching events to it.
func New(cfg Config, reg *registry.Registry, log logger.Logger) *Sender {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StartProcess == nil {
		cfg.StartProcess = procsup.StartProcess
	}
	return &Sender{cfg: cfg, reg: reg, log: log}
}

// SetPoller wires the controller's Poll method so the Sender can trigger
// reconciles from its detached rsync waiter.
func (s *Sender) SetPoller(poll func()) {
	s.poll = poll
}

// Reconcile implements controller.Reconciler.
func (s *Sender) Reconcile() controller.Result {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	if proc != nil {
		state, exitCode := proc.Poll()
		switch state {
		case procsup.Running:
			return controller.Reconciled{}
		case procsup.Exited:
			if exitCode == 0 {
				s.finalizeSuccess()
			} else {
				s.finalizeFailure()
			}
			s.mu.Lock()
			s.proc = nil
			s.mu.Unlock()
		}
	}

	disc, err := s.reg.NextSendable()
	if err != nil {
		s.log.Error("listing sendable discs failed", "err", err)
		return controller.Reconciled{}
	}
	if disc == nil {
		return controller.Reconciled{}
	}

	if disc.NextSendAttempt != nil {
		delay := disc.NextSendAttempt.Sub(s.cfg.Now())
		if delay > 0 {
			s.log.Info("deferring send retry", "path", disc.Path, "delay", delay)
			return controller.RepollAfter{Delay: delay}
		}
	}

	if err := s.startSend(disc); err != nil {
		s.log.Error("starting transfer failed", "path", disc.Path, "err", err)
		return controller.Reconciled{}
	}

	return controller.Reconciled{}
}

func (s *Sender) startSend(disc *registry.Disc) error {
	source := filepath.Join(s.cfg.Workdir, disc.Path)
	target := s.cfg.TargetBase + "/" + disc.Path
	args := []string{"--partial", source, target}

	proc, err := s.cfg.StartProcess(context.Background(), "rsync", args, nil, nil, func() {
		if s.poll != nil {
			s.poll()
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.proc = proc
	s.currentDisc = disc
	s.mu.Unlock()

	s.log.Info("started transfer", "path", disc.Path, "target", target)
	return nil
}

func (s *Sender) finalizeSuccess() {
	s.mu.Lock()
	disc := s.currentDisc
	s.currentDisc = nil
	s.mu.Unlock()
	if disc == nil {
		return
	}

	disc.Status = registry.StatusComplete
	if err := s.reg.Update(disc); err != nil {
		s.log.Error("recording send success failed", "path", disc.Path, "err", err)
		return
	}
	if err := os.Remove(filepath.Join(s.cfg.Workdir, disc.Path)); err != nil && !os.IsNotExist(err) {
		s.log.Warn("removing sent disc image failed", "path", disc.Path, "err", err)
	}
	if err := s.reg.Delete(disc.Path); err != nil {
		s.log.Error("deleting completed record failed", "path", disc.Path, "err", err)
	}
	s.log.Info("sent and cleaned up disc", "path", disc.Path)

	s.OnDiscSent.Dispatch()
}

func (s *Sender) finalizeFailure() {
	s.mu.Lock()
	disc := s.currentDisc
	s.currentDisc = nil
	s.mu.Unlock()
	if disc == nil {
		return
	}

	disc.SendAttempts++
	next := s.cfg.Now().Add(backoff(disc.SendAttempts))
	disc.NextSendAttempt = &next

	s.log.Info("transfer failed, scheduling retry", "path", disc.Path, "attempts", disc.SendAttempts, "next_attempt", next)
	if err := s.reg.Update(disc); err != nil {
		s.log.Error("recording send failure failed", "path", disc.Path, "err", err)
	}
}

// backoff computes the delay before the next send attempt following
// attempts consecutive failures: 5s, 10s, 20s, ... capped at 300s.
func backoff(attempts int) time.Duration {
	delay := constants.SendRetryBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= constants.SendRetryMax {
			return constants.SendRetryMax
		}
	}
	return delay
}

// Cleanup implements controller.Reconciler. A transfer in flight is
// terminated and waited out so rsync's partial-file marker is left in a
// consistent, resumable state.
func (s *Sender) Cleanup() {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return
	}

	s.log.Info("canceling in-flight transfer")
	proc.TerminateAndEscalate(constants.TerminateGrace)
	for {
		if state, _ := proc.Poll(); state == procsup.Exited {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}
