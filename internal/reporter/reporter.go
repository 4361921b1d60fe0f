// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package reporter maps Ripper status and the sendable-disc backlog onto a
// rate-limited sequence of display renders.
package reporter

import (
	"errors"
	"sync"
	"time"

	"github.com/ondisk/isopod/internal/constants"
	"github.com/ondisk/isopod/internal/controller"
	"github.com/ondisk/isopod/internal/display"
	"github.com/ondisk/isopod/internal/registry"
	"github.com/ondisk/isopod/internal/ripper"
	"github.com/stratastor/logger"
)

// imageNameByStatus maps each Ripper status onto the bitmap shown for it.
var imageNameByStatus = map[ripper.Status]string{
	ripper.DriveEmpty:      "insert",
	ripper.WaitingForSpace: "wait",
	ripper.Ripping:         "copying",
	ripper.DiscInvalid:     "unreadable",
	ripper.LastSucceeded:   "success",
	ripper.LastFailed:      "failure",
}

// terminal per-disc statuses that should stay on screen even after the
// drive reports empty — removing a disc should not blank a useful result.
func isTerminalDiscStatus(s ripper.Status) bool {
	return s == ripper.DiscInvalid || s == ripper.LastSucceeded || s == ripper.LastFailed
}

type displayState struct {
	status    ripper.Status
	discCount int
}

// RipperStatus is the narrow view of the Ripper the Reporter depends on.
type RipperStatus interface {
	Status() ripper.Status
}

// Reporter owns the display's rate-limited refresh cadence. It implements
// controller.Reconciler.
type Reporter struct {
	rip    RipperStatus
	reg    *registry.Registry
	disp   display.Display
	log    logger.Logger
	bucket *Bucket

	mu        sync.Mutex
	desired   displayState
	displayed displayState
}

// New constructs a Reporter over rip's status and reg's sendable backlog,
// rendering through disp.
func New(rip RipperStatus, reg *registry.Registry, disp display.Display, log logger.Logger, now func() time.Time) *Reporter {
	return &Reporter{
		rip:       rip,
		reg:       reg,
		disp:      disp,
		log:       log,
		bucket:    NewBucket(constants.ReporterBucketCapacity, constants.ReporterFillDelay, constants.ReporterBurstDelay, now),
		desired:   displayState{status: rip.Status()},
		displayed: displayState{status: ripper.Unknown},
	}
}

// Reconcile implements controller.Reconciler.
func (r *Reporter) Reconcile() controller.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.rip.Status()
	if status == ripper.Unknown {
		return controller.Reconciled{}
	}

	skipRipperUpdate := status == ripper.DriveEmpty && isTerminalDiscStatus(r.desired.status)
	if !skipRipperUpdate {
		r.desired.status = status
	}

	count, err := r.reg.CountByStatus(registry.StatusSendable)
	if err != nil {
		r.log.Error("counting sendable discs failed", "err", err)
		return controller.Reconciled{}
	}
	r.desired.discCount = int(count)

	if r.displayed == r.desired {
		return controller.Reconciled{}
	}

	// Status changes are user-visible and earn priority over routine
	// disc-count churn: if only the count changed, wait for the bucket to
	// refill to capacity before spending a render on it.
	if r.desired.status == r.displayed.status {
		if delay := r.bucket.SecondsUntilFull(); delay > 0 {
			r.log.Info("deferring disc count update", "delay_sec", delay)
			return controller.RepollAfter{Delay: secondsToDuration(delay)}
		}
	}

	if err := r.bucket.Take(); err != nil {
		var blocked *TakeBlocked
		if errors.As(err, &blocked) {
			r.log.Info("display refresh rate-limited", "delay_sec", blocked.SecondsRemaining)
			return controller.RepollAfter{Delay: secondsToDuration(blocked.SecondsRemaining)}
		}
		r.log.Error("bucket take failed", "err", err)
		return controller.Reconciled{}
	}

	name, ok := imageNameByStatus[r.desired.status]
	if !ok {
		r.log.Error("no display image for status", "status", r.desired.status)
		return controller.Reconciled{}
	}

	if err := r.disp.Image(name, r.desired.discCount); err != nil {
		r.log.Error("rendering display image failed", "err", err)
		return controller.Reconciled{}
	}

	r.log.Info("displayed image", "image", name, "pending", r.desired.discCount)
	r.displayed = r.desired
	return controller.Reconciled{}
}

// Cleanup implements controller.Reconciler: it makes a final best-effort
// attempt to leave the display showing the most recent state.
func (r *Reporter) Cleanup() {
	r.Reconcile()
}

func secondsToDuration(s float64) time.Duration {
	if s < 0 {
		s = 0
	}
	return time.Duration(s * float64(time.Second))
}
