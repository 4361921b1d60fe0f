// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package display is the hand-off point to the electronic-paper display
// driver. The driver itself — SPI framing, panel refresh timing — is an
// external collaborator outside this daemon's scope; this package only
// names which bitmap is desired and how many pending-disc dots to overlay.
package display

import (
	"github.com/ondisk/isopod/internal/constants"
	"github.com/stratastor/logger"
)

// Display renders the named status bitmap with an overlay of up to 25 dots
// indicating the sendable-disc backlog.
type Display interface {
	Image(name string, pending int) error
}

// LogDisplay is the production Display: it records the render request
// through structured logging for the external driver process (or an
// operator tailing logs) to pick up. Swapping in a real SPI-backed driver
// is a matter of implementing Display elsewhere; the Reporter never knows
// the difference.
type LogDisplay struct {
	log logger.Logger
}

// NewLogDisplay constructs a LogDisplay.
func NewLogDisplay(log logger.Logger) *LogDisplay {
	return &LogDisplay{log: log}
}

func (d *LogDisplay) Image(name string, pending int) error {
	dots := pending
	if dots > constants.ReporterMaxPendingDots {
		dots = constants.ReporterMaxPendingDots
	}
	d.log.Info("display render", "image", name, "pending", pending, "dots", dots)
	return nil
}

var _ Display = (*LogDisplay)(nil)
