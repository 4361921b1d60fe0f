// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package udevmon streams kernel device events for a single configured
// device node, translating them into Poll() calls on the Ripper's
// controller. The kernel event source itself is an external collaborator
// (spec.md treats it as out of scope); this package's job is to watch one
// device and ignore everything else.
package udevmon

import "time"

// Action mirrors the udev action verbs relevant to block devices.
type Action string

const (
	Add    Action = "add"
	Remove Action = "remove"
	Change Action = "change"
)

// Event is a single device event for the monitored device node.
type Event struct {
	Action     Action
	DevName    string
	Subsystem  string
	Properties map[string]string
	Timestamp  time.Time
}

// Monitor streams Event values for one device node until Stop is called.
type Monitor interface {
	// Start begins watching. The supplied callback is invoked from an
	// internal goroutine for every event matching the configured device;
	// it must not block.
	Start(onEvent func(Event)) error
	Stop() error
}
