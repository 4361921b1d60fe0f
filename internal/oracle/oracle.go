// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package oracle implements the Device Oracle: pure queries over a device
// node, plus the Ripper's one sanctioned exception — a single-sector probe
// read of the ISO-9660 primary volume descriptor and a size query, both
// performed directly against the device node rather than through udev
// properties.
package oracle

import "context"

// Reader is the Device Oracle's query surface. All methods but
// ProbeVolumeDescriptor and Size read device properties only; neither method
// touches the media itself outside of those two.
type Reader interface {
	// IsCDROMDrive reports whether dev is an optical drive.
	IsCDROMDrive(ctx context.Context, dev string) (bool, error)
	// IsCDROMLoaded reports whether media is currently present in dev.
	IsCDROMLoaded(ctx context.Context, dev string) (bool, error)
	// FSLabel returns the filesystem label on the loaded media, if any.
	FSLabel(ctx context.Context, dev string) (label string, ok bool, err error)
	// Diskseq returns the kernel's per-disc-session sequence number. An
	// unusable value (missing or zero) is a fatal configuration error the
	// daemon refuses to start under.
	Diskseq(ctx context.Context, dev string) (uint64, bool, error)
	// SourceHash computes the stable content fingerprint for the disc
	// currently in dev, given the process's boot-id. Returns ok=false if any
	// input (boot-id, bus path, diskseq) is unavailable.
	SourceHash(ctx context.Context, dev, bootID string) (hash []byte, ok bool, err error)
	// ProbeVolumeDescriptor issues a single positioned read of the ISO-9660
	// primary volume descriptor (2048 bytes at offset 32768) to reject
	// unreadable or non-ISO media before launching the imager.
	ProbeVolumeDescriptor(dev string) error
	// Size returns the total byte length of the block device, via
	// seek-to-end.
	Size(dev string) (int64, error)
}
