// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package constants

import "time"

const (
	Version = "v0.1.0"

	DefaultPIDFilePath = "/var/run/isopod.pid"
	DefaultDevice      = "/dev/cdrom"
	DefaultWorkdir     = "."
	DefaultMinFreeBytes = 5 * 1 << 30 // 5 GiB

	RegistryFileName = "isopod.sqlite3"
	BootIDMarkerFile = "current-boot-id"
	KernelBootIDPath = "/proc/sys/kernel/random/boot_id"

	ISOSuffix = ".iso"

	// Ripper tuning, per the imager subprocess contract.
	DdrescueSectorSize   = 2048
	DdrescueTimeout      = 30 * time.Minute
	VolumeDescriptorLBA  = 16 // ISO-9660 primary volume descriptor sector.
	SystemdLogNamespace  = "isopod-ripper"

	// Free-space / rip retry cadence.
	SpaceRetryInterval = 60 * time.Second

	// Send backoff, per the transfer subprocess contract.
	SendRetryBase = 5 * time.Second
	SendRetryMax  = 300 * time.Second

	// Reporter token bucket.
	ReporterBucketCapacity  = 3
	ReporterFillDelay       = 180 * time.Second
	ReporterBurstDelay      = 30 * time.Second
	ReporterMaxPendingDots  = 25

	// Grace period between a graceful subprocess termination signal and a
	// force-kill escalation, for the imager and transport subprocesses.
	TerminateGrace = 10 * time.Second
)
