// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package ripper

import "fmt"

// defaultDiskUsage is unsupported outside Linux; the daemon targets Linux
// hosts exclusively, so callers always supply Config.DiskUsage in tests.
func defaultDiskUsage(path string) (FilesystemUsage, error) {
	return FilesystemUsage{}, fmt.Errorf("disk usage query unsupported on this platform")
}
