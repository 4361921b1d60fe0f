// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package ripper

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// defaultDiskUsage reports total and available bytes for the filesystem
// backing path, matching shutil.disk_usage's Total/Free semantics.
func defaultDiskUsage(path string) (FilesystemUsage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return FilesystemUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	blockSize := int64(stat.Bsize)
	return FilesystemUsage{
		Total: int64(stat.Blocks) * blockSize,
		Free:  int64(stat.Bavail) * blockSize,
	}, nil
}
