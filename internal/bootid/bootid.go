// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootid resolves the kernel's boot-id and the fresh-boot marker
// consulted once by the Ripper at startup.
package bootid

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ondisk/isopod/internal/constants"
)

// Current reads the kernel's current boot-id.
func Current() (string, error) {
	raw, err := os.ReadFile(constants.KernelBootIDPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// IsFreshBoot compares the current boot-id against the value persisted at
// <runtimeDir>/current-boot-id. On mismatch (including a missing marker
// file) it rewrites the marker and reports true.
func IsFreshBoot(runtimeDir, currentBootID string) (bool, error) {
	markerPath := filepath.Join(runtimeDir, constants.BootIDMarkerFile)

	old, err := os.ReadFile(markerPath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	if strings.TrimSpace(string(old)) == currentBootID {
		return false, nil
	}

	if err := os.WriteFile(markerPath, []byte(currentBootID), 0o644); err != nil {
		return false, err
	}
	return true, nil
}
