// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package bootid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsFreshBootTrueWhenMarkerMissing(t *testing.T) {
	dir := t.TempDir()

	fresh, err := IsFreshBoot(dir, "boot-a")
	require.NoError(t, err)
	require.True(t, fresh)

	written, err := os.ReadFile(filepath.Join(dir, "current-boot-id"))
	require.NoError(t, err)
	require.Equal(t, "boot-a", string(written))
}

func TestIsFreshBootFalseWhenMarkerMatches(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "current-boot-id"), []byte("boot-a"), 0o644))

	fresh, err := IsFreshBoot(dir, "boot-a")
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestIsFreshBootTrueAndRewritesOnMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "current-boot-id"), []byte("boot-old"), 0o644))

	fresh, err := IsFreshBoot(dir, "boot-new")
	require.NoError(t, err)
	require.True(t, fresh)

	written, err := os.ReadFile(filepath.Join(dir, "current-boot-id"))
	require.NoError(t, err)
	require.Equal(t, "boot-new", string(written))
}
