// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"testing"
	"time"

	"github.com/ondisk/isopod/internal/errs"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Open(t.TempDir() + "/isopod.sqlite3")
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestInsertAndFindByHash(t *testing.T) {
	reg := newTestRegistry(t)

	hash := []byte("hash-1")
	require.NoError(t, reg.Insert(&Disc{Path: "1.iso", Status: StatusRippable, SourceHash: hash}))

	found, err := reg.FindByHash(hash)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "1.iso", found.Path)
}

func TestInsertDuplicatePathFails(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.Insert(&Disc{Path: "1.iso", Status: StatusRippable}))
	err := reg.Insert(&Disc{Path: "1.iso", Status: StatusRippable})
	require.Error(t, err)

	code, ok := errs.GetCode(err)
	require.True(t, ok)
	require.Equal(t, errs.RegistryUniqueViolation, code)
}

func TestFindByHashExcludesStatusFilter(t *testing.T) {
	reg := newTestRegistry(t)
	hash := []byte("hash-2")
	require.NoError(t, reg.Insert(&Disc{Path: "2.iso", Status: StatusRippable, SourceHash: hash}))

	found, err := reg.FindByHash(hash, StatusSendable, StatusComplete)
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestDeleteIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Delete("never-existed.iso"))
}

func TestCountByStatus(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Insert(&Disc{Path: "1.iso", Status: StatusSendable}))
	require.NoError(t, reg.Insert(&Disc{Path: "2.iso", Status: StatusSendable}))
	require.NoError(t, reg.Insert(&Disc{Path: "3.iso", Status: StatusRippable}))

	count, err := reg.CountByStatus(StatusSendable)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestNextSendableOrdersByAttemptTimeNullsFirst(t *testing.T) {
	reg := newTestRegistry(t)

	future := time.Now().Add(time.Hour)
	require.NoError(t, reg.Insert(&Disc{Path: "later.iso", Status: StatusSendable, NextSendAttempt: &future}))
	require.NoError(t, reg.Insert(&Disc{Path: "now.iso", Status: StatusSendable}))

	next, err := reg.NextSendable()
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, "now.iso", next.Path)
}

func TestNextSendableNilWhenNoneSendable(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Insert(&Disc{Path: "1.iso", Status: StatusRippable}))

	next, err := reg.NextSendable()
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestUpdateReplacesRecord(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Insert(&Disc{Path: "1.iso", Status: StatusRippable}))

	rows, err := reg.ListByStatus(StatusRippable)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows[0].Status = StatusSendable
	require.NoError(t, reg.Update(&rows[0]))

	count, err := reg.CountByStatus(StatusSendable)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}
