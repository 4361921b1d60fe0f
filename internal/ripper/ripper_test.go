// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package ripper

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ondisk/isopod/internal/oracle"
	"github.com/ondisk/isopod/internal/procsup"
	"github.com/ondisk/isopod/internal/registry"
	"github.com/ondisk/isopod/internal/udevmon"
	"github.com/stratastor/logger"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewTag(logger.Config{LogLevel: "debug"}, "test")
	require.NoError(t, err)
	return log
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Open(t.TempDir() + "/isopod.sqlite3")
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func loadedDevice() *oracle.FakeDevice {
	return &oracle.FakeDevice{
		CDROMDrive: true,
		Loaded:     true,
		Label:      "MY_DISC",
		DiskseqVal: 7,
		DiskseqOK:  true,
		BusPath:    "/devices/pci0000:00/cdrom",
		BootID:     "boot-1",
		SizeBytes:  700 << 20,
	}
}

func baseConfig(workdir string) Config {
	return Config{
		Device:       "/dev/cdrom",
		Workdir:      workdir,
		EventLogDir:  workdir,
		MinFreeBytes: 1 << 30,
		BootID:       "boot-1",
		Now:          func() time.Time { return time.Unix(1700000000, 0) },
		DiskUsage: func(string) (FilesystemUsage, error) {
			return FilesystemUsage{Total: 100 << 30, Free: 50 << 30}, nil
		},
	}
}

func TestNewDriveEmptyOnFreshBootWithoutPriorRecord(t *testing.T) {
	dev := &oracle.FakeDevice{} // nothing loaded
	reg := testRegistry(t)

	r, err := New(baseConfig(t.TempDir()), dev, reg, testLogger(t), true /* freshBoot */)
	require.NoError(t, err)
	require.Equal(t, DriveEmpty, r.Status())
}

func TestNewUnknownWhenNotFreshBootAndNoRecord(t *testing.T) {
	dev := loadedDevice()
	reg := testRegistry(t)

	r, err := New(baseConfig(t.TempDir()), dev, reg, testLogger(t), false /* freshBoot */)
	require.NoError(t, err)
	require.Equal(t, Unknown, r.Status())
}

func TestNewLastSucceededWhenRecordAlreadyComplete(t *testing.T) {
	dev := loadedDevice()
	reg := testRegistry(t)

	hash, ok, err := dev.SourceHash(nil, dev.BusPath, dev.BootID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, reg.Insert(&registry.Disc{Path: "1.iso", Status: registry.StatusComplete, SourceHash: hash}))

	r, err := New(baseConfig(t.TempDir()), dev, reg, testLogger(t), false /* freshBoot */)
	require.NoError(t, err)
	require.Equal(t, LastSucceeded, r.Status())
}

func TestReconcileSetsDriveEmptyWhenNotLoaded(t *testing.T) {
	dev := &oracle.FakeDevice{}
	reg := testRegistry(t)

	r, err := New(baseConfig(t.TempDir()), dev, reg, testLogger(t), false)
	require.NoError(t, err)

	r.Reconcile()
	require.Equal(t, DriveEmpty, r.Status())
}

func TestReconcileSetsDiscInvalidOnProbeFailure(t *testing.T) {
	dev := loadedDevice()
	dev.ProbeErr = assertError("corrupt volume descriptor")
	reg := testRegistry(t)

	r, err := New(baseConfig(t.TempDir()), dev, reg, testLogger(t), false)
	require.NoError(t, err)

	r.Reconcile()
	require.Equal(t, DiscInvalid, r.Status())
}

func TestReconcileWaitsForSpaceWhenInsufficientFree(t *testing.T) {
	dev := loadedDevice()
	reg := testRegistry(t)

	cfg := baseConfig(t.TempDir())
	cfg.DiskUsage = func(string) (FilesystemUsage, error) {
		return FilesystemUsage{Total: 100 << 30, Free: 1 << 20}, nil
	}

	r, err := New(cfg, dev, reg, testLogger(t), false)
	require.NoError(t, err)

	r.Reconcile()
	require.Equal(t, WaitingForSpace, r.Status())
}

func TestReconcileFailsWhenImagerUnavailable(t *testing.T) {
	dev := loadedDevice()
	reg := testRegistry(t)

	cfg := baseConfig(t.TempDir())
	cfg.StartProcess = func(context.Context, string, []string, io.Writer, io.Writer, func()) (procsup.Process, error) {
		return nil, errors.New("exec: \"ddrescue\": executable file not found in $PATH")
	}

	r, err := New(cfg, dev, reg, testLogger(t), false)
	require.NoError(t, err)

	r.Reconcile()
	require.Equal(t, LastFailed, r.Status())
}

func TestReconcileFinalizesSuccessWhenImagerExitsClean(t *testing.T) {
	dev := loadedDevice()
	reg := testRegistry(t)

	fake := procsup.NewFakeHandle()
	cfg := baseConfig(t.TempDir())
	cfg.StartProcess = func(context.Context, string, []string, io.Writer, io.Writer, func()) (procsup.Process, error) {
		return fake, nil
	}

	r, err := New(cfg, dev, reg, testLogger(t), false)
	require.NoError(t, err)

	r.Reconcile()
	require.Equal(t, Ripping, r.Status())

	fake.Finish(0)
	r.Reconcile()
	require.Equal(t, LastSucceeded, r.Status())

	count, err := reg.CountByStatus(registry.StatusSendable)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestReconcileFinalizesFailureWhenImagerExitsNonZero(t *testing.T) {
	dev := loadedDevice()
	reg := testRegistry(t)

	fake := procsup.NewFakeHandle()
	cfg := baseConfig(t.TempDir())
	cfg.StartProcess = func(context.Context, string, []string, io.Writer, io.Writer, func()) (procsup.Process, error) {
		return fake, nil
	}

	r, err := New(cfg, dev, reg, testLogger(t), false)
	require.NoError(t, err)

	r.Reconcile()
	require.Equal(t, Ripping, r.Status())

	fake.Finish(1)
	r.Reconcile()
	require.Equal(t, LastFailed, r.Status())

	count, err := reg.CountByStatus(registry.StatusRippable)
	require.NoError(t, err)
	require.Equal(t, int64(0), count, "the rippable record must be removed after a failed rip")
}

func TestReconcileEscalatesTerminationWhenDiscChangesMidRip(t *testing.T) {
	dev := loadedDevice()
	reg := testRegistry(t)

	fake := procsup.NewFakeHandle()
	cfg := baseConfig(t.TempDir())
	cfg.StartProcess = func(context.Context, string, []string, io.Writer, io.Writer, func()) (procsup.Process, error) {
		return fake, nil
	}

	r, err := New(cfg, dev, reg, testLogger(t), false)
	require.NoError(t, err)

	r.Reconcile()
	require.Equal(t, Ripping, r.Status())

	dev.Loaded = false
	r.Reconcile()
	require.Equal(t, 1, fake.Terminated(), "removing the disc mid-rip must terminate the imager")
}

type fakeMonitor struct {
	started bool
	stopped bool
	onEvent func(udevmon.Event)
}

func (m *fakeMonitor) Start(onEvent func(udevmon.Event)) error {
	m.started = true
	m.onEvent = onEvent
	return nil
}

func (m *fakeMonitor) Stop() error {
	m.stopped = true
	return nil
}

func TestStartDeviceMonitorIgnoresOutOfOrderDiskseq(t *testing.T) {
	dev := loadedDevice()
	reg := testRegistry(t)

	r, err := New(baseConfig(t.TempDir()), dev, reg, testLogger(t), false)
	require.NoError(t, err)

	polled := 0
	r.SetPoller(func() { polled++ })

	mon := &fakeMonitor{}
	require.NoError(t, r.StartDeviceMonitor(mon))
	require.True(t, mon.started)

	mon.onEvent(udevmon.Event{Properties: map[string]string{"DISKSEQ": "5"}})
	require.Equal(t, 1, polled)

	mon.onEvent(udevmon.Event{Properties: map[string]string{"DISKSEQ": "3"}})
	require.Equal(t, 1, polled, "an older diskseq must not trigger a reconcile")

	mon.onEvent(udevmon.Event{Properties: map[string]string{"DISKSEQ": "6"}})
	require.Equal(t, 2, polled)
}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }

func assertError(msg string) error { return &stubError{msg: msg} }
