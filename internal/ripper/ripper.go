// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package ripper supervises disc imaging: it owns the drive, the ripper
// state machine, and the one in-flight rip per drive invariant.
package ripper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ondisk/isopod/internal/constants"
	"github.com/ondisk/isopod/internal/controller"
	"github.com/ondisk/isopod/internal/oracle"
	"github.com/ondisk/isopod/internal/procsup"
	"github.com/ondisk/isopod/internal/registry"
	"github.com/ondisk/isopod/internal/udevmon"
	"github.com/stratastor/logger"
)

// Status is the Ripper's externally visible state.
type Status string

const (
	Unknown         Status = "UNKNOWN"
	DriveEmpty      Status = "DRIVE_EMPTY"
	WaitingForSpace Status = "WAITING_FOR_SPACE"
	Ripping         Status = "RIPPING"
	DiscInvalid     Status = "DISC_INVALID"
	LastSucceeded   Status = "LAST_SUCCEEDED"
	LastFailed      Status = "LAST_FAILED"
)

// FilesystemUsage reports total and free byte counts for the staging
// filesystem, matching shutil.disk_usage in the reference implementation.
type FilesystemUsage struct {
	Total int64
	Free  int64
}

// Config configures a Ripper instance.
type Config struct {
	Device                string
	Workdir               string
	EventLogDir           string
	MinFreeBytes          int64
	JournalDdrescueOutput bool
	BootID                string
	Now                   func() time.Time
	DiskUsage             func(path string) (FilesystemUsage, error)
	StartProcess          procsup.StartFunc
}

// Ripper owns the drive. It implements controller.Reconciler.
type Ripper struct {
	cfg     Config
	oracle  oracle.Reader
	reg     *registry.Registry
	log     logger.Logger
	monitor udevmon.Monitor

	OnStatusChange controller.EventSet

	poll func()

	mu             sync.Mutex
	status         Status
	lastSourceHash []byte
	lastDiskseq    uint64
	proc           procsup.Process
	procOutput     io.Closer
}

// New constructs a Ripper and computes its startup status per the disc
// record already in reg and the fresh-boot flag, but does not yet start its
// device-event subscription or reconcile loop (see StartDeviceMonitor).
func New(cfg Config, devOracle oracle.Reader, reg *registry.Registry, log logger.Logger, freshBoot bool) (*Ripper, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DiskUsage == nil {
		cfg.DiskUsage = defaultDiskUsage
	}
	if cfg.StartProcess == nil {
		cfg.StartProcess = procsup.StartProcess
	}

	r := &Ripper{cfg: cfg, oracle: devOracle, reg: reg, log: log}

	ctx := context.Background()
	hash, ok, err := devOracle.SourceHash(ctx, cfg.Device, cfg.BootID)
	if err != nil {
		return nil, err
	}
	if !ok {
		hash = nil
	}

	if hash != nil {
		found, err := reg.FindByHash(hash, registry.StatusSendable, registry.StatusComplete)
		if err != nil {
			return nil, err
		}
		if found != nil {
			r.status = LastSucceeded
			r.lastSourceHash = hash
			return r, nil
		}
	}

	if freshBoot {
		r.status = DriveEmpty
		r.lastSourceHash = hash
		return r, nil
	}

	r.status = Unknown
	r.lastSourceHash = nil
	return r, nil
}

// SetPoller wires the controller's Poll method so the Ripper can trigger
// reconciles from its udev callback and from its detached rip waiter.
func (r *Ripper) SetPoller(poll func()) {
	r.poll = poll
}

// StartDeviceMonitor subscribes mon to the configured drive and begins
// polling the reconciler on every matching event. A lower diskseq arriving
// after a higher one is ignored as an out-of-order kernel event.
func (r *Ripper) StartDeviceMonitor(mon udevmon.Monitor) error {
	r.monitor = mon
	return mon.Start(func(evt udevmon.Event) {
		seqRaw, ok := evt.Properties["DISKSEQ"]
		if ok {
			if newSeq, err := strconv.ParseUint(seqRaw, 10, 64); err == nil {
				r.mu.Lock()
				if r.lastDiskseq != 0 && newSeq != 0 && r.lastDiskseq > newSeq {
					r.mu.Unlock()
					return
				}
				r.lastDiskseq = newSeq
				r.mu.Unlock()
			}
		}
		if r.poll != nil {
			r.poll()
		}
	})
}

// Status returns the current ripper status.
func (r *Ripper) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Ripper) setStatus(s Status) {
	r.mu.Lock()
	changed := r.status != s
	r.status = s
	r.mu.Unlock()
	if changed {
		r.OnStatusChange.Dispatch()
	}
}

// Reconcile implements controller.Reconciler.
func (r *Ripper) Reconcile() controller.Result {
	ctx := context.Background()

	sourceHash, hashOK, err := r.oracle.SourceHash(ctx, r.cfg.Device, r.cfg.BootID)
	if err != nil {
		r.log.Error("reading source hash failed", "err", err)
		return controller.Reconciled{}
	}
	if !hashOK {
		sourceHash = nil
	}

	loaded, err := r.oracle.IsCDROMLoaded(ctx, r.cfg.Device)
	if err != nil {
		r.log.Error("reading media presence failed", "err", err)
		return controller.Reconciled{}
	}

	r.mu.Lock()
	proc := r.proc
	r.mu.Unlock()

	if proc != nil {
		if !bytes.Equal(sourceHash, r.lastSourceHash) || !loaded {
			proc.TerminateAndEscalate(constants.TerminateGrace)
		}

		state, exitCode := proc.Poll()
		switch state {
		case procsup.Running:
			return controller.Reconciled{}
		case procsup.Exited:
			r.closeProcOutput()
			if exitCode == 0 {
				r.finalizeSuccess()
			} else {
				r.finalizeFailure()
			}
			r.mu.Lock()
			r.proc = nil
			r.mu.Unlock()
		}
	}

	if !loaded {
		r.setStatus(DriveEmpty)
		return controller.Reconciled{}
	}

	if bytes.Equal(sourceHash, r.lastSourceHash) {
		return controller.Reconciled{}
	}

	if err := r.oracle.ProbeVolumeDescriptor(r.cfg.Device); err != nil {
		r.log.Warn("volume descriptor probe failed, refusing to rip", "err", err)
		r.setStatus(DiscInvalid)
		return controller.Reconciled{}
	}

	if result := r.checkMinFreeSpace(); result != nil {
		return result
	}

	r.lastSourceHash = sourceHash
	isoFilename := r.isoFilename()

	record := &registry.Disc{
		Path:       isoFilename,
		Status:     registry.StatusRippable,
		SourceHash: sourceHash,
	}
	if err := r.reg.Insert(record); err != nil {
		r.log.Error("inserting rippable record failed", "err", err)
		return controller.Reconciled{}
	}

	if err := r.startRip(isoFilename); err != nil {
		r.log.Error("starting imager failed", "err", err)
		r.setStatus(LastFailed)
		return controller.Reconciled{}
	}

	r.setStatus(Ripping)
	return controller.Reconciled{}
}

func (r *Ripper) checkMinFreeSpace() controller.Result {
	discSize, err := r.oracle.Size(r.cfg.Device)
	if err != nil {
		r.log.Error("reading disc size failed", "err", err)
		return nil
	}
	needFree := discSize + r.cfg.MinFreeBytes

	usage, err := r.cfg.DiskUsage(r.cfg.Workdir)
	if err != nil {
		r.log.Error("reading filesystem usage failed", "err", err)
		return nil
	}

	if needFree > usage.Total {
		r.log.Error("disc too large for filesystem", "need_free", needFree, "total", usage.Total)
		r.setStatus(LastFailed)
		return controller.Reconciled{}
	}

	if usage.Free < needFree {
		r.log.Info("waiting for free space", "free", usage.Free, "need", needFree)
		r.setStatus(WaitingForSpace)
		return controller.RepollAfter{Delay: constants.SpaceRetryInterval}
	}

	return nil
}

func (r *Ripper) isoFilename() string {
	name := strconv.FormatInt(r.cfg.Now().UnixNano(), 10)
	if label, ok, err := r.oracle.FSLabel(context.Background(), r.cfg.Device); err == nil && ok {
		name += "_" + label
	}
	return name + constants.ISOSuffix
}

// ripperOutput returns the writer ddrescue's stdout/stderr should be wired
// to. When journal piping is disabled it is nil, which procsup discards.
// When enabled, it spawns a `systemd-run ... systemd-cat -t ddrescue` relay
// process and returns its stdin pipe; cleanup must be called once the
// imager has exited to close that pipe and let the relay finish flushing.
func (r *Ripper) ripperOutput() (out io.Writer, cleanup io.Closer, err error) {
	if !r.cfg.JournalDdrescueOutput {
		return nil, nil, nil
	}

	relay := exec.Command("systemd-run",
		"--pipe", "--quiet", "--collect", "--slice-inherit",
		"--property=LogNamespace="+constants.SystemdLogNamespace,
		"systemd-cat", "-t", "ddrescue",
	)
	stdin, err := relay.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("opening ddrescue journal relay stdin: %w", err)
	}
	if err := relay.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting ddrescue journal relay: %w", err)
	}

	return stdin, stdin, nil
}

func (r *Ripper) closeProcOutput() {
	r.mu.Lock()
	out := r.procOutput
	r.procOutput = nil
	r.mu.Unlock()
	if out != nil {
		out.Close()
	}
}

func (r *Ripper) startRip(isoFilename string) error {
	eventLog := filepath.Join(r.cfg.EventLogDir, isoFilename+".log")
	args := []string{
		"--idirect",
		"--sector-size=" + strconv.Itoa(constants.DdrescueSectorSize),
		"--timeout=30m",
		"--log-events=" + eventLog,
		r.cfg.Device,
		filepath.Join(r.cfg.Workdir, isoFilename),
	}

	out, outCloser, err := r.ripperOutput()
	if err != nil {
		r.log.Warn("ddrescue journal relay unavailable, discarding output", "err", err)
		out, outCloser = nil, nil
	}

	proc, err := r.cfg.StartProcess(context.Background(), "ddrescue", args, out, out, func() {
		if r.poll != nil {
			r.poll()
		}
	})
	if err != nil {
		if outCloser != nil {
			outCloser.Close()
		}
		return err
	}

	r.mu.Lock()
	r.proc = proc
	r.procOutput = outCloser
	r.mu.Unlock()
	return nil
}

func (r *Ripper) finalizeSuccess() {
	found, err := r.reg.FindByHash(r.lastSourceHash, registry.StatusRippable)
	if err != nil || found == nil {
		r.log.Error("rip succeeded but no matching rippable record found", "err", err)
		r.setStatus(LastFailed)
		return
	}
	found.Status = registry.StatusSendable
	if err := r.reg.Update(found); err != nil {
		r.log.Error("finalizing rip success failed", "err", err)
	}
	r.setStatus(LastSucceeded)
}

func (r *Ripper) finalizeFailure() {
	found, err := r.reg.FindByHash(r.lastSourceHash, registry.StatusRippable)
	if err == nil && found != nil {
		os.Remove(filepath.Join(r.cfg.Workdir, found.Path))
		r.reg.Delete(found.Path)
	}
	r.setStatus(LastFailed)
}

// Cleanup implements controller.Reconciler. It stops the device-event
// subscription and, if a rip is in flight, blocks polling every 2s for the
// subprocess to exit, finalizing success only on a clean exit with no
// intervening disc change.
func (r *Ripper) Cleanup() {
	if r.monitor != nil {
		r.monitor.Stop()
	}

	r.mu.Lock()
	proc := r.proc
	r.mu.Unlock()
	if proc == nil {
		return
	}

	ctx := context.Background()
	discChanged := false
	for {
		state, _ := proc.Poll()
		if state == procsup.Exited {
			break
		}

		loaded, _ := r.oracle.IsCDROMLoaded(ctx, r.cfg.Device)
		hash, ok, _ := r.oracle.SourceHash(ctx, r.cfg.Device, r.cfg.BootID)
		if !ok {
			hash = nil
		}
		if !loaded || !bytes.Equal(hash, r.lastSourceHash) {
			discChanged = true
			proc.TerminateAndEscalate(constants.TerminateGrace)
		}

		time.Sleep(2 * time.Second)
	}

	r.closeProcOutput()

	_, exitCode := proc.Poll()
	if exitCode == 0 && !discChanged {
		r.finalizeSuccess()
	} else {
		r.finalizeFailure()
	}
}
