// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package oracle

import (
	"context"
	"crypto/sha256"
	"errors"
	"strconv"
	"strings"
)

// FakeDevice is a scriptable test double for Reader, used to drive Ripper
// reconcile scenarios without a real optical drive.
type FakeDevice struct {
	CDROMDrive  bool
	Loaded      bool
	Label       string
	DiskseqVal  uint64
	DiskseqOK   bool
	BusPath     string
	BootID      string
	ProbeErr    error
	SizeBytes   int64
	SizeErr     error
}

var _ Reader = (*FakeDevice)(nil)

func (f *FakeDevice) IsCDROMDrive(ctx context.Context, dev string) (bool, error) {
	return f.CDROMDrive, nil
}

func (f *FakeDevice) IsCDROMLoaded(ctx context.Context, dev string) (bool, error) {
	return f.Loaded, nil
}

func (f *FakeDevice) FSLabel(ctx context.Context, dev string) (string, bool, error) {
	return f.Label, f.Label != "", nil
}

func (f *FakeDevice) Diskseq(ctx context.Context, dev string) (uint64, bool, error) {
	return f.DiskseqVal, f.DiskseqOK, nil
}

func (f *FakeDevice) SourceHash(ctx context.Context, dev, bootID string) ([]byte, bool, error) {
	if !f.Loaded {
		return nil, false, nil
	}
	if f.BusPath == "" || bootID == "" || !f.DiskseqOK {
		return nil, false, nil
	}
	parts := strings.Join([]string{bootID, f.BusPath, strconv.FormatUint(f.DiskseqVal, 10)}, unitSeparator)
	sum := sha256.Sum256([]byte(parts))
	return sum[:], true, nil
}

func (f *FakeDevice) ProbeVolumeDescriptor(dev string) error {
	if !f.Loaded {
		return errors.New("no media loaded")
	}
	return f.ProbeErr
}

func (f *FakeDevice) Size(dev string) (int64, error) {
	return f.SizeBytes, f.SizeErr
}
