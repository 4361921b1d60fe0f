// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package oracle

import (
	"bufio"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ondisk/isopod/internal/command"
	"github.com/ondisk/isopod/internal/constants"
	"github.com/stratastor/logger"
)

// unitSeparator joins source-hash components, matching the reference
// implementation's choice of the ASCII unit-separator byte.
const unitSeparator = "\x1f"

// UdevadmReader reads device properties via `udevadm info --query=property`,
// the same interface the teacher's pkg/disk/tools.UdevadmExecutor wraps.
type UdevadmReader struct {
	log  logger.Logger
	path string
}

// NewUdevadmReader builds a Reader that shells out to udevadmPath (typically
// "udevadm", resolved against PATH).
func NewUdevadmReader(log logger.Logger, udevadmPath string) *UdevadmReader {
	return &UdevadmReader{log: log, path: udevadmPath}
}

func (u *UdevadmReader) properties(ctx context.Context, dev string) (map[string]string, error) {
	out, err := command.ExecCommand(ctx, u.log, u.path, "info", "--query=property", "--name="+dev)
	if err != nil {
		return nil, err
	}

	props := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[key] = value
	}
	return props, nil
}

func (u *UdevadmReader) IsCDROMDrive(ctx context.Context, dev string) (bool, error) {
	props, err := u.properties(ctx, dev)
	if err != nil {
		return false, err
	}
	return props["ID_CDROM"] == "1", nil
}

func (u *UdevadmReader) IsCDROMLoaded(ctx context.Context, dev string) (bool, error) {
	props, err := u.properties(ctx, dev)
	if err != nil {
		return false, err
	}
	return props["ID_CDROM_MEDIA"] == "1", nil
}

func (u *UdevadmReader) FSLabel(ctx context.Context, dev string) (string, bool, error) {
	props, err := u.properties(ctx, dev)
	if err != nil {
		return "", false, err
	}
	label, ok := props["ID_FS_LABEL"]
	return label, ok && label != "", nil
}

func (u *UdevadmReader) Diskseq(ctx context.Context, dev string) (uint64, bool, error) {
	props, err := u.properties(ctx, dev)
	if err != nil {
		return 0, false, err
	}
	raw, ok := props["DISKSEQ"]
	if !ok || raw == "" {
		return 0, false, nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing DISKSEQ %q: %w", raw, err)
	}
	return seq, seq != 0, nil
}

func (u *UdevadmReader) SourceHash(ctx context.Context, dev, bootID string) ([]byte, bool, error) {
	props, err := u.properties(ctx, dev)
	if err != nil {
		return nil, false, err
	}

	busPath, ok := props["DEVPATH"]
	if !ok || busPath == "" || bootID == "" {
		return nil, false, nil
	}

	seqRaw, ok := props["DISKSEQ"]
	if !ok || seqRaw == "" {
		return nil, false, nil
	}

	parts := strings.Join([]string{bootID, busPath, seqRaw}, unitSeparator)
	sum := sha256.Sum256([]byte(parts))
	return sum[:], true, nil
}

func (u *UdevadmReader) ProbeVolumeDescriptor(dev string) error {
	f, err := os.Open(dev)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, constants.DdrescueSectorSize)
	offset := int64(constants.VolumeDescriptorLBA) * constants.DdrescueSectorSize
	n, err := f.ReadAt(buf, offset)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short read of volume descriptor: got %d bytes, want %d", n, len(buf))
	}
	return nil
}

func (u *UdevadmReader) Size(dev string) (int64, error) {
	f, err := os.Open(dev)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return f.Seek(0, os.SEEK_END)
}
