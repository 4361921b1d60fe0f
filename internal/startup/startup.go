// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package startup runs the one-time boot purge that restores the registry's
// invariants after an unclean shutdown, before any controller starts.
package startup

import (
	"os"
	"path/filepath"

	"github.com/ondisk/isopod/internal/registry"
	"github.com/stratastor/logger"
)

// Purge removes RIPPABLE records (whose on-disk file is necessarily partial,
// truncated, or absent after a crash mid-rip) and unlinks any leftover
// COMPLETE disc image still sitting in workdir after a crash mid-send.
func Purge(workdir string, reg *registry.Registry, log logger.Logger) error {
	if err := purgeRippable(workdir, reg, log); err != nil {
		return err
	}
	return purgeOrphanedComplete(workdir, reg, log)
}

func purgeRippable(workdir string, reg *registry.Registry, log logger.Logger) error {
	rippable, err := reg.ListByStatus(registry.StatusRippable)
	if err != nil {
		return err
	}

	for _, disc := range rippable {
		path := filepath.Join(workdir, disc.Path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("removing stale rippable image failed", "path", path, "err", err)
		}
		if err := reg.Delete(disc.Path); err != nil {
			log.Error("deleting stale rippable record failed", "path", disc.Path, "err", err)
			continue
		}
		log.Info("purged stale rippable record", "path", disc.Path)
	}
	return nil
}

func purgeOrphanedComplete(workdir string, reg *registry.Registry, log logger.Logger) error {
	complete, err := reg.ListByStatus(registry.StatusComplete)
	if err != nil {
		return err
	}

	for _, disc := range complete {
		path := filepath.Join(workdir, disc.Path)
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				log.Warn("statting completed disc image failed", "path", path, "err", err)
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Warn("removing orphaned completed image failed", "path", path, "err", err)
			continue
		}
		log.Info("removed orphaned completed image left over from a crash mid-send", "path", disc.Path)
	}
	return nil
}
