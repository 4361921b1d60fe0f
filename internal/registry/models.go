// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry is the crash-safe persistent disc registry: the only
// transactional mutator of disc records.
package registry

import "time"

// Status is a disc record's lifecycle state.
type Status string

const (
	StatusRippable Status = "RIPPABLE"
	StatusSendable Status = "SENDABLE"
	StatusComplete Status = "COMPLETE"
)

// Disc is the registry's only entity, keyed by Path (the ISO filename
// relative to the working directory).
type Disc struct {
	Path             string `gorm:"primaryKey"`
	Status           Status `gorm:"index"`
	SourceHash       []byte
	SendAttempts     int
	NextSendAttempt  *time.Time
}

func (Disc) TableName() string { return "discs" }

// AllModels lists every model AutoMigrate must know about.
func AllModels() []interface{} {
	return []interface{}{&Disc{}}
}
