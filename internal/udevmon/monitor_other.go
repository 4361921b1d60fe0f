// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package udevmon

import "github.com/stratastor/logger"

// NetlinkMonitor is a no-op stub on non-Linux platforms: no netlink uevent
// socket exists and no device events are delivered, so the Ripper reconciles
// only when polled for other reasons (startup, imager exit, its free-space
// re-poll).
type NetlinkMonitor struct {
	log    logger.Logger
	device string
}

var _ Monitor = (*NetlinkMonitor)(nil)

func NewNetlinkMonitor(log logger.Logger, device string) *NetlinkMonitor {
	return &NetlinkMonitor{log: log, device: device}
}

func (m *NetlinkMonitor) Start(onEvent func(Event)) error {
	m.log.Warn("udev netlink monitoring not available on this platform, relying on reconcile polling only")
	return nil
}

func (m *NetlinkMonitor) Stop() error {
	return nil
}
