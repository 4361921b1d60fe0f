// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package udevmon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/ondisk/isopod/internal/errs"
	"github.com/pilebones/go-udev/netlink"
	"github.com/stratastor/logger"
)

// NetlinkMonitor subscribes directly to the kernel's netlink uevent socket
// and filters to a single device node, rather than the teacher's
// multi-disk correlation/dedup/reconciler layer — the daemon owns exactly
// one drive.
type NetlinkMonitor struct {
	log    logger.Logger
	device string

	conn   *netlink.UEventConn
	ctx    context.Context
	cancel context.CancelFunc
}

var _ Monitor = (*NetlinkMonitor)(nil)

// NewNetlinkMonitor builds a Monitor for device (e.g. "/dev/sr0").
func NewNetlinkMonitor(log logger.Logger, device string) *NetlinkMonitor {
	return &NetlinkMonitor{log: log, device: device}
}

func (m *NetlinkMonitor) Start(onEvent func(Event)) error {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return errs.Wrap(errs.New(errs.ConfigMissingTool, err.Error()), errs.ConfigMissingTool)
	}
	m.conn = conn
	m.ctx, m.cancel = context.WithCancel(context.Background())

	queue := make(chan netlink.UEvent)
	netlinkErrors := make(chan error)

	matcher := &netlink.RuleDefinitions{
		Rules: []netlink.RuleDefinition{
			{Env: map[string]string{"SUBSYSTEM": "block"}},
		},
	}
	conn.Monitor(queue, netlinkErrors, matcher)

	go m.run(queue, netlinkErrors, onEvent)
	return nil
}

func (m *NetlinkMonitor) run(queue chan netlink.UEvent, netlinkErrors chan error, onEvent func(Event)) {
	devName := filepath.Base(m.device)

	for {
		select {
		case <-m.ctx.Done():
			return
		case uevent := <-queue:
			name, ok := uevent.Env["DEVNAME"]
			if !ok || filepath.Base(name) != devName {
				continue
			}
			onEvent(Event{
				Action:     Action(uevent.Action),
				DevName:    name,
				Subsystem:  uevent.Env["SUBSYSTEM"],
				Properties: uevent.Env,
				Timestamp:  time.Now(),
			})
		case err := <-netlinkErrors:
			m.log.Error("netlink monitor error", "err", err)
		}
	}
}

func (m *NetlinkMonitor) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.conn != nil {
		m.conn.Close()
	}
	return nil
}
