// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

// Package serve wires the Registry, Device Oracle, kernel event monitor, and
// the three reconciler controllers (Ripper, Sender, Reporter) into a running
// daemon, and owns the CLI surface, startup validation, and shutdown plumbing
// the core reconciliation engine deliberately leaves out of scope.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ondisk/isopod/internal/bootid"
	"github.com/ondisk/isopod/internal/constants"
	"github.com/ondisk/isopod/internal/controller"
	"github.com/ondisk/isopod/internal/display"
	"github.com/ondisk/isopod/internal/errs"
	"github.com/ondisk/isopod/internal/lifecycle"
	"github.com/ondisk/isopod/internal/oracle"
	"github.com/ondisk/isopod/internal/registry"
	"github.com/ondisk/isopod/internal/reporter"
	"github.com/ondisk/isopod/internal/ripper"
	"github.com/ondisk/isopod/internal/sender"
	"github.com/ondisk/isopod/internal/startup"
	"github.com/ondisk/isopod/internal/udevmon"
	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
	"github.com/stratastor/logger"
	"golang.org/x/sys/unix"
)

var flags struct {
	workdir               string
	device                string
	target                string
	minFreeBytes          int64
	journalDdrescueOutput bool
	detach                bool
}

// NewServeCmd builds the "isopod serve" command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Watch the drive and archive every inserted disc",
		Run:   runServe,
	}

	cmd.Flags().StringVar(&flags.workdir, "workdir", constants.DefaultWorkdir, "staging directory for ISOs and the registry file")
	cmd.Flags().StringVar(&flags.device, "device", constants.DefaultDevice, "drive device node")
	cmd.Flags().StringVar(&flags.target, "target", "", "base URI for the remote transport (required)")
	cmd.Flags().Int64Var(&flags.minFreeBytes, "min-free-bytes", constants.DefaultMinFreeBytes, "post-rip free-space floor")
	cmd.Flags().BoolVar(&flags.journalDdrescueOutput, "journal-ddrescue-output", false, "redirect imager stdout/stderr to a host log namespace")
	cmd.Flags().BoolVarP(&flags.detach, "detach", "d", false, "run as a daemon")

	return cmd
}

func newTaggedLogger(tag string) logger.Logger {
	log, err := logger.NewTag(logger.Config{LogLevel: "info"}, tag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create %s logger: %v\n", tag, err)
		os.Exit(1)
	}
	return log
}

func runServe(cmd *cobra.Command, args []string) {
	log := newTaggedLogger("isopod")

	if err := validateFlags(); err != nil {
		lifecycle.FatalStartup(log, err)
	}

	if err := lifecycle.EnsureSingleInstance(constants.DefaultPIDFilePath); err != nil {
		lifecycle.FatalStartup(log, err)
	}

	if flags.detach {
		dctx := &daemon.Context{
			PidFileName: constants.DefaultPIDFilePath,
			PidFilePerm: 0o644,
			WorkDir:     flags.workdir,
			Umask:       0o27,
			Args:        append([]string{"isopod", "serve"}, os.Args[2:]...),
		}

		d, err := dctx.Reborn()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if d != nil {
			fmt.Println("isopod is running as a daemon")
			return
		}
		defer dctx.Release()
	}

	run(log)
}

// validateFlags enforces the startup preconditions spec.md §6/§7 requires
// before any controller is constructed: --target is set, --workdir and
// --device exist and are accessible in the mode the daemon needs them in,
// and the process runs with sufficient privilege to open the device.
func validateFlags() error {
	if flags.target == "" {
		return errs.New(errs.ConfigInvalidTarget, "--target is required")
	}

	info, err := os.Stat(flags.workdir)
	if err != nil || !info.IsDir() {
		return errs.New(errs.ConfigInvalidWorkdir, flags.workdir)
	}
	if unix.Access(flags.workdir, unix.W_OK) != nil {
		return errs.New(errs.ConfigInvalidWorkdir, flags.workdir+" is not writable")
	}

	if _, err := os.Stat(flags.device); err != nil {
		return errs.New(errs.ConfigInvalidDevice, flags.device)
	}
	if unix.Access(flags.device, unix.R_OK) != nil {
		return errs.New(errs.ConfigInsufficientPrivilege, flags.device+" is not readable")
	}

	if os.Geteuid() != 0 {
		return errs.New(errs.ConfigInsufficientPrivilege, "isopod must run as root-equivalent uid to open the drive device")
	}

	for _, tool := range []string{"ddrescue", "rsync"} {
		if _, err := exec.LookPath(tool); err != nil {
			return errs.New(errs.ConfigMissingTool, tool+" not found on PATH")
		}
	}

	return nil
}

func run(log logger.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lifecycle.RegisterContextCanceller(cancel)

	oracleLog := newTaggedLogger("oracle")
	devOracle := oracle.NewUdevadmReader(oracleLog, "udevadm")

	if _, ok, err := devOracle.Diskseq(ctx, flags.device); err != nil || !ok {
		lifecycle.FatalStartup(log, errs.New(errs.ConfigMissingDiskseq, flags.device))
	}

	reg, err := registry.Open(filepath.Join(flags.workdir, constants.RegistryFileName))
	if err != nil {
		lifecycle.FatalStartup(log, err)
	}
	lifecycle.RegisterShutdownHook(func() { reg.Close() })

	startupLog := newTaggedLogger("startup")
	if err := startup.Purge(flags.workdir, reg, startupLog); err != nil {
		lifecycle.FatalStartup(log, err)
	}

	bootID, err := bootid.Current()
	if err != nil {
		lifecycle.FatalStartup(log, err)
	}
	runtimeDir := filepath.Join(flags.workdir, "run")
	if err := os.MkdirAll(runtimeDir, 0o755); err != nil {
		lifecycle.FatalStartup(log, err)
	}
	freshBoot, err := bootid.IsFreshBoot(runtimeDir, bootID)
	if err != nil {
		lifecycle.FatalStartup(log, err)
	}

	ripperLog := newTaggedLogger("ripper")
	rip, err := ripper.New(ripper.Config{
		Device:                flags.device,
		Workdir:               flags.workdir,
		EventLogDir:           flags.workdir,
		MinFreeBytes:          flags.minFreeBytes,
		JournalDdrescueOutput: flags.journalDdrescueOutput,
		BootID:                bootID,
	}, devOracle, reg, ripperLog, freshBoot)
	if err != nil {
		lifecycle.FatalStartup(log, err)
	}

	snd := sender.New(sender.Config{
		Workdir:    flags.workdir,
		TargetBase: flags.target,
	}, reg, newTaggedLogger("sender"))

	disp := display.NewLogDisplay(newTaggedLogger("display"))
	rep := reporter.New(rip, reg, disp, newTaggedLogger("reporter"), time.Now)

	onFault := func(name string, err error) { lifecycle.FatalWorkerFault(log, name, err) }
	ripCtl := controller.New("ripper", rip, ripperLog, onFault)
	sendCtl := controller.New("sender", snd, newTaggedLogger("sender"), onFault)
	reportCtl := controller.New("reporter", rep, newTaggedLogger("reporter"), onFault)

	rip.SetPoller(ripCtl.Poll)
	snd.SetPoller(sendCtl.Poll)

	// A Ripper status change can make a disc sendable or change what the
	// Reporter should show; a successful send changes both the backlog
	// count the Reporter displays and the Sender's own next candidate.
	rip.OnStatusChange.Add(reportCtl.Poll)
	rip.OnStatusChange.Add(sendCtl.Poll)
	snd.OnDiscSent.Add(reportCtl.Poll)

	mon := udevmon.NewNetlinkMonitor(newTaggedLogger("udevmon"), flags.device)
	if err := rip.StartDeviceMonitor(mon); err != nil {
		lifecycle.FatalStartup(log, err)
	}

	lifecycle.RegisterShutdownHook(func() {
		log.Info("shutting down controllers")
		// The Ripper is drained first so a rip that finalizes to SENDABLE
		// during its cleanup pass is observable to the Sender and Reporter
		// shutting down after it.
		ripCtl.Cancel()
		ripCtl.Join()
		sendCtl.Cancel()
		sendCtl.Join()
		reportCtl.Cancel()
		reportCtl.Join()
	})

	ripCtl.Poll()
	sendCtl.Poll()
	reportCtl.Poll()

	log.Info("isopod started", "device", flags.device, "workdir", flags.workdir, "target", flags.target)
	lifecycle.HandleSignals(ctx, log)
}
