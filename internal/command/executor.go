// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/ondisk/isopod/internal/errs"
	"github.com/stratastor/logger"
)

// dangerousChars are rejected in command names and arguments to rule out
// shell-metacharacter smuggling even though commands are exec'd directly
// (never through a shell).
var dangerousChars = "&|><$`\\[];{}"

const defaultCommandTimeout = 30 * time.Second

// ExecCommand runs a short-lived command to completion and returns its
// combined output. It is used for the Device Oracle's blocking udevadm
// reads, never for the long-running imager or transport subprocesses
// (see internal/procsup for those).
func ExecCommand(ctx context.Context, log logger.Logger, name string, args ...string) ([]byte, error) {
	if err := validateCommand(name, args); err != nil {
		return nil, err
	}

	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, defaultCommandTimeout)
		defer cancel()
	}

	cmdString := shellquote.Join(append([]string{name}, args...)...)
	log.Debug("executing command", "cmd", cmdString)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = []string{}

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Error("command exited non-zero",
				"cmd", cmdString,
				"exit_code", exitErr.ExitCode(),
				"output", string(output))
			return output, errs.NewCommandError(cmdString, exitErr.ExitCode(), string(output))
		}

		log.Error("command failed to start", "cmd", cmdString, "err", err)
		return output, errs.Wrap(errs.New(errs.CommandStartFailed, err.Error()), errs.CommandStartFailed)
	}

	return output, nil
}

func validateCommand(name string, args []string) error {
	if name == "" {
		return errs.New(errs.CommandNotFound, "empty command")
	}
	if !strings.HasPrefix(name, "/") && strings.ContainsAny(name, "/\\") {
		return errs.New(errs.CommandNotFound, "relative paths are not allowed for commands")
	}
	if strings.ContainsAny(name, dangerousChars) {
		return errs.New(errs.CommandNotFound, "command contains invalid characters")
	}
	for _, arg := range args {
		if strings.ContainsAny(arg, dangerousChars) {
			return errs.New(errs.CommandNotFound, fmt.Sprintf("argument %q contains invalid characters", arg))
		}
	}
	if len(args) > 64 {
		return errs.New(errs.CommandNotFound, "too many arguments")
	}
	return nil
}
