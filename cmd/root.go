// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/ondisk/isopod/cmd/serve"
	"github.com/ondisk/isopod/cmd/version"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "isopod",
		Short: "isopod: unattended optical disc ripping and archival daemon",
	}

	rootCmd.AddCommand(serve.NewServeCmd())
	rootCmd.AddCommand(version.NewVersionCmd())

	return rootCmd
}
