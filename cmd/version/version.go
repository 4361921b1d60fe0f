// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"

	"github.com/ondisk/isopod/internal/constants"
	"github.com/spf13/cobra"
)

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show isopod version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("isopod %s\n", constants.Version)
		},
	}
}
