package main

import (
	"github.com/spf13/cobra"

	"github.com/butnext/butnext/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the butnext version",
	Long:  "print the butnext version",
	RunE: func(cmd *cobra.Command, args []string) error {
		version.FprintVersion(cmd.OutOrStdout())
		return nil
	},
}
