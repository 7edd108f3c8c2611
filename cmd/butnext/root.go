package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/butnext/butnext/config"
	"github.com/butnext/butnext/internal/dcontext"
)

var configPath string

// RootCmd is the main command for the butnext binary.
var RootCmd = &cobra.Command{
	Use:           "butnext",
	Short:         "butnext is an incremental, deduplicating, optionally encrypted backup engine",
	Long:          "butnext is an incremental, deduplicating, optionally encrypted backup engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "butnext.yaml", "path to the configuration file")

	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(backupCmd)
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(diffCmd)
	RootCmd.AddCommand(restoreCmd)
	RootCmd.AddCommand(pruneCmd)
	RootCmd.AddCommand(verifyCmd)
	RootCmd.AddCommand(watchCmd)
	RootCmd.AddCommand(versionCmd)

	dcontext.SetDefaultLogger(logrus.NewEntry(logrus.StandardLogger()))
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func fatalUsage(cmd *cobra.Command, format string, args ...any) error {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return cmd.Usage()
}
