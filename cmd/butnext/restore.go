package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/butnext/butnext/restore"
)

var (
	restoreOutput string
	restoreOnly   string
)

func init() {
	restoreCmd.Flags().StringVar(&restoreOutput, "output", "", "directory to restore into (required)")
	restoreCmd.Flags().StringVar(&restoreOnly, "only", "", "restrict restore to paths with this prefix")
	restoreCmd.MarkFlagRequired("output")
}

var restoreCmd = &cobra.Command{
	Use:   "restore <snapshot-id>",
	Short: "restore a snapshot",
	Long:  "restore a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := openRepository(c)
		if err != nil {
			return err
		}
		cipher, err := resolveCipher(c)
		if err != nil {
			return err
		}

		report, err := restore.New(repo).Run(context.Background(), restore.Options{
			SnapshotID: args[0],
			OutputRoot: restoreOutput,
			PathPrefix: restoreOnly,
			Cipher:     cipher,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "restored %d files (%d bytes) to %s\n", report.FilesWritten, report.BytesWritten, restoreOutput)
		for _, w := range report.Warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: %s: %s\n", w.Path, w.Reason)
		}
		return nil
	},
}
