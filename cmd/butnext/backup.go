package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/butnext/butnext/backup"
	"github.com/butnext/butnext/internal/buterr"
)

var backupCmd = &cobra.Command{
	Use:   "backup <target>",
	Short: "back up one configured target",
	Long:  "back up one configured target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetName := args[0]

		c, err := loadConfig()
		if err != nil {
			return err
		}
		target, ok := c.Backup[targetName]
		if !ok {
			return fmt.Errorf("%w: unknown backup target %q", buterr.ErrConfig, targetName)
		}

		repo, err := openRepository(c)
		if err != nil {
			return err
		}
		cipher, err := resolveCipher(c)
		if err != nil {
			return err
		}

		report, err := backup.New(repo).Run(context.Background(), backup.Options{
			Target:          targetName,
			SourceRoot:      target.From,
			ExcludePatterns: target.ExcludePatterns,
			Codec:           c.CodecFor(targetName),
			CodecLevel:      c.Settings.CodecLevel,
			Cipher:          cipher,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s: %d files, %d unique bytes, %d deduped bytes\n",
			report.Snapshot.ID, report.Snapshot.Stats.TotalFiles, report.Snapshot.Stats.UniqueBytes, report.Snapshot.Stats.DedupedBytes)
		for _, w := range report.Warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: %s: %s\n", w.Path, w.Reason)
		}
		return nil
	},
}
