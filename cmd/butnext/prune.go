package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/butnext/butnext/internal/buterr"
	"github.com/butnext/butnext/prune"
)

var pruneKeep int

func init() {
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "number of most recent snapshots to retain (capped by settings.max_snapshots, which also applies when omitted)")
}

var pruneCmd = &cobra.Command{
	Use:   "prune <target>",
	Short: "delete old snapshots and reclaim unreferenced blobs",
	Long:  "delete old snapshots and reclaim unreferenced blobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetName := args[0]

		c, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := openRepository(c)
		if err != nil {
			return err
		}

		keep := pruneKeep
		if max := c.Settings.MaxSnapshots; max > 0 && (keep == 0 || keep > max) {
			keep = max
		}

		report, err := prune.New(repo).Run(context.Background(), prune.Options{Target: targetName, Keep: keep})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d snapshots, %d blobs, reclaimed %d bytes\n",
			len(report.DeletedSnapshots), len(report.DeletedBlobs), report.ReclaimedBytes)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "check the repository's stored blobs for corruption and unreachable data",
	Long:  "check the repository's stored blobs for corruption and unreachable data",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := openRepository(c)
		if err != nil {
			return err
		}

		report, err := prune.Verify(context.Background(), repo)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "checked %d blobs\n", report.BlobsChecked)
		for _, f := range report.IntegrityFailures {
			fmt.Fprintf(out, "integrity failure: %s: %s\n", f.Digest, f.Reason)
		}
		for _, d := range report.UnreachableBlobs {
			fmt.Fprintf(out, "unreachable blob: %s\n", d)
		}
		if len(report.IntegrityFailures) > 0 {
			return fmt.Errorf("%w: %d blob(s) failed integrity check", buterr.ErrIntegrity, len(report.IntegrityFailures))
		}
		return nil
	},
}
