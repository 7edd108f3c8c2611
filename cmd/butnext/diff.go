package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/butnext/butnext/diff"
)

var diffDetail bool

func init() {
	diffCmd.Flags().BoolVar(&diffDetail, "detail", false, "report per-modified-entry size deltas")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old-id> <new-id>",
	Short: "diff two snapshots",
	Long:  "diff two snapshots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := openRepository(c)
		if err != nil {
			return err
		}

		ctx := context.Background()
		oldSnap, err := repo.LoadSnapshot(ctx, args[0])
		if err != nil {
			return err
		}
		newSnap, err := repo.LoadSnapshot(ctx, args[1])
		if err != nil {
			return err
		}

		result := diff.Compute(oldSnap, newSnap)
		out := cmd.OutOrStdout()

		for _, e := range result.Added {
			fmt.Fprintf(out, "+ %s\n", e.Path)
		}
		for _, e := range result.Removed {
			fmt.Fprintf(out, "- %s\n", e.Path)
		}
		for _, e := range result.Modified {
			if diffDetail {
				fmt.Fprintf(out, "~ %s (%+d bytes)\n", e.Path, e.SizeDelta)
			} else {
				fmt.Fprintf(out, "~ %s\n", e.Path)
			}
		}
		fmt.Fprintf(out, "%d unchanged\n", result.UnchangedCount)
		return nil
	},
}
