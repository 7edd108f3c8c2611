package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/butnext/butnext/backup"
	"github.com/butnext/butnext/internal/buterr"
	"github.com/butnext/butnext/internal/dcontext"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "re-run backup for every target on settings.interval_seconds",
	Long:  "re-run backup for every target on settings.interval_seconds, until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if c.Settings.IntervalSeconds <= 0 {
			return fmt.Errorf("%w: settings.interval_seconds must be > 0 for watch", buterr.ErrConfig)
		}

		repo, err := openRepository(c)
		if err != nil {
			return err
		}
		cipher, err := resolveCipher(c)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		logger := dcontext.GetLogger(ctx)

		ticker := time.NewTicker(time.Duration(c.Settings.IntervalSeconds) * time.Second)
		defer ticker.Stop()

		runAll := func() {
			for name, target := range c.Backup {
				report, err := backup.New(repo).Run(ctx, backup.Options{
					Target:          name,
					SourceRoot:      target.From,
					ExcludePatterns: target.ExcludePatterns,
					Codec:           c.CodecFor(name),
					CodecLevel:      c.Settings.CodecLevel,
					Cipher:          cipher,
				})
				if err != nil {
					logger.WithError(err).Errorf("scheduled backup of %s failed", name)
					continue
				}
				logger.Infof("scheduled backup of %s produced snapshot %s", name, report.Snapshot.ID)
			}
		}

		runAll()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runAll()
			}
		}
	},
}
