package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "initialize a new repository",
	Long:  "initialize a new repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := openRepository(c)
		if err != nil {
			return err
		}
		if err := repo.Init(context.Background()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "initialized repository at %s\n", c.Settings.RepoPath)
		return nil
	},
}
