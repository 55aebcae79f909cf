package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eringen/frontpage"
)

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load posts and categories from a YAML fixtures file",
		Long: `Load posts and categories from a YAML fixtures file into the configured store.

Example fixtures:
  categories:
    - key: politics
      name: Politics
  posts:
    - title: Budget passes
      content: The budget passed on Tuesday.
      category: politics
      language: en
      visibility: public
      isPublished: true`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fixtures, err := frontpage.LoadFixtures(file)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			app := frontpage.New(cfg, frontpage.ViewFuncs{})
			defer app.Close()

			store, err := app.Connect(ctx)
			if err != nil {
				return err
			}
			res, err := frontpage.Seed(ctx, store, fixtures, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d categories and %d posts into %s\n", res.Categories, res.Posts, cfg.StoreDriver)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "fixtures.yaml", "fixtures file")
	return cmd
}
