package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var (
		details   bool
		startPage int
		maxPages  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cameras page by page until the listing runs out",
		Example: `  rosacams list --details
  rosacams list --json --start-page 2 --max-pages 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if startPage < 1 {
				return fmt.Errorf("--start-page must be >= 1 (got %d)", startPage)
			}
			if maxPages < 0 {
				return fmt.Errorf("--max-pages must be >= 0 (got %d)", maxPages)
			}

			sess, err := a.open(cmd.Context(), startPage)
			if err != nil {
				return err
			}
			defer sess.close()

			pages, total := 0, 0
			for cameras, err := range sess.scraper.Pages(cmd.Context(), details) {
				if err != nil {
					return err
				}
				if err := a.printCameras(cameras); err != nil {
					return err
				}
				pages++
				total += len(cameras)
				if maxPages > 0 && pages >= maxPages {
					break
				}
			}

			a.logger.Info().Int("pages", pages).Int("cameras", total).Msg("Listing done")
			return nil
		},
	}

	cmd.Flags().BoolVar(&details, "details", false, "Fetch the widget JSON for every camera")
	cmd.Flags().IntVar(&startPage, "start-page", 1, "First listing page to fetch")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Stop after this many pages (0 = until exhausted)")
	return cmd
}
