package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newPageCmd(a *app) *cobra.Command {
	var details bool

	cmd := &cobra.Command{
		Use:     "page N",
		Short:   "List the cameras of a single listing page",
		Example: `  rosacams page 2 --details`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := strconv.Atoi(args[0])
			if err != nil || page < 1 {
				return fmt.Errorf("page must be a positive integer (got %q)", args[0])
			}

			sess, err := a.open(cmd.Context(), page)
			if err != nil {
				return err
			}
			defer sess.close()

			cameras, err := sess.scraper.Next(cmd.Context(), details)
			if err != nil {
				return err
			}
			if len(cameras) == 0 {
				a.logger.Info().Int("page", page).Msg("No cameras on page")
				return nil
			}
			return a.printCameras(cameras)
		},
	}

	cmd.Flags().BoolVar(&details, "details", false, "Fetch the widget JSON for every camera")
	return cmd
}
