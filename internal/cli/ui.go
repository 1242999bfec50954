package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klubi/hostel/internal/tui"
)

func newUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ui",
		Aliases: []string{"top", "dashboard"},
		Short:   "Launch the interactive terminal UI",
		Long:    "Launch a terminal UI for browsing students, rooms and allocations and for running allocation.",
		Example: `  hostel ui
  hostel ui --server http://127.0.0.1:7117 --token $HOSTEL_ADMIN_TOKEN`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := tui.NewApp(apiClient)
			if err := app.Run(); err != nil {
				return fmt.Errorf("UI error: %w", err)
			}
			return nil
		},
	}

	return cmd
}
