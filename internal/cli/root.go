package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/klubi/hostel/internal/config"
	"github.com/klubi/hostel/pkg/client"
)

var (
	serverAddr string
	adminToken string
	apiClient  *client.Client
)

// NewRootCmd creates the top-level hostel CLI command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hostel",
		Short: "Compatibility-based hostel room allocation",
		Long: `Hostel registers students and rooms and assigns students to rooms
by pairwise lifestyle compatibility.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Skip client init for commands that don't need the API server.
			name := cmd.Name()
			if name == "serve" || name == "init" {
				return
			}
			apiClient = client.New(serverAddr).WithToken(adminToken)
		},
	}

	cmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:7117", "Hostel server address")
	cmd.PersistentFlags().StringVar(&adminToken, "token", os.Getenv(config.EnvPrefix+"_ADMIN_TOKEN"), "Admin bearer token (default $HOSTEL_ADMIN_TOKEN)")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table|json|yaml")

	cmd.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newApplyCmd(),
		newGetCmd(),
		newDescribeCmd(),
		newDeleteCmd(),
		newAllocateCmd(),
		newReleaseCmd(),
		newScoreCmd(),
		newStatusCmd(),
		newUICmd(),
	)

	return cmd
}
