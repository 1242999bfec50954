package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klubi/hostel/pkg/apis/v1alpha1"
	"github.com/klubi/hostel/pkg/client"
)

func newReleaseCmd() *cobra.Command {
	var student string

	cmd := &cobra.Command{
		Use:   "release [allocation]",
		Short: "Release an active allocation",
		Long: `Mark an allocation Inactive and free its place in the room. The record
is kept as history. Requires the admin token.`,
		Example: `  hostel release 3f1c2a9e-...
  hostel release --student s-1001`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			switch {
			case len(args) == 1 && student == "":
				name = args[0]
			case len(args) == 0 && student != "":
				allocs, err := apiClient.ListAllocations(client.AllocationFilter{
					Phase:   v1alpha1.AllocationActive,
					Student: student,
				})
				if err != nil {
					return err
				}
				if len(allocs) == 0 {
					return fmt.Errorf("student %s has no active allocation", student)
				}
				name = allocs[0].Metadata.Name
			default:
				return fmt.Errorf("give either an allocation name or --student")
			}

			alloc, err := apiClient.Release(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "allocation/%s released (%s left %s)\n", alloc.Metadata.Name, alloc.Spec.Student, alloc.Spec.Room)
			return nil
		},
	}

	cmd.Flags().StringVar(&student, "student", "", "Release the active allocation of this student")

	return cmd
}
