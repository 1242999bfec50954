package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <resource-type> <name>",
		Short: "Delete a resource",
		Long: `Delete a student or a room.

Allocated students and occupied rooms cannot be deleted; release the
allocation first. Allocation records are kept as history and cannot be
deleted.`,
		Example: `  hostel delete student s-1001
  hostel delete room C102`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resourceType := normalizeResourceType(args[0])
			name := args[1]

			switch resourceType {
			case "students":
				if err := apiClient.DeleteStudent(name); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "student/%s deleted\n", name)

			case "rooms":
				if err := apiClient.DeleteRoom(name); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "room/%s deleted\n", name)

			case "allocations":
				return fmt.Errorf("allocations are history; use 'hostel release %s' instead", name)

			default:
				return fmt.Errorf("unknown resource type %q. Valid types: students, rooms", args[0])
			}

			return nil
		},
	}

	return cmd
}
