package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klubi/hostel/pkg/apis/v1alpha1"
	"github.com/klubi/hostel/pkg/manifest"
)

func newApplyCmd() *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "apply -f <file>",
		Short: "Apply a manifest file",
		Long:  "Create or update students and rooms from a YAML manifest file.",
		Example: `  hostel apply -f hostel.yaml
  hostel apply -f students.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := manifest.ParseFile(filename)
			if err != nil {
				return fmt.Errorf("parsing manifest %s: %w", filename, err)
			}

			if len(resources) == 0 {
				fmt.Fprintln(stdout, "No resources found in manifest.")
				return nil
			}

			for _, resource := range resources {
				kind, name := resourceIdentity(resource)

				if _, err := apiClient.Apply(resource); err != nil {
					return fmt.Errorf("applying %s/%s: %w", kind, name, err)
				}

				fmt.Fprintf(stdout, "%s/%s configured\n", kind, name)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&filename, "filename", "f", "", "Path to manifest file (required)")
	cmd.MarkFlagRequired("filename")

	return cmd
}

// resourceIdentity extracts the kind and name from a typed resource.
func resourceIdentity(resource interface{}) (kind, name string) {
	switch r := resource.(type) {
	case *v1alpha1.Student:
		return r.Kind, r.Metadata.Name
	case *v1alpha1.Room:
		return r.Kind, r.Metadata.Name
	default:
		return "Unknown", "unknown"
	}
}
