package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/hostel/pkg/manifest"
)

func newInitCmd() *cobra.Command {
	var (
		outputFile  string
		withStudent bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter hostel manifest",
		Long: `Create a manifest in the current directory with the standard set of
rooms: four doubles in block A, three triples in block B and two quads in
block C. Customize it and load it with 'hostel apply -f'.`,
		Example: `  hostel init
  hostel init --with-student
  hostel init --output-file rooms.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			var resources []interface{}
			for _, r := range manifest.SampleRooms() {
				resources = append(resources, r)
			}
			if withStudent {
				resources = append(resources, manifest.SampleStudent())
			}
			content, err := manifest.Marshal(resources...)
			if err != nil {
				return fmt.Errorf("rendering manifest: %w", err)
			}

			outputPath := filepath.Join(cwd, outputFile)
			if _, err := os.Stat(outputPath); err == nil {
				return fmt.Errorf("file %s already exists. Use a different name with --output-file", outputFile)
			}
			if err := os.WriteFile(outputPath, content, 0644); err != nil {
				return fmt.Errorf("writing manifest file: %w", err)
			}

			color.New(color.FgCyan, color.Bold).Fprintln(stdout, "Hostel manifest written!")
			fmt.Fprintln(stdout)
			fmt.Fprintf(stdout, "  Manifest: %s\n", outputPath)
			fmt.Fprintf(stdout, "  Resources: %d\n", len(resources))
			fmt.Fprintln(stdout)

			color.New(color.Bold).Fprintln(stdout, "Next steps:")
			fmt.Fprintln(stdout, "  1. Start the server (if not running):")
			fmt.Fprintln(stdout, "     hostel serve")
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, "  2. Apply the manifest:")
			fmt.Fprintf(stdout, "     hostel apply -f %s\n", outputFile)
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, "  3. Allocate and check the result:")
			fmt.Fprintln(stdout, "     hostel allocate")
			fmt.Fprintln(stdout, "     hostel get allocations")

			return nil
		},
	}

	cmd.Flags().StringVar(&outputFile, "output-file", "hostel.yaml", "Output manifest filename")
	cmd.Flags().BoolVar(&withStudent, "with-student", false, "Include an example student with preferences")

	return cmd
}
