package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/hostel/internal/scheduler"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

func newAllocateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Run room allocation now",
		Long: `Assign every student who has submitted preferences and holds no room.

Students are placed greedily in registration order; each goes to the room
with the best average compatibility with its current occupants, provided
that score reaches the threshold. Requires the admin token.

With --dry-run, only report who would be considered.`,
		Example: `  hostel allocate --token $HOSTEL_ADMIN_TOKEN
  hostel allocate --dry-run
  hostel allocate -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return allocateDryRun()
			}

			result, err := apiClient.RunAllocation()
			if err != nil {
				return err
			}
			return printAllocationResult(result)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show candidates and open rooms without allocating")

	return cmd
}

func printAllocationResult(result *v1alpha1.AllocationResult) error {
	if outputFormat == "json" || outputFormat == "yaml" {
		return printOutput(result, nil, nil)
	}

	color.New(color.FgCyan, color.Bold).Fprintln(stdout, result.Message)
	if len(result.Details) > 0 {
		fmt.Fprintln(stdout)
		rows := make([][]string, 0, len(result.Details))
		for _, d := range result.Details {
			rows = append(rows, []string{d.StudentID, d.StudentName, d.Room, formatScore(d.Score, scheduler.DefaultMinScore)})
		}
		printTable([]string{"STUDENT", "NAME", "ROOM", "SCORE"}, rows)
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintln(stdout)
		color.New(color.Bold).Fprintln(stdout, "Not allocated:")
		rows := make([][]string, 0, len(result.Skipped))
		for _, s := range result.Skipped {
			best := "-"
			if s.BestRoom != "" {
				best = formatScore(s.BestScore, scheduler.DefaultMinScore)
			}
			rows = append(rows, []string{s.StudentID, orNone(s.BestRoom), best})
		}
		printTable([]string{"STUDENT", "BEST-ROOM", "BEST-SCORE"}, rows)
	}
	return nil
}

func allocateDryRun() error {
	ready, err := apiClient.Readiness()
	if err != nil {
		return err
	}
	if outputFormat == "json" || outputFormat == "yaml" {
		return printOutput(ready, nil, nil)
	}

	fmt.Fprintf(stdout, "Candidates: %d of %d students\n", ready.CandidateCount, ready.TotalStudents)
	fmt.Fprintf(stdout, "Open rooms: %d of %d rooms\n", ready.AvailableRooms, ready.TotalRooms)

	var rows [][]string
	for _, s := range ready.Students {
		if s.HasPreferences && !s.HasAllocation {
			rows = append(rows, []string{s.Name, s.FullName})
		}
	}
	if len(rows) > 0 {
		fmt.Fprintln(stdout)
		printTable([]string{"CANDIDATE", "FULL-NAME"}, rows)
	}
	return nil
}
