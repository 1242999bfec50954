package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/hostel/internal/scheduler"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

func newStatusCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the hostel dashboard",
		Long:  "Display occupancy, pending students and the average compatibility of active allocations.",
		Example: `  hostel status
  hostel status --watch
  hostel status -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return statusWatch(interval)
			}
			return statusPrint()
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Continuously refresh")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Refresh interval for --watch")

	return cmd
}

func statusPrint() error {
	if err := apiClient.Healthz(); err != nil {
		color.Red("Hostel server: UNREACHABLE")
		return fmt.Errorf("cannot reach server: %w", err)
	}

	stats, err := apiClient.Stats()
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}
	ready, err := apiClient.Readiness()
	if err != nil {
		return fmt.Errorf("reading readiness: %w", err)
	}

	if outputFormat == "json" || outputFormat == "yaml" {
		return printOutput(struct {
			Stats     *v1alpha1.AllocationStats `json:"stats" yaml:"stats"`
			Readiness *v1alpha1.Readiness       `json:"readiness" yaml:"readiness"`
		}{stats, ready}, nil, nil)
	}

	color.New(color.FgCyan, color.Bold).Fprintln(stdout, "Hostel Status")
	fmt.Fprintln(stdout, "=============")
	fmt.Fprintln(stdout)

	fmt.Fprintf(stdout, "Students: %d total", stats.TotalStudents)
	var parts []string
	if allocated := stats.ActiveAllocations; allocated > 0 {
		parts = append(parts, color.GreenString("%d allocated", allocated))
	}
	if stats.PendingStudents > 0 {
		parts = append(parts, color.YellowString("%d awaiting a room", stats.PendingStudents))
	}
	if noPrefs := countWithoutPreferences(ready); noPrefs > 0 {
		parts = append(parts, fmt.Sprintf("%d without preferences", noPrefs))
	}
	printParts(parts)

	fmt.Fprintf(stdout, "Rooms: %d total", stats.TotalRooms)
	parts = parts[:0]
	if stats.OccupiedRooms > 0 {
		parts = append(parts, fmt.Sprintf("%d occupied", stats.OccupiedRooms))
	}
	if stats.AvailableRooms > 0 {
		parts = append(parts, color.GreenString("%d with space", stats.AvailableRooms))
	}
	if full := fullRooms(ready); full > 0 {
		parts = append(parts, color.RedString("%d full", full))
	}
	printParts(parts)

	spare := 0
	for _, r := range ready.Rooms {
		if r.IsAvailable {
			spare += r.Capacity - r.Occupied
		}
	}
	fmt.Fprintf(stdout, "Spare beds: %d\n", spare)

	avg := "-"
	if stats.ActiveAllocations > 0 {
		avg = formatScore(stats.AverageScore, scheduler.DefaultMinScore)
	}
	fmt.Fprintf(stdout, "Average compatibility: %s\n", avg)

	return nil
}

func printParts(parts []string) {
	if len(parts) > 0 {
		fmt.Fprintf(stdout, " (%s)", strings.Join(parts, ", "))
	}
	fmt.Fprintln(stdout)
}

func countWithoutPreferences(r *v1alpha1.Readiness) int {
	n := 0
	for _, s := range r.Students {
		if !s.HasPreferences {
			n++
		}
	}
	return n
}

func fullRooms(r *v1alpha1.Readiness) int {
	n := 0
	for _, room := range r.Rooms {
		if room.Phase != v1alpha1.RoomMaintenance && room.Occupied >= room.Capacity {
			n++
		}
	}
	return n
}

func statusWatch(interval time.Duration) error {
	fmt.Fprintln(stdout, "Watching status (Ctrl+C to stop)...")
	fmt.Fprintln(stdout)

	for {
		// Clear screen with ANSI escape.
		fmt.Fprint(stdout, "\033[2J\033[H")

		if err := statusPrint(); err != nil {
			fmt.Fprintf(stdout, "\nError: %v\n", err)
		}

		fmt.Fprintf(stdout, "\nLast updated: %s\n", time.Now().Format("15:04:05"))
		time.Sleep(interval)
	}
}
