package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/hostel/internal/compat"
	"github.com/klubi/hostel/internal/scheduler"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

const timeLayout = "2006-01-02 15:04:05"

func newDescribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe <resource-type> <name>",
		Short: "Show detailed info about a resource",
		Long:  "Print a detailed description of a specific resource.",
		Example: `  hostel describe student s-1001
  hostel describe room A101
  hostel describe allocation 3f1c2a9e-...`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resourceType := normalizeResourceType(args[0])
			name := args[1]

			switch resourceType {
			case "students":
				return describeStudent(name)
			case "rooms":
				return describeRoom(name)
			case "allocations":
				return describeAllocation(name)
			default:
				return fmt.Errorf("unknown resource type %q", args[0])
			}
		},
	}

	return cmd
}

func describeStudent(name string) error {
	st, err := apiClient.GetStudent(name)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)

	bold.Fprintln(stdout, "Student:")
	printField("  Name", st.Metadata.Name)
	printField("  Full Name", st.Spec.FullName)
	printField("  UID", st.Metadata.UID)
	printField("  Labels", formatLabels(st.Metadata.Labels))
	printField("  Registered", st.Metadata.CreatedAt.Format(timeLayout))
	printField("  Email", st.Spec.Email)
	printField("  Course", st.Spec.Course)
	if st.Spec.Year > 0 {
		printField("  Year", strconv.Itoa(st.Spec.Year))
	}

	fmt.Fprintln(stdout)
	bold.Fprintln(stdout, "Preferences:")
	if !st.HasPreferences() {
		fmt.Fprintln(stdout, "  <not submitted>")
	} else {
		p := st.Spec.Preferences
		for _, spec := range compat.Attributes() {
			printField("  "+string(spec.Attribute), p.Values[string(spec.Attribute)])
		}
		printField("  interests", p.Interests)
		if p.DietaryPreferences != "" {
			printField("  dietary", p.DietaryPreferences)
		}
		printField("  Submitted", p.SubmittedAt.Format(timeLayout))
	}

	fmt.Fprintln(stdout)
	bold.Fprintln(stdout, "Allocation:")
	if !st.IsAllocated() {
		printField("  Room", "")
		return nil
	}
	printField("  Room", st.Status.Room)
	printField("  Allocation", st.Status.Allocation)

	mates, err := apiClient.Roommates(name)
	if err != nil {
		return fmt.Errorf("listing roommates: %w", err)
	}
	names := make([]string, 0, len(mates))
	for _, m := range mates {
		names = append(names, m.Metadata.Name)
	}
	printField("  Roommates", formatStringSlice(names))
	return nil
}

func describeRoom(name string) error {
	r, err := apiClient.GetRoom(name)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)

	bold.Fprintln(stdout, "Room:")
	printField("  Name", r.Metadata.Name)
	printField("  UID", r.Metadata.UID)
	printField("  Labels", formatLabels(r.Metadata.Labels))
	printField("  Created", r.Metadata.CreatedAt.Format(timeLayout))

	fmt.Fprintln(stdout)
	bold.Fprintln(stdout, "Spec:")
	printField("  Capacity", strconv.Itoa(r.Spec.Capacity))
	printField("  Building", r.Spec.Building)
	printField("  Floor", strconv.Itoa(r.Spec.Floor))
	printField("  Amenities", formatStringSlice(r.Spec.Amenities))

	fmt.Fprintln(stdout)
	bold.Fprintln(stdout, "Status:")
	printField("  Phase", colorPhase(string(r.Status.Phase)))
	printField("  Occupied", fmt.Sprintf("%d/%d", r.Status.Occupied, r.Spec.Capacity))
	printField("  Occupants", formatStringSlice(r.Status.Occupants))
	return nil
}

func describeAllocation(name string) error {
	a, err := apiClient.GetAllocation(name)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)

	bold.Fprintln(stdout, "Allocation:")
	printField("  Name", a.Metadata.Name)
	printField("  Student", a.Spec.Student)
	printField("  Room", a.Spec.Room)
	printField("  Score", formatScore(a.Spec.Score, scheduler.DefaultMinScore))
	printField("  Phase", colorPhase(string(a.Status.Phase)))
	printField("  Allocated", a.Status.AllocatedAt.Format(timeLayout))
	if a.Status.Phase == v1alpha1.AllocationInactive {
		printField("  Released", a.Status.ReleasedAt.Format(timeLayout))
	}
	return nil
}

func printField(label, value string) {
	if value == "" {
		value = "<none>"
	}
	fmt.Fprintf(stdout, "%-26s%s\n", label+":", value)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return "<none>"
	}
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func formatStringSlice(items []string) string {
	if len(items) == 0 {
		return "<none>"
	}
	return strings.Join(items, ", ")
}
