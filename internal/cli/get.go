package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klubi/hostel/internal/scheduler"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
	"github.com/klubi/hostel/pkg/client"
)

func newGetCmd() *cobra.Command {
	var filter client.AllocationFilter

	cmd := &cobra.Command{
		Use:   "get <resource-type> [name]",
		Short: "List or get resources",
		Long: `Display one or many resources.

Resource types: students (student, st), rooms (room, rm), allocations (allocation, alloc)`,
		Example: `  hostel get students
  hostel get rooms A101
  hostel get allocations --phase Active
  hostel get allocations --room B201 -o yaml`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resourceType := normalizeResourceType(args[0])

			var name string
			if len(args) > 1 {
				name = args[1]
			}

			switch resourceType {
			case "students":
				return getStudents(name)
			case "rooms":
				return getRooms(name)
			case "allocations":
				return getAllocations(name, filter)
			default:
				return fmt.Errorf("unknown resource type %q. Valid types: students, rooms, allocations", args[0])
			}
		},
	}

	cmd.Flags().StringVar((*string)(&filter.Phase), "phase", "", "Filter allocations by phase (Active|Inactive)")
	cmd.Flags().StringVar(&filter.Room, "room", "", "Filter allocations by room")
	cmd.Flags().StringVar(&filter.Student, "student", "", "Filter allocations by student")

	return cmd
}

// normalizeResourceType maps various aliases to canonical resource type names.
func normalizeResourceType(t string) string {
	t = strings.ToLower(t)
	switch t {
	case "student", "students", "st":
		return "students"
	case "room", "rooms", "rm":
		return "rooms"
	case "allocation", "allocations", "alloc", "allocs":
		return "allocations"
	default:
		return t
	}
}

func getStudents(name string) error {
	var students []v1alpha1.Student
	if name != "" {
		st, err := apiClient.GetStudent(name)
		if err != nil {
			return err
		}
		students = []v1alpha1.Student{*st}
	} else {
		var err error
		if students, err = apiClient.ListStudents(); err != nil {
			return err
		}
		if len(students) == 0 {
			fmt.Fprintln(stdout, "No students found.")
			return nil
		}
	}

	rows := make([][]string, 0, len(students))
	for i := range students {
		rows = append(rows, studentToRow(&students[i]))
	}
	var v interface{} = students
	if name != "" {
		v = &students[0]
	}
	return printOutput(v, studentHeaders(), rows)
}

func getRooms(name string) error {
	var rooms []v1alpha1.Room
	if name != "" {
		r, err := apiClient.GetRoom(name)
		if err != nil {
			return err
		}
		rooms = []v1alpha1.Room{*r}
	} else {
		var err error
		if rooms, err = apiClient.ListRooms(); err != nil {
			return err
		}
		if len(rooms) == 0 {
			fmt.Fprintln(stdout, "No rooms found.")
			return nil
		}
	}

	rows := make([][]string, 0, len(rooms))
	for i := range rooms {
		rows = append(rows, roomToRow(&rooms[i]))
	}
	var v interface{} = rooms
	if name != "" {
		v = &rooms[0]
	}
	return printOutput(v, roomHeaders(), rows)
}

func getAllocations(name string, filter client.AllocationFilter) error {
	var allocs []v1alpha1.Allocation
	if name != "" {
		a, err := apiClient.GetAllocation(name)
		if err != nil {
			return err
		}
		allocs = []v1alpha1.Allocation{*a}
	} else {
		var err error
		if allocs, err = apiClient.ListAllocations(filter); err != nil {
			return err
		}
		if len(allocs) == 0 {
			fmt.Fprintln(stdout, "No allocations found.")
			return nil
		}
	}

	rows := make([][]string, 0, len(allocs))
	for i := range allocs {
		rows = append(rows, allocationToRow(&allocs[i]))
	}
	var v interface{} = allocs
	if name != "" {
		v = &allocs[0]
	}
	return printOutput(v, allocationHeaders(), rows)
}

// --- Table headers and row converters ---

func studentHeaders() []string {
	return []string{"NAME", "FULL-NAME", "COURSE", "PREFERENCES", "ROOM", "AGE"}
}

func studentToRow(st *v1alpha1.Student) []string {
	prefs := "no"
	if st.HasPreferences() {
		prefs = strconv.Itoa(len(st.Spec.Preferences.Values)) + " answers"
	}
	return []string{
		st.Metadata.Name,
		st.Spec.FullName,
		orNone(st.Spec.Course),
		prefs,
		orNone(st.Status.Room),
		formatAge(st.Metadata.CreatedAt),
	}
}

func roomHeaders() []string {
	return []string{"NAME", "BUILDING", "FLOOR", "OCCUPIED", "PHASE", "AGE"}
}

func roomToRow(r *v1alpha1.Room) []string {
	return []string{
		r.Metadata.Name,
		orNone(r.Spec.Building),
		strconv.Itoa(r.Spec.Floor),
		fmt.Sprintf("%d/%d", r.Status.Occupied, r.Spec.Capacity),
		colorPhase(string(r.Status.Phase)),
		formatAge(r.Metadata.CreatedAt),
	}
}

func allocationHeaders() []string {
	return []string{"NAME", "STUDENT", "ROOM", "SCORE", "PHASE", "AGE"}
}

func allocationToRow(a *v1alpha1.Allocation) []string {
	return []string{
		a.Metadata.Name,
		a.Spec.Student,
		a.Spec.Room,
		formatScore(a.Spec.Score, scheduler.DefaultMinScore),
		colorPhase(string(a.Status.Phase)),
		formatAge(a.Status.AllocatedAt),
	}
}
