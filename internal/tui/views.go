package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/klubi/hostel/internal/compat"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// tableData is one rendered view. colorColumn, when not -1, is passed
// through color to tint its cells.
type tableData struct {
	headers     []string
	rows        [][]string
	colorColumn int
	color       func(string) tcell.Color
}

// matchesFilter returns true if any of the values contain filter, which must
// already be lower case.
func matchesFilter(filter string, values ...string) bool {
	if filter == "" {
		return true
	}
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), filter) {
			return true
		}
	}
	return false
}

func studentTable(students []v1alpha1.Student, filter string) tableData {
	t := tableData{
		headers:     []string{"NAME", "FULL-NAME", "COURSE", "PREFERENCES", "ROOM", "AGE"},
		colorColumn: 3,
		color: func(s string) tcell.Color {
			if s == "yes" {
				return tcell.ColorGreen
			}
			return tcell.ColorGray
		},
	}
	for _, s := range students {
		prefs := "no"
		if s.HasPreferences() {
			prefs = "yes"
		}
		room := s.Status.Room
		if room == "" {
			room = "-"
		}
		row := []string{s.Metadata.Name, s.Spec.FullName, s.Spec.Course, prefs, room, formatAge(s.Metadata.CreatedAt)}
		if matchesFilter(filter, row...) {
			t.rows = append(t.rows, row)
		}
	}
	return t
}

func roomTable(rooms []v1alpha1.Room, filter string) tableData {
	t := tableData{
		headers:     []string{"NAME", "BUILDING", "FLOOR", "OCCUPIED", "PHASE", "OCCUPANTS"},
		colorColumn: 4,
		color:       phaseColor,
	}
	for _, r := range rooms {
		row := []string{
			r.Metadata.Name,
			r.Spec.Building,
			strconv.Itoa(r.Spec.Floor),
			fmt.Sprintf("%d/%d", r.Status.Occupied, r.Spec.Capacity),
			string(roomPhase(&r)),
			strings.Join(r.Status.Occupants, ","),
		}
		if matchesFilter(filter, row...) {
			t.rows = append(t.rows, row)
		}
	}
	return t
}

// allocationTable lists active allocations before history, each group
// newest first.
func allocationTable(allocs []v1alpha1.Allocation, filter string) tableData {
	t := tableData{
		headers:     []string{"NAME", "STUDENT", "ROOM", "SCORE", "PHASE", "AGE"},
		colorColumn: 4,
		color:       phaseColor,
	}
	sorted := append([]v1alpha1.Allocation(nil), allocs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsActive() != sorted[j].IsActive() {
			return sorted[i].IsActive()
		}
		return sorted[i].Status.AllocatedAt.After(sorted[j].Status.AllocatedAt)
	})
	for _, al := range sorted {
		row := []string{
			al.Metadata.Name,
			al.Spec.Student,
			al.Spec.Room,
			strconv.FormatFloat(al.Spec.Score, 'f', 2, 64),
			string(al.Status.Phase),
			formatAge(al.Status.AllocatedAt),
		}
		if matchesFilter(filter, row...) {
			t.rows = append(t.rows, row)
		}
	}
	return t
}

func roomPhase(r *v1alpha1.Room) v1alpha1.RoomPhase {
	if r.Status.Phase == "" {
		return v1alpha1.RoomAvailable
	}
	return r.Status.Phase
}

func describeStudent(st *v1alpha1.Student, roommates []v1alpha1.Student) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]Name:[-::-]        %s\n", st.Metadata.Name)
	fmt.Fprintf(&b, "[::b]Full Name:[-::-]   %s\n", tview.Escape(st.Spec.FullName))
	fmt.Fprintf(&b, "[::b]Email:[-::-]       %s\n", st.Spec.Email)
	fmt.Fprintf(&b, "[::b]Course:[-::-]      %s\n", st.Spec.Course)
	fmt.Fprintf(&b, "[::b]Registered:[-::-]  %s\n", st.Metadata.CreatedAt.Format(time.RFC3339))

	if st.IsAllocated() {
		fmt.Fprintf(&b, "[::b]Room:[-::-]        [green]%s[-]\n", st.Status.Room)
		names := make([]string, 0, len(roommates))
		for _, m := range roommates {
			names = append(names, m.Metadata.Name)
		}
		if len(names) > 0 {
			fmt.Fprintf(&b, "[::b]Roommates:[-::-]   %s\n", strings.Join(names, ", "))
		}
	} else {
		b.WriteString("[::b]Room:[-::-]        [gray]none[-]\n")
	}

	if !st.HasPreferences() {
		b.WriteString("\n[gray]No preferences submitted[-]\n")
		return b.String()
	}
	p := st.Spec.Preferences
	b.WriteString("\n[::b]Preferences:[-::-]\n")
	for _, spec := range compat.Attributes() {
		v := p.Values[string(spec.Attribute)]
		if v == "" {
			v = "[gray]-[-]"
		} else {
			v = tview.Escape(v)
		}
		fmt.Fprintf(&b, "  %-18s %s\n", spec.Attribute, v)
	}
	if p.Interests != "" {
		fmt.Fprintf(&b, "  %-18s %s\n", "interests", tview.Escape(p.Interests))
	}
	return b.String()
}

func describeRoom(r *v1alpha1.Room) string {
	var b strings.Builder
	phase := roomPhase(r)
	fmt.Fprintf(&b, "[::b]Name:[-::-]       %s\n", r.Metadata.Name)
	fmt.Fprintf(&b, "[::b]Building:[-::-]   %s\n", r.Spec.Building)
	fmt.Fprintf(&b, "[::b]Floor:[-::-]      %d\n", r.Spec.Floor)
	fmt.Fprintf(&b, "[::b]Phase:[-::-]      [%s]%s[-]\n", phaseColorName(string(phase)), phase)
	fmt.Fprintf(&b, "[::b]Occupied:[-::-]   %d/%d\n", r.Status.Occupied, r.Spec.Capacity)
	if len(r.Status.Occupants) > 0 {
		fmt.Fprintf(&b, "[::b]Occupants:[-::-]  %s\n", strings.Join(r.Status.Occupants, ", "))
	}
	if len(r.Spec.Amenities) > 0 {
		fmt.Fprintf(&b, "[::b]Amenities:[-::-]  %s\n", strings.Join(r.Spec.Amenities, ", "))
	}
	return b.String()
}

func describeAllocation(al *v1alpha1.Allocation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]Name:[-::-]       %s\n", al.Metadata.Name)
	fmt.Fprintf(&b, "[::b]Student:[-::-]    %s\n", al.Spec.Student)
	fmt.Fprintf(&b, "[::b]Room:[-::-]       %s\n", al.Spec.Room)
	fmt.Fprintf(&b, "[::b]Score:[-::-]      %.2f\n", al.Spec.Score)
	fmt.Fprintf(&b, "[::b]Phase:[-::-]      [%s]%s[-]\n", phaseColorName(string(al.Status.Phase)), al.Status.Phase)
	fmt.Fprintf(&b, "[::b]Allocated:[-::-]  %s\n", al.Status.AllocatedAt.Format(time.RFC3339))
	if !al.Status.ReleasedAt.IsZero() {
		fmt.Fprintf(&b, "[::b]Released:[-::-]   %s\n", al.Status.ReleasedAt.Format(time.RFC3339))
	}
	return b.String()
}

// formatAge returns a human-readable duration string since the given time.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func phaseColor(phase string) tcell.Color {
	switch phase {
	case "Active", "Available":
		return tcell.ColorGreen
	case "Maintenance":
		return tcell.ColorYellow
	case "Inactive":
		return tcell.ColorGray
	default:
		return tcell.ColorWhite
	}
}

func phaseColorName(phase string) string {
	switch phase {
	case "Active", "Available":
		return "green"
	case "Maintenance":
		return "yellow"
	case "Inactive":
		return "gray"
	default:
		return "white"
	}
}
