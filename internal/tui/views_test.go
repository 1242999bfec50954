package tui

import (
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

func TestStudentTableFilter(t *testing.T) {
	students := []v1alpha1.Student{
		{
			Metadata: v1alpha1.ObjectMeta{Name: "s-1"},
			Spec: v1alpha1.StudentSpec{
				FullName:    "Ada Lovelace",
				Course:      "Maths",
				Preferences: &v1alpha1.Preferences{Values: map[string]string{"sleep_time": "22:00"}},
			},
			Status: v1alpha1.StudentStatus{Room: "A101"},
		},
		{
			Metadata: v1alpha1.ObjectMeta{Name: "s-2"},
			Spec:     v1alpha1.StudentSpec{FullName: "Alan Turing", Course: "CS"},
		},
	}

	all := studentTable(students, "")
	require.Len(t, all.rows, 2)
	assert.Equal(t, []string{"s-1", "Ada Lovelace", "Maths", "yes", "A101", "-"}, all.rows[0])
	assert.Equal(t, "no", all.rows[1][3])
	assert.Equal(t, "-", all.rows[1][4])
	assert.Equal(t, tcell.ColorGreen, all.color("yes"))

	filtered := studentTable(students, "turing")
	require.Len(t, filtered.rows, 1)
	assert.Equal(t, "s-2", filtered.rows[0][0])
}

func TestRoomTableDefaultsPhase(t *testing.T) {
	rooms := []v1alpha1.Room{{
		Metadata: v1alpha1.ObjectMeta{Name: "A101"},
		Spec:     v1alpha1.RoomSpec{Capacity: 2, Building: "A", Floor: 1},
		Status:   v1alpha1.RoomStatus{Occupied: 1, Occupants: []string{"s-1"}},
	}}

	tbl := roomTable(rooms, "")
	require.Len(t, tbl.rows, 1)
	assert.Equal(t, []string{"A101", "A", "1", "1/2", "Available", "s-1"}, tbl.rows[0])
	assert.Equal(t, tcell.ColorGreen, tbl.color(tbl.rows[0][tbl.colorColumn]))
}

func TestAllocationTableOrdersActiveFirst(t *testing.T) {
	base := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	allocs := []v1alpha1.Allocation{
		{
			Metadata: v1alpha1.ObjectMeta{Name: "old"},
			Spec:     v1alpha1.AllocationSpec{Student: "s-1", Room: "A101", Score: 75},
			Status:   v1alpha1.AllocationStatus{Phase: v1alpha1.AllocationInactive, AllocatedAt: base},
		},
		{
			Metadata: v1alpha1.ObjectMeta{Name: "first"},
			Spec:     v1alpha1.AllocationSpec{Student: "s-2", Room: "A101", Score: 75},
			Status:   v1alpha1.AllocationStatus{Phase: v1alpha1.AllocationActive, AllocatedAt: base.Add(time.Hour)},
		},
		{
			Metadata: v1alpha1.ObjectMeta{Name: "second"},
			Spec:     v1alpha1.AllocationSpec{Student: "s-3", Room: "A101", Score: 81.255},
			Status:   v1alpha1.AllocationStatus{Phase: v1alpha1.AllocationActive, AllocatedAt: base.Add(2 * time.Hour)},
		},
	}

	tbl := allocationTable(allocs, "")
	require.Len(t, tbl.rows, 3)
	assert.Equal(t, "second", tbl.rows[0][0])
	assert.Equal(t, "first", tbl.rows[1][0])
	assert.Equal(t, "old", tbl.rows[2][0])
	assert.Equal(t, tcell.ColorGray, tbl.color("Inactive"))

	// Input order is untouched.
	assert.Equal(t, "old", allocs[0].Metadata.Name)
}

func TestDescribeStudent(t *testing.T) {
	st := &v1alpha1.Student{
		Metadata: v1alpha1.ObjectMeta{Name: "s-1"},
		Spec:     v1alpha1.StudentSpec{FullName: "Ada [admin]"},
	}
	out := describeStudent(st, nil)
	assert.Contains(t, out, "No preferences submitted")
	assert.Contains(t, out, "none")
	assert.NotContains(t, out, "Ada [admin]")

	st.Spec.Preferences = &v1alpha1.Preferences{
		Values:    map[string]string{"sleep_time": "23:00"},
		Interests: "chess",
	}
	st.Status = v1alpha1.StudentStatus{Room: "B101", Allocation: "x"}
	out = describeStudent(st, []v1alpha1.Student{{Metadata: v1alpha1.ObjectMeta{Name: "s-9"}}})
	assert.Contains(t, out, "B101")
	assert.Contains(t, out, "s-9")
	assert.Contains(t, out, "23:00")
	assert.Contains(t, out, "chess")
}

func TestDescribeAllocationShowsRelease(t *testing.T) {
	at := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	al := &v1alpha1.Allocation{
		Metadata: v1alpha1.ObjectMeta{Name: "a-1"},
		Spec:     v1alpha1.AllocationSpec{Student: "s-1", Room: "A101", Score: 62.5},
		Status:   v1alpha1.AllocationStatus{Phase: v1alpha1.AllocationActive, AllocatedAt: at},
	}
	assert.NotContains(t, describeAllocation(al), "Released")

	al.Status.Phase = v1alpha1.AllocationInactive
	al.Status.ReleasedAt = at.Add(time.Hour)
	out := describeAllocation(al)
	assert.Contains(t, out, "Released")
	assert.Contains(t, out, "62.50")
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "-", formatAge(time.Time{}))
	assert.Equal(t, "2h", formatAge(time.Now().Add(-2*time.Hour-time.Minute)))
	assert.Equal(t, "3d", formatAge(time.Now().Add(-73*time.Hour)))
}
