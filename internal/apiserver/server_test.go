package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/klubi/hostel/internal/config"
	"github.com/klubi/hostel/internal/metrics"
	"github.com/klubi/hostel/internal/scheduler"
	"github.com/klubi/hostel/internal/store"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

const adminToken = "warden-secret"

var epoch = time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t      *testing.T
	hostel *store.Hostel
	server *Server
}

func newFixture(t *testing.T, admin config.AdminConfig) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	clock := func() time.Time { return epoch }
	h := store.NewHostel(s).WithClock(clock)
	m := metrics.New()
	sched := scheduler.NewScheduler(h, scheduler.DefaultOptions(), zap.NewNop()).
		WithMetrics(m).
		WithClock(clock)
	srv := NewServer("127.0.0.1:0", h, sched, m, admin, zap.NewNop())
	srv.now = clock

	return &fixture{t: t, hostel: h, server: srv}
}

func (f *fixture) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			f.t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](g *WithT, rec *httptest.ResponseRecorder) T {
	var out T
	g.Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed(), rec.Body.String())
	return out
}

func student(name string, registered time.Time, values map[string]string, interests string) *v1alpha1.Student {
	return &v1alpha1.Student{
		Metadata: v1alpha1.ObjectMeta{Name: name, CreatedAt: registered},
		Spec: v1alpha1.StudentSpec{
			FullName: "Student " + name,
			Preferences: &v1alpha1.Preferences{
				Values:    values,
				Interests: interests,
			},
		},
	}
}

func room(name string, capacity int) *v1alpha1.Room {
	return &v1alpha1.Room{
		Metadata: v1alpha1.ObjectMeta{Name: name},
		Spec:     v1alpha1.RoomSpec{Capacity: capacity, Building: "A"},
	}
}

var quiet = map[string]string{
	"sleep_time":         "22:00",
	"wake_time":          "06:30",
	"noise_tolerance":    "low",
	"cleanliness_level":  "high",
	"study_preference":   "individual",
	"social_preference":  "introvert",
	"smoking_preference": "no",
}

func TestHealthz(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, config.AdminConfig{})

	rec := f.do(http.MethodGet, "/healthz", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(ContainSubstring(`"ok"`))
}

func TestStudentLifecycle(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, config.AdminConfig{})

	rec := f.do(http.MethodPost, "/api/v1alpha1/students", student("s-1001", epoch, quiet, "chess"), "")
	g.Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())
	created := decode[v1alpha1.Student](g, rec)
	g.Expect(created.Metadata.UID).NotTo(BeEmpty())
	g.Expect(created.Kind).To(Equal(v1alpha1.KindStudent))

	rec = f.do(http.MethodPost, "/api/v1alpha1/students", student("s-1001", epoch, nil, ""), "")
	g.Expect(rec.Code).To(Equal(http.StatusConflict))

	rec = f.do(http.MethodGet, "/api/v1alpha1/students/s-1001", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))

	rec = f.do(http.MethodGet, "/api/v1alpha1/students/missing", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusNotFound))
	g.Expect(decode[map[string]string](g, rec)).To(HaveKey("error"))

	rec = f.do(http.MethodPut, "/api/v1alpha1/students/s-1001/preferences",
		&v1alpha1.Preferences{Values: map[string]string{"sleep_time": "night"}}, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	updated := decode[v1alpha1.Student](g, rec)
	g.Expect(updated.Spec.Preferences.Values).To(Equal(map[string]string{"sleep_time": "night"}))

	rec = f.do(http.MethodPut, "/api/v1alpha1/students/s-1001/preferences",
		&v1alpha1.Preferences{Values: map[string]string{"bedtime": "night"}}, "")
	g.Expect(rec.Code).To(Equal(http.StatusBadRequest))

	rec = f.do(http.MethodGet, "/api/v1alpha1/students", nil, "")
	g.Expect(decode[[]v1alpha1.Student](g, rec)).To(HaveLen(1))

	rec = f.do(http.MethodDelete, "/api/v1alpha1/students/s-1001", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusNoContent))
}

func TestUnknownPreferenceAttributesRejected(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, config.AdminConfig{})
	typo := map[string]string{"sleep_time": "22:00", "sleeptime": "22:00"}

	rec := f.do(http.MethodPost, "/api/v1alpha1/students", student("s-1", epoch, typo, ""), "")
	g.Expect(rec.Code).To(Equal(http.StatusBadRequest), rec.Body.String())
	g.Expect(rec.Body.String()).To(ContainSubstring("sleeptime"))

	rec = f.do(http.MethodPost, "/api/v1alpha1/students", student("s-1", epoch, quiet, ""), "")
	g.Expect(rec.Code).To(Equal(http.StatusCreated))

	rec = f.do(http.MethodPut, "/api/v1alpha1/students/s-1", student("s-1", epoch, typo, ""), "")
	g.Expect(rec.Code).To(Equal(http.StatusBadRequest), rec.Body.String())

	rec = f.do(http.MethodPut, "/api/v1alpha1/students/s-1/preferences",
		&v1alpha1.Preferences{Values: typo}, "")
	g.Expect(rec.Code).To(Equal(http.StatusBadRequest))

	applied := student("s-2", epoch, map[string]string{"noise": "low"}, "")
	applied.TypeMeta = v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion, Kind: v1alpha1.KindStudent}
	rec = f.do(http.MethodPost, "/api/v1alpha1/apply", applied, "")
	g.Expect(rec.Code).To(Equal(http.StatusBadRequest), rec.Body.String())

	// Apply over an existing student goes through the update path.
	existing := student("s-1", epoch, map[string]string{"noise": "low"}, "")
	existing.TypeMeta = applied.TypeMeta
	rec = f.do(http.MethodPost, "/api/v1alpha1/apply", existing, "")
	g.Expect(rec.Code).To(Equal(http.StatusBadRequest), rec.Body.String())

	stored, err := f.hostel.GetStudent(context.Background(), "s-1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(stored.Spec.Preferences.Values).To(Equal(quiet))

	_, err = f.hostel.GetStudent(context.Background(), "s-2")
	g.Expect(err).To(MatchError(store.ErrNotFound))
}

func TestRoomValidationAndDelete(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, config.AdminConfig{})

	rec := f.do(http.MethodPost, "/api/v1alpha1/rooms", room("A101", 0), "")
	g.Expect(rec.Code).To(Equal(http.StatusBadRequest))

	rec = f.do(http.MethodPost, "/api/v1alpha1/rooms", room("A101", 2), "")
	g.Expect(rec.Code).To(Equal(http.StatusCreated))
	created := decode[v1alpha1.Room](g, rec)
	g.Expect(created.Status.Phase).To(Equal(v1alpha1.RoomAvailable))

	maintenance := room("A101", 2)
	maintenance.Status.Phase = v1alpha1.RoomMaintenance
	rec = f.do(http.MethodPut, "/api/v1alpha1/rooms/A101", maintenance, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(decode[v1alpha1.Room](g, rec).Status.Phase).To(Equal(v1alpha1.RoomMaintenance))

	rec = f.do(http.MethodDelete, "/api/v1alpha1/rooms/A101", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusNoContent))
}

func TestRunRequiresAdmin(t *testing.T) {
	tests := []struct {
		name  string
		admin config.AdminConfig
		token string
		want  int
	}{
		{"no token configured", config.AdminConfig{}, "", http.StatusForbidden},
		{"insecure", config.AdminConfig{Insecure: true}, "", http.StatusOK},
		{"missing bearer", config.AdminConfig{Token: adminToken}, "", http.StatusUnauthorized},
		{"wrong bearer", config.AdminConfig{Token: adminToken}, "guess", http.StatusUnauthorized},
		{"right bearer", config.AdminConfig{Token: adminToken}, adminToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			f := newFixture(t, tt.admin)
			rec := f.do(http.MethodPost, "/api/v1alpha1/allocations/run", nil, tt.token)
			g.Expect(rec.Code).To(Equal(tt.want), rec.Body.String())
		})
	}
}

func TestRunEmptyHostel(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, config.AdminConfig{Token: adminToken})

	rec := f.do(http.MethodPost, "/api/v1alpha1/allocations/run", nil, adminToken)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	result := decode[v1alpha1.AllocationResult](g, rec)
	g.Expect(result.AllocatedCount).To(BeZero())
	g.Expect(result.Message).To(Equal("No students to allocate"))
}

func TestRunReleaseAndQueries(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, config.AdminConfig{Token: adminToken})

	g.Expect(f.do(http.MethodPost, "/api/v1alpha1/rooms", room("A101", 2), "").Code).To(Equal(http.StatusCreated))
	g.Expect(f.do(http.MethodPost, "/api/v1alpha1/students", student("s-a", epoch, quiet, "chess, reading"), "").Code).To(Equal(http.StatusCreated))
	g.Expect(f.do(http.MethodPost, "/api/v1alpha1/students", student("s-b", epoch.Add(time.Minute), quiet, "reading; chess"), "").Code).To(Equal(http.StatusCreated))

	rec := f.do(http.MethodPost, "/api/v1alpha1/allocations/run", nil, adminToken)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	result := decode[v1alpha1.AllocationResult](g, rec)
	g.Expect(result.AllocatedCount).To(Equal(2))
	g.Expect(result.TotalStudents).To(Equal(2))
	g.Expect(result.Message).To(Equal("Successfully allocated 2 out of 2 students"))
	g.Expect(result.Details[0].Score).To(Equal(75.0))
	g.Expect(result.Details[1].Score).To(Equal(100.0))

	rec = f.do(http.MethodGet, "/api/v1alpha1/students/s-a/roommates", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	mates := decode[[]v1alpha1.Student](g, rec)
	g.Expect(mates).To(HaveLen(1))
	g.Expect(mates[0].Metadata.Name).To(Equal("s-b"))

	rec = f.do(http.MethodGet, "/api/v1alpha1/allocations?phase=Active&room=A101", nil, "")
	allocs := decode[[]v1alpha1.Allocation](g, rec)
	g.Expect(allocs).To(HaveLen(2))

	rec = f.do(http.MethodGet, "/api/v1alpha1/allocations?phase=Pending", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusBadRequest))

	rec = f.do(http.MethodGet, "/api/v1alpha1/allocations/stats", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	stats := decode[v1alpha1.AllocationStats](g, rec)
	g.Expect(stats.ActiveAllocations).To(Equal(2))
	g.Expect(stats.AverageScore).To(Equal(87.5))
	g.Expect(stats.OccupiedRooms).To(Equal(1))

	// Release needs the admin token too.
	name := allocs[0].Metadata.Name
	rec = f.do(http.MethodPost, "/api/v1alpha1/allocations/"+name+"/release", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusUnauthorized))

	rec = f.do(http.MethodPost, "/api/v1alpha1/allocations/"+name+"/release", nil, adminToken)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	released := decode[v1alpha1.Allocation](g, rec)
	g.Expect(released.Status.Phase).To(Equal(v1alpha1.AllocationInactive))

	rec = f.do(http.MethodPost, "/api/v1alpha1/allocations/"+name+"/release", nil, adminToken)
	g.Expect(rec.Code).To(Equal(http.StatusConflict))

	rec = f.do(http.MethodGet, "/api/v1alpha1/allocations/"+name, nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))

	rec = f.do(http.MethodGet, "/api/v1alpha1/rooms/A101", nil, "")
	g.Expect(decode[v1alpha1.Room](g, rec).Status.Occupied).To(Equal(1))

	rec = f.do(http.MethodGet, "/api/v1alpha1/allocations/readiness", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	ready := decode[v1alpha1.Readiness](g, rec)
	g.Expect(ready.TotalStudents).To(Equal(2))
	g.Expect(ready.CandidateCount).To(Equal(1))
}

func TestCompatibility(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, config.AdminConfig{})

	f.do(http.MethodPost, "/api/v1alpha1/students", student("s-a", epoch, quiet, "chess"), "")
	f.do(http.MethodPost, "/api/v1alpha1/students", student("s-b", epoch, quiet, "chess"), "")

	rec := f.do(http.MethodGet, "/api/v1alpha1/compatibility?a=s-a&b=s-b", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	report := decode[v1alpha1.CompatibilityReport](g, rec)
	g.Expect(report.Score).To(Equal(100.0))
	g.Expect(report.Attributes).NotTo(BeEmpty())

	rec = f.do(http.MethodGet, "/api/v1alpha1/compatibility?a=s-a", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusBadRequest))

	rec = f.do(http.MethodGet, "/api/v1alpha1/compatibility?a=s-a&b=nobody", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusNotFound))
}

func TestApplyCreatesThenUpdates(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, config.AdminConfig{})

	r := room("B201", 2)
	r.TypeMeta = v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion, Kind: v1alpha1.KindRoom}
	rec := f.do(http.MethodPost, "/api/v1alpha1/apply", r, "")
	g.Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())

	r.Spec.Capacity = 3
	rec = f.do(http.MethodPost, "/api/v1alpha1/apply", r, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(decode[v1alpha1.Room](g, rec).Spec.Capacity).To(Equal(3))

	st := student("s-9", epoch, quiet, "")
	st.TypeMeta = v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion, Kind: v1alpha1.KindStudent}
	rec = f.do(http.MethodPost, "/api/v1alpha1/apply", st, "")
	g.Expect(rec.Code).To(Equal(http.StatusCreated))

	rec = f.do(http.MethodPost, "/api/v1alpha1/apply", map[string]string{"kind": "Warden"}, "")
	g.Expect(rec.Code).To(Equal(http.StatusBadRequest))
}

func TestMetricsEndpoint(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, config.AdminConfig{})

	f.do(http.MethodGet, "/healthz", nil, "")
	rec := f.do(http.MethodGet, "/metrics", nil, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(ContainSubstring(`hostel_http_requests_total{route="/healthz",status="200"} 1`))
}
