package apiserver

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/klubi/hostel/internal/compat"
	"github.com/klubi/hostel/internal/store"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeJSON serialises data as JSON and writes it to the response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// writeError writes a JSON error envelope to the response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store sentinels onto HTTP status codes. Anything
// unrecognised is a 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalid), errors.Is(err, store.ErrNoPreferences):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrAlreadyAllocated),
		errors.Is(err, store.ErrRoomFull),
		errors.Is(err, store.ErrRoomUnavailable),
		errors.Is(err, store.ErrRoomOccupied),
		errors.Is(err, store.ErrNotActive):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeError(w, status, err.Error())
}

func decodeBody(r *http.Request, target interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// requireAdmin guards a handler with the configured bearer token. With no
// token configured the endpoint is closed unless the server runs insecure.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.admin.Token == "" {
			if s.admin.Insecure {
				next(w, r)
				return
			}
			s.writeError(w, http.StatusForbidden, "admin endpoints are disabled: no admin token configured")
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.admin.Token)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "admin token required")
			return
		}
		next(w, r)
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Students
// ---------------------------------------------------------------------------

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var st v1alpha1.Student
	if err := decodeBody(r, &st); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.hostel.CreateStudent(r.Context(), &st); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, &st)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	st, err := s.hostel.GetStudent(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.hostel.ListStudents(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, students)
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var st v1alpha1.Student
	if err := decodeBody(r, &st); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st.Metadata.Name = mux.Vars(r)["name"]

	out, err := s.hostel.UpdateStudent(r.Context(), &st)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.hostel.DeleteStudent(r.Context(), mux.Vars(r)["name"]); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetPreferences stores the questionnaire. Unknown attribute names are
// rejected so typos do not silently drop out of scoring.
func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs v1alpha1.Preferences
	if err := decodeBody(r, &prefs); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.hostel.SetPreferences(r.Context(), mux.Vars(r)["name"], &prefs)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRoommates(w http.ResponseWriter, r *http.Request) {
	mates, err := s.hostel.Roommates(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mates)
}

// ---------------------------------------------------------------------------
// Rooms
// ---------------------------------------------------------------------------

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var room v1alpha1.Room
	if err := decodeBody(r, &room); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.hostel.CreateRoom(r.Context(), &room); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, &room)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.hostel.GetRoom(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.hostel.ListRooms(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	var room v1alpha1.Room
	if err := decodeBody(r, &room); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	room.Metadata.Name = mux.Vars(r)["name"]

	out, err := s.hostel.UpdateRoom(r.Context(), &room)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.hostel.DeleteRoom(r.Context(), mux.Vars(r)["name"]); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Allocations
// ---------------------------------------------------------------------------

// handleListAllocations supports ?phase=, ?room= and ?student= filters.
func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AllocationFilter{
		Phase:   v1alpha1.AllocationPhase(q.Get("phase")),
		Room:    q.Get("room"),
		Student: q.Get("student"),
	}
	switch filter.Phase {
	case "", v1alpha1.AllocationActive, v1alpha1.AllocationInactive:
	default:
		s.writeError(w, http.StatusBadRequest, "phase must be Active or Inactive")
		return
	}

	allocs, err := s.hostel.ListAllocations(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, allocs)
}

func (s *Server) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	alloc, err := s.hostel.GetAllocation(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, alloc)
}

// handleRunAllocation performs one allocation run and returns its result.
// A storage failure mid-run still reports the commits made before it.
func (s *Server) handleRunAllocation(w http.ResponseWriter, r *http.Request) {
	result, err := s.scheduler.Run(r.Context())
	if err != nil {
		s.logger.Error("allocation run failed",
			zap.Int("allocated", result.AllocatedCount),
			zap.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	alloc, err := s.hostel.Release(r.Context(), mux.Vars(r)["name"], s.now())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, alloc)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.hostel.Stats(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ready, err := s.hostel.Readiness(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ready)
}

// ---------------------------------------------------------------------------
// Compatibility
// ---------------------------------------------------------------------------

// handleCompatibility scores two registered students: ?a=<name>&b=<name>.
func (s *Server) handleCompatibility(w http.ResponseWriter, r *http.Request) {
	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	if a == "" || b == "" {
		s.writeError(w, http.StatusBadRequest, "query parameters a and b are required")
		return
	}

	sa, err := s.hostel.GetStudent(r.Context(), a)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	sb, err := s.hostel.GetStudent(r.Context(), b)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	score, parts := compat.Breakdown(compat.ProfileOf(sa.Spec.Preferences), compat.ProfileOf(sb.Spec.Preferences))
	s.writeJSON(w, http.StatusOK, &v1alpha1.CompatibilityReport{
		StudentA:   a,
		StudentB:   b,
		Score:      store.Round2(score),
		Attributes: parts,
	})
}

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

// handleApply accepts a JSON body that includes a "kind" field. It attempts to
// Create the resource first; if it already exists it falls back to Update.
// Status fields in the body are ignored.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	// First, peek at the kind so we know which concrete type to decode into.
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var meta v1alpha1.TypeMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		s.writeError(w, http.StatusBadRequest, "cannot determine resource kind: "+err.Error())
		return
	}

	ctx := r.Context()
	switch meta.Kind {
	case v1alpha1.KindStudent:
		var st v1alpha1.Student
		if err := json.Unmarshal(raw, &st); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		err := s.hostel.CreateStudent(ctx, &st)
		if errors.Is(err, store.ErrAlreadyExists) {
			out, err := s.hostel.UpdateStudent(ctx, &st)
			if err != nil {
				s.writeStoreError(w, err)
				return
			}
			s.writeJSON(w, http.StatusOK, out)
			return
		}
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, &st)

	case v1alpha1.KindRoom:
		var room v1alpha1.Room
		if err := json.Unmarshal(raw, &room); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		phase := room.Status.Phase
		err := s.hostel.CreateRoom(ctx, &room)
		if errors.Is(err, store.ErrAlreadyExists) {
			// An omitted phase keeps the stored one.
			room.Status.Phase = phase
			out, err := s.hostel.UpdateRoom(ctx, &room)
			if err != nil {
				s.writeStoreError(w, err)
				return
			}
			s.writeJSON(w, http.StatusOK, out)
			return
		}
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, &room)

	default:
		s.writeError(w, http.StatusBadRequest, "unsupported kind: "+meta.Kind)
	}
}
