package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handle registers h under path, timed and counted under that path.
func (s *Server) handle(r *mux.Router, path string, h http.HandlerFunc, methods ...string) {
	route := path
	if r != s.router {
		route = apiPrefix + path
	}
	r.Handle(path, s.metrics.WrapHandler(route, h)).Methods(methods...)
}

const apiPrefix = "/api/v1alpha1"

// registerRoutes wires every API endpoint to its handler.
func (s *Server) registerRoutes() {
	api := s.router.PathPrefix(apiPrefix).Subrouter()

	// Health and metrics
	s.handle(s.router, "/healthz", s.handleHealthz, "GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	// Students
	s.handle(api, "/students", s.handleListStudents, "GET")
	s.handle(api, "/students", s.handleCreateStudent, "POST")
	s.handle(api, "/students/{name}", s.handleGetStudent, "GET")
	s.handle(api, "/students/{name}", s.handleUpdateStudent, "PUT")
	s.handle(api, "/students/{name}", s.handleDeleteStudent, "DELETE")
	s.handle(api, "/students/{name}/preferences", s.handleSetPreferences, "PUT")
	s.handle(api, "/students/{name}/roommates", s.handleRoommates, "GET")

	// Rooms
	s.handle(api, "/rooms", s.handleListRooms, "GET")
	s.handle(api, "/rooms", s.handleCreateRoom, "POST")
	s.handle(api, "/rooms/{name}", s.handleGetRoom, "GET")
	s.handle(api, "/rooms/{name}", s.handleUpdateRoom, "PUT")
	s.handle(api, "/rooms/{name}", s.handleDeleteRoom, "DELETE")

	// Allocations. Fixed paths go before {name}.
	s.handle(api, "/allocations", s.handleListAllocations, "GET")
	s.handle(api, "/allocations/stats", s.handleStats, "GET")
	s.handle(api, "/allocations/readiness", s.handleReadiness, "GET")
	s.handle(api, "/allocations/run", s.requireAdmin(s.handleRunAllocation), "POST")
	s.handle(api, "/allocations/{name}", s.handleGetAllocation, "GET")
	s.handle(api, "/allocations/{name}/release", s.requireAdmin(s.handleRelease), "POST")

	// Pairwise preview
	s.handle(api, "/compatibility", s.handleCompatibility, "GET")

	// Apply (create-or-update from a manifest document)
	s.handle(api, "/apply", s.handleApply, "POST")
}
