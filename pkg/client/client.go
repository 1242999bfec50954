// Package client provides a Go client library for the Hostel API server.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// Client communicates with the Hostel API server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new Hostel API client pointing at the given base URL
// (e.g. "http://localhost:7117").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithToken sets the admin bearer token sent with every request.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// doRequest builds and executes an HTTP request.
// If body is non-nil it is JSON-encoded and sent as the request body.
func (c *Client) doRequest(method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// doJSON executes a request, checks for a 2xx status, and JSON-decodes
// the response body into target (when target is non-nil).
func (c *Client) doJSON(method, path string, body interface{}, target interface{}) error {
	resp, err := c.doRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
		}
		return apiErr
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

func resourcePath(collection, name string) string {
	return "/api/v1alpha1/" + collection + "/" + url.PathEscape(name)
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Healthz checks whether the API server is healthy.
func (c *Client) Healthz() error {
	resp, err := c.doRequest(http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("healthz failed (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Students
// ---------------------------------------------------------------------------

// CreateStudent registers a new student.
func (c *Client) CreateStudent(st *v1alpha1.Student) (*v1alpha1.Student, error) {
	var out v1alpha1.Student
	if err := c.doJSON(http.MethodPost, "/api/v1alpha1/students", st, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStudent retrieves a student by name.
func (c *Client) GetStudent(name string) (*v1alpha1.Student, error) {
	var out v1alpha1.Student
	if err := c.doJSON(http.MethodGet, resourcePath("students", name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStudents returns all students.
func (c *Client) ListStudents() ([]v1alpha1.Student, error) {
	var out []v1alpha1.Student
	if err := c.doJSON(http.MethodGet, "/api/v1alpha1/students", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStudent replaces a student's spec.
func (c *Client) UpdateStudent(st *v1alpha1.Student) (*v1alpha1.Student, error) {
	var out v1alpha1.Student
	if err := c.doJSON(http.MethodPut, resourcePath("students", st.Metadata.Name), st, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteStudent removes a student that holds no room.
func (c *Client) DeleteStudent(name string) error {
	return c.doJSON(http.MethodDelete, resourcePath("students", name), nil, nil)
}

// SetPreferences submits or replaces a student's questionnaire.
func (c *Client) SetPreferences(name string, prefs *v1alpha1.Preferences) (*v1alpha1.Student, error) {
	var out v1alpha1.Student
	if err := c.doJSON(http.MethodPut, resourcePath("students", name)+"/preferences", prefs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Roommates lists the students sharing name's room.
func (c *Client) Roommates(name string) ([]v1alpha1.Student, error) {
	var out []v1alpha1.Student
	if err := c.doJSON(http.MethodGet, resourcePath("students", name)+"/roommates", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Rooms
// ---------------------------------------------------------------------------

// CreateRoom adds a room.
func (c *Client) CreateRoom(r *v1alpha1.Room) (*v1alpha1.Room, error) {
	var out v1alpha1.Room
	if err := c.doJSON(http.MethodPost, "/api/v1alpha1/rooms", r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRoom retrieves a room by number.
func (c *Client) GetRoom(name string) (*v1alpha1.Room, error) {
	var out v1alpha1.Room
	if err := c.doJSON(http.MethodGet, resourcePath("rooms", name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRooms returns all rooms.
func (c *Client) ListRooms() ([]v1alpha1.Room, error) {
	var out []v1alpha1.Room
	if err := c.doJSON(http.MethodGet, "/api/v1alpha1/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRoom replaces a room's spec and phase.
func (c *Client) UpdateRoom(r *v1alpha1.Room) (*v1alpha1.Room, error) {
	var out v1alpha1.Room
	if err := c.doJSON(http.MethodPut, resourcePath("rooms", r.Metadata.Name), r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRoom removes an empty room.
func (c *Client) DeleteRoom(name string) error {
	return c.doJSON(http.MethodDelete, resourcePath("rooms", name), nil, nil)
}

// ---------------------------------------------------------------------------
// Allocations
// ---------------------------------------------------------------------------

// AllocationFilter narrows ListAllocations. Empty fields match everything.
type AllocationFilter struct {
	Phase   v1alpha1.AllocationPhase
	Room    string
	Student string
}

// ListAllocations returns allocations matching f, oldest first.
func (c *Client) ListAllocations(f AllocationFilter) ([]v1alpha1.Allocation, error) {
	q := url.Values{}
	if f.Phase != "" {
		q.Set("phase", string(f.Phase))
	}
	if f.Room != "" {
		q.Set("room", f.Room)
	}
	if f.Student != "" {
		q.Set("student", f.Student)
	}
	path := "/api/v1alpha1/allocations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []v1alpha1.Allocation
	if err := c.doJSON(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAllocation retrieves an allocation record by name.
func (c *Client) GetAllocation(name string) (*v1alpha1.Allocation, error) {
	var out v1alpha1.Allocation
	if err := c.doJSON(http.MethodGet, resourcePath("allocations", name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunAllocation triggers an allocation run. Requires the admin token.
func (c *Client) RunAllocation() (*v1alpha1.AllocationResult, error) {
	var out v1alpha1.AllocationResult
	if err := c.doJSON(http.MethodPost, "/api/v1alpha1/allocations/run", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Release marks an allocation Inactive. Requires the admin token.
func (c *Client) Release(name string) (*v1alpha1.Allocation, error) {
	var out v1alpha1.Allocation
	if err := c.doJSON(http.MethodPost, resourcePath("allocations", name)+"/release", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns the allocation summary.
func (c *Client) Stats() (*v1alpha1.AllocationStats, error) {
	var out v1alpha1.AllocationStats
	if err := c.doJSON(http.MethodGet, "/api/v1alpha1/allocations/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Readiness reports what the next allocation run would see.
func (c *Client) Readiness() (*v1alpha1.Readiness, error) {
	var out v1alpha1.Readiness
	if err := c.doJSON(http.MethodGet, "/api/v1alpha1/allocations/readiness", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Compatibility scores two registered students against each other.
func (c *Client) Compatibility(a, b string) (*v1alpha1.CompatibilityReport, error) {
	q := url.Values{"a": {a}, "b": {b}}
	var out v1alpha1.CompatibilityReport
	if err := c.doJSON(http.MethodGet, "/api/v1alpha1/compatibility?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

// Apply creates or updates a Student or Room. The resource must carry its
// kind in TypeMeta.
func (c *Client) Apply(resource interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.doJSON(http.MethodPost, "/api/v1alpha1/apply", resource, &out); err != nil {
		return nil, err
	}
	return out, nil
}
