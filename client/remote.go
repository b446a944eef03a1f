package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/taskflow-app/taskflow/database"
)

// Remote is the boundary to the TaskFlow backend. All calls are
// synchronous; the coordinator decides what runs in the background.
type Remote interface {
	ListProjects(ctx context.Context, userID string) ([]database.Project, error)
	CreateProject(ctx context.Context, project database.Project) (database.Project, error)
	UpdateProject(ctx context.Context, id string, update database.ProjectUpdate) (database.Project, error)
	DeleteProject(ctx context.Context, id string) error

	ListTasks(ctx context.Context, projectID string) ([]database.Task, error)
	CreateTask(ctx context.Context, task database.Task) (database.Task, error)
	UpdateTask(ctx context.Context, id string, update database.TaskUpdate) (database.Task, error)
	DeleteTask(ctx context.Context, id string) error

	AddTaskTag(ctx context.Context, taskID, tag string) error
	RemoveTaskTag(ctx context.Context, taskID, tag string) error

	ListComments(ctx context.Context, taskID string) ([]database.Comment, error)
	CreateComment(ctx context.Context, taskID, content string) (database.Comment, error)

	GetProfile(ctx context.Context) (database.Profile, error)
	PatchProfile(ctx context.Context, update database.ProfileUpdate) (database.Profile, error)
}

// APIError is the decoded JSON error envelope returned by the backend
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

// HTTPRemote talks to a TaskFlow server over its REST surface
type HTTPRemote struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewHTTPRemote creates a remote client against baseURL (for example
// "http://localhost:3001") authenticating with the given bearer token
func NewHTTPRemote(baseURL, token string) *HTTPRemote {
	return &HTTPRemote{
		baseURL: baseURL,
		token:   token,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (r *HTTPRemote) ListProjects(ctx context.Context, userID string) ([]database.Project, error) {
	query := url.Values{}
	if userID != "" {
		query.Set("userId", userID)
	}
	var projects []database.Project
	err := r.do(ctx, http.MethodGet, "/api/projects", query, nil, &projects)
	return projects, err
}

func (r *HTTPRemote) CreateProject(ctx context.Context, project database.Project) (database.Project, error) {
	var created database.Project
	err := r.do(ctx, http.MethodPost, "/api/projects", nil, project, &created)
	return created, err
}

func (r *HTTPRemote) UpdateProject(ctx context.Context, id string, update database.ProjectUpdate) (database.Project, error) {
	var updated database.Project
	err := r.do(ctx, http.MethodPut, "/api/projects", url.Values{"id": {id}}, update, &updated)
	return updated, err
}

func (r *HTTPRemote) DeleteProject(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/api/projects", url.Values{"id": {id}}, nil, nil)
}

func (r *HTTPRemote) ListTasks(ctx context.Context, projectID string) ([]database.Task, error) {
	var tasks []database.Task
	err := r.do(ctx, http.MethodGet, "/api/tasks", url.Values{"projectId": {projectID}}, nil, &tasks)
	return tasks, err
}

func (r *HTTPRemote) CreateTask(ctx context.Context, task database.Task) (database.Task, error) {
	var created database.Task
	err := r.do(ctx, http.MethodPost, "/api/tasks", nil, task, &created)
	return created, err
}

func (r *HTTPRemote) UpdateTask(ctx context.Context, id string, update database.TaskUpdate) (database.Task, error) {
	var updated database.Task
	err := r.do(ctx, http.MethodPut, "/api/tasks", url.Values{"id": {id}}, update, &updated)
	return updated, err
}

func (r *HTTPRemote) DeleteTask(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/api/tasks", url.Values{"id": {id}}, nil, nil)
}

func (r *HTTPRemote) AddTaskTag(ctx context.Context, taskID, tag string) error {
	body := map[string]string{"taskId": taskID, "tag": tag}
	return r.do(ctx, http.MethodPost, "/api/task-tags", nil, body, nil)
}

func (r *HTTPRemote) RemoveTaskTag(ctx context.Context, taskID, tag string) error {
	query := url.Values{"taskId": {taskID}, "tag": {tag}}
	return r.do(ctx, http.MethodDelete, "/api/task-tags", query, nil, nil)
}

func (r *HTTPRemote) ListComments(ctx context.Context, taskID string) ([]database.Comment, error) {
	var comments []database.Comment
	err := r.do(ctx, http.MethodGet, "/api/comments", url.Values{"taskId": {taskID}}, nil, &comments)
	return comments, err
}

func (r *HTTPRemote) CreateComment(ctx context.Context, taskID, content string) (database.Comment, error) {
	body := map[string]string{"taskId": taskID, "content": content}
	var created database.Comment
	err := r.do(ctx, http.MethodPost, "/api/comments", nil, body, &created)
	return created, err
}

func (r *HTTPRemote) GetProfile(ctx context.Context) (database.Profile, error) {
	var profile database.Profile
	err := r.do(ctx, http.MethodGet, "/api/profile", nil, nil, &profile)
	return profile, err
}

func (r *HTTPRemote) PatchProfile(ctx context.Context, update database.ProfileUpdate) (database.Profile, error) {
	var profile database.Profile
	err := r.do(ctx, http.MethodPatch, "/api/profile", nil, update, &profile)
	return profile, err
}
