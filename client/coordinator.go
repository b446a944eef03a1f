package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/taskflow-app/taskflow/database"
)

// Sync states carried on optimistically cached entities
const (
	SyncPending = "pending"
	SyncFailed  = "failed"
)

const tempIDPrefix = "temp-"

// NewTempID returns a client-assigned identifier for an entity whose
// server id is not known yet
func NewTempID() string {
	return fmt.Sprintf("%s%d", tempIDPrefix, time.Now().UnixNano())
}

// IsTempID reports whether id was assigned locally by NewTempID
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// MutationResult reports the remote outcome of an optimistic mutation.
// Discarded is set when a create completion arrived for an entity the
// user had already deleted; the completion is dropped instead of
// resurrecting the entity.
type MutationResult struct {
	Op        string
	Scope     string
	ID        string
	Err       error
	Discarded bool
}

// NewProject is the user input for an optimistic project create
type NewProject struct {
	Name        string
	Description string
	Color       string
	DueDate     *string
}

// NewTask is the user input for an optimistic task create
type NewTask struct {
	Title       string
	Description string
	Status      string
	Priority    string
	ProjectID   string
	Assignee    *database.UserRef
	DueDate     *string
}

// Coordinator sequences local cache writes with remote calls so the UI
// updates instantly while the source of truth catches up. Mutations
// return after the synchronous cache write; the remote half runs in
// the background on the coordinator's own lifecycle context (remote
// calls are never cancelled by a caller going away) and its outcome is
// reported on the Results channel.
type Coordinator struct {
	remote   Remote
	projects *Store[database.Project]
	tasks    *Store[database.Task]
	user     database.UserRef

	results chan MutationResult

	mu      sync.Mutex
	pending map[string]bool // temp ids with a create still in flight

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator wires the coordinator to the shared stores owned by
// the composition root. The same store instances must be handed to the
// real-time listener so both paths mutate one cache.
func NewCoordinator(remote Remote, projects *Store[database.Project], tasks *Store[database.Task], user database.UserRef) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		remote:   remote,
		projects: projects,
		tasks:    tasks,
		user:     user,
		results:  make(chan MutationResult, 64),
		pending:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Results delivers one MutationResult per mutation whose remote half
// finished. The channel is buffered; results are dropped (with a log
// line) if the caller stops draining it.
func (c *Coordinator) Results() <-chan MutationResult {
	return c.results
}

// Close stops the coordinator. In-flight remote calls are abandoned
// and their completions no longer touch the stores.
func (c *Coordinator) Close() {
	c.cancel()
}

func (c *Coordinator) closed() bool {
	return c.ctx.Err() != nil
}

func (c *Coordinator) emit(result MutationResult) {
	select {
	case c.results <- result:
	case <-c.ctx.Done():
	default:
		log.Printf("Dropping mutation result for %s %s: results channel full", result.Op, result.ID)
	}
}

func (c *Coordinator) track(tempID string) {
	c.mu.Lock()
	c.pending[tempID] = true
	c.mu.Unlock()
}

// untrack removes a pending create and reports whether it was still tracked
func (c *Coordinator) untrack(tempID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	tracked := c.pending[tempID]
	delete(c.pending, tempID)
	return tracked
}

// confirmPatch turns a server-confirmed entity into a patch that also
// clears any sync_state left by an earlier failure
func confirmPatch(entity any) map[string]any {
	encoded, err := json.Marshal(entity)
	if err != nil {
		return nil
	}
	fields := map[string]any{}
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil
	}
	fields["sync_state"] = ""
	return fields
}

// LoadProjects fetches the full project list and replaces the cache scope
func (c *Coordinator) LoadProjects(ctx context.Context) error {
	projects, err := c.remote.ListProjects(ctx, c.user.ID)
	if err != nil {
		return err
	}
	c.projects.Load(ProjectScope, projects)
	return nil
}

// LoadTasks fetches a project's tasks and replaces that cache scope
func (c *Coordinator) LoadTasks(ctx context.Context, projectID string) error {
	tasks, err := c.remote.ListTasks(ctx, projectID)
	if err != nil {
		return err
	}
	c.tasks.Load(projectID, tasks)
	return nil
}

// CreateProject inserts a temporary project into the cache and returns
// it immediately; reconciliation against the server id happens in the
// background
func (c *Coordinator) CreateProject(input NewProject) database.Project {
	now := time.Now().UTC()
	candidate := database.Project{
		ID:          NewTempID(),
		Name:        input.Name,
		Description: input.Description,
		Color:       input.Color,
		DueDate:     input.DueDate,
		OwnerID:     c.user.ID,
		Members:     1,
		Tasks:       database.TasksSummary{},
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncState:   SyncPending,
	}

	c.projects.Insert(ProjectScope, candidate)
	c.track(candidate.ID)

	go c.finishCreateProject(candidate)
	return candidate
}

func (c *Coordinator) finishCreateProject(candidate database.Project) {
	created, err := c.remote.CreateProject(c.ctx, candidate)
	tracked := c.untrack(candidate.ID)
	if c.closed() {
		return
	}

	if err != nil {
		if tracked {
			c.projects.Patch(ProjectScope, candidate.ID, map[string]string{"sync_state": SyncFailed})
		}
		log.Printf("Error creating project %q: %v", candidate.Name, err)
		c.emit(MutationResult{Op: "create", Scope: ProjectScope, ID: candidate.ID, Err: err})
		return
	}

	if !tracked {
		// The user deleted the entity while the create was in flight.
		// Drop the completion instead of resurrecting it, and remove
		// the row the server just confirmed.
		if err := c.remote.DeleteProject(c.ctx, created.ID); err != nil {
			log.Printf("Error deleting superseded project %s: %v", created.ID, err)
		}
		c.emit(MutationResult{Op: "create", Scope: ProjectScope, ID: created.ID, Discarded: true})
		return
	}

	// Two-step swap: the id itself changes, so a patch cannot express
	// it. The realtime echo of this create can land the server id in
	// the cache before the call returns, so clear it first.
	c.projects.Remove(ProjectScope, candidate.ID)
	c.projects.Remove(ProjectScope, created.ID)
	created.SyncState = ""
	c.projects.Insert(ProjectScope, created)
	c.emit(MutationResult{Op: "create", Scope: ProjectScope, ID: created.ID})
}

// DeleteProject removes the project from the cache immediately. The
// remote delete runs in the background; on failure the cache is not
// restored and the error surfaces on the Results channel.
func (c *Coordinator) DeleteProject(id string) {
	c.projects.Remove(ProjectScope, id)

	if IsTempID(id) {
		// Never saved; cancel the pending create instead of calling out
		c.untrack(id)
		return
	}

	go func() {
		if err := c.remote.DeleteProject(c.ctx, id); err != nil {
			log.Printf("Error deleting project %s: %v", id, err)
			c.emit(MutationResult{Op: "delete", Scope: ProjectScope, ID: id, Err: err})
			return
		}
		c.emit(MutationResult{Op: "delete", Scope: ProjectScope, ID: id})
	}()
}

// UpdateProject patches the cache immediately (local-first), then
// merges the server-confirmed fields back when the remote call resolves
func (c *Coordinator) UpdateProject(id string, update database.ProjectUpdate) {
	c.projects.Patch(ProjectScope, id, update)

	if IsTempID(id) {
		return
	}

	go func() {
		updated, err := c.remote.UpdateProject(c.ctx, id, update)
		if c.closed() {
			return
		}
		if err != nil {
			c.projects.Patch(ProjectScope, id, map[string]string{"sync_state": SyncFailed})
			log.Printf("Error updating project %s: %v", id, err)
			c.emit(MutationResult{Op: "update", Scope: ProjectScope, ID: id, Err: err})
			return
		}
		c.projects.Patch(ProjectScope, id, confirmPatch(updated))
		c.emit(MutationResult{Op: "update", Scope: ProjectScope, ID: id})
	}()
}

// CreateTask inserts a temporary task into the project's cache scope
// and returns it immediately
func (c *Coordinator) CreateTask(input NewTask) database.Task {
	now := time.Now().UTC()
	if input.Status == "" {
		input.Status = database.StatusTodo
	}
	if input.Priority == "" {
		input.Priority = database.PriorityMedium
	}

	candidate := database.Task{
		ID:          NewTempID(),
		Title:       input.Title,
		Description: input.Description,
		Status:      input.Status,
		Priority:    input.Priority,
		ProjectID:   input.ProjectID,
		Assignee:    input.Assignee,
		Tags:        []string{},
		Comments:    0,
		DueDate:     input.DueDate,
		CreatedBy:   c.user.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncState:   SyncPending,
	}
	if input.Assignee != nil {
		candidate.AssigneeID = input.Assignee.ID
	}

	c.tasks.Insert(candidate.ProjectID, candidate)
	c.track(candidate.ID)

	go c.finishCreateTask(candidate)
	return candidate
}

func (c *Coordinator) finishCreateTask(candidate database.Task) {
	created, err := c.remote.CreateTask(c.ctx, candidate)
	tracked := c.untrack(candidate.ID)
	if c.closed() {
		return
	}

	if err != nil {
		if tracked {
			c.tasks.Patch(candidate.ProjectID, candidate.ID, map[string]string{"sync_state": SyncFailed})
		}
		log.Printf("Error creating task %q: %v", candidate.Title, err)
		c.emit(MutationResult{Op: "create", Scope: candidate.ProjectID, ID: candidate.ID, Err: err})
		return
	}

	if !tracked {
		if err := c.remote.DeleteTask(c.ctx, created.ID); err != nil {
			log.Printf("Error deleting superseded task %s: %v", created.ID, err)
		}
		c.emit(MutationResult{Op: "create", Scope: candidate.ProjectID, ID: created.ID, Discarded: true})
		return
	}

	c.tasks.Remove(candidate.ProjectID, candidate.ID)
	c.tasks.Remove(created.ProjectID, created.ID)
	created.SyncState = ""
	c.tasks.Insert(created.ProjectID, created)
	c.emit(MutationResult{Op: "create", Scope: created.ProjectID, ID: created.ID})
}

// DeleteTask removes the task from the cache immediately; the remote
// delete runs in the background
func (c *Coordinator) DeleteTask(projectID, taskID string) {
	c.tasks.Remove(projectID, taskID)

	if IsTempID(taskID) {
		c.untrack(taskID)
		return
	}

	go func() {
		if err := c.remote.DeleteTask(c.ctx, taskID); err != nil {
			log.Printf("Error deleting task %s: %v", taskID, err)
			c.emit(MutationResult{Op: "delete", Scope: projectID, ID: taskID, Err: err})
			return
		}
		c.emit(MutationResult{Op: "delete", Scope: projectID, ID: taskID})
	}()
}

// UpdateTask patches the cache immediately (local-first), then merges
// the server-confirmed fields back
func (c *Coordinator) UpdateTask(projectID, taskID string, update database.TaskUpdate) {
	c.tasks.Patch(projectID, taskID, update)

	if IsTempID(taskID) {
		return
	}

	go func() {
		updated, err := c.remote.UpdateTask(c.ctx, taskID, update)
		if c.closed() {
			return
		}
		if err != nil {
			c.tasks.Patch(projectID, taskID, map[string]string{"sync_state": SyncFailed})
			log.Printf("Error updating task %s: %v", taskID, err)
			c.emit(MutationResult{Op: "update", Scope: projectID, ID: taskID, Err: err})
			return
		}
		c.tasks.Patch(projectID, taskID, confirmPatch(updated))
		c.emit(MutationResult{Op: "update", Scope: projectID, ID: taskID})
	}()
}

// AddTag attaches a tag to a cached task. Adding a tag the task
// already has is a no-op. Tags on unsaved (temporary) tasks stay
// local; the server row does not exist yet.
func (c *Coordinator) AddTag(projectID, taskID, tag string) {
	task, ok := c.tasks.Get(projectID, taskID)
	if !ok || task.HasTag(tag) {
		return
	}

	tags := append(append([]string(nil), task.Tags...), tag)
	c.tasks.Patch(projectID, taskID, map[string]any{"tags": tags})

	if IsTempID(taskID) {
		return
	}

	go func() {
		if err := c.remote.AddTaskTag(c.ctx, taskID, tag); err != nil {
			log.Printf("Error adding tag %q to task %s: %v", tag, taskID, err)
			c.emit(MutationResult{Op: "tag-add", Scope: projectID, ID: taskID, Err: err})
			return
		}
		c.emit(MutationResult{Op: "tag-add", Scope: projectID, ID: taskID})
	}()
}

// RemoveTag detaches a tag from a cached task; removing an absent tag
// is a no-op
func (c *Coordinator) RemoveTag(projectID, taskID, tag string) {
	task, ok := c.tasks.Get(projectID, taskID)
	if !ok || !task.HasTag(tag) {
		return
	}

	tags := []string{}
	for _, existing := range task.Tags {
		if existing != tag {
			tags = append(tags, existing)
		}
	}
	c.tasks.Patch(projectID, taskID, map[string]any{"tags": tags})

	if IsTempID(taskID) {
		return
	}

	go func() {
		if err := c.remote.RemoveTaskTag(c.ctx, taskID, tag); err != nil {
			log.Printf("Error removing tag %q from task %s: %v", tag, taskID, err)
			c.emit(MutationResult{Op: "tag-remove", Scope: projectID, ID: taskID, Err: err})
			return
		}
		c.emit(MutationResult{Op: "tag-remove", Scope: projectID, ID: taskID})
	}()
}

// AddComment bumps the cached comment count immediately and appends
// the comment remotely in the background
func (c *Coordinator) AddComment(projectID, taskID, content string) {
	if task, ok := c.tasks.Get(projectID, taskID); ok {
		c.tasks.Patch(projectID, taskID, map[string]int{"comments": task.Comments + 1})
	}

	if IsTempID(taskID) {
		return
	}

	go func() {
		if _, err := c.remote.CreateComment(c.ctx, taskID, content); err != nil {
			log.Printf("Error adding comment to task %s: %v", taskID, err)
			c.emit(MutationResult{Op: "comment-add", Scope: projectID, ID: taskID, Err: err})
			return
		}
		c.emit(MutationResult{Op: "comment-add", Scope: projectID, ID: taskID})
	}()
}
