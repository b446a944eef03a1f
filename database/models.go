package database

import (
	"errors"
	"fmt"
	"time"
)

// Task status values
const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
)

// Task priority values
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Profile is the authenticated user's record
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      string    `json:"role"`
	Bio       string    `json:"bio,omitempty"`
	Location  string    `json:"location,omitempty"`
	Website   string    `json:"website,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRef is a denormalized reference to a profile, embedded in tasks
// (assignee) and comments (author)
type UserRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// TasksSummary holds derived task counts for a project
type TasksSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Project represents a project with derived statistics
type Project struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Color       string       `json:"color"`
	Members     int          `json:"members"`
	Tasks       TasksSummary `json:"tasks"`
	DueDate     *string      `json:"due_date"`
	OwnerID     string       `json:"owner_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	// SyncState tracks optimistic client state ("pending", "failed").
	// Never persisted; empty for server-confirmed records.
	SyncState string `json:"sync_state,omitempty"`
}

// EntityID returns the project's cache key
func (p Project) EntityID() string { return p.ID }

// Task represents a task on a project board, with denormalized
// assignee, tags and comment count
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	ProjectID   string    `json:"project_id"`
	AssigneeID  string    `json:"assignee_id,omitempty"`
	Assignee    *UserRef  `json:"assignee"`
	Tags        []string  `json:"tags"`
	Comments    int       `json:"comments"`
	DueDate     *string   `json:"due_date"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	SyncState string `json:"sync_state,omitempty"`
}

// EntityID returns the task's cache key
func (t Task) EntityID() string { return t.ID }

// HasTag reports whether the task carries the given tag
func (t Task) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// Comment is an append-only entry on a task
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AuthorID  string    `json:"author_id,omitempty"`
	Author    *UserRef  `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectUpdate holds a partial project update; nil fields are left unchanged
type ProjectUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

// TaskUpdate holds a partial task update; nil fields are left unchanged
type TaskUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

// ProfileUpdate holds a partial profile update; nil fields are left unchanged
type ProfileUpdate struct {
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Location  *string `json:"location,omitempty"`
	Website   *string `json:"website,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

// ValidStatus reports whether s is a recognized task status
func ValidStatus(s string) bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusDone
}

// ValidPriority reports whether p is a recognized task priority
func ValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Validate checks that a project is well-formed before it enters the
// store or the client cache
func (p *Project) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if len(p.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(p.Name))
	}
	if p.OwnerID == "" {
		return errors.New("owner_id is required")
	}
	return nil
}

// Validate checks that a task is well-formed before it enters the
// store or the client cache
func (t *Task) Validate() error {
	if t.Title == "" {
		return errors.New("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if !ValidStatus(t.Status) {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if !ValidPriority(t.Priority) {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	return nil
}

// Validate checks update fields that carry enum values
func (u *TaskUpdate) Validate() error {
	if u.Status != nil && !ValidStatus(*u.Status) {
		return fmt.Errorf("invalid status %q", *u.Status)
	}
	if u.Priority != nil && !ValidPriority(*u.Priority) {
		return fmt.Errorf("invalid priority %q", *u.Priority)
	}
	return nil
}
