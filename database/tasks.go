package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const taskColumns = `t.id, t.title, t.description, t.status, t.priority, t.project_id,
	t.assignee_id, t.due_date, t.created_by, t.created_at, t.updated_at,
	pr.id, pr.name, pr.avatar_url,
	(SELECT COUNT(*) FROM comments c WHERE c.task_id = t.id)`

func scanTask(scanner interface{ Scan(...any) error }) (*Task, error) {
	var t Task
	var assigneeID, createdBy sql.NullString
	var refID, refName, refAvatar sql.NullString
	err := scanner.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.ProjectID,
		&assigneeID, &t.DueDate, &createdBy, &t.CreatedAt, &t.UpdatedAt,
		&refID, &refName, &refAvatar, &t.Comments)
	if err != nil {
		return nil, err
	}
	t.AssigneeID = assigneeID.String
	t.CreatedBy = createdBy.String
	if refID.Valid {
		t.Assignee = &UserRef{ID: refID.String, Name: refName.String, Avatar: refAvatar.String}
	}
	t.Tags = []string{}
	return &t, nil
}

// ListTasks returns all tasks for a project, newest first, with
// denormalized assignee, tags and comment counts
func (s *DataService) ListTasks(projectID string) ([]Task, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+`
		FROM tasks t
		LEFT JOIN profiles pr ON pr.id = t.assignee_id
		WHERE t.project_id = ?
		ORDER BY t.created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tasks {
		tags, err := s.GetTaskTags(tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Tags = tags
	}

	return tasks, nil
}

// GetTask retrieves a task by id with its tags
func (s *DataService) GetTask(id string) (*Task, error) {
	t, err := scanTask(s.db.QueryRow(`
		SELECT `+taskColumns+`
		FROM tasks t
		LEFT JOIN profiles pr ON pr.id = t.assignee_id
		WHERE t.id = ?
	`, id))
	if err != nil {
		return nil, err
	}

	tags, err := s.GetTaskTags(id)
	if err != nil {
		return nil, err
	}
	t.Tags = tags
	return t, nil
}

// CreateTask inserts a new task, assigning a server id and timestamps
func (s *DataService) CreateTask(t *Task) (*Task, error) {
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	t.ID = uuid.NewString()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	var assigneeID any
	if t.AssigneeID != "" {
		assigneeID = t.AssigneeID
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (id, title, description, status, priority, project_id, assignee_id, due_date, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, t.Status, t.Priority, t.ProjectID,
		assigneeID, t.DueDate, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	return s.GetTask(t.ID)
}

// UpdateTask applies the non-nil fields of u and returns the updated row
func (s *DataService) UpdateTask(id string, u *TaskUpdate) (*Task, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	set := "updated_at = ?"
	args := []any{time.Now().UTC()}

	if u.Title != nil {
		set += ", title = ?"
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		set += ", description = ?"
		args = append(args, *u.Description)
	}
	if u.Status != nil {
		set += ", status = ?"
		args = append(args, *u.Status)
	}
	if u.Priority != nil {
		set += ", priority = ?"
		args = append(args, *u.Priority)
	}
	if u.AssigneeID != nil {
		set += ", assignee_id = ?"
		if *u.AssigneeID == "" {
			args = append(args, nil)
		} else {
			args = append(args, *u.AssigneeID)
		}
	}
	if u.DueDate != nil {
		set += ", due_date = ?"
		args = append(args, *u.DueDate)
	}
	args = append(args, id)

	res, err := s.db.Exec("UPDATE tasks SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	return s.GetTask(id)
}

// DeleteTask removes a task and, via cascade, its tags and comments
func (s *DataService) DeleteTask(id string) error {
	res, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTaskTags returns a task's tags in insertion order
func (s *DataService) GetTaskTags(taskID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT tag FROM task_tags WHERE task_id = ? ORDER BY created_at, tag
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// AddTaskTag attaches a tag to a task; adding an existing tag is a no-op
func (s *DataService) AddTaskTag(taskID, tag string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO task_tags (task_id, tag) VALUES (?, ?)
	`, taskID, tag)
	if err != nil {
		return fmt.Errorf("failed to add tag: %w", err)
	}
	return nil
}

// RemoveTaskTag detaches a tag from a task; removing an absent tag is a no-op
func (s *DataService) RemoveTaskTag(taskID, tag string) error {
	_, err := s.db.Exec(`
		DELETE FROM task_tags WHERE task_id = ? AND tag = ?
	`, taskID, tag)
	if err != nil {
		return fmt.Errorf("failed to remove tag: %w", err)
	}
	return nil
}
