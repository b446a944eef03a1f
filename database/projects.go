package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = sql.ErrNoRows

const projectColumns = `p.id, p.name, p.description, p.color, p.due_date, p.owner_id, p.created_at, p.updated_at`

// ListProjects returns all projects owned by the given user, newest
// first, with the derived task summary computed from authoritative rows
func (s *DataService) ListProjects(ownerID string) ([]Project, error) {
	rows, err := s.db.Query(`
		SELECT `+projectColumns+`,
			COUNT(t.id),
			COALESCE(SUM(CASE WHEN t.status = ? THEN 1 ELSE 0 END), 0)
		FROM projects p
		LEFT JOIN tasks t ON t.project_id = p.id
		WHERE p.owner_id = ?
		GROUP BY p.id
		ORDER BY p.created_at DESC
	`, StatusDone, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Color, &p.DueDate,
			&p.OwnerID, &p.CreatedAt, &p.UpdatedAt, &p.Tasks.Total, &p.Tasks.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Members = 1
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProject retrieves a single project with its derived task summary
func (s *DataService) GetProject(id string) (*Project, error) {
	var p Project
	err := s.db.QueryRow(`
		SELECT `+projectColumns+`,
			COUNT(t.id),
			COALESCE(SUM(CASE WHEN t.status = ? THEN 1 ELSE 0 END), 0)
		FROM projects p
		LEFT JOIN tasks t ON t.project_id = p.id
		WHERE p.id = ?
		GROUP BY p.id
	`, StatusDone, id).Scan(&p.ID, &p.Name, &p.Description, &p.Color, &p.DueDate,
		&p.OwnerID, &p.CreatedAt, &p.UpdatedAt, &p.Tasks.Total, &p.Tasks.Completed)
	if err != nil {
		return nil, err
	}
	p.Members = 1
	return &p, nil
}

// CreateProject inserts a new project, assigning a server id and timestamps
func (s *DataService) CreateProject(p *Project) (*Project, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.ID = uuid.NewString()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, description, color, due_date, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, p.Color, p.DueDate, p.OwnerID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}

	return s.GetProject(p.ID)
}

// UpdateProject applies the non-nil fields of u and returns the updated row
func (s *DataService) UpdateProject(id string, u *ProjectUpdate) (*Project, error) {
	set := "updated_at = ?"
	args := []any{time.Now().UTC()}

	if u.Name != nil {
		set += ", name = ?"
		args = append(args, *u.Name)
	}
	if u.Description != nil {
		set += ", description = ?"
		args = append(args, *u.Description)
	}
	if u.Color != nil {
		set += ", color = ?"
		args = append(args, *u.Color)
	}
	if u.DueDate != nil {
		set += ", due_date = ?"
		args = append(args, *u.DueDate)
	}
	args = append(args, id)

	res, err := s.db.Exec("UPDATE projects SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	return s.GetProject(id)
}

// DeleteProject removes a project and, via cascade, its tasks, tags
// and comments
func (s *DataService) DeleteProject(id string) error {
	res, err := s.db.Exec("DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
