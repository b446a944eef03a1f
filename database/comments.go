package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ListComments returns a task's comments oldest first, with the author
// profile denormalized
func (s *DataService) ListComments(taskID string) ([]Comment, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.task_id, c.author_id, c.content, c.created_at,
			pr.id, pr.name, pr.avatar_url
		FROM comments c
		LEFT JOIN profiles pr ON pr.id = c.author_id
		WHERE c.task_id = ?
		ORDER BY c.created_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		var authorID, refID, refName, refAvatar sql.NullString
		if err := rows.Scan(&c.ID, &c.TaskID, &authorID, &c.Content, &c.CreatedAt,
			&refID, &refName, &refAvatar); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.AuthorID = authorID.String
		if refID.Valid {
			c.Author = &UserRef{ID: refID.String, Name: refName.String, Avatar: refAvatar.String}
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// CreateComment appends a comment to a task
func (s *DataService) CreateComment(taskID, authorID, content string) (*Comment, error) {
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}

	c := Comment{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	var author any
	if authorID != "" {
		author = authorID
	}

	_, err := s.db.Exec(`
		INSERT INTO comments (id, task_id, author_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.TaskID, author, c.Content, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	if authorID != "" {
		if p, err := s.GetProfile(authorID); err == nil {
			c.Author = &UserRef{ID: p.ID, Name: p.Name, Avatar: p.AvatarURL}
		}
	}

	return &c, nil
}
