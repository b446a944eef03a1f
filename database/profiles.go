package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const profileColumns = `id, email, name, avatar_url, role, bio, location, website, phone, created_at, updated_at`

func (s *DataService) scanProfile(query string, args ...any) (*Profile, error) {
	var p Profile
	err := s.db.QueryRow(query, args...).Scan(&p.ID, &p.Email, &p.Name, &p.AvatarURL,
		&p.Role, &p.Bio, &p.Location, &p.Website, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile retrieves a profile by id
func (s *DataService) GetProfile(id string) (*Profile, error) {
	return s.scanProfile("SELECT "+profileColumns+" FROM profiles WHERE id = ?", id)
}

// GetProfileByEmail retrieves a profile by email
func (s *DataService) GetProfileByEmail(email string) (*Profile, error) {
	return s.scanProfile("SELECT "+profileColumns+" FROM profiles WHERE email = ?", email)
}

// EnsureProfile returns the profile for email, creating it on first login
func (s *DataService) EnsureProfile(email string) (*Profile, error) {
	p, err := s.GetProfileByEmail(email)
	if err == nil {
		return p, nil
	}
	if err != ErrNotFound {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	now := time.Now().UTC()
	created := Profile{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      "editor",
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.Exec(`
		INSERT INTO profiles (id, email, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, created.ID, created.Email, created.Role, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}
	return &created, nil
}

// UpdateProfile applies the non-nil fields of u and returns the updated row
func (s *DataService) UpdateProfile(id string, u *ProfileUpdate) (*Profile, error) {
	set := "updated_at = ?"
	args := []any{time.Now().UTC()}

	if u.Name != nil {
		set += ", name = ?"
		args = append(args, *u.Name)
	}
	if u.Email != nil {
		set += ", email = ?"
		args = append(args, *u.Email)
	}
	if u.AvatarURL != nil {
		set += ", avatar_url = ?"
		args = append(args, *u.AvatarURL)
	}
	if u.Bio != nil {
		set += ", bio = ?"
		args = append(args, *u.Bio)
	}
	if u.Location != nil {
		set += ", location = ?"
		args = append(args, *u.Location)
	}
	if u.Website != nil {
		set += ", website = ?"
		args = append(args, *u.Website)
	}
	if u.Phone != nil {
		set += ", phone = ?"
		args = append(args, *u.Phone)
	}
	args = append(args, id)

	res, err := s.db.Exec("UPDATE profiles SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	return s.GetProfile(id)
}
