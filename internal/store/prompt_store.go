package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaehyun-ko/newsight/internal/models"
)

// CreatePrompt stores a new prompt template. The first prompt ever created
// becomes the active one automatically.
func (s *Store) CreatePrompt(name, template string) (*models.Prompt, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(template) == "" {
		return nil, fmt.Errorf("prompt name and template cannot be empty")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM prompts").Scan(&count); err != nil {
		return nil, err
	}

	p := &models.Prompt{
		ID:        uuid.New().String(),
		Name:      name,
		Template:  template,
		Active:    count == 0,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_, err = tx.Exec(
		"INSERT INTO prompts (id, name, template, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		p.ID, p.Name, p.Template, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPrompt retrieves a prompt by id.
func (s *Store) GetPrompt(id string) (*models.Prompt, error) {
	return s.scanPrompt(s.db.QueryRow(
		"SELECT id, name, template, active, created_at, updated_at FROM prompts WHERE id = ?", id))
}

// GetActivePrompt returns the currently active prompt, or sql.ErrNoRows
// when none has been stored yet.
func (s *Store) GetActivePrompt() (*models.Prompt, error) {
	return s.scanPrompt(s.db.QueryRow(
		"SELECT id, name, template, active, created_at, updated_at FROM prompts WHERE active = 1"))
}

// ListPrompts returns all prompts, newest first.
func (s *Store) ListPrompts() ([]*models.Prompt, error) {
	rows, err := s.db.Query(
		"SELECT id, name, template, active, created_at, updated_at FROM prompts ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []*models.Prompt
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.Name, &p.Template, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		prompts = append(prompts, &p)
	}
	return prompts, rows.Err()
}

// UpdatePrompt replaces the name and template of an existing prompt.
func (s *Store) UpdatePrompt(id, name, template string) error {
	res, err := s.db.Exec(
		"UPDATE prompts SET name = ?, template = ?, updated_at = ? WHERE id = ?",
		name, template, time.Now(), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ActivatePrompt marks one prompt as active and deactivates all others.
func (s *Store) ActivatePrompt(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE prompts SET active = 1, updated_at = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.Exec("UPDATE prompts SET active = 0 WHERE id != ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeletePrompt removes a prompt. Deleting the active prompt leaves no
// prompt active; callers fall back to the built-in default template.
func (s *Store) DeletePrompt(id string) error {
	res, err := s.db.Exec("DELETE FROM prompts WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) scanPrompt(row *sql.Row) (*models.Prompt, error) {
	var p models.Prompt
	err := row.Scan(&p.ID, &p.Name, &p.Template, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
