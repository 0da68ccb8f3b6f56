package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailkite/mailkite/internal/models"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create creates a new template
func (r *TemplateRepository) Create(t *models.Template) error {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO templates (id, user_id, name, category, description, subject, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Name, t.Category, t.Description, t.Subject, t.Body, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetByID returns a template owned by the given user
func (r *TemplateRepository) GetByID(userID, id string) (*models.Template, error) {
	t := &models.Template{}
	err := r.db.QueryRow(`
		SELECT id, user_id, name, category, description, subject, body, created_at, updated_at
		FROM templates WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&t.ID, &t.UserID, &t.Name, &t.Category, &t.Description, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns templates with optional filtering
func (r *TemplateRepository) List(filter models.TemplateListFilter) ([]models.Template, int, error) {
	countQuery := "SELECT COUNT(*) FROM templates WHERE user_id = ?"
	args := []any{filter.UserID}

	if filter.Category != "" {
		countQuery += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		countQuery += " AND (name LIKE ? OR description LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user_id, name, category, description, subject, body, created_at, updated_at
		FROM templates WHERE user_id = ?`

	args = []any{filter.UserID}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		query += " AND (name LIKE ? OR description LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	query += " ORDER BY updated_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	templates := []models.Template{}
	for rows.Next() {
		var t models.Template
		err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Category, &t.Description, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		templates = append(templates, t)
	}

	return templates, total, rows.Err()
}

// Update updates a template
func (r *TemplateRepository) Update(t *models.Template) error {
	t.UpdatedAt = time.Now()
	_, err := r.db.Exec(`
		UPDATE templates SET name = ?, category = ?, description = ?, subject = ?, body = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		t.Name, t.Category, t.Description, t.Subject, t.Body, t.UpdatedAt, t.ID, t.UserID,
	)
	return err
}

// Delete deletes a template owned by the user
func (r *TemplateRepository) Delete(userID, id string) error {
	_, err := r.db.Exec("DELETE FROM templates WHERE id = ? AND user_id = ?", id, userID)
	return err
}
