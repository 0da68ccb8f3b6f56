package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailkite/mailkite/internal/models"
)

type EmailConfigRepository struct {
	db *sql.DB
}

func NewEmailConfigRepository(db *sql.DB) *EmailConfigRepository {
	return &EmailConfigRepository{db: db}
}

// Upsert stores a sealed credential for (user, sender address).
// Re-configuring an address replaces the previous credential; at most
// one row exists per pair.
func (r *EmailConfigRepository) Upsert(c *models.EmailConfig) error {
	c.SenderEmail = NormalizeEmail(c.SenderEmail)
	now := time.Now()

	existing, err := r.Get(c.UserID, c.SenderEmail)
	if err != nil {
		return err
	}

	if existing != nil {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		c.UpdatedAt = now
		_, err = r.db.Exec(`
			UPDATE email_configs SET sealed_password = ?, updated_at = ?
			WHERE id = ?`,
			c.SealedPassword, c.UpdatedAt, c.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update email config: %w", err)
		}
		return nil
	}

	c.ID = uuid.New().String()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err = r.db.Exec(`
		INSERT INTO email_configs (id, user_id, sender_email, sealed_password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.SenderEmail, c.SealedPassword, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create email config: %w", err)
	}
	return nil
}

// Get returns the credential for (user, sender address), or nil if
// none is configured.
func (r *EmailConfigRepository) Get(userID, senderEmail string) (*models.EmailConfig, error) {
	c := &models.EmailConfig{}
	err := r.db.QueryRow(`
		SELECT id, user_id, sender_email, sealed_password, created_at, updated_at
		FROM email_configs WHERE user_id = ? AND sender_email = ?`,
		userID, NormalizeEmail(senderEmail),
	).Scan(&c.ID, &c.UserID, &c.SenderEmail, &c.SealedPassword, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListByUser returns all configured sender identities for a user
func (r *EmailConfigRepository) ListByUser(userID string) ([]models.EmailConfig, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, sender_email, sealed_password, created_at, updated_at
		FROM email_configs WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []models.EmailConfig{}
	for rows.Next() {
		var c models.EmailConfig
		if err := rows.Scan(&c.ID, &c.UserID, &c.SenderEmail, &c.SealedPassword, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// Delete removes a credential owned by the user
func (r *EmailConfigRepository) Delete(userID, id string) error {
	_, err := r.db.Exec("DELETE FROM email_configs WHERE id = ? AND user_id = ?", id, userID)
	return err
}
