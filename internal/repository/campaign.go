package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailkite/mailkite/internal/models"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create stores a campaign and its recipients in one transaction.
// Recipient emails are normalized here; every recipient must have a
// non-empty address.
func (r *CampaignRepository) Create(c *models.Campaign) error {
	c.ID = uuid.New().String()
	c.SenderEmail = NormalizeEmail(c.SenderEmail)
	c.Status = models.CampaignStatusCreated
	c.Stats = models.CampaignStats{Total: len(c.Recipients)}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	for i := range c.Recipients {
		c.Recipients[i].Email = NormalizeEmail(c.Recipients[i].Email)
		if c.Recipients[i].Email == "" {
			return fmt.Errorf("recipient %d has no email address", i)
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO campaigns (id, sender_id, sender_email, from_name, subject, body, status, stats_total, stats_sent, stats_failed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		c.ID, c.SenderID, c.SenderEmail, c.FromName, c.Subject, c.Body, c.Status, c.Stats.Total, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	for i := range c.Recipients {
		rec := &c.Recipients[i]
		rec.ID = uuid.New().String()
		rec.CampaignID = c.ID
		rec.Position = i
		rec.Status = models.RecipientStatusPending

		fields, err := json.Marshal(rec.CustomFields)
		if err != nil {
			return fmt.Errorf("failed to encode custom fields: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO recipients (id, campaign_id, position, name, email, custom_fields, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.CampaignID, rec.Position, rec.Name, rec.Email, string(fields), rec.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to create recipient: %w", err)
		}
	}

	return tx.Commit()
}

// GetByID returns a campaign with its recipients in position order
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	c := &models.Campaign{}
	err := r.db.QueryRow(`
		SELECT id, sender_id, sender_email, from_name, subject, body, status, stats_total, stats_sent, stats_failed, created_at, updated_at
		FROM campaigns WHERE id = ?`, id,
	).Scan(&c.ID, &c.SenderID, &c.SenderEmail, &c.FromName, &c.Subject, &c.Body, &c.Status,
		&c.Stats.Total, &c.Stats.Sent, &c.Stats.Failed, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`
		SELECT id, campaign_id, position, name, email, custom_fields, status, COALESCE(error, '')
		FROM recipients WHERE campaign_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.Recipient
		var fields string
		if err := rows.Scan(&rec.ID, &rec.CampaignID, &rec.Position, &rec.Name, &rec.Email, &fields, &rec.Status, &rec.Error); err != nil {
			return nil, err
		}
		if fields != "" && fields != "null" {
			if err := json.Unmarshal([]byte(fields), &rec.CustomFields); err != nil {
				return nil, fmt.Errorf("failed to decode custom fields: %w", err)
			}
		}
		c.Recipients = append(c.Recipients, rec)
	}

	return c, rows.Err()
}

// List returns campaigns without their recipients
func (r *CampaignRepository) List(filter models.CampaignListFilter) ([]models.Campaign, int, error) {
	countQuery := "SELECT COUNT(*) FROM campaigns WHERE sender_id = ?"
	args := []any{filter.SenderID}

	if filter.Status != "" {
		countQuery += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, sender_id, sender_email, from_name, subject, body, status, stats_total, stats_sent, stats_failed, created_at, updated_at
		FROM campaigns WHERE sender_id = ?`

	args = []any{filter.SenderID}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC"

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

	campaigns := []models.Campaign{}
	for rows.Next() {
		var c models.Campaign
		err := rows.Scan(&c.ID, &c.SenderID, &c.SenderEmail, &c.FromName, &c.Subject, &c.Body, &c.Status,
			&c.Stats.Total, &c.Stats.Sent, &c.Stats.Failed, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	return campaigns, total, rows.Err()
}

// UpdateStatus sets the campaign status
func (r *CampaignRepository) UpdateStatus(id, status string) error {
	_, err := r.db.Exec("UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now(), id)
	return err
}

// TryMarkProcessing claims the campaign for a dispatch. The claim is
// a single conditional update, so of two concurrent dispatches exactly
// one wins. Returns false when the campaign is already processing or
// does not exist.
func (r *CampaignRepository) TryMarkProcessing(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE campaigns SET status = ?, updated_at = ?
		WHERE id = ? AND status != ?`,
		models.CampaignStatusProcessing, time.Now(), id, models.CampaignStatusProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateStats writes the aggregate counters and terminal status after
// a dispatch.
func (r *CampaignRepository) UpdateStats(id, status string, stats models.CampaignStats) error {
	_, err := r.db.Exec(`
		UPDATE campaigns SET status = ?, stats_total = ?, stats_sent = ?, stats_failed = ?, updated_at = ?
		WHERE id = ?`,
		status, stats.Total, stats.Sent, stats.Failed, time.Now(), id)
	return err
}

// UpdateRecipientResult records one recipient's dispatch outcome
func (r *CampaignRepository) UpdateRecipientResult(recipientID, status, errorMsg string) error {
	_, err := r.db.Exec("UPDATE recipients SET status = ?, error = ? WHERE id = ?",
		status, errorMsg, recipientID)
	return err
}

// Delete deletes a campaign and its recipients
func (r *CampaignRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM campaigns WHERE id = ?", id)
	return err
}

// Exists reports whether a campaign with the given ID exists
func (r *CampaignRepository) Exists(id string) (bool, error) {
	var one int
	err := r.db.QueryRow("SELECT 1 FROM campaigns WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
