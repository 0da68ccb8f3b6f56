package models

import "time"

// Campaign status values. "failed" means the dispatch completed with
// at least one recipient failure, not that the job crashed.
const (
	CampaignStatusCreated    = "created"
	CampaignStatusProcessing = "processing"
	CampaignStatusCompleted  = "completed"
	CampaignStatusFailed     = "failed"
)

// Recipient status values.
const (
	RecipientStatusPending = "pending"
	RecipientStatusSent    = "sent"
	RecipientStatusFailed  = "failed"
)

// Campaign represents one bulk-send job: a subject/body template plus
// its recipient list and aggregate outcome.
type Campaign struct {
	ID          string        `json:"id"`
	SenderID    string        `json:"sender_id"`
	SenderEmail string        `json:"sender_email"`
	FromName    string        `json:"from_name,omitempty"`
	Subject     string        `json:"subject"`
	Body        string        `json:"body"`
	Status      string        `json:"status"`
	Stats       CampaignStats `json:"stats"`
	Recipients  []Recipient   `json:"recipients,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// CampaignStats holds aggregate counters. sent + failed <= total at
// all times; equality holds once a dispatch finishes.
type CampaignStats struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Recipient is a single addressee embedded in a campaign. Order is
// stable for reporting but carries no other meaning.
type Recipient struct {
	ID           string            `json:"id"`
	CampaignID   string            `json:"campaign_id,omitempty"`
	Position     int               `json:"position"`
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	Status       string            `json:"status,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// CampaignListFilter for filtering campaigns
type CampaignListFilter struct {
	SenderID string
	Status   string
	Limit    int
	Offset   int
}
