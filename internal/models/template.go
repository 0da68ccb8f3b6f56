package models

import "time"

// Template is a reusable subject/body pair owned by a user. Subject
// and body may contain {{token}} placeholders.
type Template struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TemplateListFilter for filtering the template list
type TemplateListFilter struct {
	UserID   string
	Category string
	Search   string
	Limit    int
	Offset   int
}
