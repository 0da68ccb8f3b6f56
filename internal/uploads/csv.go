// Package uploads parses recipient CSV files and stages them until a
// campaign is created from them.
package uploads

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mailkite/mailkite/internal/models"
	"github.com/mailkite/mailkite/internal/render"
	"github.com/mailkite/mailkite/internal/repository"
)

// Upload is a parsed recipient CSV staged for campaign creation.
type Upload struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	FileName   string             `json:"file_name"`
	Fields     []string           `json:"fields"`
	Recipients []models.Recipient `json:"recipients"`
	Errors     []string           `json:"errors,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// ParseCSV reads a header-rowed CSV into recipients. The "name" and
// "email" columns are required; every other column becomes a custom
// field keyed by its header. Rows with an empty email are rejected
// into Errors rather than failing the whole parse.
func ParseCSV(r io.Reader) (*Upload, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	nameCol, emailCol := -1, -1
	for i, h := range header {
		switch h {
		case "name":
			nameCol = i
		case "email":
			emailCol = i
		}
	}
	if nameCol < 0 || emailCol < 0 {
		return nil, fmt.Errorf(`csv must contain "email" and "name" columns`)
	}

	upload := &Upload{Fields: header}

	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			upload.Errors = append(upload.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		rec := models.Recipient{
			Name:   strings.TrimSpace(row[nameCol]),
			Email:  repository.NormalizeEmail(row[emailCol]),
			Status: models.RecipientStatusPending,
		}
		if rec.Email == "" {
			upload.Errors = append(upload.Errors, fmt.Sprintf("line %d: missing email", line))
			continue
		}

		for i, h := range header {
			if i == nameCol || i == emailCol || i >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[i])
			if value == "" {
				continue
			}
			if rec.CustomFields == nil {
				rec.CustomFields = make(map[string]string)
			}
			rec.CustomFields[h] = value
		}

		rec.Position = len(upload.Recipients)
		upload.Recipients = append(upload.Recipients, rec)
	}

	return upload, nil
}

// Validation reports how a template's tokens line up with the columns
// of an uploaded CSV.
type Validation struct {
	TemplateVariables []string `json:"template_variables"`
	CSVFields         []string `json:"csv_fields"`
	MissingVariables  []string `json:"missing_variables"`
	ExtraFields       []string `json:"extra_fields"`
	IsValid           bool     `json:"is_valid"`
}

// ValidateTemplate checks subject and body tokens against available
// CSV fields. The built-in name and email bindings never count as
// missing.
func ValidateTemplate(subject, body string, fields []string) *Validation {
	tokens := render.Tokens(subject)
	for _, t := range render.Tokens(body) {
		if !contains(tokens, t) {
			tokens = append(tokens, t)
		}
	}

	v := &Validation{
		TemplateVariables: tokens,
		CSVFields:         fields,
	}

	for _, t := range tokens {
		if t == "name" || t == "email" {
			continue
		}
		if !contains(fields, t) {
			v.MissingVariables = append(v.MissingVariables, t)
		}
	}

	for _, f := range fields {
		if f == "name" || f == "email" {
			continue
		}
		if !contains(tokens, f) {
			v.ExtraFields = append(v.ExtraFields, f)
		}
	}

	v.IsValid = len(v.MissingVariables) == 0
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
