package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UpsertAdminSettings stores the provider credentials for one admin,
// overwriting any previous row in place.
func (p *Pool) UpsertAdminSettings(ctx context.Context, settings *AdminSettings) (*AdminSettings, error) {
	const q = `
INSERT INTO gateway.admin_settings (
	admin_id,
	api_key,
	deepl_api_key,
	text_translation_endpoint,
	document_translation_endpoint,
	region,
	storage_connection_string,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (admin_id) DO UPDATE SET
	api_key = EXCLUDED.api_key,
	deepl_api_key = EXCLUDED.deepl_api_key,
	text_translation_endpoint = EXCLUDED.text_translation_endpoint,
	document_translation_endpoint = EXCLUDED.document_translation_endpoint,
	region = EXCLUDED.region,
	storage_connection_string = EXCLUDED.storage_connection_string,
	updated_at = now()
RETURNING
	admin_id,
	api_key,
	deepl_api_key,
	text_translation_endpoint,
	document_translation_endpoint,
	region,
	storage_connection_string,
	updated_at
`

	var row AdminSettings
	if err := p.QueryRow(ctx, q,
		strings.TrimSpace(settings.AdminID),
		strings.TrimSpace(settings.APIKey),
		strings.TrimSpace(settings.DeepLAPIKey),
		strings.TrimSpace(settings.TextEndpoint),
		strings.TrimSpace(settings.DocumentEndpoint),
		strings.TrimSpace(settings.Region),
		strings.TrimSpace(settings.StorageConnectionString),
	).Scan(
		&row.AdminID,
		&row.APIKey,
		&row.DeepLAPIKey,
		&row.TextEndpoint,
		&row.DocumentEndpoint,
		&row.Region,
		&row.StorageConnectionString,
		&row.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert admin settings: %w", err)
	}

	return &row, nil
}

// GetAdminSettings returns the stored credentials for one admin, or ErrNoRows
// when the admin has never saved settings.
func (p *Pool) GetAdminSettings(ctx context.Context, adminID string) (*AdminSettings, error) {
	const q = `
SELECT
	admin_id,
	api_key,
	deepl_api_key,
	text_translation_endpoint,
	document_translation_endpoint,
	region,
	storage_connection_string,
	updated_at
FROM gateway.admin_settings
WHERE admin_id = $1
`

	var row AdminSettings
	if err := p.QueryRow(ctx, q, strings.TrimSpace(adminID)).Scan(
		&row.AdminID,
		&row.APIKey,
		&row.DeepLAPIKey,
		&row.TextEndpoint,
		&row.DocumentEndpoint,
		&row.Region,
		&row.StorageConnectionString,
		&row.UpdatedAt,
	); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("select admin settings: %w", err)
	}

	return &row, nil
}

// InsertFeedback records one rating/comment pair and returns the stored row.
func (p *Pool) InsertFeedback(ctx context.Context, adminID string, rating int, comment string) (*Feedback, error) {
	const q = `
INSERT INTO gateway.feedback (
	feedback_id,
	admin_id,
	rating,
	comment,
	created_at
)
VALUES ($1, $2, $3, $4, now())
RETURNING
	feedback_id,
	admin_id,
	rating,
	comment,
	created_at
`

	var row Feedback
	if err := p.QueryRow(ctx, q,
		uuid.NewString(),
		strings.TrimSpace(adminID),
		rating,
		strings.TrimSpace(comment),
	).Scan(
		&row.FeedbackID,
		&row.AdminID,
		&row.Rating,
		&row.Comment,
		&row.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert feedback: %w", err)
	}

	return &row, nil
}

// ListFeedback returns recent feedback rows for one admin, newest first.
func (p *Pool) ListFeedback(ctx context.Context, adminID string, limit int) ([]Feedback, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	const q = `
SELECT
	feedback_id,
	admin_id,
	rating,
	comment,
	created_at
FROM gateway.feedback
WHERE admin_id = $1
ORDER BY created_at DESC
LIMIT $2
`

	rows, err := p.gdb.WithContext(ctx).Raw(q, strings.TrimSpace(adminID), limit).Rows()
	if err != nil {
		return nil, fmt.Errorf("select feedback: %w", err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var row Feedback
		if err := rows.Scan(
			&row.FeedbackID,
			&row.AdminID,
			&row.Rating,
			&row.Comment,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan feedback row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback rows: %w", err)
	}

	return out, nil
}
