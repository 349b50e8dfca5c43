package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artl-app/artl-service/internal/models"
)

const (
	// DefaultListLimit is used when a caller passes no limit
	DefaultListLimit = 50
	// MaxListLimit caps a single history page
	MaxListLimit = 500
)

// ErrNotFound is returned when no row matches
var ErrNotFound = errors.New("record not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS translations (
		id              UUID PRIMARY KEY,
		image_id        TEXT NOT NULL DEFAULT '',
		image_path      TEXT NOT NULL DEFAULT '',
		source_text     TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		source_language TEXT NOT NULL,
		target_language TEXT NOT NULL,
		provider        TEXT NOT NULL DEFAULT '',
		distance        INTEGER NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS translations_created_at_idx ON translations (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS translations_image_id_idx ON translations (image_id)`,
	`CREATE TABLE IF NOT EXISTS bluetooth_messages (
		id         UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		direction  TEXT NOT NULL,
		peer       TEXT NOT NULL DEFAULT '',
		text       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS bluetooth_messages_session_idx ON bluetooth_messages (session_id, created_at)`,
}

// EnsureSchema creates the history tables if they are missing
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// History stores translations and Bluetooth messages in Postgres
type History struct {
	pool *pgxpool.Pool
}

// NewHistory wraps a pool
func NewHistory(pool *pgxpool.Pool) *History {
	return &History{pool: pool}
}

// Ping checks the database is reachable
func (h *History) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

// SaveTranslation inserts a translation record
func (h *History) SaveTranslation(ctx context.Context, rec *models.TranslationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	err := h.pool.QueryRow(ctx, `
		INSERT INTO translations (
			id, image_id, image_path, source_text, translated_text,
			source_language, target_language, provider, distance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`,
		rec.ID, rec.ImageID, rec.ImagePath, rec.SourceText, rec.TranslatedText,
		rec.SourceLanguage, rec.TargetLanguage, rec.Provider, rec.Distance,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save translation: %w", err)
	}
	return nil
}

// ListTranslations returns the most recent translations first
func (h *History) ListTranslations(ctx context.Context, limit int) ([]models.TranslationRecord, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT id, image_id, image_path, source_text, translated_text,
		       source_language, target_language, provider, distance, created_at
		FROM translations
		ORDER BY created_at DESC
		LIMIT $1
	`, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.TranslationRecord{}
	for rows.Next() {
		var rec models.TranslationRecord
		err := rows.Scan(
			&rec.ID, &rec.ImageID, &rec.ImagePath, &rec.SourceText, &rec.TranslatedText,
			&rec.SourceLanguage, &rec.TargetLanguage, &rec.Provider, &rec.Distance, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ImagePath returns the stored object path of an image
func (h *History) ImagePath(ctx context.Context, imageID string) (string, error) {
	var path string
	err := h.pool.QueryRow(ctx, `
		SELECT image_path FROM translations
		WHERE image_id = $1 AND image_path <> ''
		ORDER BY created_at DESC
		LIMIT 1
	`, imageID).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return path, err
}

// SaveMessage inserts a Bluetooth message
func (h *History) SaveMessage(ctx context.Context, msg *models.BluetoothMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}

	err := h.pool.QueryRow(ctx, `
		INSERT INTO bluetooth_messages (id, session_id, direction, peer, text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, msg.ID, msg.SessionID, msg.Direction, msg.Peer, msg.Text).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListMessages returns messages oldest first. An empty sessionID lists every
// session.
func (h *History) ListMessages(ctx context.Context, sessionID string, limit int) ([]models.BluetoothMessage, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT id, session_id, direction, peer, text, created_at
		FROM (
			SELECT * FROM bluetooth_messages
			WHERE $1 = '' OR session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, sessionID, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.BluetoothMessage{}
	for rows.Next() {
		var msg models.BluetoothMessage
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Direction, &msg.Peer, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ClampLimit applies the default and maximum page size
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
