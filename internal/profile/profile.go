// Package profile remembers what users answered so later sessions can skip
// questions, and keeps the documents generated for them.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Document is one rendered document.
type Document struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	TemplatePath string    `json:"template_path"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists flat profile snapshots and generated documents.
type Store interface {
	// Load returns the user's flat key-value snapshot, empty if none.
	Load(ctx context.Context, userID string) (map[string]any, error)
	// Save replaces the user's snapshot.
	Save(ctx context.Context, userID string, flat map[string]any) error
	SaveDocument(ctx context.Context, doc Document) error
	ListDocuments(ctx context.Context, userID string, limit int) ([]Document, error)
	Close() error
}

// Open returns a Store for driver "sqlite" (dsn is a file path) or
// "postgres" (dsn is a connection URL).
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		s, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql":
		s, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown profile driver %q", driver)
	}
}

// toJSON converts a snapshot to its stored form.
func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// fromJSON parses a stored snapshot.
func fromJSON(data string) (map[string]any, error) {
	out := map[string]any{}
	if data == "" || data == "null" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, err
	}
	return out, nil
}
