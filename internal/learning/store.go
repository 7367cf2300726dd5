package learning

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"netsleuth/internal/session"
)

// Store keeps cross-session insights in a local sqlite database. They
// are fed back into plan selection and assessment as prompt context.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS insights (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	device     TEXT NOT NULL,
	note       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_insights_device ON insights(device);
`

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open learning store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init learning store schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record distills a finished session into per-device insight rows.
// Only terminal sessions carry anything worth keeping.
func (s *Store) Record(ctx context.Context, sess *session.Session) error {
	if sess.State != session.StatusDone {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("learning store tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, dev := range sess.Devices {
		note := dev.ResolvedNote
		if dev.Limitations != "" {
			note += "; limitations: " + firstLine(dev.Limitations)
		}
		if strings.TrimSpace(note) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO insights (session_id, device, note, created_at) VALUES (?, ?, ?, ?)`,
			sess.ID, dev.DeviceName, note, now,
		); err != nil {
			return fmt.Errorf("record insight: %w", err)
		}
	}
	return tx.Commit()
}

// Recall returns the most recent insights for the given devices as a
// prompt fragment, newest first. Empty string when nothing is known yet.
func (s *Store) Recall(ctx context.Context, devices []string, limit int) (string, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT device, note, created_at FROM insights`
	var args []any
	if len(devices) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(devices)), ",")
		query += ` WHERE device IN (` + placeholders + `)`
		for _, d := range devices {
			args = append(args, d)
		}
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("recall insights: %w", err)
	}
	defer rows.Close()

	var sb strings.Builder
	for rows.Next() {
		var device, note string
		var createdAt time.Time
		if err := rows.Scan(&device, &note, &createdAt); err != nil {
			return "", fmt.Errorf("scan insight: %w", err)
		}
		sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", createdAt.Format("2006-01-02"), device, note))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("recall insights: %w", err)
	}
	return sb.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
