package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteArchive stores a copy of every appended chat event. It backs
// connect-time replay across server restarts when enabled; the in-memory
// history remains authoritative during a session's lifetime.
type SQLiteArchive struct {
	db *sql.DB
}

var _ Archive = &SQLiteArchive{}

func NewSQLiteArchive(dsn string) (*SQLiteArchive, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite archive: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	a := &SQLiteArchive{db: db}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLiteArchive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *SQLiteArchive) migrate() error {
	if a == nil || a.db == nil {
		return errors.New("sqlite archive: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_events (
			session_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			created_at_ms INTEGER NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (session_id, ordinal)
		);`,
		`CREATE INDEX IF NOT EXISTS chat_events_by_session ON chat_events(session_id, ordinal ASC);`,
	}
	for _, st := range stmts {
		if _, err := a.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite archive: migrate")
		}
	}
	return nil
}

func (a *SQLiteArchive) SaveEvent(ctx context.Context, sessionID string, ordinal int, ev Event) error {
	if a == nil || a.db == nil {
		return errors.New("sqlite archive: db is nil")
	}
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("sqlite archive: sessionID is empty")
	}
	if ordinal < 0 {
		return errors.New("sqlite archive: ordinal is negative")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "sqlite archive: marshal event")
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO chat_events(session_id, ordinal, created_at_ms, payload)
		VALUES(?, ?, ?, ?)
	`, sessionID, ordinal, time.Now().UnixMilli(), string(payload))
	if err != nil {
		return errors.Wrap(err, "sqlite archive: insert")
	}
	return nil
}

func (a *SQLiteArchive) ListEvents(ctx context.Context, sessionID string) ([]Event, error) {
	if a == nil || a.db == nil {
		return nil, errors.New("sqlite archive: db is nil")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("sqlite archive: sessionID is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT payload FROM chat_events
		WHERE session_id = ?
		ORDER BY ordinal ASC
	`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite archive: query")
	}
	defer func() { _ = rows.Close() }()

	events := []Event{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, errors.Wrap(err, "sqlite archive: unmarshal event")
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// SQLiteArchiveDSNForFile builds a DSN with the pragmas the archive needs.
func SQLiteArchiveDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite archive: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
