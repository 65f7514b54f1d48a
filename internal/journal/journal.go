// Package journal records the session's traffic — observed status events and
// dispatched commands — in a sqlite database for after-the-fact inspection.
// It is an audit log only: nothing is replayed or restored from it.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at TEXT NOT NULL,
	kind TEXT NOT NULL,
	line TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS commands (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at TEXT NOT NULL,
	command TEXT NOT NULL,
	source TEXT NOT NULL
);
`

// Source tags who dispatched a recorded command.
const (
	SourceUser    = "user"
	SourceTrigger = "trigger"
)

type Journal struct {
	db *sql.DB
}

// Event is one recorded inbound line.
type Event struct {
	ID   int64
	At   time.Time
	Kind string
	Line string
}

// Open creates or opens the journal database and applies the schema.
// Use ":memory:" in tests.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) RecordEvent(kind, line string) error {
	if j == nil {
		return nil
	}
	_, err := j.db.Exec(`INSERT INTO events (at, kind, line) VALUES (?, ?, ?)`,
		time.Now().Format(time.RFC3339Nano), kind, line)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (j *Journal) RecordCommand(command, source string) error {
	if j == nil {
		return nil
	}
	_, err := j.db.Exec(`INSERT INTO commands (at, command, source) VALUES (?, ?, ?)`,
		time.Now().Format(time.RFC3339Nano), command, source)
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// RecentEvents returns the newest n events, newest first.
func (j *Journal) RecentEvents(n int) ([]Event, error) {
	rows, err := j.db.Query(`SELECT id, at, kind, line FROM events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var at string
		if err := rows.Scan(&e.ID, &at, &e.Kind, &e.Line); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}
