package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/devlive/dbopen"
	"github.com/hazyhaar/devlive/livereload/notify"
)

// Schema is the outcome journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS live_outcomes (
	id           TEXT PRIMARY KEY,
	action       TEXT NOT NULL,
	trigger_type TEXT NOT NULL DEFAULT '',
	resource     TEXT NOT NULL DEFAULT '',
	path         TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_live_outcomes_created ON live_outcomes(created_at);
`

// SQLite journals outcomes into a live_outcomes table.
type SQLite struct {
	db    *sql.DB
	owned bool
}

// OpenSQLite opens (or creates) the journal database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: %w", err)
	}
	return &SQLite{db: db, owned: true}, nil
}

// NewSQLite journals into an already open database. The schema is applied;
// Close leaves db open.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("sqlite sink: schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Send(ctx context.Context, o notify.Outcome) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT OR IGNORE INTO live_outcomes (id, action, trigger_type, resource, path, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, string(o.Action), string(o.Trigger), string(o.Resource), o.Path, o.Reason, o.Timestamp)
	if err != nil {
		return fmt.Errorf("sqlite sink: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit outcomes, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]notify.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, trigger_type, resource, path, reason, created_at
		 FROM live_outcomes ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: query: %w", err)
	}
	defer rows.Close()

	var out []notify.Outcome
	for rows.Next() {
		var o notify.Outcome
		var action, trigger, resource string
		if err := rows.Scan(&o.ID, &action, &trigger, &resource, &o.Path, &o.Reason, &o.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite sink: scan: %w", err)
		}
		o.Action, o.Trigger, o.Resource = notify.Action(action), notify.Type(trigger), notify.Resource(resource)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
