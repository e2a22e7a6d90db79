// Package archive mirrors delivered messages into Postgres for
// long-term retention, independent of the local timeline store.
package archive

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"offline-chat/internal/message"
)

// Record is the archived shape of a message.
type Record struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Kind       string    `json:"kind"`
	Content    string    `json:"content"`
	Encrypted  bool      `json:"encrypted"`
	Timestamp  time.Time `json:"timestamp"`
}

// Archive persists message records through database/sql. A nil DB
// disables archiving; every method is then a no-op.
type Archive struct {
	db *sql.DB
}

// New wraps an existing connection pool (may be nil for disabled mode).
func New(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// Open dials Postgres with the pgx stdlib driver.
func Open(databaseURL string) (*Archive, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

// Enabled reports whether archiving is configured.
func (a *Archive) Enabled() bool { return a != nil && a.db != nil }

func (a *Archive) Close() error {
	if !a.Enabled() {
		return nil
	}
	return a.db.Close()
}

// Ping verifies connectivity.
func (a *Archive) Ping(ctx context.Context) error {
	if !a.Enabled() {
		return nil
	}
	return a.db.PingContext(ctx)
}

// Store upserts one message; re-archiving after an edit or a status
// change overwrites the previous row.
func (a *Archive) Store(ctx context.Context, msg message.Message) error {
	if !a.Enabled() {
		return nil
	}
	_, err := a.db.ExecContext(ctx, `
        INSERT INTO messages (id, sender_id, receiver_id, kind, content, encrypted, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content
    `, msg.ID, msg.SenderID, msg.ReceiverID, string(msg.Kind()), msg.Content(), msg.Encrypted, msg.Timestamp)
	return err
}

// History returns up to limit most recent archived records involving
// the given participant, newest first.
func (a *Archive) History(ctx context.Context, participantID string, limit int) ([]Record, error) {
	if !a.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := a.db.QueryContext(ctx, `
        SELECT id, sender_id, receiver_id, kind, content, encrypted, COALESCE(timestamp, NOW())
        FROM messages
        WHERE sender_id = $1 OR receiver_id = $1
        ORDER BY timestamp DESC
        LIMIT $2
    `, participantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SenderID, &rec.ReceiverID, &rec.Kind, &rec.Content, &rec.Encrypted, &rec.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
