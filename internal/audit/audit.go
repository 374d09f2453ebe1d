// Package audit persists a durable, replayable ledger of every
// ConsumeEvents call a host performs: the cranker's proof-of-work receipt.
// It sits entirely outside the hot match path — internal/matching and
// internal/market never import it — and never backs the event queue
// itself, which stays the fixed-capacity in-region ring (spec §4.2). Style
// grounded on chycee-CryptoGo's internal/storage.EventStore: open db,
// create tables, append rows, no ORM.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// Ledger records cranker activity for one clobd host.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if absent) a sqlite-backed ledger at dbPath.
func Open(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS consume_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			market TEXT NOT NULL,
			popped INTEGER NOT NULL,
			reward_paid INTEGER NOT NULL,
			cranker TEXT NOT NULL,
			ts INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create consume_events table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// RecordConsume appends one ConsumeEvents receipt.
func (l *Ledger) RecordConsume(ctx context.Context, market string, popped, rewardPaid uint64, cranker string, ts int64) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO consume_events (market, popped, reward_paid, cranker, ts) VALUES (?, ?, ?, ?, ?)",
		market, popped, rewardPaid, cranker, ts,
	)
	if err != nil {
		return fmt.Errorf("record consume: %w", err)
	}
	return nil
}

// TotalRewardPaid sums reward_paid across every recorded consume for a
// market.
func (l *Ledger) TotalRewardPaid(ctx context.Context, market string) (uint64, error) {
	var total sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		"SELECT SUM(reward_paid) FROM consume_events WHERE market = ?", market,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum reward paid: %w", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return uint64(total.Int64), nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error { return l.db.Close() }
