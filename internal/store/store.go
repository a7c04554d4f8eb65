// Package store is the PostgreSQL-backed persistence layer: the transcript
// sink fed by the bridge and the policy-context provider read at session
// start.
//
// All operations are safe for concurrent use.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PolicyContext is the per-user context injected into the upstream session's
// instructions. Fetched once per session, read-only afterwards.
type PolicyContext struct {
	// VehicleReg is the user's vehicle registration.
	VehicleReg string

	// Summary is the textual policy context (current policy, renewal date,
	// stated preferences) the assistant is briefed with.
	Summary string
}

// Store holds a single [pgxpool.Pool] and exposes the transcript sink and
// the policy-context provider.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and runs the schema migration.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// migrate ensures the tables this service owns exist.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS voice_transcripts (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT        NOT NULL,
	role       TEXT        NOT NULL,
	text       TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS voice_transcripts_user_created_idx
	ON voice_transcripts (user_id, created_at);

CREATE TABLE IF NOT EXISTS policy_contexts (
	user_id     TEXT PRIMARY KEY,
	vehicle_reg TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payment_profiles (
	user_id           TEXT PRIMARY KEY,
	customer_id       TEXT NOT NULL,
	payment_method_id TEXT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Save appends one transcript line. role is "user" or "assistant".
func (s *Store) Save(ctx context.Context, userID, role, text string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO voice_transcripts (user_id, role, text) VALUES ($1, $2, $3)`,
		userID, role, text,
	)
	if err != nil {
		return fmt.Errorf("store: save transcript: %w", err)
	}
	return nil
}

// PolicyContext returns the user's policy context. A user without one gets a
// zero-valued context, not an error — sessions start fine without a briefing.
func (s *Store) PolicyContext(ctx context.Context, userID string) (PolicyContext, error) {
	var pc PolicyContext
	err := s.pool.QueryRow(ctx,
		`SELECT vehicle_reg, summary FROM policy_contexts WHERE user_id = $1`,
		userID,
	).Scan(&pc.VehicleReg, &pc.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return PolicyContext{}, nil
	}
	if err != nil {
		return PolicyContext{}, fmt.Errorf("store: policy context for %s: %w", userID, err)
	}
	return pc, nil
}

// Recent returns the user's last n transcript lines, oldest first.
func (s *Store) Recent(ctx context.Context, userID string, n int) ([]TranscriptLine, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role, text FROM (
			SELECT role, text, created_at FROM voice_transcripts
			WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
		) t ORDER BY created_at ASC`,
		userID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("store: recent transcripts: %w", err)
	}
	defer rows.Close()

	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TranscriptLine, error) {
		var l TranscriptLine
		err := row.Scan(&l.Role, &l.Text)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: collect transcripts: %w", err)
	}
	return lines, nil
}

// TranscriptLine is one persisted transcript entry.
type TranscriptLine struct {
	Role string
	Text string
}

// PaymentProfile returns the user's Stripe customer and saved payment method,
// both created during onboarding. Satisfies [purchase.PaymentProfileLookup].
func (s *Store) PaymentProfile(ctx context.Context, userID string) (customerID, paymentMethodID string, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT customer_id, payment_method_id FROM payment_profiles WHERE user_id = $1`,
		userID,
	).Scan(&customerID, &paymentMethodID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", fmt.Errorf("store: no payment profile for %s", userID)
	}
	if err != nil {
		return "", "", fmt.Errorf("store: payment profile for %s: %w", userID, err)
	}
	return customerID, paymentMethodID, nil
}

// Ping checks database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
