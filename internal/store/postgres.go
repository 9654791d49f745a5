package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists session documents in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			host_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			admission_mode TEXT NOT NULL DEFAULT 'auto',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			participants JSONB NOT NULL DEFAULT '[]'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions (expires_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, doc SessionDoc) error {
	participants, err := json.Marshal(doc.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, host_id, title, admission_mode, is_active, created_at, expires_at, participants)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			admission_mode = EXCLUDED.admission_mode,
			is_active = EXCLUDED.is_active,
			expires_at = EXCLUDED.expires_at,
			participants = EXCLUDED.participants`,
		doc.ID,
		doc.HostID,
		doc.Title,
		doc.AdmissionMode,
		doc.IsActive,
		doc.CreatedAt,
		doc.ExpiresAt,
		participants,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (SessionDoc, error) {
	var (
		doc SessionDoc
		raw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, host_id, title, admission_mode, is_active, created_at, expires_at, participants
		 FROM sessions WHERE id=$1`,
		id,
	).Scan(&doc.ID, &doc.HostID, &doc.Title, &doc.AdmissionMode, &doc.IsActive, &doc.CreatedAt, &doc.ExpiresAt, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionDoc{}, ErrNotFound
	}
	if err != nil {
		return SessionDoc{}, fmt.Errorf("get session: %w", err)
	}
	if err := json.Unmarshal(raw, &doc.Participants); err != nil {
		return SessionDoc{}, fmt.Errorf("decode participants: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateParticipants(ctx context.Context, id string, participants []ParticipantDoc) error {
	raw, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET participants=$2 WHERE id=$1`,
		id, raw,
	)
	if err != nil {
		return fmt.Errorf("update participants: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
