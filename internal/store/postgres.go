package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/LeventeLantos/automatic-calling/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS call_sessions (
		id          TEXT PRIMARY KEY,
		call_params JSONB NOT NULL,
		to_list     JSONB NOT NULL,
		status      TEXT NOT NULL,
		version     BIGINT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS call_sessions_status_updated_at_idx
		ON call_sessions (status, updated_at);
`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db    querier
	close func()
	now   func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, close: pool.Close, now: time.Now}
}

// EnsureSchema creates the sessions table when it does not exist yet.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, postgresSchema)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, s *model.Session) error {
	s.Version = 1
	s.UpdatedAt = p.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.UpdatedAt
	}

	params, toList, err := encodeColumns(s)
	if err != nil {
		return err
	}

	tag, err := p.db.Exec(ctx, `
		INSERT INTO call_sessions (id, call_params, to_list, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, s.ID, params, toList, string(s.Status), s.Version, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*model.Session, error) {
	var (
		s      model.Session
		params []byte
		toList []byte
		status string
	)

	err := p.db.QueryRow(ctx, `
		SELECT id, call_params, to_list, status, version, created_at, updated_at
		FROM call_sessions
		WHERE id = $1
	`, id).Scan(&s.ID, &params, &toList, &status, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(params, &s.CallParams); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(toList, &s.ToList); err != nil {
		return nil, err
	}
	s.Status = model.Status(status)
	return &s, nil
}

func (p *PostgresStore) Update(ctx context.Context, s *model.Session) error {
	params, toList, err := encodeColumns(s)
	if err != nil {
		return err
	}

	now := p.now().UTC()
	tag, err := p.db.Exec(ctx, `
		UPDATE call_sessions
		SET call_params = $2,
		    to_list = $3,
		    status = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $1
	`, s.ID, params, toList, string(s.Status), now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.Version++
	s.UpdatedAt = now
	return nil
}

func (p *PostgresStore) CompareAndSwap(ctx context.Context, s *model.Session) error {
	params, toList, err := encodeColumns(s)
	if err != nil {
		return err
	}

	now := p.now().UTC()
	tag, err := p.db.Exec(ctx, `
		UPDATE call_sessions
		SET call_params = $2,
		    to_list = $3,
		    status = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $1 AND version = $6
	`, s.ID, params, toList, string(s.Status), now, s.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		s.Version++
		s.UpdatedAt = now
		return nil
	}

	var exists bool
	if err := p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM call_sessions WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM call_sessions WHERE id = $1`, id)
	return err
}

func (p *PostgresStore) DeleteExhaustedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `
		DELETE FROM call_sessions
		WHERE status = $1 AND updated_at < $2
	`, string(model.Exhausted), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}

func encodeColumns(s *model.Session) (params string, toList string, err error) {
	pb, err := json.Marshal(s.CallParams)
	if err != nil {
		return "", "", err
	}
	list := s.ToList
	if list == nil {
		list = []string{}
	}
	lb, err := json.Marshal(list)
	if err != nil {
		return "", "", err
	}
	return string(pb), string(lb), nil
}

var (
	_ Store   = (*PostgresStore)(nil)
	_ Sweeper = (*PostgresStore)(nil)
)
