package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/LeventeLantos/automatic-calling/internal/model"
	"github.com/LeventeLantos/automatic-calling/internal/phone"
	"github.com/LeventeLantos/automatic-calling/internal/queue"
	"github.com/LeventeLantos/automatic-calling/internal/store"
	"github.com/google/uuid"
)

var (
	// ErrNotFound means the retry cycle already ended.
	ErrNotFound = store.ErrNotFound

	// ErrConflict is returned by Advance when another advance for the same
	// session won the race. Only reported with optimistic locking enabled.
	ErrConflict = errors.New("session advanced concurrently")
)

// PersistenceError wraps a failed store call.
type PersistenceError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session store %s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type Manager struct {
	store      store.Store
	builder    *queue.Builder
	normalizer phone.Normalizer
	location   *time.Location
	optimistic bool

	now   func() time.Time
	newID func() string
}

type Option func(*Manager)

func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.location = loc
		}
	}
}

func WithNormalizer(n phone.Normalizer) Option {
	return func(m *Manager) { m.normalizer = n }
}

func WithBuilder(b *queue.Builder) Option {
	return func(m *Manager) {
		if b != nil {
			m.builder = b
		}
	}
}

// WithOptimisticLocking makes Advance reject a write when the stored
// version moved since it was read.
func WithOptimisticLocking(enabled bool) Option {
	return func(m *Manager) { m.optimistic = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

func NewManager(st store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:      st,
		builder:    queue.NewBuilder(),
		normalizer: phone.Normalizer{CountryCode: phone.DefaultCountryCode},
		location:   time.UTC,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create persists a new session holding the full retry queue built from
// params. Numbers are expected to be validated already.
func (m *Manager) Create(ctx context.Context, params model.CallParams) (string, error) {
	recipients := queue.Split(params.To)
	for i, r := range recipients {
		recipients[i] = m.normalizer.ToDialable(r)
	}

	s := &model.Session{
		ID:         m.newID(),
		CallParams: params,
		ToList:     m.builder.Build(recipients, params.Loop, params.RoundRobin),
		Status:     model.Active,
		CreatedAt:  m.now().In(m.location),
	}
	if len(s.ToList) == 0 {
		s.Status = model.Exhausted
	}

	if err := m.store.Create(ctx, s); err != nil {
		return "", &PersistenceError{Op: "create", SessionID: s.ID, Err: err}
	}

	slog.Info("session created", "session_id", s.ID, "queue_len", len(s.ToList), "round_robin", params.RoundRobin)
	return s.ID, nil
}

// Read returns ErrNotFound once the session has been deleted.
func (m *Manager) Read(ctx context.Context, id string) (*model.Session, error) {
	s, err := m.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get", SessionID: id, Err: err}
	}
	return s, nil
}

// Advance pops the front of the pending queue and persists the shorter
// queue. ok is false when the queue was already empty; nothing is written
// in that case.
func (m *Manager) Advance(ctx context.Context, id string) (next string, ok bool, err error) {
	s, err := m.Read(ctx, id)
	if err != nil {
		return "", false, err
	}
	if len(s.ToList) == 0 {
		slog.Info("session exhausted", "session_id", id)
		return "", false, nil
	}

	next = s.ToList[0]
	s.ToList = s.ToList[1:]
	if len(s.ToList) == 0 {
		s.Status = model.Exhausted
	}

	write, op := m.store.Update, "update"
	if m.optimistic {
		write, op = m.store.CompareAndSwap, "compare_and_swap"
	}

	switch err := write(ctx, s); {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return "", false, fmt.Errorf("%w: %s", ErrNotFound, id)
	case errors.Is(err, store.ErrVersionConflict):
		return "", false, fmt.Errorf("%w: %s", ErrConflict, id)
	default:
		return "", false, &PersistenceError{Op: op, SessionID: id, Err: err}
	}

	slog.Info("session advanced", "session_id", id, "destination", next, "remaining", len(s.ToList))
	return next, true, nil
}

// Acknowledge ends the retry cycle after a recipient confirmed.
func (m *Manager) Acknowledge(ctx context.Context, id string) error {
	if err := m.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("session acknowledged", "session_id", id)
	return nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return &PersistenceError{Op: "delete", SessionID: id, Err: err}
	}
	return nil
}
