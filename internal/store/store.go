package store

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/automatic-calling/internal/model"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrAlreadyExists   = errors.New("session already exists")
	ErrVersionConflict = errors.New("session version conflict")
)

// Store persists one document per session id.
type Store interface {
	// Create stores a new session with Version 1.
	// Returns ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, s *model.Session) error

	// Get returns ErrNotFound when no document exists for id.
	Get(ctx context.Context, id string) (*model.Session, error)

	// Update replaces the stored document, last write wins. It never
	// recreates a deleted session and returns ErrNotFound instead.
	Update(ctx context.Context, s *model.Session) error

	// CompareAndSwap replaces the stored document only if its Version
	// still equals s.Version, returning ErrVersionConflict otherwise.
	CompareAndSwap(ctx context.Context, s *model.Session) error

	// Delete is idempotent; a missing id is not an error.
	Delete(ctx context.Context, id string) error

	Close() error
}

// Sweeper is implemented by stores without native key expiry.
type Sweeper interface {
	DeleteExhaustedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
