package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/LeventeLantos/automatic-calling/internal/model"
)

func newTestSession(id string) *model.Session {
	return &model.Session{
		ID: id,
		CallParams: model.CallParams{
			To:         "0901111111,0902222222",
			Text:       "disk full",
			Loop:       1,
			RoundRobin: false,
		},
		ToList:    []string{"81901111111", "81902222222"},
		Status:    model.Active,
		CreatedAt: time.Date(2026, 2, 2, 18, 0, 0, 0, time.FixedZone("JST", 9*3600)),
	}
}

// runStoreContract exercises the behaviour every driver must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create and get", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		s := newTestSession("s1")
		if err := st.Create(ctx, s); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if s.Version != 1 {
			t.Fatalf("expected version 1 after create, got %d", s.Version)
		}

		got, err := st.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if got.CallParams != s.CallParams {
			t.Fatalf("expected call params %+v, got %+v", s.CallParams, got.CallParams)
		}
		if !reflect.DeepEqual(got.ToList, s.ToList) {
			t.Fatalf("expected to_list %v, got %v", s.ToList, got.ToList)
		}
		if !got.CreatedAt.Equal(s.CreatedAt) {
			t.Fatalf("expected created_at %v, got %v", s.CreatedAt, got.CreatedAt)
		}
		if got.Status != model.Active {
			t.Fatalf("expected status active, got %q", got.Status)
		}
	})

	t.Run("create twice", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		if err := st.Create(ctx, newTestSession("dup")); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		err := st.Create(ctx, newTestSession("dup"))
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Get(context.Background(), "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update replaces queue", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		s := newTestSession("u1")
		if err := st.Create(ctx, s); err != nil {
			t.Fatalf("Create() error: %v", err)
		}

		s.ToList = s.ToList[1:]
		if err := st.Update(ctx, s); err != nil {
			t.Fatalf("Update() error: %v", err)
		}
		if s.Version != 2 {
			t.Fatalf("expected version 2, got %d", s.Version)
		}

		got, err := st.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !reflect.DeepEqual(got.ToList, []string{"81902222222"}) {
			t.Fatalf("unexpected to_list: %v", got.ToList)
		}
	})

	t.Run("update does not resurrect", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		s := newTestSession("gone")
		if err := st.Create(ctx, s); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if err := st.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}

		if err := st.Update(ctx, s); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := st.Get(ctx, "gone"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected session to stay deleted, got %v", err)
		}
	})

	t.Run("compare and swap", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		s := newTestSession("cas")
		if err := st.Create(ctx, s); err != nil {
			t.Fatalf("Create() error: %v", err)
		}

		first, _ := st.Get(ctx, "cas")
		second, _ := st.Get(ctx, "cas")

		first.ToList = first.ToList[1:]
		if err := st.CompareAndSwap(ctx, first); err != nil {
			t.Fatalf("first CompareAndSwap() error: %v", err)
		}
		if first.Version != 2 {
			t.Fatalf("expected version 2, got %d", first.Version)
		}

		second.ToList = second.ToList[1:]
		if err := st.CompareAndSwap(ctx, second); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}

		if err := st.CompareAndSwap(ctx, newTestSession("missing")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		if err := st.Create(ctx, newTestSession("d1")); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if err := st.Delete(ctx, "d1"); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if err := st.Delete(ctx, "d1"); err != nil {
			t.Fatalf("second Delete() error: %v", err)
		}
		if _, err := st.Get(ctx, "d1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("context canceled", func(t *testing.T) {
		st := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := st.Create(ctx, newTestSession("c1")); err == nil {
			t.Fatalf("expected error due to canceled context, got nil")
		}
	})
}
