package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/LeventeLantos/automatic-calling/internal/store"
)

// SweepJob deletes exhausted sessions that have not changed for retention.
func SweepJob(sw store.Sweeper, retention time.Duration, now func() time.Time) Job {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) error {
		cutoff := now().Add(-retention)
		n, err := sw.DeleteExhaustedBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("exhausted sessions swept", "count", n, "cutoff", cutoff)
		}
		return nil
	}
}
