package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/automatic-calling/internal/api"
	"github.com/LeventeLantos/automatic-calling/internal/client"
	"github.com/LeventeLantos/automatic-calling/internal/config"
	"github.com/LeventeLantos/automatic-calling/internal/phone"
	"github.com/LeventeLantos/automatic-calling/internal/scheduler"
	"github.com/LeventeLantos/automatic-calling/internal/service"
	"github.com/LeventeLantos/automatic-calling/internal/session"
	"github.com/LeventeLantos/automatic-calling/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Server.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("dispatcher stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("close session store", "error", err)
		}
	}()

	voice, err := client.NewVoiceClient(cfg.Voice.APIURL, cfg.Voice.ApplicationID, cfg.Voice.PrivateKey)
	if err != nil {
		return fmt.Errorf("voice client: %w", err)
	}

	mgr := session.NewManager(st,
		session.WithLocation(cfg.Dialing.Location),
		session.WithNormalizer(phone.Normalizer{CountryCode: cfg.Dialing.CountryCode}),
		session.WithOptimisticLocking(cfg.Store.OptimisticLocking),
	)

	dialer := service.NewDialer(mgr, voice, service.Config{
		BaseURL:       cfg.Server.BaseURL,
		From:          cfg.Voice.FromNumber,
		AckDigit:      cfg.Voice.AckDigit,
		Prompt:        cfg.Voice.Prompt,
		Language:      cfg.Voice.Language,
		InputTimeoutS: int(cfg.Voice.InputTimeout / time.Second),
	})

	sweeper, err := newSweeper(cfg, st)
	if err != nil {
		return err
	}
	if sweeper != nil {
		sweeper.Start()
		defer sweeper.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(api.NewHandler(dialer, mgr, sweeper))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("dispatcher starting",
		"addr", cfg.Server.Address,
		"base_url", cfg.Server.BaseURL,
		"store", cfg.Store.Kind,
		"optimistic_locking", cfg.Store.OptimisticLocking,
		"sweeper", sweeper != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("dispatcher shutting down")
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Kind {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return store.NewRedisStore(rdb, cfg.Redis.TTL), nil

	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return pg, nil

	default:
		return store.NewMemoryStore(), nil
	}
}

// newSweeper returns nil when the store cannot sweep or sweeping is off.
func newSweeper(cfg *config.Config, st store.Store) (*scheduler.Scheduler, error) {
	sw, ok := st.(store.Sweeper)
	if !ok || cfg.Sweeper.Interval <= 0 {
		return nil, nil
	}
	return scheduler.New("session-sweeper", cfg.Sweeper.Interval, scheduler.SweepJob(sw, cfg.Sweeper.Retention, time.Now))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
