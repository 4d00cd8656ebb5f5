package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/royal-studio/internal/api"
	"github.com/LeventeLantos/royal-studio/internal/cache"
	"github.com/LeventeLantos/royal-studio/internal/chat"
	"github.com/LeventeLantos/royal-studio/internal/client"
	"github.com/LeventeLantos/royal-studio/internal/config"
	"github.com/LeventeLantos/royal-studio/internal/dispatch"
	"github.com/LeventeLantos/royal-studio/internal/generation"
	"github.com/LeventeLantos/royal-studio/internal/imagestore"
	"github.com/LeventeLantos/royal-studio/internal/recipient"
	"github.com/LeventeLantos/royal-studio/internal/repo"
	"github.com/LeventeLantos/royal-studio/internal/scheduler"
	"github.com/LeventeLantos/royal-studio/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.LoadAll()
	if err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("studio stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps := service.Deps{
		Book:      recipient.NewBook(),
		Retention: cfg.Janitor.Retention,
		Logger:    log,
	}

	if cfg.Database.Enabled {
		pool, err := repo.Open(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		deps.History = repo.NewPostgresHistoryRepo(pool)
		log.Info("history enabled")
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		deps.Deliveries = cache.NewRedisCache(rdb, cfg.Redis.TTL)
		log.Info("delivery cache enabled", "addr", cfg.Redis.Address)
	}

	if cfg.Images.Enabled {
		store, err := imagestore.NewMinioStore(imagestore.Options{
			Endpoint:  cfg.Images.Endpoint,
			AccessKey: cfg.Images.AccessKey,
			SecretKey: cfg.Images.SecretKey,
			Bucket:    cfg.Images.Bucket,
			UseSSL:    cfg.Images.UseSSL,
		})
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return err
		}
		deps.Images = store
		log.Info("image store enabled", "bucket", cfg.Images.Bucket)
	}

	gwOpts := []client.Option{client.WithHTTPClient(&http.Client{Timeout: cfg.Gateway.Timeout})}
	if cfg.Gateway.RatePerSec > 0 {
		gwOpts = append(gwOpts, client.WithRateLimit(float64(cfg.Gateway.RatePerSec), cfg.Gateway.RatePerSec))
	}
	gw := client.NewGateway(cfg.Gateway.URL, gwOpts...)

	deps.Dispatcher = dispatch.New(gw, log)
	deps.SMS = gw
	studio := service.NewStudio(deps)

	gen := generation.New(gw,
		generation.WithPolicy(generation.Policy{
			MaxRetries:   cfg.Generation.MaxRetries,
			BackoffBase:  cfg.Generation.BackoffBase,
			TickInterval: cfg.Generation.TickInterval,
		}),
		generation.WithDimensions(cfg.Generation.Width, cfg.Generation.Height),
		generation.WithLogger(log),
		generation.WithSuccessHook(studio.RecordGeneration),
	)

	janitor, err := scheduler.New(cfg.Janitor.Interval, studio.PruneHistory,
		scheduler.WithLogger(log),
		scheduler.WithName("history-janitor"),
	)
	if err != nil {
		return err
	}
	if cfg.Database.Enabled {
		janitor.Start()
	}

	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	h := api.NewHandler(api.Deps{
		Studio:         studio,
		Generator:      gen,
		Chat:           chat.NewConversation(gw, nil, log),
		Janitor:        janitor,
		SessionContext: sessionCtx,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(h)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested")

		gen.Cancel()
		cancelSessions()
		janitor.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("studio stopped cleanly")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
