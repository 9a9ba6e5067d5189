package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nyashahama/bornify-backend/internal/api"
	"github.com/nyashahama/bornify-backend/internal/app"
	"github.com/nyashahama/bornify-backend/internal/auth"
	"github.com/nyashahama/bornify-backend/internal/blob"
	"github.com/nyashahama/bornify-backend/internal/calendar"
	"github.com/nyashahama/bornify-backend/internal/config"
	"github.com/nyashahama/bornify-backend/internal/store"
	"github.com/nyashahama/bornify-backend/internal/worker"
)

// remindersService is the gRPC health service name that tracks the last run.
const remindersService = "reminders"

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	var logger *slog.Logger
	if os.Getenv("ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port, "reminder_tz", cfg.Location.String())

	// Root context cancelled by OS signal. Scheduler and servers respect it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────────────
	changed, err := store.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migrations applied", "changed", changed)

	pool, err := app.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	st := store.New(pool)

	// ── Email ─────────────────────────────────────────────────────────────────
	mailer := app.NewMailer(cfg, logger)

	// ── OTP rate limiting ─────────────────────────────────────────────────────
	var otpLimiter auth.OTPRateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// The limiter fails open, so a flaky Redis never blocks logins.
			logger.Warn("redis: ping failed, OTP limiter will fail open", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		otpLimiter = auth.NewRedisOTPRateLimiter(rdb, cfg.OTPRateWindow, cfg.OTPRateMax)
		logger.Info("otp limiter: redis", "addr", cfg.RedisAddr)
	} else {
		otpLimiter = auth.NewMemoryOTPRateLimiter(cfg.OTPRateWindow, cfg.OTPRateMax)
		logger.Info("otp limiter: in-memory")
	}

	// ── Uploads ───────────────────────────────────────────────────────────────
	blobs, err := blob.NewDiskStore(cfg.UploadDir, cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("uploads: %w", err)
	}

	// ── Reminder runner ───────────────────────────────────────────────────────
	clock := calendar.RealClock{}
	runner := app.NewReminderRunner(cfg, st, mailer, clock, logger)

	// ── gRPC health ───────────────────────────────────────────────────────────
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(remindersService, healthpb.HealthCheckResponse_SERVING)
	runner.OnComplete(func(sum worker.Summary) {
		status := healthpb.HealthCheckResponse_SERVING
		if !sum.Success {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		healthSrv.SetServingStatus(remindersService, status)
	})

	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(api.Deps{
		Store:      st,
		Mailer:     mailer,
		Tokens:     auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
		Google:     auth.NewGoogleVerifier(cfg.GoogleClientID),
		OTPLimiter: otpLimiter,
		Blobs:      blobs,
		Reminders:  runner, // *Runner satisfies worker.Trigger
		Clock:      clock,
	}, api.Config{
		Env:            cfg.Env,
		AllowedOrigins: cfg.AllowedOrigins,
		CronSecret:     cfg.CronSecret,
		Location:       cfg.Location,
	}, logger)

	srv := &http.Server{
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No write timeout: the cron trigger holds the response for a whole run.
		IdleTimeout: 120 * time.Second,
	}

	// ── Listener: HTTP and gRPC share one port ───────────────────────────────
	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	mux := cmux.New(lis)
	grpcL := mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := mux.Match(cmux.Any())

	serverErr := make(chan error, 3)
	go func() {
		if err := grpcSrv.Serve(grpcL); err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, cmux.ErrListenerClosed) {
			serverErr <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		if err := srv.Serve(httpL); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, cmux.ErrListenerClosed) {
			serverErr <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("server listening", "addr", lis.Addr().String())
		if err := mux.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
			serverErr <- fmt.Errorf("cmux: %w", err)
		}
	}()

	// ── Scheduler ─────────────────────────────────────────────────────────────
	var wg sync.WaitGroup
	if cfg.CronSchedule != "" {
		sched, err := worker.NewScheduler(runner, cfg.CronSchedule, cfg.Location, logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Start(ctx)
		}()
	} else {
		logger.Info("worker: no CRON_SCHEDULE, runs only via /api/cron/trigger or bornctl")
	}

	// Block until either a signal arrives or a server dies unexpectedly.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		stop()
		wg.Wait()
		return fmt.Errorf("server error: %w", err)
	}

	// Give in-flight HTTP requests up to 20 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	healthSrv.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	grpcSrv.GracefulStop()
	_ = lis.Close()

	// The scheduler waits for an in-flight run before returning.
	wg.Wait()
	logger.Info("shutdown complete")
	return nil
}
