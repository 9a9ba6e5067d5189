// Package api implements the HTTP layer for Bornify.
// Handlers are methods on *Server. Each handler file is responsible for one
// resource group and only imports the dependencies it actually uses.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nyashahama/bornify-backend/internal/auth"
	"github.com/nyashahama/bornify-backend/internal/blob"
	"github.com/nyashahama/bornify-backend/internal/calendar"
	"github.com/nyashahama/bornify-backend/internal/email"
	"github.com/nyashahama/bornify-backend/internal/store"
	"github.com/nyashahama/bornify-backend/internal/worker"
)

// Config holds values read from environment variables at startup.
type Config struct {
	// Env is "production", "staging", or "development".
	Env string

	// AllowedOrigins lists the frontends allowed to call the API from a
	// browser. Empty outside production means any origin.
	AllowedOrigins []string

	// CronSecret must match X-Cron-Secret on the trigger endpoint.
	CronSecret string

	// Location is the reference clock's zone; "today" for the dashboard and
	// the reminder run agree on it.
	Location *time.Location
}

// ─── STORE INTERFACES ─────────────────────────────────────────────────────────

// UserStore is the account persistence the auth handlers use.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	UpsertPendingUser(ctx context.Context, p store.UpsertPendingUserParams) (store.User, error)
	SetOTP(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id uuid.UUID) (store.User, error)
	UpdateDOB(ctx context.Context, id uuid.UUID, dob calendar.Date) (store.User, error)
	LoginWithGoogle(ctx context.Context, p store.GoogleUserParams) (store.User, error)
}

// BirthdayStore is the roster persistence the birthday handlers use.
type BirthdayStore interface {
	ListBirthdaysByUser(ctx context.Context, userID uuid.UUID) ([]store.Birthday, error)
	GetBirthday(ctx context.Context, id, userID uuid.UUID) (store.Birthday, error)
	CreateBirthday(ctx context.Context, p store.CreateBirthdayParams) (store.Birthday, error)
	UpdateBirthday(ctx context.Context, p store.UpdateBirthdayParams) (store.Birthday, error)
	DeleteBirthday(ctx context.Context, id, userID uuid.UUID) (store.Birthday, error)
	ImportBirthdays(ctx context.Context, rows []store.CreateBirthdayParams) (int, error)
}

// RunLog lists persisted reminder runs.
type RunLog interface {
	ListRecentRuns(ctx context.Context, limit int) ([]store.ReminderRun, error)
}

// Store is everything the API needs from persistence. *store.Store
// satisfies it.
type Store interface {
	UserStore
	BirthdayStore
	RunLog
	Ping(ctx context.Context) error
}

// Deps are the collaborators NewServer wires into the router.
type Deps struct {
	Store      Store
	Mailer     email.Sender
	Tokens     *auth.TokenIssuer
	Google     auth.GoogleVerifier
	OTPLimiter auth.OTPRateLimiter
	Blobs      blob.Store
	Reminders  worker.Trigger
	Clock      calendar.Clock
}

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	store      Store
	mailer     email.Sender
	tokens     *auth.TokenIssuer
	google     auth.GoogleVerifier
	otpLimiter auth.OTPRateLimiter
	blobs      blob.Store
	reminders  worker.Trigger
	clock      calendar.Clock

	cfg    Config
	logger *slog.Logger
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.Server.
func NewServer(deps Deps, cfg Config, logger *slog.Logger) http.Handler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if deps.Clock == nil {
		deps.Clock = calendar.RealClock{}
	}
	s := &Server{
		store:      deps.Store,
		mailer:     deps.Mailer,
		tokens:     deps.Tokens,
		google:     deps.Google,
		otpLimiter: deps.OTPLimiter,
		blobs:      deps.Blobs,
		reminders:  deps.Reminders,
		clock:      deps.Clock,
		cfg:        cfg,
		logger:     logger,
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", s.handleReady)

	// Photos are loaded by <img> tags, so they carry no auth.
	r.Get("/uploads/{key}", s.handleGetUpload)

	// ── API v1 ────────────────────────────────────────────────────────────────
	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("pong"))
		})

		// Cron routes run the whole batch; they get no request timeout.
		r.Route("/cron", func(r chi.Router) {
			r.Use(s.requireCronSecret)
			r.Post("/trigger", s.handleCronTrigger)
			r.Get("/runs", s.handleListRuns)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			// Accounts: no auth required.
			r.Post("/users/signup", s.handleSignup)
			r.Post("/users/login", s.handleLogin)
			r.Post("/users/verify-otp", s.handleVerifyOTP)
			r.Post("/users/google-login", s.handleGoogleLogin)

			r.Group(func(r chi.Router) {
				r.Use(s.requireUser(false))
				r.Get("/users/me", s.handleMe)
				r.Put("/users/dob", s.handleUpdateDOB)

				r.Get("/birthdays", s.handleListBirthdays)
				r.Post("/birthdays", s.handleCreateBirthday)
				r.Get("/birthdays/upcoming", s.handleUpcomingBirthdays)
				r.Post("/birthdays/import", s.handleImportVCards)
				r.Put("/birthdays/{birthdayID}", s.handleUpdateBirthday)
				r.Delete("/birthdays/{birthdayID}", s.handleDeleteBirthday)
			})

			// Calendar apps subscribe by URL and cannot send headers, so the
			// feed also accepts ?token=.
			r.With(s.requireUser(true)).Get("/birthdays/calendar.ics", s.handleCalendarFeed)
		})
	})

	return r
}

// handleReady reports 503 while the database is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("api: readiness check failed", "error", err, logField(r))
		respondErr(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// today is the reference date for dashboard queries.
func (s *Server) today() calendar.Date {
	return calendar.Today(s.clock.Now(), s.cfg.Location)
}
