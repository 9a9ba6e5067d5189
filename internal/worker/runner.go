// Package worker contains the reminder run: a bounded pool of goroutines that
// walks every user, builds each one's birthday digest and sends at most one
// email per user. It is decoupled from the HTTP layer: the api package holds
// a worker.Trigger interface and never imports the concrete Runner.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nyashahama/bornify-backend/internal/calendar"
	"github.com/nyashahama/bornify-backend/internal/email"
	"github.com/nyashahama/bornify-backend/internal/store"
)

// ─── INTERFACES ───────────────────────────────────────────────────────────────

// Trigger is the narrow interface the api package and the scheduler use to
// start a pass. The concrete implementation is *Runner.
type Trigger interface {
	RunToday(ctx context.Context) Summary
}

// UserLister is the global read that starts every run.
type UserLister interface {
	ListUsers(ctx context.Context) ([]store.User, error)
}

// RunRecorder persists a finished run. Optional.
type RunRecorder interface {
	InsertReminderRun(ctx context.Context, p store.InsertRunParams) (uuid.UUID, error)
}

// ErrRunInProgress is reported when Run is called while another pass is
// still active in this process.
var ErrRunInProgress = errors.New("run already in progress")

// ─── SUMMARY ──────────────────────────────────────────────────────────────────

// Summary is the result of one pass. It is returned to the caller, logged,
// and persisted when a RunRecorder is configured.
type Summary struct {
	Success        bool          `json:"success"`
	UsersChecked   int           `json:"users_checked"`
	Sent           int           `json:"sent"`
	Failed         int           `json:"failed"`
	SkippedRecords int           `json:"skipped_records"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	RunDate        calendar.Date `json:"run_date"`
	StartedAt      time.Time     `json:"started_at"`
	DurationMS     int64         `json:"duration_ms"`

	// Failures lists every per-user failure; persisted, not returned.
	Failures []store.RunFailure `json:"-"`
}

// State is the lifecycle of the most recent pass.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "not_started"
	}
}

// ─── RUNNER ───────────────────────────────────────────────────────────────────

// RunnerConfig holds tuning parameters for the Runner. Zero values fall back
// to DefaultRunnerConfig.
type RunnerConfig struct {
	// Workers is the number of users processed concurrently. Default: 4.
	Workers int

	// UserTimeout bounds the fetch and send for a single user. Default: 30s.
	UserTimeout time.Duration

	// Location is where "today" is computed by RunToday. Default: UTC.
	Location *time.Location
}

// DefaultRunnerConfig returns safe production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:     4,
		UserTimeout: 30 * time.Second,
		Location:    time.UTC,
	}
}

// Runner executes reminder passes. A single Runner is shared by the HTTP
// trigger, the in-process schedule and the CLI; it refuses to start a second
// pass while one is active.
type Runner struct {
	job      *Job
	users    UserLister
	mailer   email.Sender
	recorder RunRecorder
	clock    calendar.Clock
	cfg      RunnerConfig
	logger   *slog.Logger

	mu         sync.Mutex // held for the whole pass
	state      atomic.Int32
	onComplete []func(Summary)
}

// NewRunner constructs a Runner. recorder may be nil.
func NewRunner(
	job *Job,
	users UserLister,
	mailer email.Sender,
	recorder RunRecorder,
	clock calendar.Clock,
	cfg RunnerConfig,
	logger *slog.Logger,
) *Runner {
	def := DefaultRunnerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.UserTimeout <= 0 {
		cfg.UserTimeout = def.UserTimeout
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if clock == nil {
		clock = calendar.RealClock{}
	}
	return &Runner{
		job:      job,
		users:    users,
		mailer:   mailer,
		recorder: recorder,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// NewSendLimiter returns a token bucket allowing perSecond sends with a burst
// of one. A non-positive rate disables throttling.
func NewSendLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// OnComplete registers fn to be called with every finished summary. Must be
// called before the first Run.
func (r *Runner) OnComplete(fn func(Summary)) {
	r.onComplete = append(r.onComplete, fn)
}

// State reports the lifecycle of the current or most recent pass.
func (r *Runner) State() State { return State(r.state.Load()) }

// Today is the reference date RunToday would use now.
func (r *Runner) Today() calendar.Date {
	return calendar.Today(r.clock.Now(), r.cfg.Location)
}

// RunToday runs a pass for the current date in the configured location.
func (r *Runner) RunToday(ctx context.Context) Summary {
	return r.Run(ctx, r.Today())
}

// Run executes one full pass for the given reference date and always returns
// a Summary; errors are reported through Success and ErrorMessage.
func (r *Runner) Run(ctx context.Context, today calendar.Date) Summary {
	started := r.clock.Now()

	if !r.mu.TryLock() {
		// Refusals are not recorded and do not fire OnComplete.
		r.logger.Warn("worker: refusing overlapping run", "run_date", today)
		return Summary{
			RunDate:      today,
			StartedAt:    started,
			ErrorMessage: ErrRunInProgress.Error(),
		}
	}
	defer r.mu.Unlock()

	r.state.Store(int32(StateRunning))
	r.logger.Info("worker: run starting", "run_date", today, "workers", r.cfg.Workers)

	sum := r.pass(ctx, today)
	sum.RunDate = today
	sum.StartedAt = started
	sum.DurationMS = r.clock.Now().Sub(started).Milliseconds()

	r.state.Store(int32(StateCompleted))
	r.record(ctx, sum)
	r.logSummary(sum)
	for _, fn := range r.onComplete {
		fn(sum)
	}
	return sum
}

// pass implements the per-run algorithm. Only the sender precondition and the
// global user list can fail the run; everything after is per-user.
func (r *Runner) pass(ctx context.Context, today calendar.Date) Summary {
	// ── 1. Sender precondition ────────────────────────────────────────────────
	if err := r.mailer.Ready(); err != nil {
		return Summary{ErrorMessage: "notification sender not configured: " + err.Error()}
	}

	// ── 2. Global user list ───────────────────────────────────────────────────
	users, err := r.users.ListUsers(ctx)
	if err != nil {
		return Summary{ErrorMessage: "list users: " + err.Error()}
	}

	// ── 3. Fan out to the worker pool ─────────────────────────────────────────
	var (
		sent, failed, skipped atomic.Int64
		failMu                sync.Mutex
		failures              []store.RunFailure
		wg                    sync.WaitGroup
	)
	queue := make(chan store.User)

	workers := min(r.cfg.Workers, max(len(users), 1))
	for i := range workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log := r.logger.With("worker_id", id)
			for u := range queue {
				userCtx, cancel := context.WithTimeout(ctx, r.cfg.UserTimeout)
				res, err := r.job.Run(userCtx, u, today)
				cancel()

				skipped.Add(int64(len(res.Rejected)))

				// Corrupt records are a failure for this user even when the
				// valid entries were delivered; the user counts as failed
				// only when nothing went out.
				var errs []error
				if len(res.Rejected) > 0 {
					errs = append(errs, rejectedError(res.Rejected))
				}
				if err != nil {
					errs = append(errs, err)
				}
				for _, e := range errs {
					stage := StageSend
					var se *StageError
					if errors.As(e, &se) {
						stage = se.Stage
					}
					log.Error("worker: user failed", "user_id", u.ID, "stage", stage, "error", e)
					failMu.Lock()
					failures = append(failures, store.RunFailure{UserID: u.ID, Stage: stage, Error: e.Error()})
					failMu.Unlock()
				}

				switch {
				case res.Sent:
					sent.Add(1)
				case len(errs) > 0:
					failed.Add(1)
				}
			}
		}(i)
	}

	for _, u := range users {
		queue <- u
	}
	close(queue)
	wg.Wait()

	return Summary{
		Success:        true,
		UsersChecked:   len(users),
		Sent:           int(sent.Load()),
		Failed:         int(failed.Load()),
		SkippedRecords: int(skipped.Load()),
		Failures:       failures,
	}
}

// record persists the summary. A persistence failure is logged and never
// changes the summary.
func (r *Runner) record(ctx context.Context, sum Summary) {
	if r.recorder == nil {
		return
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if _, err := r.recorder.InsertReminderRun(recCtx, store.InsertRunParams{
		RunDate:        sum.RunDate,
		StartedAt:      sum.StartedAt,
		Duration:       time.Duration(sum.DurationMS) * time.Millisecond,
		Success:        sum.Success,
		UsersChecked:   sum.UsersChecked,
		Sent:           sum.Sent,
		Failed:         sum.Failed,
		SkippedRecords: sum.SkippedRecords,
		ErrorMessage:   sum.ErrorMessage,
		Failures:       sum.Failures,
	}); err != nil {
		r.logger.Error("worker: failed to record run", "run_date", sum.RunDate, "error", err)
	}
}

func (r *Runner) logSummary(sum Summary) {
	attrs := []any{
		"run_date", sum.RunDate,
		"success", sum.Success,
		"users_checked", sum.UsersChecked,
		"sent", sum.Sent,
		"failed", sum.Failed,
		"skipped_records", sum.SkippedRecords,
		"duration_ms", sum.DurationMS,
	}
	if !sum.Success {
		r.logger.Error("worker: run failed", append(attrs, "error", sum.ErrorMessage)...)
		return
	}
	r.logger.Info("worker: run completed", attrs...)
}
