// Package monitor drives one portal account through its session
// lifecycle: login, polling at a fixed cadence, and a logout that runs
// on every exit path.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"washmon-backend/lib/platforms/pay2wash"
	"washmon-backend/lib/statusstore"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("services/monitor")

const logoutGracePeriod = time.Second * 10

type Options struct {
	Portal pay2wash.ClientOptions
	// PollInterval paces the status polls; defaults to one minute.
	PollInterval time.Duration
	// MaxPollFailures aborts the run after this many consecutive poll
	// failures; defaults to 3. A dead session aborts immediately.
	MaxPollFailures int
	// Store receives every successful poll when set.
	Store *statusstore.Store
	// Metrics receives gauges and counters when set.
	Metrics *Metrics
}

// Service owns at most one authenticated portal session at a time. Each
// run builds a fresh client (and cookie jar), so independent Services
// can monitor different accounts concurrently without sharing state.
type Service struct {
	opts Options
}

func NewService(opts Options) Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if opts.MaxPollFailures <= 0 {
		opts.MaxPollFailures = 3
	}
	return Service{opts: opts}
}

// RunOnce performs a single login -> poll -> logout cycle and returns
// the polled statuses.
func (s Service) RunOnce(ctx context.Context) ([]pay2wash.MachineStatus, error) {
	ctx, span := tracer.Start(ctx, "service:RunOnce")
	defer span.End()

	var out []pay2wash.MachineStatus
	err := s.withSession(ctx, func(ctx context.Context, client *pay2wash.Client, log *slog.Logger, runID string) error {
		statuses, err := client.MachineStatuses(ctx)
		if err != nil {
			if s.opts.Metrics != nil {
				s.opts.Metrics.PollFailed()
			}
			return fmt.Errorf("poll: %w", err)
		}
		s.record(ctx, log, runID, client.Session().Location, statuses)
		out = statuses
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

// Run logs in and polls at the configured cadence until the context is
// cancelled (a normal shutdown, returns nil), the session dies, or the
// failure budget runs out. Logout is attempted on every exit path.
func (s Service) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "service:Run")
	defer span.End()

	err := s.withSession(ctx, func(ctx context.Context, client *pay2wash.Client, log *slog.Logger, runID string) error {
		location := client.Session().Location
		limiter := rate.NewLimiter(rate.Every(s.opts.PollInterval), 1)
		failures := 0

		for {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}

			statuses, err := client.MachineStatuses(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if s.opts.Metrics != nil {
					s.opts.Metrics.PollFailed()
				}
				if errors.Is(err, pay2wash.ErrBadSession) {
					return fmt.Errorf("poll: %w", err)
				}
				failures++
				log.Warn("poll failed",
					"err", err.Error(),
					"consecutive_failures", failures,
				)
				if failures >= s.opts.MaxPollFailures {
					return fmt.Errorf(
						"aborting run after %d consecutive poll failures: %w",
						failures, err,
					)
				}
				continue
			}

			failures = 0
			s.record(ctx, log, runID, location, statuses)
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// withSession runs fn inside a login/logout bracket. Logout is
// best-effort and also covers the case where the login flow failed
// after the portal had already issued a session cookie.
func (s Service) withSession(
	ctx context.Context,
	fn func(ctx context.Context, client *pay2wash.Client, log *slog.Logger, runID string) error,
) error {
	runID := uuid.NewString()
	log := slog.With("run_id", runID, "portal", s.opts.Portal.BaseUrl)

	client, err := pay2wash.NewClient(s.opts.Portal)
	if err != nil {
		return err
	}

	session, err := client.Login(ctx)
	if err != nil {
		if client.HasSessionCookie() {
			s.bestEffortLogout(ctx, client, log)
		}
		return fmt.Errorf("login: %w", err)
	}
	log.Info("logged in", "location", session.Location)
	if s.opts.Metrics != nil {
		s.opts.Metrics.SetAuthenticated(true)
	}

	defer func() {
		s.bestEffortLogout(ctx, client, log)
		if s.opts.Metrics != nil {
			s.opts.Metrics.SetAuthenticated(false)
		}
	}()

	return fn(ctx, client, log, runID)
}

func (s Service) bestEffortLogout(ctx context.Context, client *pay2wash.Client, log *slog.Logger) {
	// the surrounding context may already be cancelled on shutdown;
	// logout still gets a short window so the server-side session is
	// not left dangling
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutGracePeriod)
	defer cancel()

	if err := client.Logout(ctx); err != nil {
		log.Warn("best-effort logout failed", "err", err.Error())
		return
	}
	log.Info("logged out")
}

func (s Service) record(
	ctx context.Context,
	log *slog.Logger,
	runID, location string,
	statuses []pay2wash.MachineStatus,
) {
	log.Debug("poll ok", "location", location, "machines", len(statuses))
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObservePoll(location, statuses)
	}
	if s.opts.Store != nil {
		err := s.opts.Store.Push(ctx, runID, location, time.Now(), statuses)
		if err != nil {
			log.Error("failed to store observations", "err", err.Error())
		}
	}
}
