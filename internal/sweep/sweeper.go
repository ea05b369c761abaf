// Package sweep denies confirmations that have been pending longer than a
// configured maximum age, on a cron schedule. A forgotten prompt must not
// hold its tool batch open forever.
package sweep

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/toolgate/toolgate/internal/confirm"
)

// Sweeper periodically cancels stale pending confirmations.
type Sweeper struct {
	coordinator *confirm.Coordinator
	maxAge      time.Duration
	schedule    string
	logger      *slog.Logger

	cron *cron.Cron

	// tickLock prevents overlapping runs when a sweep outlasts the
	// schedule interval.
	tickLock sync.Mutex

	now func() time.Time
}

// New creates a sweeper. schedule is a five-field cron expression.
func New(coordinator *confirm.Coordinator, schedule string, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		coordinator: coordinator,
		maxAge:      maxAge,
		schedule:    schedule,
		logger:      logger.With("component", "sweep"),
		now:         time.Now,
	}
}

// Start begins scheduled sweeping. Returns an error for an invalid cron
// expression.
func (s *Sweeper) Start() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser))

	if _, err := s.cron.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("sweep: invalid schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", s.schedule, "max_age", s.maxAge)
	return nil
}

// Stop shuts the scheduler down, waiting for an in-flight sweep.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("sweeper stopped")
	}
}

func (s *Sweeper) tick() {
	if !s.tickLock.TryLock() {
		s.logger.Warn("sweep still running, skipping tick")
		return
	}
	defer s.tickLock.Unlock()
	s.Sweep()
}

// Sweep denies every confirmation older than maxAge and returns how many
// were denied.
func (s *Sweeper) Sweep() int {
	cutoff := s.now().Add(-s.maxAge)
	swept := 0

	for _, p := range s.coordinator.Pending() {
		if p.RequestedAt.After(cutoff) {
			continue
		}
		// The entry may settle between snapshot and resolve; Cancel
		// tolerates that.
		if s.coordinator.Cancel(p.ServerID) {
			swept++
			s.logger.Info("denied stale confirmation",
				"server", p.ServerID,
				"age", s.now().Sub(p.RequestedAt).Round(time.Second),
			)
		}
	}
	return swept
}
