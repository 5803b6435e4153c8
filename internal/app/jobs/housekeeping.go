// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/groupfit/server/internal/app/metrics"
	"github.com/groupfit/server/internal/app/system"
	"github.com/groupfit/server/internal/logging"
)

var _ system.Service = (*Housekeeper)(nil)

// RevocationPurger drops revocation entries whose tokens have expired.
type RevocationPurger interface {
	Purge(ctx context.Context, now time.Time) (int, error)
}

// LimiterCleaner drops rate limiters that have been idle for maxIdle.
type LimiterCleaner interface {
	Cleanup(maxIdle time.Duration) int
}

// Housekeeper purges expired token revocations and idle rate limiters.
type Housekeeper struct {
	schedule    string
	revocations RevocationPurger
	limiters    LimiterCleaner
	maxIdle     time.Duration
	log         *logging.Logger
	now         func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewHousekeeper validates schedule and returns a stopped Housekeeper.
// Either target may be nil.
func NewHousekeeper(schedule string, revocations RevocationPurger, limiters LimiterCleaner, log *logging.Logger) (*Housekeeper, error) {
	if schedule == "" {
		schedule = "@every 5m"
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid housekeeping schedule %q: %w", schedule, err)
	}
	if log == nil {
		log = logging.NewDefault("housekeeping")
	}
	return &Housekeeper{
		schedule:    schedule,
		revocations: revocations,
		limiters:    limiters,
		maxIdle:     10 * time.Minute,
		log:         log,
		now:         time.Now,
	}, nil
}

func (h *Housekeeper) Name() string { return "housekeeping" }

func (h *Housekeeper) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(h.schedule, func() { h.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule housekeeping: %w", err)
	}
	c.Start()
	h.cron = c
	h.log.WithContext(ctx).WithField("schedule", h.schedule).Info("housekeeping started")
	return nil
}

func (h *Housekeeper) Stop(ctx context.Context) error {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	h.log.WithContext(ctx).Info("housekeeping stopped")
	return nil
}

// RunOnce performs one maintenance pass.
func (h *Housekeeper) RunOnce(ctx context.Context) {
	if h.revocations != nil {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := h.revocations.Purge(ctx, h.now())
		cancel()
		metrics.RecordHousekeeping("revocations", err == nil)
		if err != nil {
			h.log.WithContext(ctx).WithError(err).Warn("purge revocations failed")
		} else if n > 0 {
			h.log.WithContext(ctx).WithField("purged", n).Debug("purged expired revocations")
		}
	}
	if h.limiters != nil {
		n := h.limiters.Cleanup(h.maxIdle)
		metrics.RecordHousekeeping("rate_limiters", true)
		if n > 0 {
			h.log.WithContext(ctx).WithField("removed", n).Debug("removed idle rate limiters")
		}
	}
}
