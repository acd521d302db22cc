package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// checkTimeout bounds one monitor's check run inside the timer loop.
const checkTimeout = 2 * time.Minute

// ErrSchedulerClosed is returned for operations sent to a stopped scheduler.
var ErrSchedulerClosed = errors.New("scheduler is closed")

type schedKind int

const (
	schedAdd schedKind = iota
	schedCancel
)

type schedOp struct {
	kind          schedKind
	monitorID     string
	intervalHours int
	scheduledAt   time.Time
	reply         chan error
}

type schedEntry struct {
	intervalHours int
	scheduledAt   time.Time
}

// Scheduler is the per-shard timer actor. It tracks scheduled monitors
// in one goroutine and holds a single timer armed for the earliest
// scheduledAt; when no monitors remain the timer is left unarmed.
type Scheduler struct {
	registry *Registry
	checker  *Checker
	clock    webintel.Clock
	logger   *zap.Logger

	entries map[string]schedEntry
	ops     chan schedOp
	quit    chan struct{}
	done    chan struct{}
}

// NewScheduler constructs a Scheduler. Call Start to load active
// monitors and begin the timer loop.
func NewScheduler(registry *Registry, checker *Checker, clock webintel.Clock, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		registry: registry,
		checker:  checker,
		clock:    clock,
		logger:   logger,
		entries:  make(map[string]schedEntry),
		ops:      make(chan schedOp),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start recovers every active monitor from the registry, schedules each
// at its persisted nextCheckAt, and launches the timer loop. Monitors
// already past due fire on the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	active, err := s.registry.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("recover active monitors: %w", err)
	}
	for _, def := range active {
		s.entries[def.ID] = schedEntry{
			intervalHours: def.CheckIntervalHours,
			scheduledAt:   def.NextCheckAt,
		}
	}
	s.logger.Info("scheduler started", zap.Int("recovered_monitors", len(s.entries)))
	go s.run()
	return nil
}

// Schedule registers (or reschedules) a monitor to fire one interval
// from now.
func (s *Scheduler) Schedule(ctx context.Context, monitorID string, intervalHours int) error {
	intervalHours = clampInterval(intervalHours)
	return s.send(ctx, schedOp{
		kind:          schedAdd,
		monitorID:     monitorID,
		intervalHours: intervalHours,
		scheduledAt:   s.clock.Now().Add(time.Duration(intervalHours) * time.Hour),
		reply:         make(chan error, 1),
	})
}

// Cancel removes a monitor from the timer. Cancelling an untracked id
// is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, monitorID string) error {
	return s.send(ctx, schedOp{
		kind:      schedCancel,
		monitorID: monitorID,
		reply:     make(chan error, 1),
	})
}

// Close stops the timer loop after any in-flight pass completes.
func (s *Scheduler) Close() {
	close(s.quit)
	<-s.done
}

func (s *Scheduler) send(ctx context.Context, o schedOp) error {
	select {
	case s.ops <- o:
	case <-s.done:
		return ErrSchedulerClosed
	case <-ctx.Done():
		return fmt.Errorf("scheduler: %w", ctx.Err())
	}
	select {
	case err := <-o.reply:
		return err
	case <-ctx.Done():
		return fmt.Errorf("scheduler: %w", ctx.Err())
	}
}

func (s *Scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	s.rearm(timer, false)
	for {
		select {
		case o := <-s.ops:
			s.apply(o)
			s.rearm(timer, false)
		case <-timer.C:
			s.runDue(s.clock.Now())
			s.rearm(timer, true)
		case <-s.quit:
			return
		}
	}
}

func (s *Scheduler) apply(o schedOp) {
	switch o.kind {
	case schedAdd:
		s.entries[o.monitorID] = schedEntry{
			intervalHours: o.intervalHours,
			scheduledAt:   o.scheduledAt,
		}
		s.logger.Debug("monitor scheduled",
			zap.String("monitor_id", o.monitorID),
			zap.Time("scheduled_at", o.scheduledAt))
	case schedCancel:
		delete(s.entries, o.monitorID)
		s.logger.Debug("monitor cancelled", zap.String("monitor_id", o.monitorID))
	}
	o.reply <- nil
}

// runDue checks every tracked monitor whose scheduledAt has passed.
// Failures are isolated per monitor: one broken monitor never blocks
// the rest of the pass.
func (s *Scheduler) runDue(now time.Time) {
	for id, entry := range s.entries {
		if entry.scheduledAt.After(now) {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		def, err := s.registry.Get(ctx, id)
		switch {
		case errors.Is(err, webintel.ErrMonitorNotFound):
			delete(s.entries, id)
			cancel()
			continue
		case err != nil:
			s.logger.Warn("monitor load failed, retrying next cycle",
				zap.String("monitor_id", id), zap.Error(err))
			entry.scheduledAt = now.Add(time.Duration(entry.intervalHours) * time.Hour)
			s.entries[id] = entry
			cancel()
			continue
		}
		if def.Status != webintel.MonitorActive {
			delete(s.entries, id)
			cancel()
			continue
		}

		outcome, err := s.checker.Check(ctx, def)
		cancel()
		if err != nil {
			s.logger.Warn("monitor check failed",
				zap.String("monitor_id", id),
				zap.Bool("billed", outcome.Billed),
				zap.Error(err))
		}
		if outcome.Monitor.ID != "" && outcome.Monitor.Status != webintel.MonitorActive {
			delete(s.entries, id)
			continue
		}

		entry.intervalHours = def.CheckIntervalHours
		entry.scheduledAt = now.Add(time.Duration(def.CheckIntervalHours) * time.Hour)
		s.entries[id] = entry
	}
}

// rearm points the timer at the earliest scheduledAt, or leaves it
// unarmed when nothing is tracked. fired reports that the timer channel
// was just drained by the caller.
func (s *Scheduler) rearm(timer *time.Timer, fired bool) {
	if !fired && !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}

	earliest, ok := s.earliest()
	if !ok {
		return
	}
	delay := earliest.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	timer.Reset(delay)
}

func (s *Scheduler) earliest() (time.Time, bool) {
	var min time.Time
	found := false
	for _, entry := range s.entries {
		if !found || entry.scheduledAt.Before(min) {
			min = entry.scheduledAt
			found = true
		}
	}
	return min, found
}
