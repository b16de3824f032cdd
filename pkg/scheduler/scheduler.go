// Package scheduler owns the worker loop that drives the automation
// strategies: round-robin module rotation, rate-limit gating, human-like
// delays, failure backoff and the operator-facing pause/resume/stop state.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/instagent/instagent/pkg/backoff"
	"github.com/instagent/instagent/pkg/db/models"
	"github.com/instagent/instagent/pkg/modules"
	"github.com/instagent/instagent/pkg/ratelimit"
)

const defaultPollInterval = 500 * time.Millisecond

// Recorder persists action records and daily statistics.
type Recorder interface {
	LogAction(ctx context.Context, record models.ActionLog) error
	IncrementDailyStat(ctx context.Context, day time.Time, counter string) error
}

// Notifier pushes operator-facing alerts. Implemented by the Telegram bot.
type Notifier interface {
	Notify(message string)
}

// Config holds everything the scheduler needs.
type Config struct {
	Modules  []modules.Module
	Limiter  *ratelimit.Limiter
	Policy   *backoff.Policy
	Recorder Recorder
	Notifier Notifier
	Logger   *logrus.Logger

	// MinActionDelay/MaxActionDelay bound the randomized human-like
	// pause after every successful action.
	MinActionDelay time.Duration
	MaxActionDelay time.Duration

	// PollInterval is the slice size of interruptible sleeps and the
	// pause between idle checks.
	PollInterval time.Duration
}

func (c Config) validate() error {
	if len(c.Modules) == 0 {
		return fmt.Errorf("at least one module is required")
	}
	if c.Limiter == nil {
		return fmt.Errorf("rate limiter is required")
	}
	if c.Policy == nil {
		return fmt.Errorf("backoff policy is required")
	}
	if c.Recorder == nil {
		return fmt.Errorf("recorder is required")
	}
	if c.MinActionDelay <= 0 || c.MaxActionDelay < c.MinActionDelay {
		return fmt.Errorf("invalid action delay range [%v, %v]", c.MinActionDelay, c.MaxActionDelay)
	}
	return nil
}

// slot is one module's seat in the rotation, with its failure bookkeeping.
// Owned by the worker loop; control commands and snapshots take the mutex.
type slot struct {
	module         modules.Module
	enabled        bool
	streak         int
	lastFailure    time.Time
	disabledReason string
}

// Scheduler coordinates the single worker loop across all modules.
type Scheduler struct {
	cfg   Config
	state atomic.Int32

	mu       sync.Mutex
	slots    []*slot
	rotation int
	runID    string
	notifier Notifier

	stats dailyStats

	// wake interrupts an in-progress sleep slice when a control
	// command arrives.
	wake chan struct{}
	done chan struct{}
	rng  *rand.Rand
}

// New creates a Scheduler in the STOPPED state.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	s := &Scheduler{
		cfg:      cfg,
		notifier: cfg.Notifier,
		wake:     make(chan struct{}, 1),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, m := range cfg.Modules {
		s.slots = append(s.slots, &slot{module: m, enabled: true})
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start launches the worker loop. A no-op when already running or paused.
// A previous worker may still be draining its last action after Stop
// returned; Start waits for it so a second loop never runs alongside it.
func (s *Scheduler) Start() Ack {
	s.mu.Lock()
	prev := s.done
	s.mu.Unlock()
	if prev != nil && s.State() == StateStopped {
		<-prev
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return Ack{Command: "start", State: s.State(), Message: "already started"}
	}

	s.runID = uuid.NewString()
	s.done = make(chan struct{})
	s.stats.reset(time.Now())

	s.cfg.Logger.WithField("run_id", s.runID).Info("Scheduler started")
	go s.run(s.done)

	return Ack{Command: "start", Changed: true, State: StateRunning, Message: "automation started"}
}

// Stop asks the worker loop to exit. The in-flight action, if any, is
// allowed to finish; Wait blocks until the loop has drained.
func (s *Scheduler) Stop() Ack {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := State(s.state.Swap(int32(StateStopped)))
	if prev == StateStopped {
		return Ack{Command: "stop", State: StateStopped, Message: "not running"}
	}

	s.wakeWorker()
	s.cfg.Logger.Info("Scheduler stopping")
	return Ack{Command: "stop", Changed: true, State: StateStopped, Message: "automation stopping"}
}

// Wait blocks until the worker loop has exited. Safe to call whether or
// not the scheduler ever started.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Pause suspends the worker loop after the current action completes.
func (s *Scheduler) Pause() Ack {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StatePaused)) {
		return Ack{Command: "pause", State: s.State(), Message: "not running"}
	}

	s.wakeWorker()
	s.cfg.Logger.Info("Scheduler paused")
	return Ack{Command: "pause", Changed: true, State: StatePaused, Message: "automation paused"}
}

// Resume continues a paused run. Modules disabled by failure aborts are
// re-enabled with a clean streak.
func (s *Scheduler) Resume() Ack {
	if !s.state.CompareAndSwap(int32(StatePaused), int32(StateRunning)) {
		return Ack{Command: "resume", State: s.State(), Message: "not paused"}
	}

	s.mu.Lock()
	for _, sl := range s.slots {
		if !sl.enabled {
			s.cfg.Logger.WithField("module", sl.module.Name()).Info("Re-enabling module")
		}
		sl.enabled = true
		sl.streak = 0
		sl.disabledReason = ""
	}
	s.mu.Unlock()

	s.wakeWorker()
	s.cfg.Logger.Info("Scheduler resumed")
	return Ack{Command: "resume", Changed: true, State: StateRunning, Message: "automation resumed"}
}

// ModuleStatus is one module's row in a status report.
type ModuleStatus struct {
	Name           string
	ActionType     ratelimit.Action
	Enabled        bool
	FailureStreak  int
	DisabledReason string
}

// StatusReport is the snapshot behind the /status command.
type StatusReport struct {
	State   State
	RunID   string
	Modules []ModuleStatus
}

// Status returns a snapshot of the scheduler and its modules. The view
// may lag the worker loop by a poll interval; that is fine for reporting.
func (s *Scheduler) Status() StatusReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := StatusReport{State: s.State(), RunID: s.runID}
	for _, sl := range s.slots {
		report.Modules = append(report.Modules, ModuleStatus{
			Name:           sl.module.Name(),
			ActionType:     sl.module.ActionType(),
			Enabled:        sl.enabled,
			FailureStreak:  sl.streak,
			DisabledReason: sl.disabledReason,
		})
	}
	return report
}

// Limits returns the current rate-limit usage per action type.
func (s *Scheduler) Limits() map[ratelimit.Action]ratelimit.Usage {
	return s.cfg.Limiter.Snapshot()
}

// Stats returns the running aggregate for the current local day. Before the
// first start there is no aggregate yet; the zero value tells callers to
// read the persisted statistics instead.
func (s *Scheduler) Stats() DailyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runID == "" {
		return DailyStats{}
	}
	return s.stats.snapshot(time.Now())
}

func (s *Scheduler) wakeWorker() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// SetNotifier attaches the operator channel. The bot is constructed after
// the scheduler it controls, so this cannot live in Config alone.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

func (s *Scheduler) notify(message string) {
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()

	if notifier != nil {
		notifier.Notify(message)
	}
}
