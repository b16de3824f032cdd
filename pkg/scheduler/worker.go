package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/instagent/instagent/pkg/db/models"
	"github.com/instagent/instagent/pkg/instagram"
)

// run is the single worker loop. Exactly one action is ever in flight; a
// pause or stop takes effect at the next check point, never mid-action.
func (s *Scheduler) run(done chan struct{}) {
	defer close(done)

	s.cfg.Logger.Debug("Worker loop started")
	for {
		switch s.State() {
		case StateStopped:
			s.cfg.Logger.Info("Worker loop exiting")
			return
		case StatePaused:
			s.waitSlice(s.cfg.PollInterval)
			continue
		}

		sl := s.nextSlot()
		if sl == nil {
			// Every module disabled; nothing to do until resume.
			s.waitSlice(s.cfg.PollInterval)
			continue
		}
		s.runSlot(sl)
	}
}

// nextSlot advances the round-robin rotation to the next enabled module.
// A module with nothing to do still consumed its seat last round, so later
// modules never starve.
func (s *Scheduler) nextSlot() *slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < len(s.slots); i++ {
		idx := (s.rotation + i) % len(s.slots)
		if s.slots[idx].enabled {
			s.rotation = (idx + 1) % len(s.slots)
			return s.slots[idx]
		}
	}
	return nil
}

func (s *Scheduler) runSlot(sl *slot) {
	ctx := context.Background()
	module := sl.module
	action := module.ActionType()
	log := s.cfg.Logger.WithFields(logrus.Fields{
		"module": module.Name(),
		"action": string(action),
		"run_id": s.runID,
	})

	if !s.cfg.Limiter.CanPerform(action) {
		log.Debug("Rate limit reached, skipping module this cycle")
		s.waitSlice(s.cfg.PollInterval)
		return
	}

	target, err := module.SelectTarget(ctx)
	if err != nil {
		s.handleFailure(sl, "selection", err, log)
		return
	}
	if target == nil {
		log.Debug("No eligible target, skipping module this cycle")
		s.waitSlice(s.cfg.PollInterval)
		return
	}

	log = log.WithField("target_id", target.ID)
	if err := module.Perform(ctx, target); err != nil {
		s.handleFailure(sl, target.ID, err, log)
		return
	}
	s.handleSuccess(sl, target.ID, log)
}

func (s *Scheduler) handleSuccess(sl *slot, targetID string, log *logrus.Entry) {
	now := time.Now()
	action := sl.module.ActionType()

	s.cfg.Limiter.Record(action, now)

	s.mu.Lock()
	sl.streak = 0
	s.stats.bump(action, now)
	s.mu.Unlock()

	s.record(models.ActionLog{
		ActionType: string(action),
		TargetID:   targetID,
		Success:    true,
		RunID:      s.runID,
		CreatedAt:  now,
	}, string(action))

	delay := s.humanDelay()
	log.WithField("next_delay", delay.String()).Debug("Action succeeded")
	s.sleep(delay)
}

func (s *Scheduler) handleFailure(sl *slot, targetID string, err error, log *logrus.Entry) {
	now := time.Now()
	kind := instagram.Classify(err)

	s.mu.Lock()
	streak := sl.streak + 1
	decision := s.cfg.Policy.Decide(kind, streak)
	if decision.CountsTowardAbort {
		sl.streak = streak
		sl.lastFailure = now
	}
	if decision.Abort {
		sl.enabled = false
		sl.disabledReason = string(kind)
	}
	s.stats.bumpError(now)
	s.mu.Unlock()

	s.record(models.ActionLog{
		ActionType: string(sl.module.ActionType()),
		TargetID:   targetID,
		Success:    false,
		Details:    err.Error(),
		RunID:      s.runID,
		CreatedAt:  now,
	}, "error")

	log = log.WithError(err).WithFields(logrus.Fields{
		"kind":   string(kind),
		"streak": streak,
	})

	switch {
	case decision.Abort:
		log.Error("Module disabled after repeated failures")
		s.notify(fmt.Sprintf(
			"🚫 Module <b>%s</b> disabled (%s after %d consecutive failures).\nUse /resume to re-enable it.",
			sl.module.Name(), kind, streak))
	case kind == instagram.FailureRateLimited:
		log.WithField("cooldown", decision.Delay.String()).
			Warn("Remote rate limit, entering cooldown")
		s.notify(fmt.Sprintf(
			"⚠️ Instagram asked <b>%s</b> to slow down. Cooling down for %s.",
			sl.module.Name(), decision.Delay.Round(time.Second)))
		s.sleep(decision.Delay)
	default:
		log.WithField("backoff", decision.Delay.String()).Warn("Action failed, backing off")
		s.sleep(decision.Delay)
	}
}

// record persists the action log entry and the matching daily counter.
// Persistence trouble must never kill the worker loop.
func (s *Scheduler) record(entry models.ActionLog, counter string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.cfg.Recorder.LogAction(ctx, entry); err != nil {
		s.cfg.Logger.WithError(err).Warn("Failed to persist action record")
	}
	if err := s.cfg.Recorder.IncrementDailyStat(ctx, entry.CreatedAt, counter); err != nil {
		s.cfg.Logger.WithError(err).Warn("Failed to persist daily statistic")
	}
}

// humanDelay draws the randomized pause between actions uniformly from the
// configured range.
func (s *Scheduler) humanDelay() time.Duration {
	min, max := s.cfg.MinActionDelay, s.cfg.MaxActionDelay
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}

// sleep waits for d in poll-sized slices, returning as soon as the
// scheduler leaves RUNNING so control commands take effect promptly.
func (s *Scheduler) sleep(d time.Duration) {
	deadline := time.Now().Add(d)
	for {
		if s.State() != StateRunning {
			return
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if remaining > s.cfg.PollInterval {
			remaining = s.cfg.PollInterval
		}
		s.waitSlice(remaining)
	}
}

// waitSlice blocks for at most d, returning early when a control command
// wakes the worker.
func (s *Scheduler) waitSlice(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.wake:
	case <-timer.C:
	}
}
