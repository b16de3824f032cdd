package scheduler_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/instagent/instagent/pkg/backoff"
	"github.com/instagent/instagent/pkg/instagram"
	"github.com/instagent/instagent/pkg/modules"
	"github.com/instagent/instagent/pkg/ratelimit"
	"github.com/instagent/instagent/pkg/scheduler"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func openQuotas() ratelimit.Config {
	quotas := ratelimit.Config{}
	for _, action := range ratelimit.Actions() {
		quotas[action] = ratelimit.Quota{PerDay: 1000, PerHour: 1000}
	}
	return quotas
}

func fastPolicy() *backoff.Policy {
	policy, err := backoff.New(backoff.Config{
		BaseDelay:              time.Second,
		MaxDelay:               2 * time.Second,
		MaxConsecutiveFailures: 3,
		RemoteCooldown:         time.Second,
	}, backoff.WithJitterSource(func() float64 { return 0.5 }))
	Expect(err).NotTo(HaveOccurred())
	return policy
}

func newScheduler(quotas ratelimit.Config, mods ...modules.Module) (*scheduler.Scheduler, *ratelimit.Limiter, *fakeRecorder, *fakeNotifier) {
	limiter, err := ratelimit.New(quotas)
	Expect(err).NotTo(HaveOccurred())

	recorder := newFakeRecorder()
	notifier := &fakeNotifier{}

	sched, err := scheduler.New(scheduler.Config{
		Modules:        mods,
		Limiter:        limiter,
		Policy:         fastPolicy(),
		Recorder:       recorder,
		Notifier:       notifier,
		Logger:         quietLogger(),
		MinActionDelay: time.Millisecond,
		MaxActionDelay: 2 * time.Millisecond,
		PollInterval:   time.Millisecond,
	})
	Expect(err).NotTo(HaveOccurred())
	return sched, limiter, recorder, notifier
}

var _ = Describe("Scheduler", func() {
	var sched *scheduler.Scheduler

	AfterEach(func() {
		if sched != nil {
			sched.Stop()
			sched.Wait()
		}
	})

	Describe("lifecycle", func() {
		It("moves through stopped, running, paused and back", func() {
			mod := newFakeModule("follow_fof", ratelimit.ActionFollow)
			sched, _, _, _ = newScheduler(openQuotas(), mod)

			Expect(sched.State()).To(Equal(scheduler.StateStopped))

			ack := sched.Start()
			Expect(ack.Changed).To(BeTrue())
			Expect(sched.State()).To(Equal(scheduler.StateRunning))

			Expect(sched.Start().Changed).To(BeFalse())
			Expect(sched.Resume().Changed).To(BeFalse())

			Expect(sched.Pause().Changed).To(BeTrue())
			Expect(sched.State()).To(Equal(scheduler.StatePaused))
			Expect(sched.Pause().Changed).To(BeFalse())

			Expect(sched.Resume().Changed).To(BeTrue())
			Expect(sched.State()).To(Equal(scheduler.StateRunning))

			Expect(sched.Stop().Changed).To(BeTrue())
			sched.Wait()
			Expect(sched.State()).To(Equal(scheduler.StateStopped))
			Expect(sched.Stop().Changed).To(BeFalse())
		})

		It("never runs two worker loops across a quick stop and restart", func() {
			var mu sync.Mutex
			inflight, maxInflight := 0, 0
			slow := newFakeModule("follow_fof", ratelimit.ActionFollow)
			slow.performFn = func(ctx context.Context, target *modules.Target) error {
				mu.Lock()
				inflight++
				if inflight > maxInflight {
					maxInflight = inflight
				}
				mu.Unlock()

				time.Sleep(100 * time.Millisecond)

				mu.Lock()
				inflight--
				mu.Unlock()
				return nil
			}
			sched, _, _, _ = newScheduler(openQuotas(), slow)

			// Stop while an action is in flight, then restart right away:
			// the new loop must wait for the old one to drain.
			sched.Start()
			Eventually(slow.performCount, "5s", "5ms").Should(BeNumerically(">=", 1))
			sched.Stop()
			sched.Start()

			Eventually(slow.performCount, "5s", "5ms").Should(BeNumerically(">=", 3))
			sched.Stop()
			sched.Wait()

			mu.Lock()
			defer mu.Unlock()
			Expect(maxInflight).To(Equal(1))
		})

		It("assigns a fresh run id per start", func() {
			mod := newFakeModule("follow_fof", ratelimit.ActionFollow)
			sched, _, _, _ = newScheduler(openQuotas(), mod)

			sched.Start()
			first := sched.Status().RunID
			Expect(first).NotTo(BeEmpty())
			sched.Stop()
			sched.Wait()

			sched.Start()
			Expect(sched.Status().RunID).NotTo(Equal(first))
		})
	})

	Describe("rotation", func() {
		It("shares turns evenly across modules", func() {
			a := newFakeModule("follow_fof", ratelimit.ActionFollow)
			b := newFakeModule("like_stories", ratelimit.ActionStoryView)
			c := newFakeModule("comment_emoji", ratelimit.ActionComment)
			sched, _, _, _ = newScheduler(openQuotas(), a, b, c)

			sched.Start()
			Eventually(func() int {
				return a.performCount() + b.performCount() + c.performCount()
			}, "5s", "5ms").Should(BeNumerically(">=", 9))
			sched.Stop()
			sched.Wait()

			counts := []int{a.performCount(), b.performCount(), c.performCount()}
			min, max := counts[0], counts[0]
			for _, n := range counts[1:] {
				if n < min {
					min = n
				}
				if n > max {
					max = n
				}
			}
			Expect(max - min).To(BeNumerically("<=", 1))
		})

		It("does not let a target-less module starve the others", func() {
			idle := newFakeModule("unfollow_delay", ratelimit.ActionUnfollow)
			idle.selectFn = func(ctx context.Context) (*modules.Target, error) {
				return nil, nil
			}
			busy := newFakeModule("follow_fof", ratelimit.ActionFollow)
			sched, _, _, _ = newScheduler(openQuotas(), idle, busy)

			sched.Start()
			Eventually(busy.performCount, "5s", "5ms").Should(BeNumerically(">=", 3))

			Expect(idle.selectCount()).To(BeNumerically(">=", 1))
			Expect(idle.performCount()).To(BeZero())
		})
	})

	Describe("rate limiting", func() {
		It("skips a module at its cap without treating it as a failure", func() {
			quotas := openQuotas()
			quotas[ratelimit.ActionFollow] = ratelimit.Quota{PerDay: 30, PerHour: 2}
			follow := newFakeModule("follow_fof", ratelimit.ActionFollow)
			other := newFakeModule("like_stories", ratelimit.ActionStoryView)
			var limiter *ratelimit.Limiter
			sched, limiter, _, _ = newScheduler(quotas, follow, other)

			sched.Start()
			Eventually(follow.performCount, "5s", "5ms").Should(Equal(2))
			Eventually(other.performCount, "5s", "5ms").Should(BeNumerically(">=", 5))

			// The capped module stays at its hourly quota while the
			// other keeps working.
			Expect(follow.performCount()).To(Equal(2))
			_, hourly := limiter.Remaining(ratelimit.ActionFollow)
			Expect(hourly).To(BeZero())

			for _, m := range sched.Status().Modules {
				Expect(m.Enabled).To(BeTrue())
				Expect(m.FailureStreak).To(BeZero())
			}
		})

		It("records quota only for successful actions", func() {
			failing := newFakeModule("follow_fof", ratelimit.ActionFollow)
			failing.performFn = func(ctx context.Context, target *modules.Target) error {
				return &instagram.APIError{Kind: instagram.FailureTransient, StatusCode: 500}
			}
			var limiter *ratelimit.Limiter
			var recorder *fakeRecorder
			sched, limiter, recorder, _ = newScheduler(openQuotas(), failing)

			sched.Start()
			Eventually(failing.performCount, "5s", "5ms").Should(BeNumerically(">=", 1))
			Eventually(func() int { return recorder.counter("error") }, "5s", "5ms").
				Should(BeNumerically(">=", 1))

			usage := limiter.Snapshot()[ratelimit.ActionFollow]
			Expect(usage.DailyUsed).To(BeZero())

			logs := recorder.logged()
			Expect(logs).NotTo(BeEmpty())
			Expect(logs[0].Success).To(BeFalse())
			Expect(logs[0].Details).To(ContainSubstring("status=500"))
		})
	})

	Describe("failure handling", func() {
		It("disables a module after repeated challenge failures and alerts the operator once", func() {
			challenged := newFakeModule("follow_fof", ratelimit.ActionFollow)
			challenged.performFn = func(ctx context.Context, target *modules.Target) error {
				return &instagram.APIError{Kind: instagram.FailureChallenge, Message: "challenge_required"}
			}
			healthy := newFakeModule("like_stories", ratelimit.ActionStoryView)
			var notifier *fakeNotifier
			sched, _, _, notifier = newScheduler(openQuotas(), challenged, healthy)

			sched.Start()
			Eventually(func() bool {
				for _, m := range sched.Status().Modules {
					if m.Name == "follow_fof" {
						return !m.Enabled
					}
				}
				return false
			}, "10s", "10ms").Should(BeTrue())

			for _, m := range sched.Status().Modules {
				if m.Name == "follow_fof" {
					Expect(m.DisabledReason).To(Equal("challenge_required"))
					Expect(m.FailureStreak).To(Equal(2))
				}
			}

			// One retry, then abort: exactly one disable alert.
			healthyBefore := healthy.performCount()
			Eventually(healthy.performCount, "5s", "5ms").Should(BeNumerically(">", healthyBefore))

			alerts := 0
			for _, msg := range notifier.all() {
				if strings.Contains(msg, "disabled") {
					alerts++
				}
			}
			Expect(alerts).To(Equal(1))
			Expect(challenged.performCount()).To(Equal(2))
		})

		It("re-enables disabled modules on resume with a clean streak", func() {
			failing := newFakeModule("follow_fof", ratelimit.ActionFollow)
			failing.performFn = func(ctx context.Context, target *modules.Target) error {
				return &instagram.APIError{Kind: instagram.FailureAuth, StatusCode: 401}
			}
			sched, _, _, _ = newScheduler(openQuotas(), failing)

			sched.Start()
			Eventually(func() bool {
				return !sched.Status().Modules[0].Enabled
			}, "10s", "10ms").Should(BeTrue())

			Expect(sched.Pause().Changed).To(BeTrue())
			Expect(sched.Resume().Changed).To(BeTrue())

			status := sched.Status().Modules[0]
			Expect(status.Enabled).To(BeTrue())
			Expect(status.FailureStreak).To(BeZero())
			Expect(status.DisabledReason).To(BeEmpty())
		})

		It("cools down on a remote rate limit without advancing the streak", func() {
			limited := newFakeModule("comment_emoji", ratelimit.ActionComment)
			limited.performFn = func(ctx context.Context, target *modules.Target) error {
				return &instagram.APIError{Kind: instagram.FailureRateLimited, StatusCode: 429}
			}
			var notifier *fakeNotifier
			sched, _, _, notifier = newScheduler(openQuotas(), limited)

			sched.Start()
			Eventually(limited.performCount, "5s", "5ms").Should(BeNumerically(">=", 1))
			Eventually(func() []string { return notifier.all() }, "5s", "5ms").
				Should(ContainElement(ContainSubstring("slow down")))

			status := sched.Status().Modules[0]
			Expect(status.Enabled).To(BeTrue())
			Expect(status.FailureStreak).To(BeZero())
		})
	})

	Describe("pause semantics", func() {
		It("lets the in-flight action finish before pausing", func() {
			started := make(chan struct{})
			release := make(chan struct{})
			slow := newFakeModule("follow_fof", ratelimit.ActionFollow)
			slow.performFn = func(ctx context.Context, target *modules.Target) error {
				close(started)
				<-release
				return nil
			}
			var recorder *fakeRecorder
			sched, _, recorder, _ = newScheduler(openQuotas(), slow)

			sched.Start()
			Eventually(started, "5s").Should(BeClosed())

			Expect(sched.Pause().Changed).To(BeTrue())
			close(release)

			// The action that was already running completes and is
			// recorded; no new one starts while paused.
			Eventually(func() int { return recorder.counter("follow") }, "5s", "5ms").Should(Equal(1))
			Consistently(slow.performCount, "200ms", "20ms").Should(Equal(1))
		})
	})

	Describe("Stats", func() {
		It("reports no aggregate before the first start", func() {
			mod := newFakeModule("follow_fof", ratelimit.ActionFollow)
			sched, _, _, _ = newScheduler(openQuotas(), mod)

			// The zero Date is what lets /stats fall back to the
			// persisted statistics after a restart.
			Expect(sched.Stats().Date.IsZero()).To(BeTrue())

			sched.Start()
			Eventually(mod.performCount, "5s", "5ms").Should(BeNumerically(">=", 1))
			Expect(sched.Stats().Date.IsZero()).To(BeFalse())
		})

		It("aggregates per-action counters for the current day", func() {
			follow := newFakeModule("follow_fof", ratelimit.ActionFollow)
			like := newFakeModule("like_stories", ratelimit.ActionLike)
			sched, _, _, _ = newScheduler(openQuotas(), follow, like)

			sched.Start()
			Eventually(follow.performCount, "5s", "5ms").Should(BeNumerically(">=", 2))
			Eventually(like.performCount, "5s", "5ms").Should(BeNumerically(">=", 2))
			sched.Stop()
			sched.Wait()

			stats := sched.Stats()
			Expect(stats.Follows).To(Equal(follow.performCount()))
			Expect(stats.Likes).To(Equal(like.performCount()))
			Expect(stats.Errors).To(BeZero())
		})
	})

	Describe("Limits", func() {
		It("reports usage for every action type", func() {
			mod := newFakeModule("follow_fof", ratelimit.ActionFollow)
			sched, _, _, _ = newScheduler(openQuotas(), mod)

			sched.Start()
			Eventually(mod.performCount, "5s", "5ms").Should(BeNumerically(">=", 1))
			sched.Stop()
			sched.Wait()

			limits := sched.Limits()
			Expect(limits).To(HaveLen(len(ratelimit.Actions())))
			Expect(limits[ratelimit.ActionFollow].DailyUsed).To(Equal(mod.performCount()))
		})
	})

	Describe("Config validation", func() {
		It("rejects an empty module list", func() {
			limiter, err := ratelimit.New(openQuotas())
			Expect(err).NotTo(HaveOccurred())

			_, err = scheduler.New(scheduler.Config{
				Limiter:        limiter,
				Policy:         fastPolicy(),
				Recorder:       newFakeRecorder(),
				MinActionDelay: time.Millisecond,
				MaxActionDelay: 2 * time.Millisecond,
			})
			Expect(err).To(MatchError(ContainSubstring("module")))
		})

		It("rejects an inverted delay range", func() {
			limiter, err := ratelimit.New(openQuotas())
			Expect(err).NotTo(HaveOccurred())

			_, err = scheduler.New(scheduler.Config{
				Modules:        []modules.Module{newFakeModule("follow_fof", ratelimit.ActionFollow)},
				Limiter:        limiter,
				Policy:         fastPolicy(),
				Recorder:       newFakeRecorder(),
				MinActionDelay: 2 * time.Millisecond,
				MaxActionDelay: time.Millisecond,
			})
			Expect(err).To(MatchError(ContainSubstring("delay range")))
		})
	})
})

var _ = Describe("State", func() {
	It("renders operator-facing names", func() {
		Expect(scheduler.StateStopped.String()).To(Equal("STOPPED"))
		Expect(scheduler.StateRunning.String()).To(Equal("RUNNING"))
		Expect(scheduler.StatePaused.String()).To(Equal("PAUSED"))
		Expect(fmt.Sprintf("%v", scheduler.StateRunning)).To(Equal("RUNNING"))
	})
})
