package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Task is a named periodic job. Each run gets a context bounded by the
// task's own interval so a stuck run cannot pile up behind the ticker.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives the background tasks, one goroutine per task. Tasks run
// once immediately on start, then on their interval. A failing or panicking
// task is logged and counted, never fatal.
type Scheduler struct {
	log   *slog.Logger
	tasks []Task
	wg    sync.WaitGroup
}

func NewScheduler(log *slog.Logger) *Scheduler {
	return &Scheduler{log: log}
}

func (s *Scheduler) Add(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.tasks = append(s.tasks, Task{Name: name, Interval: interval, Run: run})
}

func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			s.loop(ctx, t)
		}(t)
	}
	s.log.Info("background tasks started", "count", len(s.tasks))
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	s.runOnce(ctx, t)
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			metricTaskPanics.WithLabelValues(t.Name).Inc()
			s.log.Error("task panicked", "task", t.Name, "panic", r)
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, t.Interval)
	defer cancel()

	metricTaskRuns.WithLabelValues(t.Name).Inc()
	if err := t.Run(tctx); err != nil {
		metricTaskErrors.WithLabelValues(t.Name).Inc()
		s.log.Error("task failed", "task", t.Name, "err", err)
	}
}

// RestartPolicy caps automatic restarts two ways: a consecutive-failure
// limit that resets once the process is healthy again, and a rate limit so
// a crash loop cannot burn restarts all hour.
type RestartPolicy struct {
	mu      sync.Mutex
	max     int
	tries   int
	limiter *rate.Limiter
}

func NewRestartPolicy(maxRetries, perHour int) *RestartPolicy {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perHour > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), 2)
	}
	return &RestartPolicy{max: maxRetries, limiter: limiter}
}

func (p *RestartPolicy) Allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.max > 0 && p.tries >= p.max {
		return false
	}
	if !p.limiter.Allow() {
		return false
	}
	p.tries++
	return true
}

func (p *RestartPolicy) Reset() {
	p.mu.Lock()
	p.tries = 0
	p.mu.Unlock()
}

func (p *RestartPolicy) Tries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tries
}

// processMonitorTask watches the suricata process and, when enabled,
// restarts it after a crash within the policy's budget.
func (a *App) processMonitorTask(policy *RestartPolicy) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		st := a.ctl.Status()
		if st.Running {
			metricProcessUp.Set(1)
			policy.Reset()
			return nil
		}
		metricProcessUp.Set(0)

		if st.Status != string(StateCrashed) || !a.cfg.AutoRestart {
			return nil
		}
		if !policy.Allow() {
			a.log.Warn("crash detected but restart budget exhausted", "tries", policy.Tries())
			return nil
		}
		a.log.Warn("suricata crashed, restarting", "attempt", policy.Tries())
		metricRestarts.Inc()
		if err := a.ctl.Start(); err != nil {
			return fmt.Errorf("auto-restart: %w", err)
		}
		return nil
	}
}
