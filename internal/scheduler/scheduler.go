package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"fp-innova/internal/config"
)

// taskTimeout bounds a single run of any task
const taskTimeout = 5 * time.Minute

// AmendmentJobs are the periodic amendment tasks
type AmendmentJobs interface {
	ExpireOverdue(ctx context.Context) (int64, error)
	SendReminders(ctx context.Context, within time.Duration) (int, error)
}

// AuthJobs are the periodic session and verification code tasks
type AuthJobs interface {
	CleanupSessions(ctx context.Context) (int64, error)
	ExpireVerificationCodes(ctx context.Context) (int64, error)
}

// Scheduler handles periodic tasks
type Scheduler struct {
	amendments AmendmentJobs
	auth       AuthJobs
	config     *config.SchedulerConfig
	stopChan   chan struct{}
	wg         sync.WaitGroup
	now        func() time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(amendments AmendmentJobs, auth AuthJobs, cfg *config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		amendments: amendments,
		auth:       auth,
		config:     cfg,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start starts all scheduled tasks. A task whose cron expression is invalid
// is logged and skipped.
func (s *Scheduler) Start() {
	if !s.config.Enabled {
		slog.Info("Scheduler disabled")
		return
	}

	tasks := []struct {
		name string
		cron string
		run  func(ctx context.Context) error
	}{
		{"amendment_expiry", s.config.AmendmentExpiryCron, s.expireAmendments},
		{"amendment_reminders", s.config.AmendmentReminderCron, s.sendAmendmentReminders},
		{"session_cleanup", s.config.SessionCleanupCron, s.cleanupSessions},
		{"code_expiry", s.config.CodeExpiryCron, s.expireCodes},
	}
	for _, t := range tasks {
		sched, err := parseCron(t.cron)
		if err != nil {
			slog.Error("Failed to start scheduled task", "task", t.name, "error", err)
			continue
		}
		s.wg.Add(1)
		go s.loop(t.name, sched, t.run)
	}

	slog.Info("Scheduler started")
}

// Stop stops the scheduler and waits for running tasks to return
func (s *Scheduler) Stop() {
	slog.Info("Stopping scheduler")
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Scheduler) loop(name string, sched schedule, run func(ctx context.Context) error) {
	defer s.wg.Done()

	if sched.immediate {
		s.runTask(name, run)
	}
	for {
		now := s.now()
		next := sched.next(now)
		slog.Debug("Next task run scheduled", "task", name, "next_run", next.Format(time.DateTime))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-timer.C:
			s.runTask(name, run)
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) runTask(name string, run func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := s.now()
	if err := run(ctx); err != nil {
		slog.Error("Scheduled task failed", "task", name, "error", err)
		return
	}
	slog.Debug("Scheduled task finished", "task", name, "duration", time.Since(start))
}

func (s *Scheduler) expireAmendments(ctx context.Context) error {
	n, err := s.amendments.ExpireOverdue(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Expired overdue amendment documents", "count", n)
	}
	return nil
}

func (s *Scheduler) sendAmendmentReminders(ctx context.Context) error {
	within := time.Duration(s.config.AmendmentReminderHours) * time.Hour
	n, err := s.amendments.SendReminders(ctx, within)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Sent amendment deadline reminders", "count", n)
	}
	return nil
}

func (s *Scheduler) cleanupSessions(ctx context.Context) error {
	n, err := s.auth.CleanupSessions(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Removed expired sessions", "count", n)
	}
	return nil
}

func (s *Scheduler) expireCodes(ctx context.Context) error {
	n, err := s.auth.ExpireVerificationCodes(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Expired verification codes", "count", n)
	}
	return nil
}

// schedule is a parsed cron expression. Only the forms
// "*/n * * * *", "m */n * * *", "m h * * *" and "m h * * w" are supported.
type schedule struct {
	minuteEvery int
	hourEvery   int
	minute      int
	hour        int
	weekday     int // -1 for every day
	immediate   bool
}

func parseCron(expr string) (schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return schedule{}, fmt.Errorf("invalid cron expression: %q (expected 5 fields)", expr)
	}
	if parts[2] != "*" || parts[3] != "*" {
		return schedule{}, fmt.Errorf("invalid cron expression: %q (day of month and month must be *)", expr)
	}

	if n, ok := strings.CutPrefix(parts[0], "*/"); ok {
		interval, err := strconv.Atoi(n)
		if err != nil || interval < 1 || interval > 59 {
			return schedule{}, fmt.Errorf("invalid minute interval in cron: %s", parts[0])
		}
		return schedule{minuteEvery: interval, weekday: -1, immediate: true}, nil
	}

	minute, err := strconv.Atoi(parts[0])
	if err != nil || minute < 0 || minute > 59 {
		return schedule{}, fmt.Errorf("invalid minute in cron: %s", parts[0])
	}

	if n, ok := strings.CutPrefix(parts[1], "*/"); ok {
		interval, err := strconv.Atoi(n)
		if err != nil || interval < 1 || interval > 23 {
			return schedule{}, fmt.Errorf("invalid hour interval in cron: %s", parts[1])
		}
		return schedule{hourEvery: interval, minute: minute, weekday: -1}, nil
	}

	hour, err := strconv.Atoi(parts[1])
	if err != nil || hour < 0 || hour > 23 {
		return schedule{}, fmt.Errorf("invalid hour in cron: %s", parts[1])
	}

	sched := schedule{minute: minute, hour: hour, weekday: -1}
	if parts[4] != "*" {
		weekday, err := strconv.Atoi(parts[4])
		if err != nil || weekday < 0 || weekday > 6 {
			return schedule{}, fmt.Errorf("invalid weekday in cron: %s (0-6, 0=Sunday)", parts[4])
		}
		sched.weekday = weekday
	}
	return sched, nil
}

// next returns the first run strictly after from
func (c schedule) next(from time.Time) time.Time {
	switch {
	case c.minuteEvery > 0:
		return from.Truncate(time.Minute).Add(time.Duration(c.minuteEvery) * time.Minute)

	case c.hourEvery > 0:
		next := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), c.minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.Add(time.Hour)
		}
		for next.Hour()%c.hourEvery != 0 {
			next = next.Add(time.Hour)
		}
		return next

	case c.weekday >= 0:
		next := time.Date(from.Year(), from.Month(), from.Day(), c.hour, c.minute, 0, 0, from.Location())
		days := (c.weekday - int(from.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, days)
		if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	default:
		next := time.Date(from.Year(), from.Month(), from.Day(), c.hour, c.minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}
