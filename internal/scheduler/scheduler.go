// Package scheduler runs periodic vault backups
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// BackupTarget is the part of the vault the scheduler drives.
// Satisfied by *vault.Vault.
type BackupTarget interface {
	Backup() (string, error)
	PruneBackups(keep int) ([]string, error)
}

// Scheduler backs up the vault on a cron schedule and prunes old backups
type Scheduler struct {
	target   BackupTarget
	schedule cron.Schedule
	spec     string
	keep     int
	logger   *slog.Logger

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	stop  context.CancelFunc
}

// New creates a scheduler. spec accepts standard five-field expressions and
// descriptors such as "@daily" or "@every 6h". keep <= 0 keeps every backup.
func New(target BackupTarget, spec string, keep int, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse backup schedule %q: %w", spec, err)
	}
	return &Scheduler{
		target:   target,
		schedule: schedule,
		spec:     spec,
		keep:     keep,
		logger:   logger,
	}, nil
}

// Start runs the backup job in the background until ctx is done or Stop is
// called. Overlapping runs are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	cl := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.entry = c.Schedule(s.schedule, cron.FuncJob(func() {
		// Failures are logged by RunOnce; the next tick tries again
		_ = s.RunOnce()
	}))
	c.Start()
	s.cron = c

	schedCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	go func() {
		<-schedCtx.Done()
		s.Stop()
	}()

	s.logger.Info("auto-backup scheduler started", "schedule", s.spec, "keep", s.keep, "next", s.nextLocked())
	return nil
}

// RunOnce takes one backup and prunes old ones
func (s *Scheduler) RunOnce() error {
	path, err := s.target.Backup()
	if err != nil {
		s.logger.Error("scheduled backup failed", "error", err)
		return err
	}
	s.logger.Info("scheduled backup written", "path", path)

	removed, err := s.target.PruneBackups(s.keep)
	if err != nil {
		s.logger.Error("pruning backups failed", "error", err)
		return err
	}
	if len(removed) > 0 {
		s.logger.Info("pruned old backups", "count", len(removed))
	}
	return nil
}

// Next returns when the job runs next, or the zero time when stopped
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLocked()
}

func (s *Scheduler) nextLocked() time.Time {
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Stop halts the scheduler and waits for a running backup to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("auto-backup scheduler stopped")
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
