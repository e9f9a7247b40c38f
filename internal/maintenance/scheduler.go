// Package maintenance periodically prunes session logs, abandoned
// workspaces and remembered webhook deliveries.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alekspetrov/claudehub/internal/logging"
)

// Config holds the maintenance schedule.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron spec or descriptor, e.g. "@hourly"
	// SessionLogRetention accepts "7d", "24h" and similar.
	SessionLogRetention string `yaml:"session_log_retention"`
}

// DefaultConfig prunes hourly and keeps session logs for a week.
func DefaultConfig() *Config {
	return &Config{
		Enabled:             true,
		Schedule:            "@hourly",
		SessionLogRetention: "7d",
	}
}

// Validate checks the schedule and retention.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid maintenance.schedule %q: %w", c.Schedule, err)
	}
	if _, err := logging.ParseRetention(c.SessionLogRetention); err != nil {
		return fmt.Errorf("invalid maintenance.session_log_retention: %w", err)
	}
	return nil
}

// DeliveryPruner forgets remembered deliveries.
type DeliveryPruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
	Window() time.Duration
}

// Targets are the locations a run prunes. Zero values are skipped.
type Targets struct {
	SessionLogDir string
	WorkspaceRoot string
	// WorkspaceMaxAge is normally twice the sandbox timeout.
	WorkspaceMaxAge time.Duration
	Deliveries      DeliveryPruner
}

// Report counts what one run removed.
type Report struct {
	SessionLogs int
	Workspaces  int
	Deliveries  int64
}

// Scheduler runs pruning on a cron schedule.
type Scheduler struct {
	config    *Config
	targets   Targets
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
	log       *slog.Logger

	mu      sync.Mutex
	running bool
	entryID cron.EntryID
}

// NewScheduler validates cfg and builds a scheduler for targets.
func NewScheduler(cfg *Config, targets Targets) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retention, err := logging.ParseRetention(cfg.SessionLogRetention)
	if err != nil {
		return nil, fmt.Errorf("invalid session log retention: %w", err)
	}
	return &Scheduler{
		config:    cfg,
		targets:   targets,
		retention: retention,
		cron:      cron.New(),
		now:       time.Now,
		log:       logging.WithComponent("maintenance"),
	}, nil
}

// Start schedules the pruning job. A disabled scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if !s.config.Enabled {
		s.log.Info("Maintenance disabled")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.config.Schedule, func() {
		if _, err := s.RunNow(ctx); err != nil {
			s.log.Error("Maintenance run failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.running = true

	s.log.Info("Maintenance scheduled",
		slog.String("schedule", s.config.Schedule),
		slog.Time("next_run", s.cron.Entry(s.entryID).Next))
	return nil
}

// Stop stops the schedule and waits for a running job.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}

// NextRun returns the next scheduled run, or zero when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// RunNow prunes every target once. Failures on one target do not stop
// the others; the first error is returned.
func (s *Scheduler) RunNow(ctx context.Context) (Report, error) {
	var report Report
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	now := s.now()

	if s.targets.SessionLogDir != "" {
		n, err := pruneEntries(s.targets.SessionLogDir, now.Add(-s.retention), func(e os.DirEntry) bool {
			return !e.IsDir() && strings.HasSuffix(e.Name(), ".log")
		})
		report.SessionLogs = n
		keep(err)
	}
	if s.targets.WorkspaceRoot != "" && s.targets.WorkspaceMaxAge > 0 {
		n, err := pruneEntries(s.targets.WorkspaceRoot, now.Add(-s.targets.WorkspaceMaxAge), func(e os.DirEntry) bool {
			return e.IsDir()
		})
		report.Workspaces = n
		keep(err)
	}
	if s.targets.Deliveries != nil {
		n, err := s.targets.Deliveries.Prune(ctx, s.targets.Deliveries.Window())
		report.Deliveries = n
		keep(err)
	}

	s.log.Info("Maintenance run complete",
		slog.Int("session_logs", report.SessionLogs),
		slog.Int("workspaces", report.Workspaces),
		slog.Int64("deliveries", report.Deliveries))
	return report, firstErr
}

// pruneEntries removes entries of dir accepted by match whose modification
// time is before cutoff. A missing dir is not an error.
func pruneEntries(dir string, cutoff time.Time, match func(os.DirEntry) bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	var removed int
	for _, e := range entries {
		if !match(e) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
