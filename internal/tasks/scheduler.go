package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mxf-project/mxf/pkg/models"
)

// cronParser matches the teacher's internal/cron grammar: seconds are
// optional, plus the usual five fields and named descriptors like
// "@every".
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Sweeper is the subset of Manager the scheduler drives; SweepStale is
// the only operation a periodic sweep ever needs.
type Sweeper interface {
	SweepStale(ctx context.Context, staleAfter time.Duration) []models.Task
}

// Scheduler runs a periodic stale-task sweep across every registered
// channel Manager (spec C7 scheduled tasks). Grounded on the teacher's
// internal/cron package: the same cron.Parser-backed expression handling,
// narrowed from the teacher's per-task schedule table to one fixed
// expression driving a fleet-wide sweep, since MXF has no user-authored
// scheduled tasks of its own (spec's task model is agent-assigned work,
// not cron jobs).
type Scheduler struct {
	cron       *cron.Cron
	staleAfter time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	sweepers map[string]Sweeper
}

// NewScheduler builds a scheduler that sweeps every registered channel
// every time expr fires, failing tasks idle longer than staleAfter.
// expr follows the teacher's SecondOptional/Minute/Hour/Dom/Month/Dow
// cron grammar (e.g. "@every 1m").
func NewScheduler(expr string, staleAfter time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if expr == "" {
		expr = "@every 1m"
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	s := &Scheduler{
		cron:       cron.New(cron.WithParser(cronParser)),
		staleAfter: staleAfter,
		logger:     logger.With("component", "task-scheduler"),
		sweepers:   make(map[string]Sweeper),
	}
	if _, err := s.cron.AddFunc(expr, s.sweepAll); err != nil {
		return nil, err
	}
	return s, nil
}

// Register adds channelID's Manager to the sweep rotation. Re-registering
// the same channelID replaces its Sweeper.
func (s *Scheduler) Register(channelID string, sweeper Sweeper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepers[channelID] = sweeper
}

// Unregister removes channelID from the sweep rotation.
func (s *Scheduler) Unregister(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sweepers, channelID)
}

// Start begins the cron schedule in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop ends the cron schedule, waiting for any in-flight sweep to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

func (s *Scheduler) sweepAll() {
	s.mu.Lock()
	sweepers := make([]Sweeper, 0, len(s.sweepers))
	for _, sw := range s.sweepers {
		sweepers = append(sweepers, sw)
	}
	s.mu.Unlock()

	ctx := context.Background()
	for _, sw := range sweepers {
		timedOut := sw.SweepStale(ctx, s.staleAfter)
		if len(timedOut) > 0 {
			s.logger.Warn("swept stale tasks", "count", len(timedOut))
		}
	}
}
