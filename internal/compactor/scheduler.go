package compactor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler runs Compactor.Run on a fixed interval in the background.
type Scheduler struct {
	compactor *Compactor
	interval  time.Duration
	log       zerolog.Logger
	stopCh    chan struct{}
}

// NewScheduler constructs a Scheduler. interval is the period between
// compaction cycles (reference: 24h).
func NewScheduler(compactor *Compactor, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		compactor: compactor,
		interval:  interval,
		log:       log.With().Str("component", "compactor-scheduler").Logger(),
		stopCh:    make(chan struct{}),
	}
}

// Start runs compaction cycles until ctx is cancelled or Stop is called.
// Call from a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("compaction scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("compaction scheduler stopping (context done)")
			return
		case <-s.stopCh:
			s.log.Info().Msg("compaction scheduler stopping (stop signal)")
			return
		case <-ticker.C:
			start := time.Now()
			stats, err := s.compactor.Run(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("compaction cycle failed")
				continue
			}
			s.log.Info().
				Int("scanned", stats.MemoriesScanned).
				Int("compacted", stats.MemoriesCompacted).
				Int("summaries", stats.SummariesCreated).
				Dur("elapsed", time.Since(start)).
				Msg("compaction cycle complete")
		}
	}
}

// Stop signals the scheduler to shut down gracefully. Safe to call more
// than once.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}
