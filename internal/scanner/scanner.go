// Package scanner drives the poll cycle: fetch every open market, persist
// snapshots, prune histories down to the retention cap, run spike detection,
// and hand detected events to the alert fan-out.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// MarketSource lists all open markets from the exchange.
type MarketSource interface {
	ListOpenMarkets(ctx context.Context) ([]domain.Market, error)
}

// SpikeDetector evaluates one market against its stored history.
type SpikeDetector interface {
	Detect(m domain.Market, history []domain.Snapshot) []domain.SpikeEvent
}

// AlertSink receives detected spike events. Delivery is fire-and-forget; the
// sink swallows its own failures.
type AlertSink interface {
	Publish(ctx context.Context, ev domain.SpikeEvent)
}

// SessionInvalidator drops the cached exchange session after an
// authentication rejection.
type SessionInvalidator interface {
	Invalidate()
}

// Archiver copies snapshots to cold storage before they are pruned.
type Archiver interface {
	WriteBatch(ctx context.Context, snaps []domain.Snapshot) error
}

// StateRecorder persists the latest cycle summary for status reporting.
type StateRecorder interface {
	SetLastCycle(ctx context.Context, stats domain.CycleStats) error
}

// Config carries the cycle parameters and the startup banner fields.
type Config struct {
	MaxHistoryPoints           int
	VolumeStdThreshold         float64
	PriceSpikeThreshold        float64
	PriceWindowMinutes         int
	SpreadCompressionThreshold float64
	DiscordEnabled             bool
}

// Scanner owns one poll loop. Cycles run strictly sequentially; a cycle that
// fails is abandoned and the loop simply waits for the next tick.
type Scanner struct {
	source   MarketSource
	store    domain.SnapshotStore
	detector SpikeDetector
	alerts   AlertSink
	tokens   SessionInvalidator
	archiver Archiver      // nil disables archiving
	state    StateRecorder // nil disables the shared status record
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	lastCycle *domain.CycleStats
}

// NewScanner creates a Scanner. archiver and state may be nil when the
// corresponding backends are not configured.
func NewScanner(
	source MarketSource,
	store domain.SnapshotStore,
	detector SpikeDetector,
	alerts AlertSink,
	tokens SessionInvalidator,
	archiver Archiver,
	state StateRecorder,
	cfg Config,
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		source:   source,
		store:    store,
		detector: detector,
		alerts:   alerts,
		tokens:   tokens,
		archiver: archiver,
		state:    state,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scanner")),
		now:      time.Now,
	}
}

// RunLoop runs one cycle immediately, then repeats on the interval until the
// context is cancelled. It returns ctx.Err(); no cycle error ever stops the
// loop.
func (s *Scanner) RunLoop(ctx context.Context, interval time.Duration) error {
	s.logger.Info("kalshi market scanner started",
		slog.Duration("interval", interval),
		slog.Float64("volume_std_threshold", s.cfg.VolumeStdThreshold),
		slog.String("price_threshold", fmt.Sprintf("$%.2f in %d min", s.cfg.PriceSpikeThreshold, s.cfg.PriceWindowMinutes)),
		slog.String("spread_threshold", fmt.Sprintf("%.0f%%", s.cfg.SpreadCompressionThreshold*100)),
		slog.Bool("discord", s.cfg.DiscordEnabled),
	)

	// Run immediately on start.
	s.runCycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanner loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// RunOnce executes a single cycle and returns its summary. Used by the loop
// indirectly and by operator commands that want one pass without the ticker.
func (s *Scanner) RunOnce(ctx context.Context) domain.CycleStats {
	return s.runCycle(ctx)
}

// LastCycle returns the most recent cycle summary, or false when no cycle has
// completed yet.
func (s *Scanner) LastCycle() (domain.CycleStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastCycle == nil {
		return domain.CycleStats{}, false
	}
	return *s.lastCycle, true
}

// runCycle executes one cycle, classifies its error, and records the summary.
// An authentication rejection additionally invalidates the cached session so
// the next cycle logs in fresh.
func (s *Scanner) runCycle(ctx context.Context) domain.CycleStats {
	started := s.now().UTC()
	stats := domain.CycleStats{StartedAt: started}

	if err := s.cycle(ctx, &stats); err != nil {
		stats.Error = err.Error()
		if errors.Is(err, domain.ErrAuthRejected) {
			s.tokens.Invalidate()
			s.logger.Warn("authentication rejected, session invalidated",
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Error("cycle failed", slog.String("error", err.Error()))
		}
	}
	stats.Duration = s.now().UTC().Sub(started)

	s.record(ctx, stats)
	return stats
}

// cycle is one fetch → persist → prune → detect → alert pass. Any error
// abandons the remainder of the cycle.
func (s *Scanner) cycle(ctx context.Context, stats *domain.CycleStats) error {
	markets, err := s.source.ListOpenMarkets(ctx)
	if err != nil {
		return err
	}
	stats.Markets = len(markets)
	s.logger.Info("fetched open markets", slog.Int("count", len(markets)))

	capturedAt := s.now().UTC()
	snaps := make([]domain.Snapshot, 0, len(markets))
	for _, m := range markets {
		snaps = append(snaps, m.Snapshot(capturedAt))
	}
	if len(snaps) > 0 {
		if err := s.store.AppendBatch(ctx, snaps); err != nil {
			return err
		}
	}
	stats.Snapshots = len(snaps)

	for _, m := range markets {
		meta := domain.MarketMetadata{
			Ticker:   m.Ticker,
			Title:    m.Title,
			Subtitle: m.Subtitle,
			URL:      m.URL,
		}
		if err := s.store.UpsertMetadata(ctx, meta); err != nil {
			return err
		}
	}

	if s.archiver != nil {
		s.archivePrunable(ctx)
	}

	pruned, err := s.store.PruneOldest(ctx, s.cfg.MaxHistoryPoints)
	if err != nil {
		return err
	}
	stats.Pruned = pruned
	if pruned > 0 {
		s.logger.Debug("pruned snapshots", slog.Int64("count", pruned))
	}

	histories, err := s.store.ReadAllHistories(ctx, s.cfg.MaxHistoryPoints)
	if err != nil {
		return err
	}

	spikes := 0
	for _, m := range markets {
		for _, ev := range s.detector.Detect(m, histories[m.Ticker]) {
			spikes++
			s.alerts.Publish(ctx, ev)
		}
	}
	stats.Spikes = spikes
	if spikes > 0 {
		s.logger.Info("detected spikes", slog.Int("count", spikes))
	}

	return nil
}

// archivePrunable copies the rows the next prune will delete to cold storage.
// Archive failures are logged and skipped; the retention bound is enforced
// regardless.
func (s *Scanner) archivePrunable(ctx context.Context) {
	prunable, err := s.store.ListPrunable(ctx, s.cfg.MaxHistoryPoints)
	if err != nil {
		s.logger.Warn("archive listing failed", slog.String("error", err.Error()))
		return
	}
	if len(prunable) == 0 {
		return
	}
	if err := s.archiver.WriteBatch(ctx, prunable); err != nil {
		s.logger.Warn("archive write failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("archived snapshots", slog.Int("count", len(prunable)))
}

// record stores the cycle summary in memory and, when configured, in the
// shared state cache.
func (s *Scanner) record(ctx context.Context, stats domain.CycleStats) {
	s.mu.Lock()
	s.lastCycle = &stats
	s.mu.Unlock()

	if s.state != nil {
		if err := s.state.SetLastCycle(ctx, stats); err != nil {
			s.logger.Warn("cycle state write failed", slog.String("error", err.Error()))
		}
	}
}
