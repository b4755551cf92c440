package detector

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// Config holds the detection thresholds.
type Config struct {
	// VolumeStdThreshold is the z-score a volume delta must reach.
	VolumeStdThreshold float64

	// PriceSpikeThreshold is the minimum absolute price move in dollars.
	PriceSpikeThreshold float64

	// PriceWindowMinutes is how far back the price check looks for its
	// reference snapshot.
	PriceWindowMinutes int

	// SpreadCompressionThreshold is the fraction of the average spread that
	// must have collapsed, in (0, 1).
	SpreadCompressionThreshold float64
}

// Detector evaluates a market's current state against its snapshot history.
// It holds no storage and performs no I/O; callers pass history in and get
// events out.
type Detector struct {
	cfg Config
	now func() time.Time
}

// New creates a detector with the given thresholds.
func New(cfg Config) *Detector {
	return &Detector{
		cfg: cfg,
		now: time.Now,
	}
}

// Detect runs every check for one market against its snapshot history and
// returns the spikes found, at most one per kind. History may arrive in any
// order; it is re-sorted newest first before use. Fewer than two points is
// not enough signal for any check.
func (d *Detector) Detect(m domain.Market, history []domain.Snapshot) []domain.SpikeEvent {
	if len(history) < 2 {
		return nil
	}

	sorted := make([]domain.Snapshot, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CapturedAt.After(sorted[j].CapturedAt)
	})

	var events []domain.SpikeEvent
	if ev := d.checkVolume(m, sorted); ev != nil {
		events = append(events, *ev)
	}
	if ev := d.checkPrice(m, sorted); ev != nil {
		events = append(events, *ev)
	}
	if ev := d.checkSpread(m, sorted); ev != nil {
		events = append(events, *ev)
	}

	return events
}

// --------------------------------------------------------------------------
// Checks
// --------------------------------------------------------------------------

// checkVolume fires when the volume gained since the latest snapshot is an
// outlier against the historical per-interval rate of change, measured in
// standard deviations.
func (d *Detector) checkVolume(m domain.Market, history []domain.Snapshot) *domain.SpikeEvent {
	if len(history) < 3 {
		return nil
	}

	// Per-interval volume deltas between consecutive snapshots, newest
	// first. Negative deltas are exchange corrections, not trading, and
	// are dropped.
	var deltas []float64
	for i := 0; i < len(history)-1; i++ {
		delta := float64(history[i].Volume - history[i+1].Volume)
		if delta >= 0 {
			deltas = append(deltas, delta)
		}
	}
	if len(deltas) < 2 {
		return nil
	}

	mean, stdev := meanStdev(deltas)
	if stdev == 0 {
		return nil
	}

	currentRate := float64(m.Volume - history[0].Volume)
	if currentRate <= 0 {
		return nil
	}

	z := (currentRate - mean) / stdev
	if z < d.cfg.VolumeStdThreshold {
		return nil
	}

	ev := d.newEvent(domain.SpikeVolume, m)
	ev.CurrentValue = float64(m.Volume)
	ev.PreviousValue = float64(history[0].Volume)
	ev.AverageValue = mean
	ev.Threshold = d.cfg.VolumeStdThreshold
	ev.Volume = &domain.VolumeDetails{ZScore: z, Stdev: stdev}

	return &ev
}

// checkPrice fires when the last trade price moved at least the configured
// dollar amount against a reference snapshot from before the lookback window.
func (d *Detector) checkPrice(m domain.Market, history []domain.Snapshot) *domain.SpikeEvent {
	if m.LastPrice == nil {
		return nil
	}

	cutoff := d.now().Add(-time.Duration(d.cfg.PriceWindowMinutes) * time.Minute)

	// The reference is the first snapshot at or older than the cutoff. When
	// the whole history is younger, the oldest snapshot stands in, so short
	// histories compare against whatever is available.
	var ref *domain.Snapshot
	for i := range history {
		ref = &history[i]
		if !history[i].CapturedAt.After(cutoff) {
			break
		}
	}
	if ref == nil || ref.LastPrice == nil {
		return nil
	}

	current := float64(*m.LastPrice) / 100
	reference := float64(*ref.LastPrice) / 100

	change := current - reference
	if math.Abs(change) < d.cfg.PriceSpikeThreshold {
		return nil
	}

	direction := "up"
	if change < 0 {
		direction = "down"
	}

	ev := d.newEvent(domain.SpikePrice, m)
	ev.CurrentValue = current
	ev.PreviousValue = reference
	ev.AverageValue = reference
	ev.Threshold = d.cfg.PriceSpikeThreshold
	ev.Price = &domain.PriceDetails{
		WindowMinutes: d.cfg.PriceWindowMinutes,
		Direction:     direction,
	}

	return &ev
}

// checkSpread fires when the current bid/ask spread has collapsed against
// the historical average spread.
func (d *Detector) checkSpread(m domain.Market, history []domain.Snapshot) *domain.SpikeEvent {
	if m.YesBid == nil || m.YesAsk == nil {
		return nil
	}

	currentSpread := float64(*m.YesAsk-*m.YesBid) / 100
	if currentSpread <= 0 {
		return nil
	}

	var (
		spreads       []float64
		firstHistoric float64
	)
	for _, snap := range history {
		if snap.YesBid == nil || snap.YesAsk == nil {
			continue
		}
		spread := float64(*snap.YesAsk-*snap.YesBid) / 100
		if spread <= 0 {
			continue
		}
		if len(spreads) == 0 {
			firstHistoric = spread
		}
		spreads = append(spreads, spread)
	}
	if len(spreads) < 3 {
		return nil
	}

	avg, _ := meanStdev(spreads)

	ratio := currentSpread / avg
	if ratio > 1-d.cfg.SpreadCompressionThreshold {
		return nil
	}

	ev := d.newEvent(domain.SpikeSpread, m)
	ev.CurrentValue = currentSpread
	ev.PreviousValue = firstHistoric
	ev.AverageValue = avg
	ev.Threshold = d.cfg.SpreadCompressionThreshold
	ev.Spread = &domain.SpreadDetails{
		YesBid:           float64(*m.YesBid) / 100,
		YesAsk:           float64(*m.YesAsk) / 100,
		CompressionRatio: ratio,
	}

	return &ev
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (d *Detector) newEvent(kind domain.SpikeKind, m domain.Market) domain.SpikeEvent {
	return domain.SpikeEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Ticker:    m.Ticker,
		Title:     m.Title,
		Subtitle:  m.Subtitle,
		Timestamp: d.now().UTC(),
		URL:       m.URL,
	}
}

// meanStdev returns the sample mean and Bessel-corrected standard deviation.
// With fewer than two values the deviation is zero.
func meanStdev(xs []float64) (float64, float64) {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	if len(xs) < 2 {
		return mean, 0
	}

	variance := 0.0
	for _, x := range xs {
		diff := x - mean
		variance += diff * diff
	}
	variance /= float64(len(xs) - 1)

	return mean, math.Sqrt(variance)
}
