package detector

import (
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testDetector() *Detector {
	d := New(Config{
		VolumeStdThreshold:         2.0,
		PriceSpikeThreshold:        0.10,
		PriceWindowMinutes:         5,
		SpreadCompressionThreshold: 0.5,
	})
	d.now = func() time.Time { return testNow }
	return d
}

func i64(v int64) *int64 { return &v }

func testMarket() domain.Market {
	return domain.Market{
		Ticker: "KXTEST",
		Title:  "Test market",
		Status: "open",
		URL:    "https://kalshi.com/markets/kxtest",
	}
}

// volumeHistory builds a newest-first history with the given volumes, spaced
// one minute apart going backwards from testNow. No prices are set, so only
// the volume check can fire.
func volumeHistory(volumes ...int64) []domain.Snapshot {
	snaps := make([]domain.Snapshot, len(volumes))
	for i, v := range volumes {
		snaps[i] = domain.Snapshot{
			Ticker:     "KXTEST",
			CapturedAt: testNow.Add(-time.Duration(i+1) * time.Minute),
			Volume:     v,
		}
	}
	return snaps
}

func eventByKind(t *testing.T, events []domain.SpikeEvent, kind domain.SpikeKind) domain.SpikeEvent {
	t.Helper()
	for _, ev := range events {
		if ev.Kind == kind {
			return ev
		}
	}
	t.Fatalf("no %s event among %d events", kind, len(events))
	return domain.SpikeEvent{}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestVolumeSpikeFires(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.Volume = 1200

	// Deltas 50, 30, 70: mean 50, sample stdev 20. Current rate 200 gives
	// z = 7.5, well past the 2.0 threshold.
	events := d.Detect(m, volumeHistory(1000, 950, 920, 850))

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.Kind != domain.SpikeVolume {
		t.Fatalf("Kind = %s, want %s", ev.Kind, domain.SpikeVolume)
	}
	if ev.ID == "" {
		t.Error("event ID is empty")
	}
	if ev.Ticker != "KXTEST" || ev.URL != "https://kalshi.com/markets/kxtest" {
		t.Errorf("identity fields: ticker=%q url=%q", ev.Ticker, ev.URL)
	}
	if !ev.Timestamp.Equal(testNow) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, testNow)
	}
	if ev.CurrentValue != 1200 || ev.PreviousValue != 1000 {
		t.Errorf("values = %.0f/%.0f, want 1200/1000", ev.CurrentValue, ev.PreviousValue)
	}
	if !almostEqual(ev.AverageValue, 50) {
		t.Errorf("AverageValue = %v, want 50", ev.AverageValue)
	}
	if ev.Threshold != 2.0 {
		t.Errorf("Threshold = %v, want 2.0", ev.Threshold)
	}
	if ev.Volume == nil {
		t.Fatal("Volume details missing")
	}
	if !almostEqual(ev.Volume.Stdev, 20) {
		t.Errorf("Stdev = %v, want 20", ev.Volume.Stdev)
	}
	if !almostEqual(ev.Volume.ZScore, 7.5) {
		t.Errorf("ZScore = %v, want 7.5", ev.Volume.ZScore)
	}
	if ev.Price != nil || ev.Spread != nil {
		t.Error("unexpected detail payloads for a volume event")
	}
}

func TestNoVolumeSpikeOnFlatSeries(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.Volume = 100000

	// Deltas 50, 50, 50: stdev 0, so no z-score exists no matter how large
	// the current jump is.
	events := d.Detect(m, volumeHistory(1000, 950, 900, 850))

	if len(events) != 0 {
		t.Fatalf("got %d events, want none", len(events))
	}
}

func TestVolumeNegativeDeltasDiscarded(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.Volume = 1200

	// The 1000 -> 1050 interval is a -50 delta and must not pollute the
	// baseline. Surviving deltas 50, 40, 40: mean 43.33, stdev 5.77.
	events := d.Detect(m, volumeHistory(1000, 1050, 1000, 960, 920))

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Volume == nil {
		t.Fatal("Volume details missing")
	}
	if math.Abs(ev.Volume.Stdev-5.7735) > 1e-3 {
		t.Errorf("Stdev = %v, want ~5.7735 (negative delta excluded)", ev.Volume.Stdev)
	}
}

func TestVolumeNeedsThreeSnapshots(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.Volume = 100000

	if events := d.Detect(m, volumeHistory(1000, 900)); len(events) != 0 {
		t.Fatalf("got %d events on a 2-point history, want none", len(events))
	}
}

func TestVolumeNoEventOnStalledMarket(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.Volume = 1000 // unchanged since the latest snapshot

	if events := d.Detect(m, volumeHistory(1000, 950, 920, 850)); len(events) != 0 {
		t.Fatalf("got %d events with zero current rate, want none", len(events))
	}
}

func TestDetectShortHistory(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.Volume = 100000
	m.LastPrice = i64(99)

	if events := d.Detect(m, volumeHistory(10)); events != nil {
		t.Fatalf("got %v on a single-point history, want nil", events)
	}
}

func TestPriceSpikeUp(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.Volume = 1000
	m.LastPrice = i64(150)

	history := []domain.Snapshot{
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-1 * time.Minute), Volume: 1000, LastPrice: i64(148)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-2 * time.Minute), Volume: 1000, LastPrice: i64(147)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-6 * time.Minute), Volume: 1000, LastPrice: i64(130)},
	}

	events := d.Detect(m, history)
	ev := eventByKind(t, events, domain.SpikePrice)

	if !almostEqual(ev.CurrentValue, 1.50) || !almostEqual(ev.PreviousValue, 1.30) {
		t.Errorf("values = %v/%v, want 1.50/1.30", ev.CurrentValue, ev.PreviousValue)
	}
	if !almostEqual(ev.AverageValue, 1.30) {
		t.Errorf("AverageValue = %v, want the reference price", ev.AverageValue)
	}
	if ev.Price == nil {
		t.Fatal("Price details missing")
	}
	if ev.Price.Direction != "up" {
		t.Errorf("Direction = %q, want up", ev.Price.Direction)
	}
	if ev.Price.WindowMinutes != 5 {
		t.Errorf("WindowMinutes = %d, want 5", ev.Price.WindowMinutes)
	}
}

func TestPriceSpikeDown(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.LastPrice = i64(120)

	history := []domain.Snapshot{
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-1 * time.Minute), LastPrice: i64(122)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-7 * time.Minute), LastPrice: i64(135)},
	}

	events := d.Detect(m, history)
	ev := eventByKind(t, events, domain.SpikePrice)

	if ev.Price.Direction != "down" {
		t.Errorf("Direction = %q, want down", ev.Price.Direction)
	}
	if !almostEqual(ev.CurrentValue, 1.20) || !almostEqual(ev.PreviousValue, 1.35) {
		t.Errorf("values = %v/%v, want 1.20/1.35", ev.CurrentValue, ev.PreviousValue)
	}
}

func TestPriceFallsBackToOldestSnapshot(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.LastPrice = i64(150)

	// Everything is younger than the 5 minute window; the oldest entry
	// still serves as the reference.
	history := []domain.Snapshot{
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-1 * time.Minute), LastPrice: i64(149)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-2 * time.Minute), LastPrice: i64(130)},
	}

	events := d.Detect(m, history)
	ev := eventByKind(t, events, domain.SpikePrice)

	if !almostEqual(ev.PreviousValue, 1.30) {
		t.Errorf("PreviousValue = %v, want the oldest price 1.30", ev.PreviousValue)
	}
}

func TestPriceSkipsWhenReferenceUnpriced(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.LastPrice = i64(150)

	// The chosen reference is the first snapshot at or before the cutoff.
	// If that one carries no price the check skips; it does not hunt for
	// another priced snapshot.
	history := []domain.Snapshot{
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-1 * time.Minute), LastPrice: i64(130)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-6 * time.Minute), LastPrice: nil},
	}

	if events := d.Detect(m, history); len(events) != 0 {
		t.Fatalf("got %d events, want none when the reference has no price", len(events))
	}
}

func TestPriceSkipsWithoutCurrentPrice(t *testing.T) {
	d := testDetector()

	m := testMarket() // LastPrice nil

	history := []domain.Snapshot{
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-1 * time.Minute), LastPrice: i64(148)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-6 * time.Minute), LastPrice: i64(110)},
	}

	if events := d.Detect(m, history); len(events) != 0 {
		t.Fatalf("got %d events, want none without a current price", len(events))
	}
}

func TestPriceBelowThreshold(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.LastPrice = i64(141)

	history := []domain.Snapshot{
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-1 * time.Minute), LastPrice: i64(140)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-6 * time.Minute), LastPrice: i64(135)},
	}

	if events := d.Detect(m, history); len(events) != 0 {
		t.Fatalf("got %d events, want none for a $0.06 move", len(events))
	}
}

func spreadHistory(quotes ...[2]int64) []domain.Snapshot {
	snaps := make([]domain.Snapshot, len(quotes))
	for i, q := range quotes {
		snaps[i] = domain.Snapshot{
			Ticker:     "KXTEST",
			CapturedAt: testNow.Add(-time.Duration(i+1) * time.Minute),
			Volume:     1000,
			YesBid:     i64(q[0]),
			YesAsk:     i64(q[1]),
		}
	}
	return snaps
}

func TestSpreadCompressionFires(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.Volume = 1000
	m.YesBid = i64(48)
	m.YesAsk = i64(50)

	// Historical spreads 0.05, 0.06, 0.07 average to 0.06; the current 0.02
	// spread is a third of that, past the 50% compression threshold.
	history := spreadHistory([2]int64{45, 50}, [2]int64{44, 50}, [2]int64{43, 50})

	events := d.Detect(m, history)
	ev := eventByKind(t, events, domain.SpikeSpread)

	if !almostEqual(ev.CurrentValue, 0.02) {
		t.Errorf("CurrentValue = %v, want 0.02", ev.CurrentValue)
	}
	if !almostEqual(ev.AverageValue, 0.06) {
		t.Errorf("AverageValue = %v, want 0.06", ev.AverageValue)
	}
	if !almostEqual(ev.PreviousValue, 0.05) {
		t.Errorf("PreviousValue = %v, want the first historical spread 0.05", ev.PreviousValue)
	}
	if ev.Spread == nil {
		t.Fatal("Spread details missing")
	}
	if !almostEqual(ev.Spread.YesBid, 0.48) || !almostEqual(ev.Spread.YesAsk, 0.50) {
		t.Errorf("quotes = %v/%v, want 0.48/0.50", ev.Spread.YesBid, ev.Spread.YesAsk)
	}
	if math.Abs(ev.Spread.CompressionRatio-1.0/3.0) > 1e-9 {
		t.Errorf("CompressionRatio = %v, want 1/3", ev.Spread.CompressionRatio)
	}
}

func TestSpreadNoEventAtStricterThreshold(t *testing.T) {
	d := New(Config{
		VolumeStdThreshold:         2.0,
		PriceSpikeThreshold:        0.10,
		PriceWindowMinutes:         5,
		SpreadCompressionThreshold: 0.9, // requires ratio <= 0.1
	})
	d.now = func() time.Time { return testNow }

	m := testMarket()
	m.YesBid = i64(48)
	m.YesAsk = i64(50)

	history := spreadHistory([2]int64{45, 50}, [2]int64{44, 50}, [2]int64{43, 50})

	if events := d.Detect(m, history); len(events) != 0 {
		t.Fatalf("got %d events, want none at ratio 1/3 vs limit 0.1", len(events))
	}
}

func TestSpreadSkipsSparseQuotes(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.YesBid = i64(48)
	m.YesAsk = i64(50)

	// Only two snapshots carry a full quote pair; three are required.
	history := []domain.Snapshot{
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-1 * time.Minute), YesBid: i64(45), YesAsk: i64(50)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-2 * time.Minute), YesBid: i64(44)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-3 * time.Minute), YesAsk: i64(50)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-4 * time.Minute), YesBid: i64(43), YesAsk: i64(50)},
	}

	if events := d.Detect(m, history); len(events) != 0 {
		t.Fatalf("got %d events, want none with sparse quotes", len(events))
	}
}

func TestSpreadSkipsNonPositiveCurrent(t *testing.T) {
	d := testDetector()

	m := testMarket()
	m.YesBid = i64(50)
	m.YesAsk = i64(50)

	history := spreadHistory([2]int64{45, 50}, [2]int64{44, 50}, [2]int64{43, 50})

	if events := d.Detect(m, history); len(events) != 0 {
		t.Fatalf("got %d events, want none for a zero-width book", len(events))
	}
}

// allSpikesFixture returns a market and history where all three checks fire.
func allSpikesFixture() (domain.Market, []domain.Snapshot) {
	m := testMarket()
	m.Volume = 1200
	m.LastPrice = i64(150)
	m.YesBid = i64(48)
	m.YesAsk = i64(50)

	history := []domain.Snapshot{
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-1 * time.Minute), Volume: 1000, LastPrice: i64(148), YesBid: i64(47), YesAsk: i64(52)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-2 * time.Minute), Volume: 950, LastPrice: i64(147), YesBid: i64(46), YesAsk: i64(52)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-3 * time.Minute), Volume: 920, LastPrice: i64(145), YesBid: i64(45), YesAsk: i64(52)},
		{Ticker: "KXTEST", CapturedAt: testNow.Add(-6 * time.Minute), Volume: 850, LastPrice: i64(130), YesBid: i64(45), YesAsk: i64(53)},
	}
	return m, history
}

func TestDetectAllThreeKinds(t *testing.T) {
	d := testDetector()

	m, history := allSpikesFixture()

	events := d.Detect(m, history)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	eventByKind(t, events, domain.SpikeVolume)
	eventByKind(t, events, domain.SpikePrice)
	eventByKind(t, events, domain.SpikeSpread)
}

func TestDetectOrderInsensitive(t *testing.T) {
	d := testDetector()

	m, history := allSpikesFixture()

	sortedOut := d.Detect(m, history)

	// Oldest first.
	reversed := make([]domain.Snapshot, len(history))
	for i, snap := range history {
		reversed[len(history)-1-i] = snap
	}
	reversedOut := d.Detect(m, reversed)

	// Interleaved.
	shuffled := []domain.Snapshot{history[2], history[0], history[3], history[1]}
	shuffledOut := d.Detect(m, shuffled)

	for _, out := range [][]domain.SpikeEvent{reversedOut, shuffledOut} {
		if len(out) != len(sortedOut) {
			t.Fatalf("event count differs: %d vs %d", len(out), len(sortedOut))
		}
		for _, want := range sortedOut {
			got := eventByKind(t, out, want.Kind)
			if !almostEqual(got.CurrentValue, want.CurrentValue) ||
				!almostEqual(got.PreviousValue, want.PreviousValue) ||
				!almostEqual(got.AverageValue, want.AverageValue) {
				t.Errorf("%s values differ across input orderings: %+v vs %+v", want.Kind, got, want)
			}
		}
	}
}
