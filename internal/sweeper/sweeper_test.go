package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ln9swrd/coinpulse-sub000/config"
	"github.com/ln9swrd/coinpulse-sub000/internal/database"
	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

func sweepConfig() config.SweeperConfig {
	return config.SweeperConfig{
		Enabled:             true,
		MaxAgeHours:         72,
		PeakDropPercent:     3,
		LossPercent:         2,
		StagnationHours:     24,
		StagnationPercent:   1,
		SlowProgressHours:   48,
		SlowProgressPercent: 10,
	}
}

func pendingSignal(age time.Duration) *database.Signal {
	return &database.Signal{
		ID:            1,
		Symbol:        "KRW-OLD",
		DetectedAt:    time.Now().Add(-age),
		EntryPrice:    1000,
		TargetPrice:   1100,
		StopLossPrice: 950,
		Status:        database.StatusPending,
	}
}

func TestEvaluateExpiry(t *testing.T) {
	sig := pendingSignal(75 * time.Hour)

	status, reason, stale := Evaluate(sig, 1005, 1005, time.Now(), sweepConfig())
	if !stale {
		t.Fatal("a 75h-old pending signal must close")
	}
	if status != database.StatusExpired {
		t.Errorf("expected expired, got %s", status)
	}
	if reason != database.CloseReasonExpired {
		t.Errorf("expected reason %q, got %q", database.CloseReasonExpired, reason)
	}
}

func TestEvaluatePeakDrop(t *testing.T) {
	sig := pendingSignal(2 * time.Hour)

	// Peaked at 1080, now 1040: 3.7% off the peak
	status, reason, stale := Evaluate(sig, 1040, 1080, time.Now(), sweepConfig())
	if !stale {
		t.Fatal("a 3%+ drop from peak must close")
	}
	if status != database.StatusClosed || reason != database.CloseReasonPeakDrop {
		t.Errorf("expected closed/peak_drop, got %s/%s", status, reason)
	}

	// 2% off the peak survives
	if _, _, stale := Evaluate(sig, 1058, 1080, time.Now(), sweepConfig()); stale {
		t.Error("a 2% drop from peak must not close")
	}
}

func TestEvaluateBelowEntry(t *testing.T) {
	sig := pendingSignal(2 * time.Hour)

	_, reason, stale := Evaluate(sig, 975, 1000, time.Now(), sweepConfig())
	if !stale || reason != database.CloseReasonBelowEntry {
		t.Errorf("2.5%% below entry must close as below_entry, got stale=%v reason=%q", stale, reason)
	}
}

func TestEvaluateStagnation(t *testing.T) {
	cfg := sweepConfig()

	// Barely moved after 30h
	sig := pendingSignal(30 * time.Hour)
	_, reason, stale := Evaluate(sig, 1005, 1005, time.Now(), cfg)
	if !stale || reason != database.CloseReasonStagnation {
		t.Errorf("<1%% move after 24h must close as stagnation, got stale=%v reason=%q", stale, reason)
	}

	// Same price when the signal is only 2h old survives
	if _, _, stale := Evaluate(pendingSignal(2*time.Hour), 1005, 1005, time.Now(), cfg); stale {
		t.Error("young signals must not close for stagnation")
	}
}

func TestEvaluateSlowProgress(t *testing.T) {
	// +5% after 50h: past the stagnation band, but only halfway to a 10%
	// target after the slow-progress window
	sig := pendingSignal(50 * time.Hour)
	_, reason, stale := Evaluate(sig, 1050, 1050, time.Now(), sweepConfig())
	if stale {
		// +5% is 50% progress toward the 1100 target, well above 10%
		t.Errorf("healthy progress must not close, got reason %q", reason)
	}

	// +0.5% is under 1%... stagnation would catch it first, so use +1.5%:
	// above the stagnation band yet only 15% progress. Not slow enough.
	if _, _, stale := Evaluate(pendingSignal(50*time.Hour), 1015, 1015, time.Now(), sweepConfig()); stale {
		t.Error("15% progress toward target must not close")
	}

	// Push the target out so +1.5% is under 10% progress
	far := pendingSignal(50 * time.Hour)
	far.TargetPrice = 1200
	_, reason, stale = Evaluate(far, 1015, 1015, time.Now(), sweepConfig())
	if !stale || reason != database.CloseReasonSlowProgress {
		t.Errorf("7.5%% progress after 48h must close as slow_progress, got stale=%v reason=%q", stale, reason)
	}
}

func TestSweeperRunCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	loader := config.NewLoader(path, cfg)

	store := database.NewMemoryStore()
	old := &database.Signal{
		Symbol:        "KRW-OLD",
		DetectedAt:    time.Now().Add(-75 * time.Hour),
		EntryPrice:    1000,
		TargetPrice:   1100,
		StopLossPrice: 950,
	}
	if err := store.CreateSignal(context.Background(), old); err != nil {
		t.Fatal(err)
	}

	mock := upbit.NewMockClient()
	mock.SetPrice("KRW-OLD", 1005)

	swp := New(loader, mock, nil, store, zerolog.Nop())
	if err := swp.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	sig, err := store.GetSignalByID(context.Background(), old.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sig.Status != database.StatusExpired {
		t.Fatalf("expected expired, got %s", sig.Status)
	}
	if sig.CloseReason == nil || *sig.CloseReason != database.CloseReasonExpired {
		t.Errorf("expected close reason %q, got %v", database.CloseReasonExpired, sig.CloseReason)
	}
}

func TestSweeperPeakRaisedBeforeCheck(t *testing.T) {
	// The signal's stored peak is stale at 1080; the live price is a new
	// high, so raising the peak first means no drop registers.
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	loader := config.NewLoader(path, cfg)

	store := database.NewMemoryStore()
	sig := &database.Signal{
		Symbol:        "KRW-RUN",
		DetectedAt:    time.Now().Add(-2 * time.Hour),
		EntryPrice:    1000,
		TargetPrice:   1100,
		StopLossPrice: 950,
		PeakPrice:     1080,
	}
	if err := store.CreateSignal(context.Background(), sig); err != nil {
		t.Fatal(err)
	}

	mock := upbit.NewMockClient()
	mock.SetPrice("KRW-RUN", 1090)

	swp := New(loader, mock, nil, store, zerolog.Nop())
	if err := swp.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetSignalByID(context.Background(), sig.ID)
	if got.Status != database.StatusPending {
		t.Fatalf("a fresh high must not close, got %s", got.Status)
	}
	if got.PeakPrice != 1090 {
		t.Errorf("peak should advance to 1090, got %.1f", got.PeakPrice)
	}
}
