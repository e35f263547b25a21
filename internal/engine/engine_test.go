package engine

import (
	"reflect"
	"testing"
	"time"

	"github.com/buffquant/simrun/internal/marketdata"
)

func bar(minute int, open, high, low, close, volume float64) marketdata.Bar {
	return marketdata.Bar{
		TS:     time.Date(2026, 1, 1, 0, minute, 0, 0, time.UTC),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: volume,
	}
}

func fiveBarFrame() marketdata.Frame {
	return marketdata.Frame{
		Timeframe: "1m",
		Bars: []marketdata.Bar{
			bar(0, 100, 101, 99, 100.5, 10),
			bar(1, 100.5, 102, 100, 101.5, 12),
			bar(2, 101.5, 103, 101, 102.5, 8),
			bar(3, 102.5, 104, 102, 103.5, 15),
			bar(4, 103.5, 105, 103, 104.5, 9),
		},
	}
}

func TestRunHoldFiveBars(t *testing.T) {
	strat, err := NewStrategy("hold", nil)
	if err != nil {
		t.Fatalf("NewStrategy: %v", err)
	}
	cfg := Config{
		RunID:     "run_test0000",
		Symbol:    "BTCUSD",
		Timeframe: "1m",
		Strategy:  strat,
		RiskLevel: 5,
	}

	res, err := Run(cfg, fiveBarFrame())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Decisions) != 5 {
		t.Fatalf("len(Decisions) = %d, want 5", len(res.Decisions))
	}
	wantActions := []Action{ActionEnterLong, ActionHold, ActionHold, ActionHold, ActionExitLong}
	for i, d := range res.Decisions {
		if d.Action != wantActions[i] {
			t.Errorf("Decisions[%d].Action = %s, want %s", i, d.Action, wantActions[i])
		}
	}

	if len(res.Trades) != 1 {
		t.Fatalf("len(Trades) = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.EntryPrice != 100 {
		t.Errorf("EntryPrice = %v, want 100", tr.EntryPrice)
	}
	if tr.ExitPrice != 104.5 {
		t.Errorf("ExitPrice = %v, want 104.5", tr.ExitPrice)
	}
	if tr.Qty != 50 {
		t.Errorf("Qty = %v, want 50 (0.5 risk fraction of 10000 / 100)", tr.Qty)
	}
	if tr.PnL != 225 {
		t.Errorf("PnL = %v, want 225", tr.PnL)
	}
	if tr.Fees != 0 {
		t.Errorf("Fees = %v, want 0 (zero-cost config)", tr.Fees)
	}

	wantEquity := []float64{10025, 10075, 10125, 10175, 10225}
	for i, p := range res.Equity {
		if p.Equity != wantEquity[i] {
			t.Errorf("Equity[%d] = %v, want %v", i, p.Equity, wantEquity[i])
		}
	}

	if res.Metrics.TotalReturn != 0.0225 {
		t.Errorf("TotalReturn = %v, want 0.0225", res.Metrics.TotalReturn)
	}
	if res.Metrics.MaxDrawdown != 0 {
		t.Errorf("MaxDrawdown = %v, want 0 (monotonically increasing equity)", res.Metrics.MaxDrawdown)
	}
	if res.Metrics.NumTrades != 1 {
		t.Errorf("NumTrades = %d, want 1", res.Metrics.NumTrades)
	}
	if res.Metrics.WinRate != 1.0 {
		t.Errorf("WinRate = %v, want 1.0", res.Metrics.WinRate)
	}
	if res.Metrics.FinalEquity != 10225 {
		t.Errorf("FinalEquity = %v, want 10225", res.Metrics.FinalEquity)
	}
}

func TestRunDeterministic(t *testing.T) {
	strat, _ := NewStrategy("hold", nil)
	cfg := Config{RunID: "run_detrm0000", Symbol: "BTCUSD", Timeframe: "1m", Strategy: strat, RiskLevel: 3}

	a, err := Run(cfg, fiveBarFrame())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(cfg, fiveBarFrame())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("Run is not deterministic across identical inputs")
	}
}

func TestRunAppliesCosts(t *testing.T) {
	strat, _ := NewStrategy("hold", nil)
	cfg := Config{
		RunID: "run_costs00001", Symbol: "BTCUSD", Timeframe: "1m", Strategy: strat, RiskLevel: 5,
		Costs: Costs{CommissionBps: 10, SlippageBps: 5},
	}

	res, err := Run(cfg, fiveBarFrame())
	if err != nil {
		t.Fatal(err)
	}
	if res.Trades[0].Fees <= 0 {
		t.Fatalf("Fees = %v, want > 0 with nonzero commission bps", res.Trades[0].Fees)
	}
	// Slippage raises the effective entry price above the bar's raw open.
	if res.Trades[0].EntryPrice <= 100 {
		t.Fatalf("EntryPrice = %v, want > 100 (buy-side slippage)", res.Trades[0].EntryPrice)
	}
}

func TestNewStrategyValidation(t *testing.T) {
	if _, err := NewStrategy("hold", nil); err != nil {
		t.Errorf("NewStrategy(hold) = %v, want nil", err)
	}
	if _, err := NewStrategy("demo_threshold", map[string]any{"threshold": 5.0}); err != nil {
		t.Errorf("NewStrategy(demo_threshold) = %v, want nil", err)
	}
	if _, err := NewStrategy("demo_threshold", map[string]any{"threshold": 50.0}); err == nil {
		t.Error("NewStrategy(demo_threshold, threshold=50) = nil, want error (out of [0,10])")
	}
	if _, err := NewStrategy("ma_cross", map[string]any{"fast": 3, "slow": 10}); err != nil {
		t.Errorf("NewStrategy(ma_cross valid) = %v, want nil", err)
	}
	if _, err := NewStrategy("ma_cross", map[string]any{"fast": 10, "slow": 3}); err == nil {
		t.Error("NewStrategy(ma_cross, fast>slow) = nil, want error")
	}
	if _, err := NewStrategy("ma_cross", map[string]any{}); err == nil {
		t.Error("NewStrategy(ma_cross, missing params) = nil, want error")
	}
	if _, err := NewStrategy("unknown_strategy", nil); err == nil {
		t.Error("NewStrategy(unknown) = nil, want error")
	}
}

func TestMACrossDetectsCrossover(t *testing.T) {
	strat, err := NewStrategy("ma_cross", map[string]any{"fast": 2, "slow": 4})
	if err != nil {
		t.Fatal(err)
	}

	closes := []float64{100, 100, 100, 100, 105, 110, 115, 90, 85, 80}
	actions := strat.Decide(closes)

	sawEnter, sawExit := false, false
	for _, a := range actions {
		if a == ActionEnterLong {
			sawEnter = true
		}
		if a == ActionExitLong {
			sawExit = true
		}
	}
	if !sawEnter {
		t.Error("expected at least one ENTER_LONG on the upward crossover")
	}
	if !sawExit {
		t.Error("expected at least one EXIT_LONG on the downward crossover")
	}
}

func TestResolveSignalCollapsesContradictingAction(t *testing.T) {
	if got := resolveSignal(ActionExitLong, false); got != ActionHold {
		t.Errorf("resolveSignal(EXIT_LONG, not in position) = %s, want HOLD", got)
	}
	if got := resolveSignal(ActionEnterLong, true); got != ActionHold {
		t.Errorf("resolveSignal(ENTER_LONG, already in position) = %s, want HOLD", got)
	}
	if got := resolveSignal(ActionEnterLong, false); got != ActionEnterLong {
		t.Errorf("resolveSignal(ENTER_LONG, flat) = %s, want ENTER_LONG", got)
	}
}
