package engine

import (
	"github.com/shopspring/decimal"

	"github.com/buffquant/simrun/internal/codec"
	"github.com/buffquant/simrun/internal/marketdata"
)

const InitialEquity = 10_000.0

// Costs holds the commission/slippage cost model parameters in basis points.
type Costs struct {
	CommissionBps float64
	SlippageBps   float64
}

// Config is the fully resolved engine configuration for one simulation run.
type Config struct {
	RunID     string
	Symbol    string
	Timeframe string
	Strategy  Strategy
	RiskLevel int
	Costs     Costs
	Seed      int64
}

// DecisionRecord is one per-bar decision (spec.md §3).
type DecisionRecord struct {
	SchemaVersion string
	RunID         string
	Seq           int
	TSUTC         string
	Action        Action
	Price         float64
	Symbol        string
	Timeframe     string
	StrategyID    string
	RiskLevel     int
}

// Trade is one closed round-trip (spec.md §3).
type Trade struct {
	EntryTime  string
	EntryPrice float64
	ExitTime   string
	ExitPrice  float64
	Qty        float64
	PnL        float64
	Fees       float64
	Side       string
}

// EquityPoint is one post-bar mark-to-market sample.
type EquityPoint struct {
	T      string
	Equity float64
}

// Metrics is the computed summary for a completed run.
type Metrics struct {
	TotalReturn   float64
	MaxDrawdown   float64
	NumTrades     int
	WinRate       float64
	InitialEquity float64
	FinalEquity   float64
	NumRecords    int
	Symbol        string
	Timeframe     string
	StrategyID    string
	RiskLevel     int
	Costs         Costs
}

// Result bundles every byte-reproducible output of one simulation.
type Result struct {
	Decisions []DecisionRecord
	Trades    []Trade
	Equity    []EquityPoint
	Metrics   Metrics
}

// Run executes the bar-close simulation described in spec.md §4.E against
// frame and cfg. It never suspends: every value it touches is in memory.
func Run(cfg Config, frame marketdata.Frame) (Result, error) {
	bars := frame.Bars
	n := len(bars)

	closes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
	}

	rawActions := cfg.Strategy.Decide(closes)

	riskFraction := clamp(float64(cfg.RiskLevel), 1, 5) * 0.1

	cash := decimal.NewFromFloat(InitialEquity)
	qty := decimal.Zero
	var entryPrice, entryCommission decimal.Decimal
	inPosition := false

	decisions := make([]DecisionRecord, 0, n)
	var trades []Trade
	equity := make([]EquityPoint, 0, n)

	commissionBps := decimal.NewFromFloat(cfg.Costs.CommissionBps)
	slippageBps := decimal.NewFromFloat(cfg.Costs.SlippageBps)
	bpsScale := decimal.NewFromInt(10000)

	// hold/demo_threshold bypass the signal-lag rule entirely: entry
	// executes at bar 0's open directly, and the forced close-out below
	// exits the position at the final bar's close (spec.md §4.E).
	immediateEntry := cfg.Strategy.ID == "hold" || cfg.Strategy.ID == "demo_threshold"

	for i := 0; i < n; i++ {
		action := ActionHold
		switch {
		case immediateEntry && i == 0:
			action = ActionEnterLong
		case !immediateEntry && i > 0 && i-1 < len(rawActions):
			// A signal emitted on bar i-1 executes on bar i's open.
			action = resolveSignal(rawActions[i-1], inPosition)
		}

		execPrice := decimal.NewFromFloat(bars[i].Open)

		switch action {
		case ActionEnterLong:
			if inPosition {
				action = ActionHold
				break
			}
			effective := applySlippage(execPrice, slippageBps, true)
			sizedCash := cash.Mul(decimal.NewFromFloat(riskFraction))
			q := sizedCash.Div(effective)
			commission := q.Mul(effective).Abs().Mul(commissionBps).Div(bpsScale)
			cash = cash.Sub(q.Mul(effective)).Sub(commission)
			qty = q
			entryPrice = effective
			entryCommission = commission
			inPosition = true
		case ActionExitLong:
			if !inPosition {
				action = ActionHold
				break
			}
			effective := applySlippage(execPrice, slippageBps, false)
			exitCommission := qty.Mul(effective).Abs().Mul(commissionBps).Div(bpsScale)
			pnl := effective.Sub(entryPrice).Mul(qty).Sub(entryCommission).Sub(exitCommission)
			cash = cash.Add(qty.Mul(effective)).Sub(exitCommission)

			entryF, _ := entryPrice.Float64()
			exitF, _ := effective.Float64()
			qtyF, _ := qty.Float64()
			pnlF, _ := pnl.Float64()
			feesF, _ := entryCommission.Add(exitCommission).Float64()

			trades = append(trades, Trade{
				EntryTime:  decisions[entryDecisionSeq(decisions)].TSUTC,
				EntryPrice: entryF,
				ExitTime:   bars[i].TS.Format("2006-01-02T15:04:05.000Z"),
				ExitPrice:  exitF,
				Qty:        qtyF,
				PnL:        pnlF,
				Fees:       feesF,
				Side:       "LONG",
			})

			qty = decimal.Zero
			inPosition = false
		}

		dr := DecisionRecord{
			SchemaVersion: "dr.v1",
			RunID:         cfg.RunID,
			Seq:           i,
			TSUTC:         bars[i].TS.Format("2006-01-02T15:04:05.000Z"),
			Action:        action,
			Price:         bars[i].Open,
			Symbol:        cfg.Symbol,
			Timeframe:     cfg.Timeframe,
			StrategyID:    cfg.Strategy.ID,
			RiskLevel:     cfg.RiskLevel,
		}
		decisions = append(decisions, dr)

		closeP := decimal.NewFromFloat(bars[i].Close)
		eq := cash.Add(qty.Mul(closeP))
		eqF, _ := eq.Float64()
		equity = append(equity, EquityPoint{T: dr.TSUTC, Equity: eqF})
	}

	// Force close-out: if still in position at the last bar, exit at its close.
	if inPosition && n > 0 {
		last := n - 1
		closeP := decimal.NewFromFloat(bars[last].Close)
		effective := applySlippage(closeP, slippageBps, false)
		exitCommission := qty.Mul(effective).Abs().Mul(commissionBps).Div(bpsScale)
		pnl := effective.Sub(entryPrice).Mul(qty).Sub(entryCommission).Sub(exitCommission)
		cash = cash.Add(qty.Mul(effective)).Sub(exitCommission)

		entryF, _ := entryPrice.Float64()
		exitF, _ := effective.Float64()
		qtyF, _ := qty.Float64()
		pnlF, _ := pnl.Float64()
		feesF, _ := entryCommission.Add(exitCommission).Float64()

		trades = append(trades, Trade{
			EntryTime:  decisions[entryDecisionSeq(decisions)].TSUTC,
			EntryPrice: entryF,
			ExitTime:   bars[last].TS.Format("2006-01-02T15:04:05.000Z"),
			ExitPrice:  exitF,
			Qty:        qtyF,
			PnL:        pnlF,
			Fees:       feesF,
			Side:       "LONG",
		})

		qty = decimal.Zero
		inPosition = false

		decisions[last].Action = ActionExitLong

		finalEq, _ := cash.Float64()
		equity[last] = EquityPoint{T: decisions[last].TSUTC, Equity: finalEq}
	}

	if cfg.Strategy.ID == "hold" || cfg.Strategy.ID == "demo_threshold" {
		rewriteHoldBookends(decisions)
	}

	metrics := computeMetrics(cfg, decisions, trades, equity)

	for i := range decisions {
		decisions[i].Price, _ = codec.Quantize(decisions[i].Price)
	}
	for i := range trades {
		trades[i].EntryPrice, _ = codec.Quantize(trades[i].EntryPrice)
		trades[i].ExitPrice, _ = codec.Quantize(trades[i].ExitPrice)
		trades[i].Qty, _ = codec.Quantize(trades[i].Qty)
		trades[i].PnL, _ = codec.Quantize(trades[i].PnL)
		trades[i].Fees, _ = codec.Quantize(trades[i].Fees)
	}
	for i := range equity {
		equity[i].Equity, _ = codec.Quantize(equity[i].Equity)
	}

	return Result{Decisions: decisions, Trades: trades, Equity: equity, Metrics: metrics}, nil
}

// resolveSignal collapses a signal that contradicts the current position
// into HOLD, per spec.md §4.E ("Actions that contradict current position
// collapse to HOLD").
func resolveSignal(signal Action, inPosition bool) Action {
	switch signal {
	case ActionEnterLong:
		if inPosition {
			return ActionHold
		}
		return ActionEnterLong
	case ActionExitLong:
		if !inPosition {
			return ActionHold
		}
		return ActionExitLong
	default:
		return ActionHold
	}
}

// entryDecisionSeq finds the most recent ENTER_LONG decision's index, used
// to source a trade's entry_time from the decision stream itself.
func entryDecisionSeq(decisions []DecisionRecord) int {
	for i := len(decisions) - 1; i >= 0; i-- {
		if decisions[i].Action == ActionEnterLong {
			return i
		}
	}
	return 0
}

// rewriteHoldBookends enforces spec.md §4.E: for hold/demo_threshold, the
// per-bar action is forcibly set to ENTER_LONG at seq 0, EXIT_LONG at the
// final seq, HOLD elsewhere — independent of whatever the accounting loop
// actually produced (which already follows this shape, but the rewrite is
// the documented source of truth).
func rewriteHoldBookends(decisions []DecisionRecord) {
	n := len(decisions)
	if n == 0 {
		return
	}
	for i := range decisions {
		decisions[i].Action = ActionHold
	}
	decisions[0].Action = ActionEnterLong
	decisions[n-1].Action = ActionExitLong
}

func applySlippage(price decimal.Decimal, slippageBps decimal.Decimal, isBuy bool) decimal.Decimal {
	factor := slippageBps.Div(decimal.NewFromInt(10000))
	if isBuy {
		return price.Mul(decimal.NewFromInt(1).Add(factor))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(factor))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func computeMetrics(cfg Config, decisions []DecisionRecord, trades []Trade, equity []EquityPoint) Metrics {
	initial := InitialEquity
	final := initial
	if len(equity) > 0 {
		final = equity[len(equity)-1].Equity
	}

	totalReturn := 0.0
	if initial != 0 {
		totalReturn = (final - initial) / initial
	}

	peak := 0.0
	maxDD := 0.0
	if len(equity) > 0 {
		peak = equity[0].Equity
	}
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak != 0 {
			dd := (peak - p.Equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	numTrades := len(trades)
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	winRate := 0.0
	if numTrades > 0 {
		winRate = float64(wins) / float64(numTrades)
	}

	totalReturn, _ = codec.Quantize(totalReturn)
	maxDD, _ = codec.Quantize(maxDD)
	winRate, _ = codec.Quantize(winRate)
	final, _ = codec.Quantize(final)
	initial, _ = codec.Quantize(initial)

	return Metrics{
		TotalReturn:   totalReturn,
		MaxDrawdown:   maxDD,
		NumTrades:     numTrades,
		WinRate:       winRate,
		InitialEquity: initial,
		FinalEquity:   final,
		NumRecords:    numTrades,
		Symbol:        cfg.Symbol,
		Timeframe:     cfg.Timeframe,
		StrategyID:    cfg.Strategy.ID,
		RiskLevel:     cfg.RiskLevel,
		Costs:         cfg.Costs,
	}
}
