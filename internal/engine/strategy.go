// Package engine implements the bar-close simulation engine of spec.md §4.E:
// strategy dispatch, risk-fraction sizing, slippage/commission cost model,
// accounting, and metrics. It is single-threaded and synchronous within one
// run, matching the teacher's deterministic-replay idiom in
// internal/store, generalized to arithmetic-heavy accounting via
// shopspring/decimal rather than the teacher's plain-struct records.
package engine

import (
	"fmt"
	"math"

	"github.com/buffquant/simrun/internal/apierr"
)

// Action is one of the three decisions a strategy can emit for a bar.
type Action string

const (
	ActionHold      Action = "HOLD"
	ActionEnterLong Action = "ENTER_LONG"
	ActionExitLong  Action = "EXIT_LONG"
)

// Strategy is a closed sum type over the built-in strategy ids, matching
// spec.md §9's translation note: "a closed sum type ... plus a pure function
// (Strategy, bar_index, bars) -> Action".
type Strategy struct {
	ID        string
	FastWin   int // ma_cross only
	SlowWin   int // ma_cross only
	Threshold float64
}

// NewStrategy validates and constructs a Strategy from a strategy id and raw
// params map, as decoded from a normalized run request.
func NewStrategy(id string, params map[string]any) (Strategy, error) {
	switch id {
	case "hold":
		return Strategy{ID: "hold"}, nil
	case "demo_threshold":
		th, ok := paramFloat(params, "threshold")
		if !ok {
			th = 0
		}
		if th < 0 || th > 10 {
			return Strategy{}, apierr.StrategyInvalid("demo_threshold.threshold must be in [0,10]")
		}
		return Strategy{ID: "demo_threshold", Threshold: th}, nil
	case "ma_cross":
		fast, ok := paramInt(params, "fast")
		if !ok {
			return Strategy{}, apierr.StrategyInvalid("ma_cross requires integer param fast")
		}
		slow, ok := paramInt(params, "slow")
		if !ok {
			return Strategy{}, apierr.StrategyInvalid("ma_cross requires integer param slow")
		}
		if !(fast > 0 && fast < slow) {
			return Strategy{}, apierr.StrategyInvalid("ma_cross requires 0 < fast < slow")
		}
		return Strategy{ID: "ma_cross", FastWin: fast, SlowWin: slow}, nil
	default:
		return Strategy{}, apierr.StrategyInvalid(fmt.Sprintf("unknown strategy id: %s", id))
	}
}

func paramFloat(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func paramInt(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return int(x), true
	case int:
		return x, true
	default:
		return 0, false
	}
}

// Decide computes the raw (pre-close-out, pre-forced-rewrite) action stream
// for every bar of closes. Index i of the result corresponds to the signal
// observed at bar i; execution happens on bar i+1's open per spec.md §4.E.
func (s Strategy) Decide(closes []float64) []Action {
	switch s.ID {
	case "hold", "demo_threshold":
		// hold/demo_threshold emit HOLD here; the ENTER_LONG/EXIT_LONG
		// bookends are rewritten post-hoc by the accounting pass.
		out := make([]Action, len(closes))
		for i := range out {
			out[i] = ActionHold
		}
		return out
	case "ma_cross":
		return s.decideMACross(closes)
	default:
		out := make([]Action, len(closes))
		for i := range out {
			out[i] = ActionHold
		}
		return out
	}
}

func (s Strategy) decideMACross(closes []float64) []Action {
	n := len(closes)
	out := make([]Action, n)
	for i := range out {
		out[i] = ActionHold
	}
	if n == 0 {
		return out
	}

	maFast := sma(closes, s.FastWin)
	maSlow := sma(closes, s.SlowWin)

	inPosition := false
	// For each bar i in [1, N-2]: ENTER_LONG when ma_fast[i-1] <= ma_slow[i-1]
	// and ma_fast[i] > ma_slow[i]; EXIT_LONG on the mirror condition.
	for i := 1; i <= n-2; i++ {
		if i-1 < 0 {
			continue
		}
		prevFast, prevSlow := maFast[i-1], maSlow[i-1]
		curFast, curSlow := maFast[i], maSlow[i]
		if math.IsNaN(prevFast) || math.IsNaN(prevSlow) || math.IsNaN(curFast) || math.IsNaN(curSlow) {
			continue
		}

		crossUp := prevFast <= prevSlow && curFast > curSlow
		crossDown := prevFast >= prevSlow && curFast < curSlow

		switch {
		case crossUp && !inPosition:
			out[i] = ActionEnterLong
			inPosition = true
		case crossDown && inPosition:
			out[i] = ActionExitLong
			inPosition = false
		default:
			out[i] = ActionHold
		}
	}
	return out
}

// sma computes the simple moving average with min_periods == window; bars
// before the window has filled are NaN.
func sma(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i+1 < window {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(window)
		}
	}
	return out
}
