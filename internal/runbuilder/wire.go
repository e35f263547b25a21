package runbuilder

import "github.com/buffquant/simrun/internal/engine"

// decisionWire is the JSONL wire shape of one decision record (spec.md §3).
type decisionWire struct {
	SchemaVersion string  `json:"schema_version"`
	RunID         string  `json:"run_id"`
	Seq           int     `json:"seq"`
	TSUTC         string  `json:"ts_utc"`
	Action        string  `json:"action"`
	Price         float64 `json:"price"`
	Symbol        string  `json:"symbol"`
	Timeframe     string  `json:"timeframe"`
	StrategyID    string  `json:"strategy_id"`
	RiskLevel     int     `json:"risk_level"`
	ReasonCode    *string `json:"reason_code"`
}

func decisionWireRows(decisions []engine.DecisionRecord) []any {
	rows := make([]any, len(decisions))
	for i, d := range decisions {
		rows[i] = decisionWire{
			SchemaVersion: d.SchemaVersion,
			RunID:         d.RunID,
			Seq:           d.Seq,
			TSUTC:         d.TSUTC,
			Action:        string(d.Action),
			Price:         d.Price,
			Symbol:        d.Symbol,
			Timeframe:     d.Timeframe,
			StrategyID:    d.StrategyID,
			RiskLevel:     d.RiskLevel,
			ReasonCode:    nil,
		}
	}
	return rows
}

// tradeWire is the JSONL wire shape of one trade record.
type tradeWire struct {
	EntryTime  string  `json:"entry_time"`
	EntryPrice float64 `json:"entry_price"`
	ExitTime   string  `json:"exit_time"`
	ExitPrice  float64 `json:"exit_price"`
	Qty        float64 `json:"qty"`
	PnL        float64 `json:"pnl"`
	Fees       float64 `json:"fees"`
	Side       string  `json:"side"`
}

func tradeWireRows(trades []engine.Trade) []any {
	rows := make([]any, len(trades))
	for i, t := range trades {
		rows[i] = tradeWire{
			EntryTime:  t.EntryTime,
			EntryPrice: t.EntryPrice,
			ExitTime:   t.ExitTime,
			ExitPrice:  t.ExitPrice,
			Qty:        t.Qty,
			PnL:        t.PnL,
			Fees:       t.Fees,
			Side:       t.Side,
		}
	}
	return rows
}

// equityWire is the wire shape of one equity curve point.
type equityWire struct {
	T      string  `json:"t"`
	Equity float64 `json:"equity"`
}

func equityCurveDoc(points []engine.EquityPoint) []equityWire {
	out := make([]equityWire, len(points))
	for i, p := range points {
		out[i] = equityWire{T: p.T, Equity: p.Equity}
	}
	return out
}

// ohlcvWire is the JSONL wire shape of one resampled/loaded OHLCV bar.
type ohlcvWire struct {
	TS     string  `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}
