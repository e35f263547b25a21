package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/buffquant/simrun/internal/apierr"
	"github.com/buffquant/simrun/internal/codec"
	"github.com/buffquant/simrun/internal/timeutil"
)

// Trade is the decoded shape of one trades.jsonl row.
type Trade struct {
	EntryTime  string  `json:"entry_time"`
	EntryPrice float64 `json:"entry_price"`
	ExitTime   string  `json:"exit_time"`
	ExitPrice  float64 `json:"exit_price"`
	Qty        float64 `json:"qty"`
	PnL        float64 `json:"pnl"`
	Fees       float64 `json:"fees"`
	Side       string  `json:"side"`
}

// WindowFilter bounds a time-ordered artifact read. StartTime/EndTime are
// already parsed and range-validated by the HTTP layer (spec.md §4.K,
// §7's invalid_timestamp/invalid_time_range codes).
type WindowFilter struct {
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
	Limit     int
}

// TradePage is one page of filtered trades.
type TradePage struct {
	Rows              []Trade `json:"rows"`
	Page              int     `json:"page"`
	PageSize          int     `json:"page_size"`
	Total             int     `json:"total"`
	TimestampField    string  `json:"timestamp_field"`
}

// LoadTrades prefers trades.jsonl; trades.parquet is a legacy input format
// that this resolver does not read (SPEC_FULL §4.K — no pack example
// imports a Parquet library).
func LoadTrades(runDir string, filter WindowFilter) (TradePage, error) {
	jsonlPath := filepath.Join(runDir, "trades.jsonl")
	if _, err := os.Stat(jsonlPath); err != nil {
		if _, perr := os.Stat(filepath.Join(runDir, "trades.parquet")); perr == nil {
			return TradePage{}, apierr.ArtifactNotFound("trades.parquet is a legacy format; Parquet reading is not implemented")
		}
		return TradePage{}, apierr.TradesMissing("trades.jsonl is missing")
	}

	var all []Trade
	_, err := codec.ScanJSONL(jsonlPath, func(lineNo int, line []byte) error {
		var t Trade
		if jerr := json.Unmarshal(line, &t); jerr != nil {
			return nil
		}
		if filter.StartTime != nil || filter.EndTime != nil {
			ts, terr := timeutil.ParseFlexible(t.EntryTime)
			if terr != nil {
				return nil
			}
			if filter.StartTime != nil && ts.Before(*filter.StartTime) {
				return nil
			}
			if filter.EndTime != nil && !ts.Before(*filter.EndTime) {
				return nil
			}
		}
		all = append(all, t)
		return nil
	})
	if err != nil {
		return TradePage{}, apierr.TradesInvalid("trades.jsonl could not be read")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total := len(all)
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return TradePage{
		Rows:           all[start:end],
		Page:           page,
		PageSize:       pageSize,
		Total:          total,
		TimestampField: "entry_time",
	}, nil
}

// TradeMarker is the lightweight shape exposed by /trades/markers.
type TradeMarker struct {
	EntryTime string `json:"entry_time"`
	ExitTime  string `json:"exit_time"`
	Side      string `json:"side"`
}

// LoadTradeMarkers reduces every trade to its chart-marker fields.
func LoadTradeMarkers(runDir string) ([]TradeMarker, error) {
	page, err := LoadTrades(runDir, WindowFilter{PageSize: maxPageSize})
	if err != nil {
		return nil, err
	}
	out := make([]TradeMarker, len(page.Rows))
	for i, t := range page.Rows {
		out[i] = TradeMarker{EntryTime: t.EntryTime, ExitTime: t.ExitTime, Side: t.Side}
	}
	return out, nil
}
