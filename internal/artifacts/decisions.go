// Package artifacts implements spec.md §4.K: filtered, paginated readers
// over a run's decision/trade/ohlcv/metrics/timeline files, plus streaming
// exports with spreadsheet-injection hardening.
package artifacts

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"time"

	"github.com/buffquant/simrun/internal/apierr"
	"github.com/buffquant/simrun/internal/codec"
	"github.com/buffquant/simrun/internal/timeutil"
)

// Decision is the decoded shape of one decision_records.jsonl row.
type Decision struct {
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

// DecisionFilter selects a subset of a run's decisions. StartTime/EndTime
// are already parsed and range-validated by the HTTP layer (spec.md §4.K,
// §7's invalid_timestamp/invalid_time_range codes).
type DecisionFilter struct {
	Symbol     string
	Action     string
	ReasonCode string
	StartTime  *time.Time
	EndTime    *time.Time
	Page       int
	PageSize   int
}

// DecisionPage is one page of filtered decisions plus pagination metadata.
type DecisionPage struct {
	Rows             []Decision `json:"rows"`
	Page             int        `json:"page"`
	PageSize         int        `json:"page_size"`
	Total            int        `json:"total"`
	MalformedLines   int        `json:"malformed_lines_count"`
}

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

// MaxPageSize is the page size used by export endpoints, which stream every
// matching row regardless of the caller's page/page_size query parameters.
func MaxPageSize() int { return maxPageSize }

// LoadDecisions streams decision_records.jsonl, applying filter and
// pagination, normalizing malformed/blank line counting per spec.md §4.K
// and §7's fail-closed principle (ii).
func LoadDecisions(runDir string, filter DecisionFilter) (DecisionPage, error) {
	path := filepath.Join(runDir, "decision_records.jsonl")

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

	var matched []Decision
	malformed := 0

	seenAny := false
	_, err := codec.ScanJSONL(path, func(lineNo int, line []byte) error {
		seenAny = true
		var d Decision
		if err := json.Unmarshal(line, &d); err != nil {
			malformed++
			return nil
		}
		if !matchesFilter(d, filter) {
			return nil
		}
		matched = append(matched, d)
		return nil
	})
	if err != nil {
		return DecisionPage{}, apierr.DecisionRecordsMissing("decision_records.jsonl is missing")
	}

	if seenAny && malformed > 0 {
		return DecisionPage{}, apierr.DecisionRecordsInvalid("decision_records.jsonl contains malformed lines").
			WithDetail("malformed_lines_count", malformed)
	}

	total := len(matched)
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return DecisionPage{
		Rows:           matched[start:end],
		Page:           page,
		PageSize:       pageSize,
		Total:          total,
		MalformedLines: malformed,
	}, nil
}

func matchesFilter(d Decision, f DecisionFilter) bool {
	if f.Symbol != "" && d.Symbol != f.Symbol {
		return false
	}
	if f.Action != "" && d.Action != f.Action {
		return false
	}
	if f.ReasonCode != "" {
		// reason_code is always null from the built-in strategies
		// (spec.md §9 Open Questions); a non-empty filter value can never
		// match, by design, but the filter is retained for forward-compat.
		return false
	}
	if f.StartTime != nil || f.EndTime != nil {
		ts, err := timeutil.ParseFlexible(d.TSUTC)
		if err != nil {
			return false
		}
		if f.StartTime != nil && ts.Before(*f.StartTime) {
			return false
		}
		if f.EndTime != nil && !ts.Before(*f.EndTime) {
			return false
		}
	}
	return true
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
