package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/buffquant/simrun/internal/apierr"
	"github.com/buffquant/simrun/internal/codec"
	"github.com/buffquant/simrun/internal/timeutil"
)

// OHLCVBar is the decoded shape of one ohlcv_<tf>.jsonl row.
type OHLCVBar struct {
	TS     string  `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// LoadOHLCV reads a run's ohlcv_<timeframe>.jsonl, preferring JSONL over the
// legacy Parquet format, applying a time window and row limit.
func LoadOHLCV(runDir, timeframe string, filter WindowFilter) ([]OHLCVBar, error) {
	name := fmt.Sprintf("ohlcv_%s.jsonl", timeframe)
	jsonlPath := filepath.Join(runDir, name)
	if _, err := os.Stat(jsonlPath); err != nil {
		if _, perr := os.Stat(filepath.Join(runDir, fmt.Sprintf("ohlcv_%s.parquet", timeframe))); perr == nil {
			return nil, apierr.ArtifactNotFound("ohlcv parquet is a legacy format; Parquet reading is not implemented")
		}
		return nil, apierr.OHLCVMissing(name + " is missing")
	}

	var out []OHLCVBar
	limit := filter.Limit
	_, err := codec.ScanJSONL(jsonlPath, func(lineNo int, line []byte) error {
		if limit > 0 && len(out) >= limit {
			return nil
		}
		var b OHLCVBar
		if jerr := json.Unmarshal(line, &b); jerr != nil {
			return nil
		}
		if filter.StartTime != nil || filter.EndTime != nil {
			ts, terr := timeutil.ParseFlexible(b.TS)
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
		out = append(out, b)
		return nil
	})
	if err != nil {
		return nil, apierr.OHLCVInvalid(name + " could not be read")
	}
	return out, nil
}
