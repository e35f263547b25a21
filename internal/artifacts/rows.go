package artifacts

import "encoding/json"

// toRows converts a slice of JSON-tagged structs into generic row maps for
// WriteExport, which needs a uniform map[string]any shape regardless of the
// artifact kind being exported.
func toRows(v any) ([]map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DecisionsToRows converts decisions to export rows.
func DecisionsToRows(rows []Decision) ([]map[string]any, error) { return toRows(rows) }

// TradesToRows converts trades to export rows.
func TradesToRows(rows []Trade) ([]map[string]any, error) { return toRows(rows) }

// OHLCVToRows converts OHLCV bars to export rows.
func OHLCVToRows(rows []OHLCVBar) ([]map[string]any, error) { return toRows(rows) }
