// Package runbuilder implements spec.md §4.F: request normalization,
// inputs_hash computation, idempotency, and the atomic write-then-register
// pipeline that turns a run request into on-disk artifacts.
package runbuilder

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/buffquant/simrun/internal/apierr"
	"github.com/buffquant/simrun/internal/engine"
	"github.com/buffquant/simrun/internal/timeutil"
)

// DataSource describes the CSV input for a run.
type DataSource struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	StartTS   *string `json:"start_ts,omitempty"`
	EndTS     *string `json:"end_ts,omitempty"`
}

// StrategyRequest is the raw strategy block of a run request.
type StrategyRequest struct {
	ID     string         `json:"id"`
	Params map[string]any `json:"params,omitempty"`
}

// RiskRequest is the raw risk block.
type RiskRequest struct {
	Level int `json:"level"`
}

// CostsRequest is the raw costs block.
type CostsRequest struct {
	CommissionBps float64 `json:"commission_bps"`
	SlippageBps   float64 `json:"slippage_bps"`
}

// Request is the raw, caller-supplied run request (JSON body or multipart
// form fields), prior to normalization.
type Request struct {
	SchemaVersion string          `json:"schema_version"`
	RunID         string          `json:"run_id,omitempty"`
	DataSource    DataSource      `json:"data_source"`
	Strategy      StrategyRequest `json:"strategy"`
	Risk          RiskRequest     `json:"risk"`
	Costs         CostsRequest    `json:"costs"`
	Seed          int64           `json:"seed"`
}

// Normalized is the validated, canonicalized form of a run request, used
// both for inputs_hash computation and as the manifest's "inputs" field.
type Normalized struct {
	SchemaVersion string          `json:"schema_version"`
	DataSource    DataSource      `json:"data_source"`
	Strategy      StrategyRequest `json:"strategy"`
	Risk          RiskRequest     `json:"risk"`
	Costs         CostsRequest    `json:"costs"`
	Seed          int64           `json:"seed"`
}

// Normalize validates req per spec.md §3 and strips volatile fields,
// producing the canonical payload whose hash becomes inputs_hash.
func Normalize(req Request, dataRoot string) (Normalized, string, error) {
	if req.SchemaVersion == "" {
		req.SchemaVersion = "1.0.0"
	}
	if req.SchemaVersion != "1.0.0" {
		return Normalized{}, "", apierr.RunConfigInvalid("unsupported schema_version")
	}

	if req.DataSource.Type != "csv" {
		return Normalized{}, "", apierr.RunConfigInvalid("data_source.type must be csv")
	}
	resolvedPath, err := containDataPath(dataRoot, req.DataSource.Path)
	if err != nil {
		return Normalized{}, "", err
	}
	if req.DataSource.Symbol == "" {
		return Normalized{}, "", apierr.RunConfigInvalid("data_source.symbol is required")
	}
	if req.DataSource.Timeframe != "1m" && req.DataSource.Timeframe != "5m" {
		return Normalized{}, "", apierr.RunConfigInvalid("data_source.timeframe must be one of 1m, 5m")
	}

	var startTS, endTS *string
	if req.DataSource.StartTS != nil {
		t, err := timeutil.ParseFlexible(*req.DataSource.StartTS)
		if err != nil {
			return Normalized{}, "", err
		}
		formatted := timeutil.FormatUTCMillis(t)
		startTS = &formatted
	}
	if req.DataSource.EndTS != nil {
		t, err := timeutil.ParseFlexible(*req.DataSource.EndTS)
		if err != nil {
			return Normalized{}, "", err
		}
		formatted := timeutil.FormatUTCMillis(t)
		endTS = &formatted
	}
	if startTS != nil && endTS != nil && *startTS >= *endTS {
		return Normalized{}, "", apierr.InvalidTimeRange("start_ts must be strictly less than end_ts")
	}

	if _, err := engine.NewStrategy(req.Strategy.ID, req.Strategy.Params); err != nil {
		return Normalized{}, "", err
	}

	if req.Risk.Level < 1 || req.Risk.Level > 5 {
		return Normalized{}, "", apierr.RiskInvalid("risk.level must be in [1,5]")
	}
	if req.Costs.CommissionBps < 0 || req.Costs.SlippageBps < 0 {
		return Normalized{}, "", apierr.RunConfigInvalid("costs.commission_bps and slippage_bps must be >= 0")
	}

	norm := Normalized{
		SchemaVersion: "1.0.0",
		DataSource: DataSource{
			Type:      "csv",
			Path:      req.DataSource.Path,
			Symbol:    req.DataSource.Symbol,
			Timeframe: req.DataSource.Timeframe,
		},
		Strategy: req.Strategy,
		Risk:     req.Risk,
		Costs:    req.Costs,
		Seed:     req.Seed,
	}
	norm.DataSource.StartTS = startTS
	norm.DataSource.EndTS = endTS

	return norm, resolvedPath, nil
}

// containDataPath resolves a repo-relative CSV path against dataRoot and
// verifies containment, rejecting absolute paths and any traversal segment
// (spec.md §4.D, testable property "Containment").
func containDataPath(dataRoot, rel string) (string, error) {
	if rel == "" {
		return "", apierr.RunConfigInvalid("data_source.path is required")
	}
	if filepath.IsAbs(rel) {
		return "", apierr.RunConfigInvalid("data_source.path must be repo-relative")
	}
	if strings.Contains(rel, "..") {
		return "", apierr.RunConfigInvalid("data_source.path must not contain traversal segments")
	}

	root := filepath.Clean(dataRoot)
	joined := filepath.Clean(filepath.Join(root, rel))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", apierr.RunConfigInvalid("data_source.path escapes the data root")
	}
	return joined, nil
}

func (n Normalized) String() string {
	return fmt.Sprintf("Normalized{strategy=%s symbol=%s tf=%s}", n.Strategy.ID, n.DataSource.Symbol, n.DataSource.Timeframe)
}
