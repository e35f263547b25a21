package runbuilder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/buffquant/simrun/internal/apierr"
	"github.com/buffquant/simrun/internal/codec"
	"github.com/buffquant/simrun/internal/engine"
	"github.com/buffquant/simrun/internal/fsx"
	"github.com/buffquant/simrun/internal/ids"
	"github.com/buffquant/simrun/internal/marketdata"
	"github.com/buffquant/simrun/internal/registry"
	"github.com/buffquant/simrun/internal/timeutil"
)

// group collapses concurrent identical "create run" calls (same user_id +
// inputs_hash) onto one in-flight execution, in front of the registry lock
// (SPEC_FULL §4.G).
var group singleflight.Group

// Outcome describes the result of BuildRun.
type Outcome struct {
	RunID    string
	Created  bool // true => 201, false => 200 (idempotent replay)
	Manifest Manifest
}

// BuildRun executes the full pipeline of spec.md §4.F: normalize, hash,
// derive/verify run_id, idempotency check, load CSV, simulate, write
// artifacts atomically, and register under lock.
func BuildRun(layout ids.Layout, userID, dataRoot string, req Request) (Outcome, error) {
	norm, csvPath, err := Normalize(req, dataRoot)
	if err != nil {
		return Outcome{}, err
	}

	inputsHash, err := InputsHash(norm)
	if err != nil {
		return Outcome{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = ids.DeriveRunID(inputsHash)
	} else if err := ids.ValidateRunID(runID); err != nil {
		return Outcome{}, err
	}

	key := userID + "/" + runID + "/" + inputsHash
	v, err, _ := group.Do(key, func() (any, error) {
		return buildRunLocked(layout, userID, csvPath, runID, norm, inputsHash)
	})
	if err != nil {
		return Outcome{}, err
	}
	return v.(Outcome), nil
}

func buildRunLocked(layout ids.Layout, userID, csvPath, runID string, norm Normalized, inputsHash string) (Outcome, error) {
	runDir, err := layout.RunDir(userID, runID)
	if err != nil {
		return Outcome{}, err
	}

	if fsx.DirExists(runDir) {
		existing, idempotent, err := checkIdempotent(runDir, inputsHash)
		if err != nil {
			return Outcome{}, err
		}
		if idempotent {
			entry, regErr := buildRegistryEntry(userID, runID, existing, runDir)
			if regErr == nil {
				_ = registry.Upsert(layout, userID, entry)
			}
			return Outcome{RunID: runID, Created: false, Manifest: existing}, nil
		}
		return Outcome{}, apierr.RunExists("a different run already exists at this run_id")
	}

	startTime, err := parseOptionalTS(norm.DataSource.StartTS)
	if err != nil {
		return Outcome{}, err
	}
	endTime, err := parseOptionalTS(norm.DataSource.EndTS)
	if err != nil {
		return Outcome{}, err
	}

	frame, meta, err := marketdata.Load(csvPath, norm.DataSource.Timeframe, startTime, endTime)
	if err != nil {
		return Outcome{}, err
	}

	strategy, err := engine.NewStrategy(norm.Strategy.ID, norm.Strategy.Params)
	if err != nil {
		return Outcome{}, err
	}

	cfg := engine.Config{
		RunID:     runID,
		Symbol:    norm.DataSource.Symbol,
		Timeframe: frame.Timeframe,
		Strategy:  strategy,
		RiskLevel: norm.Risk.Level,
		Costs: engine.Costs{
			CommissionBps: norm.Costs.CommissionBps,
			SlippageBps:   norm.Costs.SlippageBps,
		},
		Seed: norm.Seed,
	}

	result, err := engine.Run(cfg, frame)
	if err != nil {
		return Outcome{}, err
	}

	manifest := buildManifest(runID, userID, norm, inputsHash, meta, frame)

	if err := writeArtifacts(layout, userID, runID, manifest, norm, result, frame); err != nil {
		return Outcome{}, err
	}

	entry, err := buildRegistryEntry(userID, runID, manifest, runDir)
	if err != nil {
		_ = os.RemoveAll(runDir)
		return Outcome{}, err
	}
	if err := registry.Upsert(layout, userID, entry); err != nil {
		_ = os.RemoveAll(runDir)
		return Outcome{}, err
	}

	return Outcome{RunID: runID, Created: true, Manifest: manifest}, nil
}

func parseOptionalTS(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := timeutil.ParseFlexible(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func buildManifest(runID, userID string, norm Normalized, inputsHash string, meta marketdata.Meta, frame marketdata.Frame) Manifest {
	createdAt := ""
	if len(frame.Bars) > 0 {
		createdAt = timeutil.FormatManifestTimestamp(frame.Bars[0].TS)
	}

	artifacts := map[string]string{
		"manifest":         "manifest.json",
		"config":           "config.json",
		"metrics":          "metrics.json",
		"equity_curve":     "equity_curve.json",
		"timeline":         "timeline.json",
		"decision_records": "decision_records.jsonl",
		"trades":           "trades.jsonl",
		"ohlcv":            fmt.Sprintf("ohlcv_%s.jsonl", frame.Timeframe),
	}

	return Manifest{
		SchemaVersion:  "1.0.0",
		RunID:          runID,
		CreatedAt:      createdAt,
		EngineVersion:  EngineVersion,
		BuilderVersion: BuilderVersion,
		Status:         "COMPLETED",
		StatusHistory:  []string{"CREATED", "VALIDATED", "RUNNING", "COMPLETED"},
		Inputs:         norm,
		InputsHash:     inputsHash,
		Data: ManifestData{
			Symbol:             norm.DataSource.Symbol,
			Timeframe:          frame.Timeframe,
			SourcePath:         meta.SourcePath,
			StartTS:            norm.DataSource.StartTS,
			EndTS:              norm.DataSource.EndTS,
			CanonicalTimeframe: "1m",
			DataStartTS:        timeutil.FormatUTCMillis(meta.DataStart),
			DataEndTS:          timeutil.FormatUTCMillis(meta.DataEnd),
		},
		Strategy:      norm.Strategy,
		Risk:          norm.Risk,
		Artifacts:     artifacts,
		Meta:          ManifestMeta{OwnerUserID: userID},
		ExecutionMode: "SIM_ONLY",
		Capabilities:  []string{"SIMULATION", "DATA_READONLY"},
	}
}

func writeArtifacts(layout ids.Layout, userID, runID string, manifest Manifest, norm Normalized, result engine.Result, frame marketdata.Frame) error {
	runsDir, err := layout.RunsDir(userID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return apierr.RunWriteFailed(fmt.Sprintf("cannot create runs directory: %v", err))
	}

	tmpDir := filepath.Join(runsDir, fmt.Sprintf(".tmp_%s_%s", runID, uuid.NewString()[:8]))
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return apierr.RunWriteFailed(fmt.Sprintf("cannot create temp run directory: %v", err))
	}
	cleanupTmp := func() { _ = os.RemoveAll(tmpDir) }

	if err := codec.WriteJSONAtomic(filepath.Join(tmpDir, "manifest.json"), manifest); err != nil {
		cleanupTmp()
		return err
	}

	configDoc := EngineConfigDoc{
		Symbol:        norm.DataSource.Symbol,
		Timeframe:     frame.Timeframe,
		Strategy:      norm.Strategy,
		RiskLevel:     norm.Risk.Level,
		CommissionBps: norm.Costs.CommissionBps,
		SlippageBps:   norm.Costs.SlippageBps,
		Seed:          norm.Seed,
	}
	if err := codec.WriteJSONAtomic(filepath.Join(tmpDir, "config.json"), configDoc); err != nil {
		cleanupTmp()
		return err
	}

	if err := codec.WriteJSONAtomic(filepath.Join(tmpDir, "metrics.json"), metricsDoc(result.Metrics)); err != nil {
		cleanupTmp()
		return err
	}

	if err := codec.WriteJSONAtomic(filepath.Join(tmpDir, "equity_curve.json"), equityCurveDoc(result.Equity)); err != nil {
		cleanupTmp()
		return err
	}

	timeline := buildTimeline(manifest)
	if err := codec.WriteJSONAtomic(filepath.Join(tmpDir, "timeline.json"), timeline); err != nil {
		cleanupTmp()
		return err
	}

	if err := codec.WriteJSONLAtomic(filepath.Join(tmpDir, "decision_records.jsonl"), decisionWireRows(result.Decisions)); err != nil {
		cleanupTmp()
		return err
	}

	if err := codec.WriteJSONLAtomic(filepath.Join(tmpDir, "trades.jsonl"), tradeWireRows(result.Trades)); err != nil {
		cleanupTmp()
		return err
	}

	ohlcvRows := make([]any, len(frame.Bars))
	for i, b := range frame.Bars {
		ohlcvRows[i] = ohlcvWire{
			TS:     timeutil.FormatUTCMillis(b.TS),
			Open:   mustQuantize(b.Open),
			High:   mustQuantize(b.High),
			Low:    mustQuantize(b.Low),
			Close:  mustQuantize(b.Close),
			Volume: mustQuantize(b.Volume),
		}
	}
	ohlcvName := fmt.Sprintf("ohlcv_%s.jsonl", frame.Timeframe)
	if err := codec.WriteJSONLAtomic(filepath.Join(tmpDir, ohlcvName), ohlcvRows); err != nil {
		cleanupTmp()
		return err
	}

	runDir, err := layout.RunDir(userID, runID)
	if err != nil {
		cleanupTmp()
		return err
	}
	if err := os.Rename(tmpDir, runDir); err != nil {
		cleanupTmp()
		return apierr.RunWriteFailed(fmt.Sprintf("cannot finalize run directory: %v", err))
	}
	return nil
}

func mustQuantize(f float64) float64 {
	q, err := codec.Quantize(f)
	if err != nil {
		return 0
	}
	return q
}

func buildTimeline(manifest Manifest) []TimelineEvent {
	return []TimelineEvent{
		{Seq: 0, TSUTC: manifest.CreatedAt, Stage: StageRunCreated},
		{Seq: 1, TSUTC: manifest.CreatedAt, Stage: StageDataLoaded},
		{Seq: 2, TSUTC: manifest.CreatedAt, Stage: StageSimulationStarted},
		{Seq: 3, TSUTC: manifest.CreatedAt, Stage: StageSimulationCompleted},
		{Seq: 4, TSUTC: manifest.CreatedAt, Stage: StageArtifactsWritten},
		{Seq: 5, TSUTC: manifest.CreatedAt, Stage: StageRegistered},
	}
}

func checkIdempotent(runDir, inputsHash string) (Manifest, bool, error) {
	b, err := os.ReadFile(filepath.Join(runDir, "manifest.json"))
	if err != nil {
		return Manifest{}, false, nil
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, false, nil
	}
	if m.InputsHash == inputsHash {
		return m, true, nil
	}
	return Manifest{}, false, nil
}

func buildRegistryEntry(userID, runID string, manifest Manifest, runDir string) (registry.Entry, error) {
	files, err := fsx.ListFiles(runDir)
	if err != nil {
		return registry.Entry{}, apierr.RunWriteFailed(fmt.Sprintf("cannot list run directory: %v", err))
	}
	present := map[string]bool{}
	for _, f := range files {
		present[f] = true
	}
	var missing []string
	for _, req := range registry.RequiredArtifacts {
		if !present[req] {
			missing = append(missing, req)
		}
	}
	status := manifest.Status
	if len(missing) > 0 {
		status = "CORRUPTED"
	}
	return registry.Entry{
		RunID:            runID,
		CreatedAt:        manifest.CreatedAt,
		Symbol:           manifest.Data.Symbol,
		Timeframe:        manifest.Data.Timeframe,
		Status:           status,
		ManifestPath:     filepath.Join(runDir, "manifest.json"),
		ArtifactsPresent: files,
		InputsHash:       manifest.InputsHash,
		StrategyID:       manifest.Strategy.ID,
		MissingArtifacts: missing,
	}, nil
}
