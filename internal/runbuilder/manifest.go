package runbuilder

import "github.com/buffquant/simrun/internal/engine"

const (
	EngineVersion  = "1.0.0"
	BuilderVersion = "1.0.0"
)

// ManifestData is the manifest's "data" sub-object (spec.md §3).
type ManifestData struct {
	Symbol             string  `json:"symbol"`
	Timeframe          string  `json:"timeframe"`
	SourcePath         string  `json:"source_path"`
	StartTS            *string `json:"start_ts,omitempty"`
	EndTS              *string `json:"end_ts,omitempty"`
	CanonicalTimeframe string  `json:"canonical_timeframe"`
	DataStartTS        string  `json:"data_start_ts"`
	DataEndTS          string  `json:"data_end_ts"`
}

// ManifestMeta carries run provenance not part of the invariant envelope.
type ManifestMeta struct {
	OwnerUserID string `json:"owner_user_id"`
}

// Manifest is the invariant envelope of one run (spec.md §3).
type Manifest struct {
	SchemaVersion  string          `json:"schema_version"`
	RunID          string          `json:"run_id"`
	CreatedAt      string          `json:"created_at"`
	EngineVersion  string          `json:"engine_version"`
	BuilderVersion string          `json:"builder_version"`
	Status         string          `json:"status"`
	StatusHistory  []string        `json:"status_history"`
	Inputs         Normalized      `json:"inputs"`
	InputsHash     string          `json:"inputs_hash"`
	Data           ManifestData    `json:"data"`
	Strategy       StrategyRequest `json:"strategy"`
	Risk           RiskRequest     `json:"risk"`
	Artifacts      map[string]string `json:"artifacts"`
	Meta           ManifestMeta    `json:"meta"`
	ExecutionMode  string          `json:"execution_mode"`
	Capabilities   []string        `json:"capabilities"`
}

// EngineConfigDoc is the config.json artifact: the fully-normalized engine
// configuration, written verbatim alongside manifest.json (SPEC_FULL §3).
type EngineConfigDoc struct {
	Symbol        string          `json:"symbol"`
	Timeframe     string          `json:"timeframe"`
	Strategy      StrategyRequest `json:"strategy"`
	RiskLevel     int             `json:"risk_level"`
	CommissionBps float64         `json:"commission_bps"`
	SlippageBps   float64         `json:"slippage_bps"`
	Seed          int64           `json:"seed"`
}

// MetricsDoc is the metrics.json artifact.
type MetricsDoc struct {
	TotalReturn   float64 `json:"total_return"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	NumTrades     int     `json:"num_trades"`
	WinRate       float64 `json:"win_rate"`
	InitialEquity float64 `json:"initial_equity"`
	FinalEquity   float64 `json:"final_equity"`
	NumRecords    int     `json:"num_records"`
	Symbol        string  `json:"symbol"`
	Timeframe     string  `json:"timeframe"`
	StrategyID    string  `json:"strategy_id"`
	RiskLevel     int     `json:"risk_level"`
	CommissionBps float64 `json:"commission_bps"`
	SlippageBps   float64 `json:"slippage_bps"`
}

func metricsDoc(m engine.Metrics) MetricsDoc {
	return MetricsDoc{
		TotalReturn:   m.TotalReturn,
		MaxDrawdown:   m.MaxDrawdown,
		NumTrades:     m.NumTrades,
		WinRate:       m.WinRate,
		InitialEquity: m.InitialEquity,
		FinalEquity:   m.FinalEquity,
		NumRecords:    m.NumRecords,
		Symbol:        m.Symbol,
		Timeframe:     m.Timeframe,
		StrategyID:    m.StrategyID,
		RiskLevel:     m.RiskLevel,
		CommissionBps: m.Costs.CommissionBps,
		SlippageBps:   m.Costs.SlippageBps,
	}
}

// TimelineEvent is one lifecycle event written to timeline.json
// (SPEC_FULL §3 supplement, grounded on original_source's audit trail).
type TimelineEvent struct {
	Seq    int    `json:"seq"`
	TSUTC  string `json:"ts_utc"`
	Stage  string `json:"stage"`
	Detail string `json:"detail,omitempty"`
}

const (
	StageRunCreated          = "RUN_CREATED"
	StageDataLoaded          = "DATA_LOADED"
	StageSimulationStarted   = "SIMULATION_STARTED"
	StageSimulationCompleted = "SIMULATION_COMPLETED"
	StageArtifactsWritten    = "ARTIFACTS_WRITTEN"
	StageRegistered          = "REGISTERED"
)
