// Package apierr is the tagged domain error type threaded through the run
// builder, registry, experiment orchestrator, and HTTP layer. Every code in
// the spec's error taxonomy has exactly one named constructor here; nothing
// downstream should hand-build an Error literal.
package apierr

import "fmt"

// Error is a domain-layer error carrying the status code, machine-readable
// code, human message, and optional structured details. It never carries a
// stack trace and is safe to serialize directly into the error envelope.
type Error struct {
	Code    string
	Status  int
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetail returns a copy of e with an additional detail key set.
func (e *Error) WithDetail(key string, value any) *Error {
	out := *e
	out.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

func new(code string, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

// --- 400 ---

func RunConfigInvalid(msg string) *Error            { return new("RUN_CONFIG_INVALID", 400, msg) }
func RunIDInvalid(msg string) *Error                { return new("RUN_ID_INVALID", 400, msg) }
func StrategyInvalid(msg string) *Error             { return new("STRATEGY_INVALID", 400, msg) }
func RiskInvalid(msg string) *Error                 { return new("RISK_INVALID", 400, msg) }
func DataInvalid(msg string) *Error                 { return new("DATA_INVALID", 400, msg) }
func DataSourceNotFound(msg string) *Error          { return new("DATA_SOURCE_NOT_FOUND", 400, msg) }
func UserMissing(msg string) *Error                 { return new("USER_MISSING", 400, msg) }
func UserInvalid(msg string) *Error                 { return new("USER_INVALID", 400, msg) }
func ExperimentConfigInvalid(msg string) *Error     { return new("EXPERIMENT_CONFIG_INVALID", 400, msg) }
func ExperimentCandidatesLimitExceeded(msg string) *Error {
	return new("EXPERIMENT_CANDIDATES_LIMIT_EXCEEDED", 400, msg)
}
func InvalidTimestamp(msg string) *Error     { return new("invalid_timestamp", 400, msg) }
func InvalidTimeRange(msg string) *Error     { return new("invalid_time_range", 400, msg) }
func TooManyFilterValues(msg string) *Error  { return new("too_many_filter_values", 400, msg) }
func InvalidExportFormat(msg string) *Error  { return new("invalid_export_format", 400, msg) }

// --- 401 ---

func AuthMissing(msg string) *Error      { return new("AUTH_MISSING", 401, msg) }
func AuthInvalid(msg string) *Error      { return new("AUTH_INVALID", 401, msg) }
func TimestampMissing(msg string) *Error { return new("TIMESTAMP_MISSING", 401, msg) }
func TimestampInvalid(msg string) *Error { return new("TIMESTAMP_INVALID", 401, msg) }

// --- 404 ---

func RunNotFound(msg string) *Error            { return new("RUN_NOT_FOUND", 404, msg) }
func ArtifactNotFound(msg string) *Error       { return new("ARTIFACT_NOT_FOUND", 404, msg) }
func DecisionRecordsMissing(msg string) *Error { return new("decision_records_missing", 404, msg) }
func MetricsMissingNF(msg string) *Error       { return new("metrics_missing", 404, msg) }
func TradesMissing(msg string) *Error          { return new("trades_missing", 404, msg) }
func TimelineMissing(msg string) *Error        { return new("timeline_missing", 404, msg) }
func OHLCVMissing(msg string) *Error           { return new("ohlcv_missing", 404, msg) }
func ArtifactsRootMissing(msg string) *Error   { return new("artifacts_root_missing", 404, msg) }

// --- 409 ---

func RunExists(msg string) *Error        { return new("RUN_EXISTS", 409, msg) }
func RunCorrupted(msg string) *Error     { return new("RUN_CORRUPTED", 409, msg) }
func ExperimentExists(msg string) *Error { return new("EXPERIMENT_EXISTS", 409, msg) }

// --- 422 ---

func DecisionRecordsInvalid(msg string) *Error { return new("decision_records_invalid", 422, msg) }
func MetricsInvalid(msg string) *Error         { return new("metrics_invalid", 422, msg) }
func TradesInvalid(msg string) *Error          { return new("trades_invalid", 422, msg) }
func OHLCVInvalid(msg string) *Error           { return new("ohlcv_invalid", 422, msg) }
func TimelineInvalid(msg string) *Error        { return new("timeline_invalid", 422, msg) }
func ValidationError(msg string) *Error        { return new("validation_error", 422, msg) }

// --- 500 ---

func RegistryWriteFailed(msg string) *Error { return new("REGISTRY_WRITE_FAILED", 500, msg) }
func RunWriteFailed(msg string) *Error      { return new("RUN_WRITE_FAILED", 500, msg) }
func MetricsMissingInternal(msg string) *Error { return new("METRICS_MISSING", 500, msg) }
func MetricsInvalidInternal(msg string) *Error { return new("METRICS_INVALID", 500, msg) }
func Internal(msg string) *Error            { return new("INTERNAL", 500, msg) }

// --- 503 ---

func RunsRootUnset(msg string) *Error        { return new("RUNS_ROOT_UNSET", 503, msg) }
func RunsRootMissing(msg string) *Error      { return new("RUNS_ROOT_MISSING", 503, msg) }
func RunsRootInvalid(msg string) *Error      { return new("RUNS_ROOT_INVALID", 503, msg) }
func RunsRootNotWritable(msg string) *Error  { return new("RUNS_ROOT_NOT_WRITABLE", 503, msg) }
func KillSwitchEnabled(msg string) *Error    { return new("KILL_SWITCH_ENABLED", 503, msg) }
func RegistryLockTimeout(msg string) *Error  { return new("REGISTRY_LOCK_TIMEOUT", 503, msg) }
func ExperimentLockTimeout(msg string) *Error { return new("EXPERIMENT_LOCK_TIMEOUT", 503, msg) }

// TooManyInFlight is a backpressure-only code, not part of the spec's
// taxonomy table: it never reflects a correctness failure, only the HTTP
// surface's bounded concurrency limit being momentarily exceeded.
func TooManyInFlight(msg string) *Error { return new("TOO_MANY_INFLIGHT", 503, msg) }

// StageToken is echoed in every error envelope and observability provenance block.
const StageToken = "S5_EXECUTION_SAFETY_BOUNDARIES"

// RecoveryHint returns the short human-actionable hint for a given code. The
// hint table is part of the external contract (spec.md §7).
func RecoveryHint(code string) string {
	if h, ok := recoveryHints[code]; ok {
		return h
	}
	return "Check the request and server logs, then retry."
}

var recoveryHints = map[string]string{
	"RUN_CONFIG_INVALID":                   "Fix the fields named in details and resubmit the run request.",
	"RUN_ID_INVALID":                       "Use a run_id matching ^[a-z0-9][a-z0-9_-]{2,63}$ or omit it to auto-derive one.",
	"STRATEGY_INVALID":                     "Use one of the supported strategy ids: hold, ma_cross, demo_threshold.",
	"RISK_INVALID":                         "Set risk.level to an integer between 1 and 5.",
	"DATA_INVALID":                         "Check the CSV for missing columns, unparseable timestamps, gaps, or duplicates.",
	"DATA_SOURCE_NOT_FOUND":                "Verify data_source.path is repo-relative and exists.",
	"USER_MISSING":                         "Send the X-Buff-User header or configure BUFF_DEFAULT_USER.",
	"USER_INVALID":                         "user_id must be 1-64 chars matching [A-Za-z0-9._-] with no '.', '..', or separators.",
	"EXPERIMENT_CONFIG_INVALID":            "Fix the experiment request shape: schema_version and a non-empty candidates list.",
	"EXPERIMENT_CANDIDATES_LIMIT_EXCEEDED": "Reduce the number of candidates below MAX_EXPERIMENT_CANDIDATES.",
	"invalid_timestamp":                    "Pass an ISO-8601 string, RFC-3339 string, or millisecond integer/string.",
	"invalid_time_range":                   "Ensure start_ts is strictly less than end_ts.",
	"too_many_filter_values":               "Reduce the number of values supplied for this filter.",
	"invalid_export_format":                "Use one of: json, ndjson, csv.",
	"AUTH_MISSING":                         "Send X-Buff-Auth and X-Buff-Timestamp headers.",
	"AUTH_INVALID":                         "Recompute the HMAC signature over the canonical string and resend.",
	"TIMESTAMP_MISSING":                    "Send the X-Buff-Timestamp header (unix seconds).",
	"TIMESTAMP_INVALID":                    "Resend with a timestamp within 300s of server time.",
	"RUN_NOT_FOUND":                        "Verify the run_id and that you are the owning user.",
	"ARTIFACT_NOT_FOUND":                   "Check the artifact name against the run's manifest.artifacts list.",
	"decision_records_missing":             "The run has no decision_records.jsonl; it may be corrupted.",
	"metrics_missing":                      "The run has no metrics.json; it may be corrupted.",
	"trades_missing":                       "The run has no trades.jsonl; it may be corrupted.",
	"timeline_missing":                     "The run has no timeline.json; it may be corrupted.",
	"ohlcv_missing":                        "The run has no ohlcv artifact; it may be corrupted.",
	"artifacts_root_missing":               "RUNS_ROOT does not exist on disk; check server configuration.",
	"RUN_EXISTS":                           "A run with this run_id already exists with different inputs; choose a different run_id.",
	"RUN_CORRUPTED":                        "One or more required artifacts are missing; the run cannot be served.",
	"EXPERIMENT_EXISTS":                    "An experiment with this id already exists with a different digest.",
	"decision_records_invalid":             "decision_records.jsonl contains malformed lines; see details.malformed_lines_count.",
	"metrics_invalid":                      "metrics.json failed to parse; the run may be corrupted.",
	"trades_invalid":                       "trades.jsonl failed to parse; the run may be corrupted.",
	"ohlcv_invalid":                        "The ohlcv artifact failed to parse; the run may be corrupted.",
	"timeline_invalid":                     "timeline.json failed to parse; the run may be corrupted.",
	"validation_error":                     "Fix the request body to match the expected schema.",
	"REGISTRY_WRITE_FAILED":                "Retry; if this persists, check RUNS_ROOT disk space and permissions.",
	"RUN_WRITE_FAILED":                     "Retry; if this persists, check RUNS_ROOT disk space and permissions.",
	"METRICS_MISSING":                      "Internal: metrics were not produced by the engine; file a bug.",
	"METRICS_INVALID":                      "Internal: metrics failed self-validation; file a bug.",
	"INTERNAL":                             "Retry later; if this persists, contact the operator with the correlation id.",
	"RUNS_ROOT_UNSET":                      "Set RUNS_ROOT to a writable local path and restart the API.",
	"RUNS_ROOT_MISSING":                    "Create the directory named by RUNS_ROOT and restart the API.",
	"RUNS_ROOT_INVALID":                    "Set RUNS_ROOT to an absolute path.",
	"RUNS_ROOT_NOT_WRITABLE":               "Fix permissions on RUNS_ROOT so the server process can write to it.",
	"KILL_SWITCH_ENABLED":                  "Unset the KILL_SWITCH_* environment variable to resume accepting new runs.",
	"REGISTRY_LOCK_TIMEOUT":                "Retry shortly; another writer is holding the per-user registry lock.",
	"EXPERIMENT_LOCK_TIMEOUT":              "Retry shortly; another writer is creating this experiment.",
}
