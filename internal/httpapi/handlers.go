package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/buffquant/simrun/internal/apierr"
	"github.com/buffquant/simrun/internal/artifacts"
	"github.com/buffquant/simrun/internal/config"
	"github.com/buffquant/simrun/internal/experiment"
	"github.com/buffquant/simrun/internal/ids"
	"github.com/buffquant/simrun/internal/observability"
	"github.com/buffquant/simrun/internal/registry"
	"github.com/buffquant/simrun/internal/runbuilder"
	"github.com/buffquant/simrun/internal/timeutil"
	"github.com/buffquant/simrun/internal/usercontext"
)

// Handlers holds the resolved server configuration shared by every route,
// grounded on likme-CODEX's Handlers{st *store.Store} shape with the store
// swapped for the run-builder/registry/experiment packages.
type Handlers struct {
	Cfg    config.Config
	Layout ids.Layout
}

func NewHandlers(cfg config.Config) *Handlers {
	return &Handlers{Cfg: cfg, Layout: ids.NewLayout(cfg.RunsRoot)}
}

func (h *Handlers) resolveUser(r *http.Request) (string, error) {
	req := usercontext.Request{
		UserHeader: r.Header.Get("X-Buff-User"),
		Method:     r.Method,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		AuthSig:    r.Header.Get("X-Buff-Auth"),
		Timestamp:  r.Header.Get("X-Buff-Timestamp"),
	}
	resolved, err := usercontext.Resolve(req, h.Cfg.DefaultUser, h.Cfg.UserHMACSecret)
	if err != nil {
		return "", err
	}
	return resolved.UserID, nil
}

// Health is the liveness probe; it never touches the filesystem.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Ready runs the readiness probes of spec.md §4.J.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	strict := r.URL.Query().Get("strict") == "true"
	readiness := observability.CheckReadiness(h.Cfg.RunsRoot, h.Cfg.DefaultUser, strict)
	status := http.StatusOK
	if !readiness.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readiness)
}

// ListRuns handles GET /runs: the acting user's reconciled registry rows.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if err := checkRunsRoot(h.Cfg.RunsRoot); err != nil {
		writeError(w, err)
		return
	}
	userID, err := h.resolveUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	runs, err := observability.ProjectRuns(h.Layout, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// CreateRun handles POST /runs, accepting either a JSON body or a multipart
// form carrying a CSV upload alongside the JSON request fields.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	if err := checkRunsRoot(h.Cfg.RunsRoot); err != nil {
		writeError(w, err)
		return
	}
	if h.Cfg.KillSwitch {
		writeError(w, apierr.KillSwitchEnabled("new run creation is disabled"))
		return
	}
	userID, err := h.resolveUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	req, dataRoot, err := h.decodeRunRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	outcome, err := runbuilder.BuildRun(h.Layout, userID, dataRoot, req)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, outcome.Manifest)
}

// decodeRunRequest parses either "application/json" or a multipart form
// whose "request" field carries the JSON body and whose "file" field
// carries a CSV upload, writing the upload under the configured data root
// and rewriting data_source.path to the resulting repo-relative name.
func (h *Handlers) decodeRunRequest(r *http.Request) (runbuilder.Request, string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/") {
		return h.decodeMultipartRunRequest(r)
	}

	var req runbuilder.Request
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return runbuilder.Request{}, "", apierr.RunConfigInvalid("request body is not valid JSON")
	}
	return req, h.Cfg.DataRoot, nil
}

func (h *Handlers) decodeMultipartRunRequest(r *http.Request) (runbuilder.Request, string, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return runbuilder.Request{}, "", apierr.RunConfigInvalid("invalid multipart form")
	}

	var req runbuilder.Request
	if raw := r.FormValue("request"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return runbuilder.Request{}, "", apierr.RunConfigInvalid("request field is not valid JSON")
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		// No upload: the request must already name an existing repo-relative path.
		return req, h.Cfg.DataRoot, nil
	}
	defer func() { _ = file.Close() }()

	uploadDir := filepath.Join(h.Cfg.DataRoot, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return runbuilder.Request{}, "", apierr.RunWriteFailed(fmt.Sprintf("cannot create upload directory: %v", err))
	}
	relName := filepath.Join("uploads", sanitizeUploadName(header.Filename))
	dest := filepath.Join(h.Cfg.DataRoot, relName)
	out, err := os.Create(dest)
	if err != nil {
		return runbuilder.Request{}, "", apierr.RunWriteFailed(fmt.Sprintf("cannot store upload: %v", err))
	}
	defer func() { _ = out.Close() }()
	if _, err := io.Copy(out, file); err != nil {
		return runbuilder.Request{}, "", apierr.RunWriteFailed(fmt.Sprintf("cannot store upload: %v", err))
	}

	req.DataSource.Type = "csv"
	req.DataSource.Path = relName
	return req, h.Cfg.DataRoot, nil
}

func sanitizeUploadName(name string) string {
	base := filepath.Base(name)
	if base == "" || base == "." || base == ".." {
		return "upload.csv"
	}
	return base
}

// runContext resolves the acting user, the on-disk run directory, and the
// registry entry for a request, enforcing cross-user 404 (spec.md §7,
// fail-closed principle iii) and reconciling the entry against on-disk
// artifact presence (principle i) so CORRUPTED detection does not depend on
// a prior GET /runs call having reconciled the registry.
func (h *Handlers) runContext(r *http.Request, runID string) (string, string, registry.Entry, error) {
	if err := checkRunsRoot(h.Cfg.RunsRoot); err != nil {
		return "", "", registry.Entry{}, err
	}
	userID, err := h.resolveUser(r)
	if err != nil {
		return "", "", registry.Entry{}, err
	}
	if err := ids.ValidateRunID(runID); err != nil {
		return "", "", registry.Entry{}, apierr.RunNotFound("no such run for this user")
	}
	runDir, err := h.Layout.RunDir(userID, runID)
	if err != nil {
		return "", "", registry.Entry{}, apierr.RunNotFound("no such run for this user")
	}
	if _, statErr := os.Stat(runDir); statErr != nil {
		return "", "", registry.Entry{}, apierr.RunNotFound("no such run for this user")
	}
	entry, regErr := registry.ReconcileRun(h.Layout, userID, runID)
	if regErr != nil {
		return "", "", registry.Entry{}, regErr
	}
	return userID, runDir, entry, nil
}

// Manifest handles GET /runs/{run_id}/manifest.
func (h *Handlers) Manifest(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	_, runDir, entry, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry.Status == "CORRUPTED" {
		writeError(w, apierr.RunCorrupted("one or more required artifacts are missing for this run"))
		return
	}
	b, err := os.ReadFile(filepath.Join(runDir, "manifest.json"))
	if err != nil {
		writeError(w, apierr.RunCorrupted("manifest.json is missing"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// Artifact handles GET /runs/{run_id}/artifacts/{name}: a raw file stream.
func (h *Handlers) Artifact(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	name := r.PathValue("name")
	_, runDir, entry, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry.Status == "CORRUPTED" {
		writeError(w, apierr.RunCorrupted("one or more required artifacts are missing for this run"))
		return
	}
	if err := ids.ValidateArtifactName(name); err != nil {
		writeError(w, err)
		return
	}
	path := filepath.Join(runDir, name)
	f, err := os.Open(path)
	if err != nil {
		writeError(w, apierr.ArtifactNotFound(fmt.Sprintf("artifact %q not found", name)))
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

// Summary handles GET /runs/{run_id}/summary.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	userID, runDir, _, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := registry.FindRun(h.Layout, userID, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	decisions, err := artifacts.LoadDecisions(runDir, artifacts.DecisionFilter{PageSize: 1})
	if err != nil {
		writeError(w, err)
		return
	}
	metrics, err := artifacts.LoadMetrics(runDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":           runID,
		"status":           entry.Status,
		"symbol":           entry.Symbol,
		"timeframe":        entry.Timeframe,
		"strategy_id":      entry.StrategyID,
		"decisions_total":  decisions.Total,
		"metrics":          metrics,
		"missing_artifacts": entry.MissingArtifacts,
	})
}

func (h *Handlers) Decisions(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	_, runDir, _, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	filter, err := decisionFilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := artifacts.LoadDecisions(runDir, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) DecisionsExport(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	_, runDir, _, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	filter, err := decisionFilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	filter.PageSize = artifacts.MaxPageSize()
	page, err := artifacts.LoadDecisions(runDir, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := artifacts.DecisionsToRows(page.Rows)
	if err != nil {
		writeError(w, err)
		return
	}
	h.streamExport(w, r, runID, "decisions", rows)
}

func decisionFilterFromQuery(q map[string][]string) (artifacts.DecisionFilter, error) {
	get := func(k string) string {
		if v, ok := q[k]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	start, end, err := parseTimeRangeQuery(get("start_ts"), get("end_ts"))
	if err != nil {
		return artifacts.DecisionFilter{}, err
	}
	return artifacts.DecisionFilter{
		Symbol:     get("symbol"),
		Action:     get("action"),
		ReasonCode: get("reason_code"),
		StartTime:  start,
		EndTime:    end,
		Page:       atoiDefault(get("page"), 1),
		PageSize:   atoiDefault(get("page_size"), 0),
	}, nil
}

// parseTimeRangeQuery parses optional start_ts/end_ts query values with
// timeutil.ParseFlexible, surfacing spec.md §7's invalid_timestamp (400) on
// an unparseable bound and invalid_time_range (400) when both are present
// and start_ts is not strictly before end_ts.
func parseTimeRangeQuery(startRaw, endRaw string) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if startRaw != "" {
		t, err := timeutil.ParseFlexible(startRaw)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}
	if endRaw != "" {
		t, err := timeutil.ParseFlexible(endRaw)
		if err != nil {
			return nil, nil, err
		}
		end = &t
	}
	if err := timeutil.ValidateRange(start, end); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

func (h *Handlers) Trades(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	_, runDir, _, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	filter, err := windowFilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := artifacts.LoadTrades(runDir, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) TradeMarkers(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	_, runDir, _, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	markers, err := artifacts.LoadTradeMarkers(runDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markers": markers})
}

func (h *Handlers) TradesExport(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	_, runDir, _, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	filter, err := windowFilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	filter.PageSize = artifacts.MaxPageSize()
	page, err := artifacts.LoadTrades(runDir, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := artifacts.TradesToRows(page.Rows)
	if err != nil {
		writeError(w, err)
		return
	}
	h.streamExport(w, r, runID, "trades", rows)
}

func (h *Handlers) OHLCV(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	_, runDir, _, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "1m"
	}
	filter, err := windowFilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	bars, err := artifacts.LoadOHLCV(runDir, timeframe, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bars": bars})
}

func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	_, runDir, _, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := artifacts.LoadMetrics(runDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) Timeline(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	_, runDir, _, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	tl, err := artifacts.LoadTimeline(runDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": tl})
}

func (h *Handlers) Errors(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	_, runDir, _, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	errs, err := artifacts.LoadErrors(runDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": errs})
}

func (h *Handlers) ErrorsExport(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	_, runDir, _, err := h.runContext(r, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	errs, err := artifacts.LoadErrors(runDir)
	if err != nil {
		writeError(w, err)
		return
	}
	rows := make([]map[string]any, len(errs))
	for i, e := range errs {
		b, _ := json.Marshal(e)
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		rows[i] = m
	}
	h.streamExport(w, r, runID, "errors", rows)
}

func windowFilterFromQuery(q map[string][]string) (artifacts.WindowFilter, error) {
	get := func(k string) string {
		if v, ok := q[k]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	start, end, err := parseTimeRangeQuery(get("start_ts"), get("end_ts"))
	if err != nil {
		return artifacts.WindowFilter{}, err
	}
	return artifacts.WindowFilter{
		StartTime: start,
		EndTime:   end,
		Page:      atoiDefault(get("page"), 1),
		PageSize:  atoiDefault(get("page_size"), 0),
		Limit:     atoiDefault(get("limit"), 0),
	}, nil
}

func (h *Handlers) streamExport(w http.ResponseWriter, r *http.Request, runID, what string, rows []map[string]any) {
	format, err := artifacts.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	ext := string(format)
	if ext == string(artifacts.FormatNDJSON) {
		ext = "ndjson"
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Disposition", artifacts.ContentDisposition(runID, what, ext))
	switch format {
	case artifacts.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case artifacts.FormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
	case artifacts.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	}
	w.WriteHeader(http.StatusOK)
	_ = artifacts.WriteExport(w, format, rows)
}

// CreateExperiment handles POST /experiments.
func (h *Handlers) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	if err := checkRunsRoot(h.Cfg.RunsRoot); err != nil {
		writeError(w, err)
		return
	}
	if h.Cfg.KillSwitch {
		writeError(w, apierr.KillSwitchEnabled("new experiment creation is disabled"))
		return
	}
	userID, err := h.resolveUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req experiment.Request
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.ExperimentConfigInvalid("request body is not valid JSON"))
		return
	}

	outcome, err := experiment.Create(h.Layout, userID, h.Cfg.DataRoot, req, h.Cfg.MaxExperimentCandidates)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, outcome.Manifest)
}

// ListExperiments handles GET /experiments.
func (h *Handlers) ListExperiments(w http.ResponseWriter, r *http.Request) {
	if err := checkRunsRoot(h.Cfg.RunsRoot); err != nil {
		writeError(w, err)
		return
	}
	userID, err := h.resolveUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	expsDir, err := h.Layout.ExperimentsDir(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := os.ReadDir(expsDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]any{"experiments": []string{}})
			return
		}
		writeError(w, apierr.Internal(err.Error()))
		return
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			ids = append(ids, e.Name())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiments": ids})
}

func (h *Handlers) experimentContext(r *http.Request, experimentID string) (string, string, error) {
	if err := checkRunsRoot(h.Cfg.RunsRoot); err != nil {
		return "", "", err
	}
	userID, err := h.resolveUser(r)
	if err != nil {
		return "", "", err
	}
	expDir, err := h.Layout.ExperimentDir(userID, experimentID)
	if err != nil {
		return "", "", apierr.RunNotFound("no such experiment for this user")
	}
	if _, statErr := os.Stat(expDir); statErr != nil {
		return "", "", apierr.RunNotFound("no such experiment for this user")
	}
	return userID, expDir, nil
}

func (h *Handlers) ExperimentManifest(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("experiment_id")
	_, expDir, err := h.experimentContext(r, experimentID)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := os.ReadFile(filepath.Join(expDir, "experiment_manifest.json"))
	if err != nil {
		writeError(w, apierr.RunCorrupted("experiment_manifest.json is missing"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *Handlers) ExperimentComparison(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("experiment_id")
	_, expDir, err := h.experimentContext(r, experimentID)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := os.ReadFile(filepath.Join(expDir, "comparison_summary.json"))
	if err != nil {
		writeError(w, apierr.RunCorrupted("comparison_summary.json is missing"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// ObservabilityRuns handles GET /observability/runs.
func (h *Handlers) ObservabilityRuns(w http.ResponseWriter, r *http.Request) {
	if err := checkRunsRoot(h.Cfg.RunsRoot); err != nil {
		writeError(w, err)
		return
	}
	userID, err := h.resolveUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	runs, err := observability.ProjectRuns(h.Layout, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// ObservabilityIntegrity handles GET /observability/runs/{run_id}/integrity.
func (h *Handlers) ObservabilityIntegrity(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	userID, err := h.resolveUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := registry.FindRun(h.Layout, userID, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	report := observability.IntegrityReport(entry.ArtifactsPresent)
	writeJSON(w, http.StatusOK, map[string]any{"checks": report})
}

// AdminMigrate handles POST /admin/migrate.
func (h *Handlers) AdminMigrate(w http.ResponseWriter, r *http.Request) {
	if err := checkRunsRoot(h.Cfg.RunsRoot); err != nil {
		writeError(w, err)
		return
	}
	result, err := observability.Migrate(h.Layout, h.Cfg.RunsRoot, h.Cfg.DefaultUser)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
