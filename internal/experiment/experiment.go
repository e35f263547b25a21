// Package experiment implements spec.md §4.H: the multi-candidate
// experiment orchestrator with strictly sequential candidate iteration,
// partial-failure semantics, and a deterministic comparison summary.
package experiment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/buffquant/simrun/internal/apierr"
	"github.com/buffquant/simrun/internal/codec"
	"github.com/buffquant/simrun/internal/fsx"
	"github.com/buffquant/simrun/internal/ids"
	"github.com/buffquant/simrun/internal/runbuilder"
)

const experimentLockTimeout = 200 * time.Millisecond

var group singleflight.Group

// Candidate is one requested candidate configuration.
type Candidate struct {
	CandidateID string            `json:"candidate_id,omitempty"`
	RunConfig   runbuilder.Request `json:"run_config"`
}

// Request is the raw experiment-creation request body.
type Request struct {
	SchemaVersion string      `json:"schema_version"`
	Candidates    []Candidate `json:"candidates"`
}

// CandidateResult records the outcome of one candidate, success or failure.
type CandidateResult struct {
	CandidateIndex int               `json:"candidate_index"`
	CandidateID    string            `json:"candidate_id"`
	Status         string            `json:"status"` // COMPLETED | FAILED
	RunID          string            `json:"run_id,omitempty"`
	Error          *CandidateError   `json:"error,omitempty"`
}

// CandidateError is a structured, traceback-free error payload.
type CandidateError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Manifest is the experiment_manifest.json artifact.
type Manifest struct {
	SchemaVersion     string             `json:"schema_version"`
	ExperimentID      string             `json:"experiment_id"`
	ExperimentDigest  string             `json:"experiment_digest"`
	Status            string             `json:"status"`
	StatusHistory     []string           `json:"status_history"`
	Inputs            Request            `json:"inputs"`
	Candidates        []CandidateResult  `json:"candidates"`
	Summary           Summary            `json:"summary"`
	Meta              Meta               `json:"meta"`
}

// Summary is the experiment's aggregate candidate counts.
type Summary struct {
	TotalCandidates int `json:"total_candidates"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
}

// Meta carries experiment provenance.
type Meta struct {
	OwnerUserID string `json:"owner_user_id"`
}

// ComparisonColumns is the fixed column order for comparison_summary.json.
var ComparisonColumns = []string{
	"candidate_index", "candidate_id", "run_id", "status", "strategy_id",
	"symbol", "timeframe", "risk_level", "total_return", "final_equity",
	"max_drawdown", "win_rate", "num_trades",
}

// ComparisonSummary is the comparison_summary.json artifact.
type ComparisonSummary struct {
	SchemaVersion    string           `json:"schema_version"`
	ExperimentID     string           `json:"experiment_id"`
	ExperimentDigest string           `json:"experiment_digest"`
	Status           string           `json:"status"`
	Counts           Summary          `json:"counts"`
	Columns          []string         `json:"columns"`
	Rows             []map[string]any `json:"rows"`
}

const MaxCandidatesDefault = 50

// Outcome describes the result of Create.
type Outcome struct {
	ExperimentID string
	Created      bool
	Manifest     Manifest
}

// Create implements spec.md §4.H's full pipeline.
func Create(layout ids.Layout, userID, dataRoot string, req Request, maxCandidates int) (Outcome, error) {
	if req.SchemaVersion == "" {
		req.SchemaVersion = "1.0.0"
	}
	if req.SchemaVersion != "1.0.0" {
		return Outcome{}, apierr.ExperimentConfigInvalid("unsupported schema_version")
	}
	if len(req.Candidates) == 0 {
		return Outcome{}, apierr.ExperimentConfigInvalid("candidates must be non-empty")
	}
	if maxCandidates <= 0 {
		maxCandidates = MaxCandidatesDefault
	}
	if len(req.Candidates) > maxCandidates {
		return Outcome{}, apierr.ExperimentCandidatesLimitExceeded(fmt.Sprintf("candidates exceeds limit of %d", maxCandidates))
	}

	for i := range req.Candidates {
		if req.Candidates[i].CandidateID == "" {
			req.Candidates[i].CandidateID = ids.DeriveCandidateID(i)
		} else if err := ids.ValidateCandidateID(req.Candidates[i].CandidateID); err != nil {
			return Outcome{}, err
		}
	}

	digest, err := experimentDigest(req, dataRoot)
	if err != nil {
		return Outcome{}, err
	}
	experimentID := ids.DeriveExperimentID(digest)

	key := userID + "/" + experimentID
	v, err, _ := group.Do(key, func() (any, error) {
		return createLocked(layout, userID, dataRoot, req, digest, experimentID)
	})
	if err != nil {
		return Outcome{}, err
	}
	return v.(Outcome), nil
}

// digestCandidate mirrors Candidate but carries run_config after
// normalization, so equivalent-but-differently-formatted requests (e.g.
// missing millis on a timestamp, or a schema_version defaulted implicitly)
// dedupe to the same experiment_digest.
type digestCandidate struct {
	CandidateID string `json:"candidate_id,omitempty"`
	RunConfig   any    `json:"run_config"`
}

type digestRequest struct {
	SchemaVersion string            `json:"schema_version"`
	Candidates    []digestCandidate `json:"candidates"`
}

// experimentDigest hashes the canonical JSON of req with each candidate's
// run_config normalized (spec.md §4.H). A candidate whose run_config fails
// normalization is hashed as submitted: it will surface as a per-candidate
// FAILED result during runCandidates, and the digest only needs to be stable
// for the requests that actually succeed.
func experimentDigest(req Request, dataRoot string) (string, error) {
	dr := digestRequest{SchemaVersion: req.SchemaVersion}
	for _, c := range req.Candidates {
		var runConfig any = c.RunConfig
		if norm, _, err := runbuilder.Normalize(c.RunConfig, dataRoot); err == nil {
			runConfig = norm
		}
		dr.Candidates = append(dr.Candidates, digestCandidate{
			CandidateID: c.CandidateID,
			RunConfig:   runConfig,
		})
	}

	b, err := codec.CanonicalJSON(dr)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func createLocked(layout ids.Layout, userID, dataRoot string, req Request, digest, experimentID string) (Outcome, error) {
	expDir, err := layout.ExperimentDir(userID, experimentID)
	if err != nil {
		return Outcome{}, err
	}

	if fsx.DirExists(expDir) {
		existing, conflict, err := checkExisting(expDir, digest)
		if err != nil {
			return Outcome{}, err
		}
		if conflict {
			return Outcome{}, apierr.ExperimentExists("an experiment with a different digest already exists at this id")
		}
		return Outcome{ExperimentID: experimentID, Created: false, Manifest: existing}, nil
	}

	lockDir, err := layout.ExperimentLockDir(userID, experimentID)
	if err != nil {
		return Outcome{}, err
	}

	var manifest Manifest
	var summary ComparisonSummary
	lockErr := fsx.WithLock(lockDir, experimentLockTimeout, func() error {
		return apierr.ExperimentLockTimeout("timed out acquiring experiment lock")
	}, func() error {
		if fsx.DirExists(expDir) {
			existing, conflict, cerr := checkExisting(expDir, digest)
			if cerr != nil {
				return cerr
			}
			if conflict {
				return apierr.ExperimentExists("an experiment with a different digest already exists at this id")
			}
			manifest = existing
			return nil
		}

		results, compRows := runCandidates(layout, userID, dataRoot, req.Candidates)
		manifest = buildManifest(req, experimentID, digest, userID, results)
		summary = buildComparisonSummary(experimentID, digest, manifest.Status, manifest.Summary, compRows)
		return writeExperimentArtifacts(layout, userID, experimentID, manifest, summary)
	})
	if lockErr != nil {
		return Outcome{}, lockErr
	}

	return Outcome{ExperimentID: experimentID, Created: true, Manifest: manifest}, nil
}

func runCandidates(layout ids.Layout, userID, dataRoot string, candidates []Candidate) ([]CandidateResult, []map[string]any) {
	results := make([]CandidateResult, 0, len(candidates))
	var rows []map[string]any

	for i, c := range candidates {
		reqCopy := c.RunConfig
		outcome, err := runbuilder.BuildRun(layout, userID, dataRoot, reqCopy)
		if err != nil {
			results = append(results, CandidateResult{
				CandidateIndex: i,
				CandidateID:    c.CandidateID,
				Status:         "FAILED",
				Error:          toCandidateError(err),
			})
			continue
		}

		results = append(results, CandidateResult{
			CandidateIndex: i,
			CandidateID:    c.CandidateID,
			Status:         "COMPLETED",
			RunID:          outcome.RunID,
		})

		runDir, derr := layout.RunDir(userID, outcome.RunID)
		if derr != nil {
			continue
		}
		metrics, merr := readMetrics(runDir)
		if merr != nil {
			continue
		}
		rows = append(rows, map[string]any{
			"candidate_index": i,
			"candidate_id":    c.CandidateID,
			"run_id":          outcome.RunID,
			"status":          "COMPLETED",
			"strategy_id":     metrics["strategy_id"],
			"symbol":          metrics["symbol"],
			"timeframe":       metrics["timeframe"],
			"risk_level":      metrics["risk_level"],
			"total_return":    metrics["total_return"],
			"final_equity":    metrics["final_equity"],
			"max_drawdown":    metrics["max_drawdown"],
			"win_rate":        metrics["win_rate"],
			"num_trades":      metrics["num_trades"],
		})
	}
	return results, rows
}

func toCandidateError(err error) *CandidateError {
	if ae, ok := err.(*apierr.Error); ok {
		return &CandidateError{Code: ae.Code, Message: ae.Message, Details: ae.Details}
	}
	return &CandidateError{Code: "INTERNAL", Message: err.Error()}
}

func readMetrics(runDir string) (map[string]any, error) {
	b, err := os.ReadFile(filepath.Join(runDir, "metrics.json"))
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func buildManifest(req Request, experimentID, digest, userID string, results []CandidateResult) Manifest {
	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Status == "COMPLETED" {
			succeeded++
		} else {
			failed++
		}
	}
	status := "PARTIAL"
	switch {
	case failed == 0:
		status = "COMPLETED"
	case succeeded == 0:
		status = "FAILED"
	}

	return Manifest{
		SchemaVersion:    "1.0.0",
		ExperimentID:     experimentID,
		ExperimentDigest: digest,
		Status:           status,
		StatusHistory:    []string{"CREATED", "RUNNING", status},
		Inputs:           req,
		Candidates:       results,
		Summary: Summary{
			TotalCandidates: len(results),
			Succeeded:       succeeded,
			Failed:          failed,
		},
		Meta: Meta{OwnerUserID: userID},
	}
}

func buildComparisonSummary(experimentID, digest, status string, summary Summary, rows []map[string]any) ComparisonSummary {
	if rows == nil {
		rows = []map[string]any{}
	}
	return ComparisonSummary{
		SchemaVersion:    "1.0.0",
		ExperimentID:     experimentID,
		ExperimentDigest: digest,
		Status:           status,
		Counts:           summary,
		Columns:          ComparisonColumns,
		Rows:             rows,
	}
}

func writeExperimentArtifacts(layout ids.Layout, userID, experimentID string, manifest Manifest, summary ComparisonSummary) error {
	expsDir, err := layout.ExperimentsDir(userID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(expsDir, 0o755); err != nil {
		return apierr.RunWriteFailed(fmt.Sprintf("cannot create experiments directory: %v", err))
	}

	tmpDir := filepath.Join(expsDir, fmt.Sprintf(".tmp_%s_%s", experimentID, uuid.NewString()[:8]))
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return apierr.RunWriteFailed(fmt.Sprintf("cannot create temp experiment directory: %v", err))
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	if err := codec.WriteJSONAtomic(filepath.Join(tmpDir, "experiment_manifest.json"), manifest); err != nil {
		cleanup()
		return err
	}
	if err := codec.WriteJSONAtomic(filepath.Join(tmpDir, "comparison_summary.json"), summary); err != nil {
		cleanup()
		return err
	}

	expDir, err := layout.ExperimentDir(userID, experimentID)
	if err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpDir, expDir); err != nil {
		cleanup()
		return apierr.RunWriteFailed(fmt.Sprintf("cannot finalize experiment directory: %v", err))
	}
	return nil
}

func checkExisting(expDir, digest string) (Manifest, bool, error) {
	b, err := os.ReadFile(filepath.Join(expDir, "experiment_manifest.json"))
	if err != nil {
		return Manifest{}, false, nil
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, false, nil
	}
	if m.ExperimentDigest != digest {
		return Manifest{}, true, nil
	}
	return m, false, nil
}
