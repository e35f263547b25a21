// Package observability implements spec.md §4.J: read-only projections over
// the registry and artifacts, readiness probing, and legacy-run migration.
// Grounded on the teacher's internal/doctor best-effort-check idiom.
package observability

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/buffquant/simrun/internal/ids"
	"github.com/buffquant/simrun/internal/registry"
)

// CheckResult is one named readiness probe outcome.
type CheckResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Readiness is the full /ready payload.
type Readiness struct {
	Ready              bool          `json:"ready"`
	Checks             []CheckResult `json:"checks"`
	LegacyRunsPending  int           `json:"legacy_runs_pending,omitempty"`
}

// CheckReadiness runs the readiness probes of spec.md §4.J: runs_root
// reachable and writable, registry loadable, legacy-run integrity.
func CheckReadiness(runsRoot, defaultUser string, strict bool) Readiness {
	var checks []CheckResult
	ready := true

	rootCheck := CheckResult{Name: "runs_root_writable"}
	if runsRoot == "" {
		rootCheck.Message = "RUNS_ROOT is not set"
		ready = false
	} else if err := probeWritable(runsRoot); err != nil {
		rootCheck.Message = err.Error()
		ready = false
	} else {
		rootCheck.OK = true
	}
	checks = append(checks, rootCheck)

	legacyPending := 0
	if defaultUser != "" && runsRoot != "" {
		pending, err := countLegacyRuns(runsRoot)
		legacyCheck := CheckResult{Name: "legacy_run_integrity"}
		if err != nil {
			legacyCheck.Message = err.Error()
			if strict {
				ready = false
			} else {
				legacyCheck.OK = true
			}
		} else {
			legacyPending = pending
			legacyCheck.OK = true
			if pending > 0 {
				legacyCheck.Message = fmt.Sprintf("%d legacy run(s) pending migration", pending)
				if strict {
					legacyCheck.OK = false
					ready = false
				}
			}
		}
		checks = append(checks, legacyCheck)
	}

	return Readiness{Ready: ready, Checks: checks, LegacyRunsPending: legacyPending}
}

func probeWritable(runsRoot string) error {
	if err := os.MkdirAll(runsRoot, 0o755); err != nil {
		return fmt.Errorf("runs_root is not reachable: %w", err)
	}
	probe := filepath.Join(runsRoot, ".ready_probe_"+uuid.NewString()[:8])
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("runs_root is not writable: %w", err)
	}
	_ = os.Remove(probe)
	return nil
}

func countLegacyRuns(runsRoot string) (int, error) {
	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if e.Name() == "users" || e.Name() == "." || e.Name() == ".." {
			continue
		}
		if ids.ValidateRunID(e.Name()) == nil {
			if _, err := os.Stat(filepath.Join(runsRoot, e.Name(), "manifest.json")); err == nil {
				count++
			}
		}
	}
	return count, nil
}

// RunSummary is a list/detail projection row derived from a registry entry.
type RunSummary struct {
	RunID            string   `json:"run_id"`
	State            string   `json:"state"`
	StrategyID       string   `json:"strategy_id"`
	Symbol           string   `json:"symbol"`
	Timeframe        string   `json:"timeframe"`
	ArtifactStatus   string   `json:"artifact_status"`
	ValidationStatus string   `json:"validation_status"`
	CreatedAt        string   `json:"created_at"`
	MissingArtifacts []string `json:"missing_artifacts,omitempty"`
}

// ProjectRuns reconciles and projects a user's registry entries into
// read-model rows.
func ProjectRuns(layout ids.Layout, userID string) ([]RunSummary, error) {
	entries, err := registry.Reconcile(layout, userID)
	if err != nil {
		return nil, err
	}
	out := make([]RunSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, projectEntry(e))
	}
	return out, nil
}

func projectEntry(e registry.Entry) RunSummary {
	validation := "ok"
	if e.Status == "CORRUPTED" {
		validation = "corrupted"
	}
	return RunSummary{
		RunID:            e.RunID,
		State:            e.Status,
		StrategyID:       e.StrategyID,
		Symbol:           e.Symbol,
		Timeframe:        e.Timeframe,
		ArtifactStatus:   e.Status,
		ValidationStatus: validation,
		CreatedAt:        e.CreatedAt,
		MissingArtifacts: e.MissingArtifacts,
	}
}

// ArtifactCheck is one expected-file row of the artifact integrity report.
type ArtifactCheck struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
}

// IntegrityReport lists every required artifact with its presence.
func IntegrityReport(present []string) []ArtifactCheck {
	have := map[string]bool{}
	for _, p := range present {
		have[p] = true
	}
	out := make([]ArtifactCheck, 0, len(registry.RequiredArtifacts))
	for _, req := range registry.RequiredArtifacts {
		out = append(out, ArtifactCheck{Name: req, OK: have[req]})
	}
	return out
}
