package observability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/buffquant/simrun/internal/apierr"
	"github.com/buffquant/simrun/internal/fsx"
	"github.com/buffquant/simrun/internal/ids"
	"github.com/buffquant/simrun/internal/registry"
)

// MigrationResult reports what Migrate moved.
type MigrationResult struct {
	Migrated []string `json:"migrated"`
	Skipped  []string `json:"skipped"`
}

// Migrate moves pre-registry, top-level run directories
// (<runs_root>/<run_id>/) into <runs_root>/users/<default_user>/runs/<run_id>/,
// idempotently, per SPEC_FULL §4.J.
func Migrate(layout ids.Layout, runsRoot, defaultUser string) (MigrationResult, error) {
	if defaultUser == "" {
		return MigrationResult{}, apierr.RunConfigInvalid("BUFF_DEFAULT_USER must be configured to migrate legacy runs")
	}

	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return MigrationResult{}, nil
		}
		return MigrationResult{}, apierr.Internal(fmt.Sprintf("cannot read runs_root: %v", err))
	}

	result := MigrationResult{}
	runsDir, err := layout.RunsDir(defaultUser)
	if err != nil {
		return MigrationResult{}, err
	}
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return MigrationResult{}, apierr.Internal(fmt.Sprintf("cannot create target runs directory: %v", err))
	}

	for _, e := range entries {
		if !e.IsDir() || e.Name() == "users" {
			continue
		}
		if ids.ValidateRunID(e.Name()) != nil {
			continue
		}
		legacyDir := filepath.Join(runsRoot, e.Name())
		if _, err := os.Stat(filepath.Join(legacyDir, "manifest.json")); err != nil {
			continue
		}

		target, err := layout.RunDir(defaultUser, e.Name())
		if err != nil {
			continue
		}
		if _, err := os.Stat(target); err == nil {
			result.Skipped = append(result.Skipped, e.Name())
			continue
		}

		if err := os.Rename(legacyDir, target); err != nil {
			return result, apierr.Internal(fmt.Sprintf("cannot migrate run %s: %v", e.Name(), err))
		}
		result.Migrated = append(result.Migrated, e.Name())

		entry, err := rebuildEntry(target, e.Name())
		if err == nil {
			_ = registry.Upsert(layout, defaultUser, entry)
		}
	}

	return result, nil
}

func rebuildEntry(runDir, runID string) (registry.Entry, error) {
	b, err := os.ReadFile(filepath.Join(runDir, "manifest.json"))
	if err != nil {
		return registry.Entry{}, err
	}
	var m struct {
		InputsHash string `json:"inputs_hash"`
		Status     string `json:"status"`
		CreatedAt  string `json:"created_at"`
		Strategy   struct {
			ID string `json:"id"`
		} `json:"strategy"`
		Data struct {
			Symbol    string `json:"symbol"`
			Timeframe string `json:"timeframe"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return registry.Entry{}, err
	}

	files, err := fsx.ListFiles(runDir)
	if err != nil {
		return registry.Entry{}, err
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
	status := m.Status
	if len(missing) > 0 {
		status = "CORRUPTED"
	}

	return registry.Entry{
		RunID:            runID,
		CreatedAt:        m.CreatedAt,
		Symbol:           m.Data.Symbol,
		Timeframe:        m.Data.Timeframe,
		Status:           status,
		ManifestPath:     filepath.Join(runDir, "manifest.json"),
		ArtifactsPresent: files,
		InputsHash:       m.InputsHash,
		StrategyID:       m.Strategy.ID,
		MissingArtifacts: missing,
	}, nil
}
