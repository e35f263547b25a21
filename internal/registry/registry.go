// Package registry maintains the per-user index.json described in
// spec.md §4.G: file-locked upsert, reconciliation, and corruption
// detection, grounded on the teacher's internal/store index idiom
// generalized from a single global index to one index per user.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/buffquant/simrun/internal/apierr"
	"github.com/buffquant/simrun/internal/codec"
	"github.com/buffquant/simrun/internal/fsx"
	"github.com/buffquant/simrun/internal/ids"
)

const lockTimeout = 2 * time.Second

// RequiredArtifacts are the seven files whose absence marks a run CORRUPTED.
var RequiredArtifacts = []string{
	"manifest.json",
	"config.json",
	"metrics.json",
	"equity_curve.json",
	"trades.jsonl",
	"timeline.json",
	"decision_records.jsonl",
}

// Entry is one run's registry record.
type Entry struct {
	RunID            string   `json:"run_id"`
	CreatedAt        string   `json:"created_at"`
	Symbol           string   `json:"symbol"`
	Timeframe        string   `json:"timeframe"`
	Status           string   `json:"status"`
	ManifestPath     string   `json:"manifest_path"`
	ArtifactsPresent []string `json:"artifacts_present"`
	InputsHash       string   `json:"inputs_hash"`
	StrategyID       string   `json:"strategy_id"`
	MissingArtifacts []string `json:"missing_artifacts,omitempty"`
}

// Index is the on-disk shape of index.json.
type Index struct {
	SchemaVersion string  `json:"schema_version"`
	GeneratedAt   string  `json:"generated_at"`
	Runs          []Entry `json:"runs"`
}

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = func() time.Time { return time.Now().UTC() }

// Load reads and parses a user's index.json, returning an empty index if
// the file does not yet exist.
func Load(layout ids.Layout, userID string) (Index, error) {
	path, err := layout.IndexPath(userID)
	if err != nil {
		return Index{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Index{SchemaVersion: "1.0.0", GeneratedAt: nowFunc().Format(time.RFC3339)}, nil
		}
		return Index{}, apierr.RegistryWriteFailed(fmt.Sprintf("cannot read registry: %v", err))
	}
	var idx Index
	if err := json.Unmarshal(b, &idx); err != nil {
		return Index{}, apierr.RegistryWriteFailed(fmt.Sprintf("registry is corrupted: %v", err))
	}
	return idx, nil
}

// Upsert acquires the per-user registry lock, reads the current index,
// replaces-or-appends entry keyed by run_id, sorts by run_id ascending, and
// writes atomically, per spec.md §4.G.
func Upsert(layout ids.Layout, userID string, entry Entry) error {
	lockDir, err := layout.LockDir(userID)
	if err != nil {
		return err
	}
	return fsx.WithLock(lockDir, lockTimeout, func() error {
		return apierr.RegistryLockTimeout("timed out acquiring registry lock")
	}, func() error {
		idx, err := Load(layout, userID)
		if err != nil {
			return err
		}
		idx.Runs = replaceOrAppend(idx.Runs, entry)
		idx.GeneratedAt = nowFunc().Format(time.RFC3339)
		return write(layout, userID, idx)
	})
}

func replaceOrAppend(runs []Entry, entry Entry) []Entry {
	for i, r := range runs {
		if r.RunID == entry.RunID {
			runs[i] = entry
			sortEntries(runs)
			return runs
		}
	}
	runs = append(runs, entry)
	sortEntries(runs)
	return runs
}

func sortEntries(runs []Entry) {
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })
}

func write(layout ids.Layout, userID string, idx Index) error {
	path, err := layout.IndexPath(userID)
	if err != nil {
		return err
	}
	if err := codec.WriteJSONAtomic(path, idx); err != nil {
		return apierr.RegistryWriteFailed(fmt.Sprintf("cannot write registry: %v", err))
	}
	return nil
}

// Reconcile refreshes status/artifacts_present/missing_artifacts for every
// entry against current on-disk state, a read-only sweep that writes back
// only when drift is detected, under lock. Returns the refreshed entries.
func Reconcile(layout ids.Layout, userID string) ([]Entry, error) {
	lockDir, err := layout.LockDir(userID)
	if err != nil {
		return nil, err
	}

	var result []Entry
	err = fsx.WithLock(lockDir, lockTimeout, func() error {
		return apierr.RegistryLockTimeout("timed out acquiring registry lock")
	}, func() error {
		idx, err := Load(layout, userID)
		if err != nil {
			return err
		}
		drift := false
		for i := range idx.Runs {
			refreshed, changed := refreshEntry(layout, userID, idx.Runs[i])
			if changed {
				drift = true
			}
			idx.Runs[i] = refreshed
		}
		result = idx.Runs
		if drift {
			idx.GeneratedAt = nowFunc().Format(time.RFC3339)
			return write(layout, userID, idx)
		}
		return nil
	})
	return result, err
}

func refreshEntry(layout ids.Layout, userID string, e Entry) (Entry, bool) {
	runDir, err := layout.RunDir(userID, e.RunID)
	if err != nil {
		return e, false
	}
	if !fsx.DirExists(runDir) {
		changed := e.Status != "CORRUPTED"
		e.Status = "CORRUPTED"
		e.ArtifactsPresent = nil
		e.MissingArtifacts = RequiredArtifacts
		return e, changed
	}

	files, err := fsx.ListFiles(runDir)
	if err != nil {
		return e, false
	}
	present := map[string]bool{}
	for _, f := range files {
		present[f] = true
	}

	var missing []string
	for _, req := range RequiredArtifacts {
		if !present[req] {
			missing = append(missing, req)
		}
	}

	newStatus := e.Status
	if len(missing) > 0 {
		newStatus = "CORRUPTED"
	}

	changed := newStatus != e.Status || !stringSliceEqual(e.ArtifactsPresent, files) || !stringSliceEqual(e.MissingArtifacts, missing)
	e.Status = newStatus
	e.ArtifactsPresent = files
	e.MissingArtifacts = missing
	return e, changed
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FindRun returns the entry for runID, or apierr.RunNotFound.
func FindRun(layout ids.Layout, userID, runID string) (Entry, error) {
	idx, err := Load(layout, userID)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range idx.Runs {
		if e.RunID == runID {
			return e, nil
		}
	}
	return Entry{}, apierr.RunNotFound("no such run for this user")
}

// ReconcileRun refreshes a single run's status/artifacts_present/missing_
// artifacts against current on-disk state before returning it, so that
// spec.md §7's fail-closed principle (i) — a run with any required artifact
// missing refuses manifest/artifact retrieval with 409 — holds for a direct
// GET on that run, independent of whether a prior GET /runs reconciled the
// whole registry.
func ReconcileRun(layout ids.Layout, userID, runID string) (Entry, error) {
	lockDir, err := layout.LockDir(userID)
	if err != nil {
		return Entry{}, err
	}

	var result Entry
	err = fsx.WithLock(lockDir, lockTimeout, func() error {
		return apierr.RegistryLockTimeout("timed out acquiring registry lock")
	}, func() error {
		idx, err := Load(layout, userID)
		if err != nil {
			return err
		}
		idxPos := -1
		for i := range idx.Runs {
			if idx.Runs[i].RunID == runID {
				idxPos = i
				break
			}
		}
		if idxPos < 0 {
			return apierr.RunNotFound("no such run for this user")
		}
		refreshed, changed := refreshEntry(layout, userID, idx.Runs[idxPos])
		idx.Runs[idxPos] = refreshed
		result = refreshed
		if changed {
			idx.GeneratedAt = nowFunc().Format(time.RFC3339)
			return write(layout, userID, idx)
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return result, nil
}
