package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/buffquant/simrun/internal/ids"
	"github.com/buffquant/simrun/internal/registry"
)

func TestCheckReadinessUnsetRunsRoot(t *testing.T) {
	res := CheckReadiness("", "", false)
	if res.Ready {
		t.Fatal("CheckReadiness with empty runs_root reported Ready=true")
	}
}

func TestCheckReadinessWritableRoot(t *testing.T) {
	dir := t.TempDir()
	res := CheckReadiness(dir, "", false)
	if !res.Ready {
		t.Fatalf("CheckReadiness(%s) = %+v, want Ready=true", dir, res)
	}
}

func TestCheckReadinessStrictLegacyPending(t *testing.T) {
	dir := t.TempDir()
	legacyRun := filepath.Join(dir, "run_legacy0000001")
	if err := os.MkdirAll(legacyRun, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(legacyRun, "manifest.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	lenient := CheckReadiness(dir, "alice", false)
	if !lenient.Ready {
		t.Fatal("non-strict CheckReadiness with legacy runs pending reported Ready=false")
	}
	if lenient.LegacyRunsPending != 1 {
		t.Fatalf("LegacyRunsPending = %d, want 1", lenient.LegacyRunsPending)
	}

	strict := CheckReadiness(dir, "alice", true)
	if strict.Ready {
		t.Fatal("strict CheckReadiness with legacy runs pending reported Ready=true")
	}
}

func TestProjectRuns(t *testing.T) {
	dir := t.TempDir()
	layout := ids.NewLayout(dir)

	entry := registry.Entry{
		RunID:      "run_abc123def456",
		Symbol:     "BTCUSD",
		Timeframe:  "1m",
		Status:     "COMPLETED",
		StrategyID: "hold",
		CreatedAt:  "2026-01-01T00:00:00.000Z",
	}
	if err := registry.Upsert(layout, "alice", entry); err != nil {
		t.Fatal(err)
	}

	rows, err := ProjectRuns(layout, "alice")
	if err != nil {
		t.Fatalf("ProjectRuns: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].State != "COMPLETED" || rows[0].ValidationStatus != "ok" {
		t.Fatalf("row = %+v, want State=COMPLETED ValidationStatus=ok", rows[0])
	}
}

func TestIntegrityReport(t *testing.T) {
	present := registry.RequiredArtifacts[:4]
	report := IntegrityReport(present)

	if len(report) != len(registry.RequiredArtifacts) {
		t.Fatalf("len(report) = %d, want %d", len(report), len(registry.RequiredArtifacts))
	}
	okCount := 0
	for _, c := range report {
		if c.OK {
			okCount++
		}
	}
	if okCount != 4 {
		t.Fatalf("okCount = %d, want 4", okCount)
	}
}

func TestMigrateMovesLegacyRun(t *testing.T) {
	dir := t.TempDir()
	layout := ids.NewLayout(dir)

	runID := "run_legacy0000002"
	legacyDir := filepath.Join(dir, runID)
	if err := os.MkdirAll(legacyDir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"inputs_hash":"deadbeef","status":"COMPLETED","created_at":"2026-01-01T00:00:00Z","strategy":{"id":"hold"},"data":{"symbol":"ETHUSD","timeframe":"1m"}}`
	if err := os.WriteFile(filepath.Join(legacyDir, "manifest.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Migrate(layout, dir, "alice")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(res.Migrated) != 1 || res.Migrated[0] != runID {
		t.Fatalf("Migrated = %v, want [%s]", res.Migrated, runID)
	}

	entry, err := registry.FindRun(layout, "alice", runID)
	if err != nil {
		t.Fatalf("FindRun after migration: %v", err)
	}
	if entry.Symbol != "ETHUSD" {
		t.Fatalf("Symbol = %q, want ETHUSD", entry.Symbol)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	layout := ids.NewLayout(dir)

	runID := "run_legacy0000003"
	legacyDir := filepath.Join(dir, runID)
	if err := os.MkdirAll(legacyDir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"inputs_hash":"cafebabe","status":"COMPLETED","created_at":"2026-01-01T00:00:00Z","strategy":{"id":"hold"},"data":{"symbol":"BTCUSD","timeframe":"1m"}}`
	if err := os.WriteFile(filepath.Join(legacyDir, "manifest.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Migrate(layout, dir, "alice"); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}

	// Second call: nothing left at the top level, so nothing to do.
	res, err := Migrate(layout, dir, "alice")
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if len(res.Migrated) != 0 {
		t.Fatalf("second Migrate reported %v migrated, want none", res.Migrated)
	}
}

func TestMigrateRequiresDefaultUser(t *testing.T) {
	dir := t.TempDir()
	layout := ids.NewLayout(dir)
	if _, err := Migrate(layout, dir, ""); err == nil {
		t.Fatal("Migrate with empty defaultUser = nil error, want error")
	}
}
