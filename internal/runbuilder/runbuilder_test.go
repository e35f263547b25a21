package runbuilder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/buffquant/simrun/internal/ids"
)

const fiveBarCSV = `timestamp,open,high,low,close,volume
2026-01-01T00:00:00Z,100,101,99,100.5,10
2026-01-01T00:01:00Z,100.5,102,100,101.5,12
2026-01-01T00:02:00Z,101.5,103,101,102.5,8
2026-01-01T00:03:00Z,102.5,104,102,103.5,15
2026-01-01T00:04:00Z,103.5,105,103,104.5,9
`

func newTestLayout(t *testing.T) (ids.Layout, string) {
	t.Helper()
	runsRoot := t.TempDir()
	dataRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataRoot, "ohlcv.csv"), []byte(fiveBarCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	return ids.NewLayout(runsRoot), dataRoot
}

func holdRequest() Request {
	return Request{
		SchemaVersion: "1.0.0",
		DataSource: DataSource{
			Type:      "csv",
			Path:      "ohlcv.csv",
			Symbol:    "BTCUSD",
			Timeframe: "1m",
		},
		Strategy: StrategyRequest{ID: "hold"},
		Risk:     RiskRequest{Level: 5},
	}
}

func TestBuildRunCreatesArtifacts(t *testing.T) {
	layout, dataRoot := newTestLayout(t)

	out, err := BuildRun(layout, "alice", dataRoot, holdRequest())
	if err != nil {
		t.Fatalf("BuildRun: %v", err)
	}
	if !out.Created {
		t.Fatal("Created = false on first build, want true")
	}
	if out.RunID == "" {
		t.Fatal("RunID is empty")
	}

	runDir, err := layout.RunDir("alice", out.RunID)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		"manifest.json", "config.json", "metrics.json", "equity_curve.json",
		"timeline.json", "decision_records.jsonl", "trades.jsonl",
	} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Errorf("expected artifact %s: %v", name, err)
		}
	}
}

func TestBuildRunIdempotentReplay(t *testing.T) {
	layout, dataRoot := newTestLayout(t)
	req := holdRequest()

	first, err := BuildRun(layout, "alice", dataRoot, req)
	if err != nil {
		t.Fatalf("first BuildRun: %v", err)
	}
	second, err := BuildRun(layout, "alice", dataRoot, req)
	if err != nil {
		t.Fatalf("second BuildRun: %v", err)
	}

	if second.Created {
		t.Fatal("second identical BuildRun reported Created=true, want false (idempotent replay)")
	}
	if first.RunID != second.RunID {
		t.Fatalf("run_id differs across identical requests: %s vs %s", first.RunID, second.RunID)
	}
	if first.Manifest.InputsHash != second.Manifest.InputsHash {
		t.Fatal("inputs_hash differs across identical requests")
	}
}

func TestBuildRunConflictingRunID(t *testing.T) {
	layout, dataRoot := newTestLayout(t)

	req := holdRequest()
	req.RunID = "run_fixedid0001"
	if _, err := BuildRun(layout, "alice", dataRoot, req); err != nil {
		t.Fatalf("first BuildRun: %v", err)
	}

	req2 := req
	req2.Risk.Level = 1 // different inputs, same explicit run_id
	if _, err := BuildRun(layout, "alice", dataRoot, req2); err == nil {
		t.Fatal("BuildRun with same run_id but different inputs = nil error, want RUN_EXISTS")
	}
}

func TestBuildRunUserIsolation(t *testing.T) {
	layout, dataRoot := newTestLayout(t)
	req := holdRequest()

	aliceOut, err := BuildRun(layout, "alice", dataRoot, req)
	if err != nil {
		t.Fatalf("alice BuildRun: %v", err)
	}
	bobOut, err := BuildRun(layout, "bob", dataRoot, req)
	if err != nil {
		t.Fatalf("bob BuildRun: %v", err)
	}

	aliceDir, _ := layout.RunDir("alice", aliceOut.RunID)
	bobDir, _ := layout.RunDir("bob", bobOut.RunID)
	if aliceDir == bobDir {
		t.Fatal("alice and bob resolved to the same run directory")
	}
	if _, err := os.Stat(aliceDir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(bobDir); err != nil {
		t.Fatal(err)
	}
}

func TestNormalizeRejectsPathTraversal(t *testing.T) {
	_, dataRoot := newTestLayout(t)
	cases := []string{"../secret.csv", "/etc/passwd", "a/../../b.csv"}
	for _, p := range cases {
		req := holdRequest()
		req.DataSource.Path = p
		if _, _, err := Normalize(req, dataRoot); err == nil {
			t.Errorf("Normalize(path=%q) = nil error, want traversal rejection", p)
		}
	}
}

func TestNormalizeRejectsBadSchemaVersion(t *testing.T) {
	_, dataRoot := newTestLayout(t)
	req := holdRequest()
	req.SchemaVersion = "9.9.9"
	if _, _, err := Normalize(req, dataRoot); err == nil {
		t.Fatal("Normalize with unsupported schema_version = nil error, want error")
	}
}

func TestNormalizeRejectsInvalidRiskLevel(t *testing.T) {
	_, dataRoot := newTestLayout(t)
	req := holdRequest()
	req.Risk.Level = 0
	if _, _, err := Normalize(req, dataRoot); err == nil {
		t.Fatal("Normalize with risk.level=0 = nil error, want error")
	}
	req.Risk.Level = 6
	if _, _, err := Normalize(req, dataRoot); err == nil {
		t.Fatal("Normalize with risk.level=6 = nil error, want error")
	}
}

func TestInputsHashStableAcrossFieldOrder(t *testing.T) {
	_, dataRoot := newTestLayout(t)
	req := holdRequest()

	norm1, _, err := Normalize(req, dataRoot)
	if err != nil {
		t.Fatal(err)
	}
	norm2, _, err := Normalize(req, dataRoot)
	if err != nil {
		t.Fatal(err)
	}

	h1, err := InputsHash(norm1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := InputsHash(norm2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("InputsHash not stable: %s vs %s", h1, h2)
	}
}
