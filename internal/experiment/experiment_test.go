package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/buffquant/simrun/internal/ids"
	"github.com/buffquant/simrun/internal/runbuilder"
)

const fiveBarCSV = `timestamp,open,high,low,close,volume
2026-01-01T00:00:00Z,100,101,99,100.5,10
2026-01-01T00:01:00Z,100.5,102,100,101.5,12
2026-01-01T00:02:00Z,101.5,103,101,102.5,8
2026-01-01T00:03:00Z,102.5,104,102,103.5,15
2026-01-01T00:04:00Z,103.5,105,103,104.5,9
`

func newTestFixture(t *testing.T) (ids.Layout, string) {
	t.Helper()
	runsRoot := t.TempDir()
	dataRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataRoot, "ohlcv.csv"), []byte(fiveBarCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	return ids.NewLayout(runsRoot), dataRoot
}

func holdCandidate(level int) Candidate {
	return Candidate{
		RunConfig: runbuilder.Request{
			SchemaVersion: "1.0.0",
			DataSource: runbuilder.DataSource{
				Type: "csv", Path: "ohlcv.csv", Symbol: "BTCUSD", Timeframe: "1m",
			},
			Strategy: runbuilder.StrategyRequest{ID: "hold"},
			Risk:     runbuilder.RiskRequest{Level: level},
		},
	}
}

func TestCreateAllCandidatesSucceed(t *testing.T) {
	layout, dataRoot := newTestFixture(t)
	req := Request{
		SchemaVersion: "1.0.0",
		Candidates:    []Candidate{holdCandidate(1), holdCandidate(3), holdCandidate(5)},
	}

	out, err := Create(layout, "alice", dataRoot, req, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !out.Created {
		t.Fatal("Created = false on first creation, want true")
	}
	if out.Manifest.Status != "COMPLETED" {
		t.Fatalf("Status = %s, want COMPLETED", out.Manifest.Status)
	}
	if out.Manifest.Summary.Succeeded != 3 || out.Manifest.Summary.Failed != 0 {
		t.Fatalf("Summary = %+v, want 3 succeeded, 0 failed", out.Manifest.Summary)
	}
	for i, c := range out.Manifest.Candidates {
		if c.RunID == "" {
			t.Errorf("candidate %d has empty run_id", i)
		}
	}
}

func TestCreatePartialFailure(t *testing.T) {
	layout, dataRoot := newTestFixture(t)

	bad := holdCandidate(1)
	bad.RunConfig.Strategy = runbuilder.StrategyRequest{ID: "ma_cross"} // missing fast/slow params

	req := Request{
		SchemaVersion: "1.0.0",
		Candidates:    []Candidate{holdCandidate(5), bad},
	}

	out, err := Create(layout, "alice", dataRoot, req, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.Manifest.Status != "PARTIAL" {
		t.Fatalf("Status = %s, want PARTIAL", out.Manifest.Status)
	}
	if out.Manifest.Summary.Succeeded != 1 || out.Manifest.Summary.Failed != 1 {
		t.Fatalf("Summary = %+v, want 1 succeeded, 1 failed", out.Manifest.Summary)
	}
	if out.Manifest.Candidates[1].Error == nil {
		t.Fatal("failed candidate has nil Error")
	}
}

func TestCreateAllCandidatesFail(t *testing.T) {
	layout, dataRoot := newTestFixture(t)
	bad := holdCandidate(1)
	bad.RunConfig.Strategy = runbuilder.StrategyRequest{ID: "unknown"}

	req := Request{SchemaVersion: "1.0.0", Candidates: []Candidate{bad}}

	out, err := Create(layout, "alice", dataRoot, req, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.Manifest.Status != "FAILED" {
		t.Fatalf("Status = %s, want FAILED", out.Manifest.Status)
	}
}

func TestCreateRejectsTooManyCandidates(t *testing.T) {
	layout, dataRoot := newTestFixture(t)
	req := Request{SchemaVersion: "1.0.0", Candidates: []Candidate{holdCandidate(1), holdCandidate(2)}}

	if _, err := Create(layout, "alice", dataRoot, req, 1); err == nil {
		t.Fatal("Create with 2 candidates and a max of 1 = nil error, want error")
	}
}

func TestCreateRejectsEmptyCandidates(t *testing.T) {
	layout, dataRoot := newTestFixture(t)
	req := Request{SchemaVersion: "1.0.0"}

	if _, err := Create(layout, "alice", dataRoot, req, 0); err == nil {
		t.Fatal("Create with no candidates = nil error, want error")
	}
}

func TestCreateIdempotentOnIdenticalDigest(t *testing.T) {
	layout, dataRoot := newTestFixture(t)
	req := Request{SchemaVersion: "1.0.0", Candidates: []Candidate{holdCandidate(1), holdCandidate(5)}}

	first, err := Create(layout, "alice", dataRoot, req, 0)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, err := Create(layout, "alice", dataRoot, req, 0)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if second.Created {
		t.Fatal("second identical Create reported Created=true, want false")
	}
	if first.ExperimentID != second.ExperimentID {
		t.Fatalf("experiment_id differs: %s vs %s", first.ExperimentID, second.ExperimentID)
	}
}

func TestComparisonSummaryColumnOrder(t *testing.T) {
	layout, dataRoot := newTestFixture(t)
	req := Request{SchemaVersion: "1.0.0", Candidates: []Candidate{holdCandidate(1)}}

	out, err := Create(layout, "alice", dataRoot, req, 0)
	if err != nil {
		t.Fatal(err)
	}

	expDir, err := layout.ExperimentDir("alice", out.ExperimentID)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(expDir, "comparison_summary.json"))
	if err != nil {
		t.Fatalf("comparison_summary.json missing: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("comparison_summary.json is empty")
	}
}
