package registry

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/buffquant/simrun/internal/ids"
)

func newTestLayout(t *testing.T) ids.Layout {
	t.Helper()
	return ids.NewLayout(t.TempDir())
}

func completeEntry(runID string) Entry {
	return Entry{
		RunID:            runID,
		CreatedAt:        "2026-01-01T00:00:00.000Z",
		Symbol:           "BTCUSD",
		Timeframe:        "1m",
		Status:           "COMPLETED",
		ManifestPath:     "manifest.json",
		ArtifactsPresent: RequiredArtifacts,
		InputsHash:       "abc123",
		StrategyID:       "hold",
	}
}

func makeRunDir(t *testing.T, layout ids.Layout, userID, runID string, artifacts []string) {
	t.Helper()
	runDir, err := layout.RunDir(userID, runID)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range artifacts {
		if err := os.WriteFile(filepath.Join(runDir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoadMissingIndexIsEmpty(t *testing.T) {
	layout := newTestLayout(t)
	idx, err := Load(layout, "alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(idx.Runs) != 0 {
		t.Fatalf("Runs = %v, want empty", idx.Runs)
	}
}

func TestUpsertThenFindRun(t *testing.T) {
	layout := newTestLayout(t)
	entry := completeEntry("run_abc123def456")

	if err := Upsert(layout, "alice", entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := FindRun(layout, "alice", "run_abc123def456")
	if err != nil {
		t.Fatalf("FindRun: %v", err)
	}
	if got.InputsHash != entry.InputsHash {
		t.Fatalf("FindRun returned %+v, want InputsHash=%s", got, entry.InputsHash)
	}
}

func TestUpsertReplacesExistingEntry(t *testing.T) {
	layout := newTestLayout(t)
	entry := completeEntry("run_abc123def456")
	if err := Upsert(layout, "alice", entry); err != nil {
		t.Fatal(err)
	}

	entry.Status = "CORRUPTED"
	if err := Upsert(layout, "alice", entry); err != nil {
		t.Fatal(err)
	}

	idx, err := Load(layout, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(idx.Runs) != 1 {
		t.Fatalf("len(Runs) = %d, want 1 (replace, not append)", len(idx.Runs))
	}
	if idx.Runs[0].Status != "CORRUPTED" {
		t.Fatalf("Status = %s, want CORRUPTED", idx.Runs[0].Status)
	}
}

func TestFindRunNotFound(t *testing.T) {
	layout := newTestLayout(t)
	if _, err := FindRun(layout, "alice", "run_doesnotexist0"); err == nil {
		t.Fatal("FindRun(missing) = nil error, want RUN_NOT_FOUND")
	}
}

func TestUserIsolation(t *testing.T) {
	layout := newTestLayout(t)
	if err := Upsert(layout, "alice", completeEntry("run_abc123def456")); err != nil {
		t.Fatal(err)
	}
	if _, err := FindRun(layout, "bob", "run_abc123def456"); err == nil {
		t.Fatal("FindRun found alice's run under bob's namespace, want isolation")
	}
}

func TestReconcileDetectsMissingArtifacts(t *testing.T) {
	layout := newTestLayout(t)
	makeRunDir(t, layout, "alice", "run_partial00001", RequiredArtifacts[:3])

	entry := completeEntry("run_partial00001")
	entry.MissingArtifacts = nil
	if err := Upsert(layout, "alice", entry); err != nil {
		t.Fatal(err)
	}

	refreshed, err := Reconcile(layout, "alice")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(refreshed) != 1 {
		t.Fatalf("len(refreshed) = %d, want 1", len(refreshed))
	}
	if refreshed[0].Status != "CORRUPTED" {
		t.Fatalf("Status = %s, want CORRUPTED", refreshed[0].Status)
	}
	if len(refreshed[0].MissingArtifacts) == 0 {
		t.Fatal("MissingArtifacts is empty, want the 4 missing required files")
	}
}

func TestReconcileDeletedRunDirectory(t *testing.T) {
	layout := newTestLayout(t)
	entry := completeEntry("run_deleted000001")
	if err := Upsert(layout, "alice", entry); err != nil {
		t.Fatal(err)
	}

	refreshed, err := Reconcile(layout, "alice")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if refreshed[0].Status != "CORRUPTED" {
		t.Fatalf("Status = %s, want CORRUPTED for a run whose directory no longer exists", refreshed[0].Status)
	}
}

func TestUpsertConcurrentDoesNotLoseWrites(t *testing.T) {
	layout := newTestLayout(t)

	var wg sync.WaitGroup
	n := 10
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := completeEntry("run_concurrent" + string(rune('a'+i)) + "000")
			_ = Upsert(layout, "alice", e)
		}(i)
	}
	wg.Wait()

	idx, err := Load(layout, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(idx.Runs) != n {
		t.Fatalf("len(Runs) = %d, want %d (concurrent upserts under the lock must not clobber each other)", len(idx.Runs), n)
	}
}
