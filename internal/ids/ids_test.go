package ids

import "testing"

func TestValidateUserID(t *testing.T) {
	valid := []string{"alice", "bob.smith", "user-123", "a_b.c-9"}
	for _, id := range valid {
		if err := ValidateUserID(id); err != nil {
			t.Errorf("ValidateUserID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", ".", "..", "../etc", "a/b", "a\\b", "user%2f..", ""}
	for _, id := range invalid {
		if err := ValidateUserID(id); err == nil {
			t.Errorf("ValidateUserID(%q) = nil, want error", id)
		}
	}
}

func TestValidateRunIDPathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"run_..%2f..%2fetc",
		"a/b",
		"a\\b",
		"%2e%2e",
	}
	for _, id := range cases {
		if err := ValidateRunID(id); err == nil {
			t.Errorf("ValidateRunID(%q) = nil, want error", id)
		}
	}

	if err := ValidateRunID("run_abc123def456"); err != nil {
		t.Errorf("ValidateRunID(valid) = %v, want nil", err)
	}
	if err := ValidateRunID("AB"); err == nil {
		t.Error("ValidateRunID should reject uppercase and too-short ids")
	}
}

func TestValidateCandidateID(t *testing.T) {
	if err := ValidateCandidateID("cand_001"); err != nil {
		t.Errorf("ValidateCandidateID(valid) = %v, want nil", err)
	}
	if err := ValidateCandidateID("../cand"); err == nil {
		t.Error("ValidateCandidateID should reject traversal")
	}
}

func TestDeriveRunID(t *testing.T) {
	got := DeriveRunID("abcdef0123456789")
	if got != "run_abcdef012345" {
		t.Fatalf("DeriveRunID = %q, want run_abcdef012345", got)
	}
}

func TestDeriveRunIDShortHash(t *testing.T) {
	got := DeriveRunID("abc")
	if got != "run_abc" {
		t.Fatalf("DeriveRunID(short) = %q, want run_abc", got)
	}
}

func TestDeriveCandidateID(t *testing.T) {
	cases := map[int]string{0: "cand_001", 1: "cand_002", 99: "cand_100"}
	for idx, want := range cases {
		if got := DeriveCandidateID(idx); got != want {
			t.Errorf("DeriveCandidateID(%d) = %q, want %q", idx, got, want)
		}
	}
}

func TestDeriveExperimentID(t *testing.T) {
	got := DeriveExperimentID("deadbeefcafebabe")
	if got != "exp_deadbeefcafe" {
		t.Fatalf("DeriveExperimentID = %q, want exp_deadbeefcafe", got)
	}
}

func TestValidateArtifactName(t *testing.T) {
	valid := []string{"manifest.json", "trades.jsonl", "equity_curve.json"}
	for _, name := range valid {
		if err := ValidateArtifactName(name); err != nil {
			t.Errorf("ValidateArtifactName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", ".", "..", "../manifest.json", "a/b.json", ".hidden", "%2e%2e/x"}
	for _, name := range invalid {
		if err := ValidateArtifactName(name); err == nil {
			t.Errorf("ValidateArtifactName(%q) = nil, want error", name)
		}
	}
}

func TestLayoutRunDirContainment(t *testing.T) {
	layout := NewLayout("/runs_root")

	dir, err := layout.RunDir("alice", "run_abc123def456")
	if err != nil {
		t.Fatalf("RunDir(valid): %v", err)
	}
	want := "/runs_root/users/alice/runs/run_abc123def456"
	if dir != want {
		t.Fatalf("RunDir = %q, want %q", dir, want)
	}
}

func TestLayoutExperimentDir(t *testing.T) {
	layout := NewLayout("/runs_root")
	dir, err := layout.ExperimentDir("alice", "exp_deadbeefcafe")
	if err != nil {
		t.Fatalf("ExperimentDir: %v", err)
	}
	want := "/runs_root/users/alice/experiments/exp_deadbeefcafe"
	if dir != want {
		t.Fatalf("ExperimentDir = %q, want %q", dir, want)
	}
}

func TestLayoutIndexAndLockPaths(t *testing.T) {
	layout := NewLayout("/runs_root")

	idx, err := layout.IndexPath("alice")
	if err != nil {
		t.Fatal(err)
	}
	if idx != "/runs_root/users/alice/index.json" {
		t.Fatalf("IndexPath = %q", idx)
	}

	lock, err := layout.LockDir("alice")
	if err != nil {
		t.Fatal(err)
	}
	if lock != "/runs_root/users/alice/.registry.lock" {
		t.Fatalf("LockDir = %q", lock)
	}
}
