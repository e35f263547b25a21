package ids

import (
	"path/filepath"
	"strings"

	"github.com/buffquant/simrun/internal/apierr"
)

// Layout resolves the filesystem layout rooted at runs_root (spec.md §3):
//
//	<runs_root>/users/<user_id>/runs/<run_id>/...
//	<runs_root>/users/<user_id>/experiments/<experiment_id>/...
//	<runs_root>/users/<user_id>/inputs/...
//	<runs_root>/users/<user_id>/index.json
//	<runs_root>/users/<user_id>/.registry.lock
type Layout struct {
	RunsRoot string
}

func NewLayout(runsRoot string) Layout {
	return Layout{RunsRoot: filepath.Clean(runsRoot)}
}

func (l Layout) UserRoot(userID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	return l.contain(filepath.Join(l.RunsRoot, "users", userID))
}

func (l Layout) RunsDir(userID string) (string, error) {
	root, err := l.UserRoot(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "runs"), nil
}

func (l Layout) RunDir(userID, runID string) (string, error) {
	if err := ValidateRunID(runID); err != nil {
		return "", err
	}
	runsDir, err := l.RunsDir(userID)
	if err != nil {
		return "", err
	}
	return l.contain(filepath.Join(runsDir, runID))
}

func (l Layout) ExperimentsDir(userID string) (string, error) {
	root, err := l.UserRoot(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "experiments"), nil
}

func (l Layout) ExperimentDir(userID, experimentID string) (string, error) {
	expsDir, err := l.ExperimentsDir(userID)
	if err != nil {
		return "", err
	}
	return l.contain(filepath.Join(expsDir, experimentID))
}

func (l Layout) InputsDir(userID string) (string, error) {
	root, err := l.UserRoot(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "inputs"), nil
}

func (l Layout) IndexPath(userID string) (string, error) {
	root, err := l.UserRoot(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "index.json"), nil
}

func (l Layout) LockDir(userID string) (string, error) {
	root, err := l.UserRoot(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, ".registry.lock"), nil
}

func (l Layout) ExperimentLockDir(userID, experimentID string) (string, error) {
	expsDir, err := l.ExperimentsDir(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(expsDir, "."+experimentID+".lock"), nil
}

// contain resolves path (already joined under a trusted root) and verifies
// it is still a descendant of, or equal to, l.RunsRoot. This is a pure
// lexical check (no EvalSymlinks) because every component has already been
// validated by ValidateUserID/ValidateRunID against a strict allowlist
// charset that cannot itself produce "..", so this is a defense-in-depth
// belt rather than the primary guard.
func (l Layout) contain(path string) (string, error) {
	resolved := filepath.Clean(path)
	root := filepath.Clean(l.RunsRoot)
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", apierr.RunConfigInvalid("resolved path escapes runs_root")
	}
	return resolved, nil
}

// ValidateArtifactName enforces spec.md §4.B: artifact names requested via
// HTTP must be a single path component with no traversal segments, hidden
// files, or separators.
func ValidateArtifactName(name string) error {
	if name == "" || name == "." || name == ".." {
		return apierr.ArtifactNotFound("invalid artifact name")
	}
	if strings.HasPrefix(name, ".") {
		return apierr.ArtifactNotFound("hidden artifact names are not allowed")
	}
	if strings.ContainsAny(name, "/\\") {
		return apierr.ArtifactNotFound("artifact name must not contain path separators")
	}
	if strings.Contains(strings.ToLower(name), "%2e") || strings.Contains(strings.ToLower(name), "%2f") {
		return apierr.ArtifactNotFound("invalid artifact name")
	}
	return nil
}
