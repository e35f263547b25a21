package httpapi

import (
	"os"

	"github.com/buffquant/simrun/internal/apierr"
)

// checkRunsRoot implements spec.md §6: RUNS_ROOT unset/missing/invalid/not
// writable all fail the request before any run-level logic runs.
func checkRunsRoot(runsRoot string) error {
	if runsRoot == "" {
		return apierr.RunsRootUnset("RUNS_ROOT is not configured")
	}
	info, err := os.Stat(runsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return apierr.RunsRootMissing("RUNS_ROOT does not exist on disk")
		}
		return apierr.RunsRootInvalid(err.Error())
	}
	if !info.IsDir() {
		return apierr.RunsRootInvalid("RUNS_ROOT is not a directory")
	}
	probe, err := os.CreateTemp(runsRoot, ".writable_probe_")
	if err != nil {
		return apierr.RunsRootNotWritable("RUNS_ROOT is not writable")
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}
