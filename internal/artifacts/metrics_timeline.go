package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/buffquant/simrun/internal/apierr"
)

// LoadMetrics loads the entire metrics.json file as a generic map (callers
// that need typed access decode from the same bytes via runbuilder.MetricsDoc).
func LoadMetrics(runDir string) (map[string]any, error) {
	b, err := os.ReadFile(filepath.Join(runDir, "metrics.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierr.MetricsMissingNF("metrics.json is missing")
		}
		return nil, apierr.Internal("cannot read metrics.json")
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, apierr.MetricsInvalid("metrics.json is not valid JSON")
	}
	return m, nil
}

// TimelineEvent mirrors runbuilder.TimelineEvent for read-side decoding.
type TimelineEvent struct {
	Seq    int    `json:"seq"`
	TSUTC  string `json:"ts_utc"`
	Stage  string `json:"stage"`
	Detail string `json:"detail,omitempty"`
}

// LoadTimeline loads timeline.json, normalizing event timestamps (already
// canonical UTC-Z at write time, so this is a structural decode + presence
// check rather than a reformat).
func LoadTimeline(runDir string) ([]TimelineEvent, error) {
	b, err := os.ReadFile(filepath.Join(runDir, "timeline.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierr.TimelineMissing("timeline.json is missing")
		}
		return nil, apierr.Internal("cannot read timeline.json")
	}
	var events []TimelineEvent
	if err := json.Unmarshal(b, &events); err != nil {
		return nil, apierr.TimelineInvalid("timeline.json is not valid JSON")
	}
	return events, nil
}
