// Package config resolves server configuration from the environment, with
// an optional YAML file layered beneath it (env wins), following the
// teacher's config precedence idiom (env > file > default) collapsed for a
// long-running server rather than a one-shot CLI invocation.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved runtime configuration for simrund.
type Config struct {
	RunsRoot                string
	DataRoot                string
	DefaultUser             string
	UserHMACSecret          string
	KillSwitch              bool
	DevUIPort               string
	HTTPMaxInFlight         int
	MaxExperimentCandidates int
}

type fileConfig struct {
	RunsRoot                string `yaml:"runs_root"`
	DataRoot                string `yaml:"data_root"`
	DefaultUser             string `yaml:"default_user"`
	UserHMACSecret          string `yaml:"user_hmac_secret"`
	KillSwitch              *bool  `yaml:"kill_switch"`
	DevUIPort               string `yaml:"dev_ui_port"`
	HTTPMaxInFlight         int    `yaml:"http_max_inflight"`
	MaxExperimentCandidates int    `yaml:"max_experiment_candidates"`
}

const (
	defaultHTTPMaxInFlight         = 64
	defaultMaxExperimentCandidates = 50
)

// Load resolves Config from environment variables, optionally layered under
// a YAML file named by SIMRUN_CONFIG (or ./simrun.config.yaml if present).
func Load() (Config, error) {
	var fc fileConfig
	if path := resolveConfigPath(); path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			if uerr := yaml.Unmarshal(b, &fc); uerr != nil {
				return Config{}, uerr
			}
		}
	}

	cfg := Config{
		RunsRoot:                firstNonEmpty(os.Getenv("RUNS_ROOT"), fc.RunsRoot),
		DataRoot:                firstNonEmpty(os.Getenv("SIMRUN_DATA_ROOT"), fc.DataRoot, "."),
		DefaultUser:             firstNonEmpty(os.Getenv("BUFF_DEFAULT_USER"), fc.DefaultUser),
		UserHMACSecret:          firstNonEmpty(os.Getenv("BUFF_USER_HMAC_SECRET"), fc.UserHMACSecret),
		DevUIPort:               firstNonEmpty(os.Getenv("DEV_UI_PORT"), fc.DevUIPort),
		HTTPMaxInFlight:         defaultHTTPMaxInFlight,
		MaxExperimentCandidates: defaultMaxExperimentCandidates,
	}

	if v := os.Getenv("SIMRUN_HTTP_MAX_INFLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPMaxInFlight = n
		}
	} else if fc.HTTPMaxInFlight > 0 {
		cfg.HTTPMaxInFlight = fc.HTTPMaxInFlight
	}

	if fc.MaxExperimentCandidates > 0 {
		cfg.MaxExperimentCandidates = fc.MaxExperimentCandidates
	}

	cfg.KillSwitch = anyKillSwitchEnvSet()
	if !cfg.KillSwitch && fc.KillSwitch != nil {
		cfg.KillSwitch = *fc.KillSwitch
	}

	return cfg, nil
}

// anyKillSwitchEnvSet implements spec.md §6's "KILL_SWITCH_*" wildcard: any
// environment variable whose name starts with KILL_SWITCH_ and holds a
// truthy value disables new-run creation.
func anyKillSwitchEnvSet() bool {
	for _, kv := range os.Environ() {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "KILL_SWITCH_") && name != "KILL_SWITCH" {
			continue
		}
		if isTruthy(val) {
			return true
		}
	}
	return false
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func resolveConfigPath() string {
	if v := os.Getenv("SIMRUN_CONFIG"); v != "" {
		return v
	}
	if _, err := os.Stat("simrun.config.yaml"); err == nil {
		return "simrun.config.yaml"
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

