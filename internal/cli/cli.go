// Package cli implements the simrunctl operator command line: readiness
// probing, registry reconciliation, and legacy-run migration, as thin
// wrappers over the internal/observability and internal/registry packages.
package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/buffquant/simrun/internal/config"
	"github.com/buffquant/simrun/internal/ids"
	"github.com/buffquant/simrun/internal/observability"
)

// Runner dispatches simrunctl subcommands.
type Runner struct {
	Version string
	Now     func() time.Time
	Stdout  io.Writer
	Stderr  io.Writer
}

// Run parses args and dispatches to the matching subcommand, returning a
// process exit code.
func (r Runner) Run(args []string) int {
	if r.Stdout == nil {
		r.Stdout = os.Stdout
	}
	if r.Stderr == nil {
		r.Stderr = os.Stderr
	}
	if r.Now == nil {
		r.Now = time.Now
	}

	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printRootHelp(r.Stdout)
		return 0
	}

	switch args[0] {
	case "ready":
		return r.runReady(args[1:])
	case "reconcile":
		return r.runReconcile(args[1:])
	case "migrate":
		return r.runMigrate(args[1:])
	case "version":
		fmt.Fprintln(r.Stdout, r.Version)
		return 0
	default:
		return r.failUsage(fmt.Sprintf("unknown command %q", args[0]))
	}
}

func (r Runner) runReady(args []string) int {
	fs := flag.NewFlagSet("ready", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	strict := fs.Bool("strict", false, "fail if any legacy run is pending migration")
	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("ready: invalid flags")
	}
	if *help {
		printReadyHelp(r.Stdout)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(r.Stderr, "SIMRUN_E_CONFIG: %s\n", err.Error())
		return 1
	}

	res := observability.CheckReadiness(cfg.RunsRoot, cfg.DefaultUser, *strict)
	if *jsonOut {
		return r.writeJSON(res)
	}

	if res.Ready {
		fmt.Fprintf(r.Stdout, "ready: OK runs_root=%s\n", cfg.RunsRoot)
		return 0
	}
	fmt.Fprintf(r.Stderr, "ready: FAIL runs_root=%s\n", cfg.RunsRoot)
	for _, c := range res.Checks {
		if !c.OK {
			fmt.Fprintf(r.Stderr, "  FAIL %s: %s\n", c.Name, c.Message)
		}
	}
	return 1
}

func (r Runner) runReconcile(args []string) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	user := fs.String("user", "", "user to reconcile (default from BUFF_DEFAULT_USER)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("reconcile: invalid flags")
	}
	if *help {
		printReconcileHelp(r.Stdout)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(r.Stderr, "SIMRUN_E_CONFIG: %s\n", err.Error())
		return 1
	}

	userID := *user
	if userID == "" {
		userID = cfg.DefaultUser
	}
	if userID == "" {
		return r.failUsage("reconcile: --user is required (no BUFF_DEFAULT_USER configured)")
	}

	layout := ids.NewLayout(cfg.RunsRoot)
	rows, err := observability.ProjectRuns(layout, userID)
	if err != nil {
		fmt.Fprintf(r.Stderr, "SIMRUN_E_RECONCILE: %s\n", err.Error())
		return 1
	}

	if *jsonOut {
		return r.writeJSON(rows)
	}

	fmt.Fprintf(r.Stdout, "reconcile: user=%s runs=%d\n", userID, len(rows))
	for _, row := range rows {
		line := fmt.Sprintf("  %s state=%s strategy=%s symbol=%s", row.RunID, row.State, row.StrategyID, row.Symbol)
		if len(row.MissingArtifacts) > 0 {
			line += fmt.Sprintf(" missing=%v", row.MissingArtifacts)
		}
		fmt.Fprintln(r.Stdout, line)
	}
	return 0
}

func (r Runner) runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	user := fs.String("user", "", "user to migrate legacy runs into (default from BUFF_DEFAULT_USER)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("migrate: invalid flags")
	}
	if *help {
		printMigrateHelp(r.Stdout)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(r.Stderr, "SIMRUN_E_CONFIG: %s\n", err.Error())
		return 1
	}

	userID := *user
	if userID == "" {
		userID = cfg.DefaultUser
	}

	layout := ids.NewLayout(cfg.RunsRoot)
	res, err := observability.Migrate(layout, cfg.RunsRoot, userID)
	if err != nil {
		fmt.Fprintf(r.Stderr, "SIMRUN_E_MIGRATE: %s\n", err.Error())
		return 1
	}

	if *jsonOut {
		return r.writeJSON(res)
	}

	fmt.Fprintf(r.Stdout, "migrate: migrated=%d skipped=%d\n", len(res.Migrated), len(res.Skipped))
	for _, id := range res.Migrated {
		fmt.Fprintf(r.Stdout, "  migrated %s\n", id)
	}
	for _, id := range res.Skipped {
		fmt.Fprintf(r.Stdout, "  skipped %s (already present)\n", id)
	}
	return 0
}

func (r Runner) writeJSON(v any) int {
	enc := json.NewEncoder(r.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(r.Stderr, "SIMRUN_E_IO: failed to encode json\n")
		return 1
	}
	return 0
}

func (r Runner) failUsage(msg string) int {
	fmt.Fprintf(r.Stderr, "SIMRUN_E_USAGE: %s\n", msg)
	return 2
}

func printRootHelp(w io.Writer) {
	fmt.Fprint(w, `simrunctl - simrun operator CLI

Usage:
  simrunctl ready [--strict] [--json]
  simrunctl reconcile [--user USER] [--json]
  simrunctl migrate [--user USER] [--json]
  simrunctl version

Run "simrunctl <command> --help" for details on a specific command.
`)
}

func printReadyHelp(w io.Writer) {
	fmt.Fprint(w, `simrunctl ready - check RUNS_ROOT reachability and legacy-run integrity

Usage:
  simrunctl ready [--strict] [--json]

Flags:
  --strict  fail if any legacy run is pending migration
  --json    print the full readiness report as JSON
`)
}

func printReconcileHelp(w io.Writer) {
	fmt.Fprint(w, `simrunctl reconcile - rebuild a user's run index from disk

Usage:
  simrunctl reconcile [--user USER] [--json]

Flags:
  --user  user_id to reconcile (defaults to BUFF_DEFAULT_USER)
  --json  print the projected run list as JSON
`)
}

func printMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `simrunctl migrate - move pre-registry runs under users/<user>/runs/

Usage:
  simrunctl migrate [--user USER] [--json]

Flags:
  --user  user_id to migrate legacy runs into (defaults to BUFF_DEFAULT_USER)
  --json  print the migration result as JSON
`)
}
