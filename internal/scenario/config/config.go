// Package config carries the Scenario Engine's ambient configuration:
// the environment variables spec.md §6 names, and the YAML-decoded
// process-wide override file described there and in SPEC_FULL.md §2/§5.
// Shape grounded on internal/attractor/engine/config.go's RunConfigFile
// (yaml.v3 tags, pointer fields for "unset" vs "explicit zero").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Flags mirrors the FLAGS environment variable's keys (spec.md §6).
type Flags struct {
	FatalIssues    bool
	FatalWarnings  bool
	FatalCriticals bool
	PrintIssues    bool
	PrintWarnings  bool
	PrintCriticals bool
}

// Env is the process environment the loader/engine consult, parsed once at
// startup (spec.md §6 "Environment").
type Env struct {
	ScenariosPath      []string // SCENARIOS_PATH, platform-separator-delimited
	UUID               string
	Server             string // host:port for report streaming
	OutputFiles        []string
	Flags              Flags
	WaitMultiplier     float64 // SCENARIO_WAIT_MULTIPLIER; 0 disables waits
	DumpDotDir         string
}

// FromOS reads Env from the real process environment.
func FromOS() Env {
	return Parse(func(key string) string { return os.Getenv(key) })
}

// Parse builds an Env from an arbitrary lookup function, so tests can avoid
// touching the real environment.
func Parse(getenv func(string) string) Env {
	e := Env{
		WaitMultiplier: 1.0,
	}
	if v := getenv("SCENARIOS_PATH"); v != "" {
		e.ScenariosPath = splitPathList(v)
	}
	e.UUID = getenv("UUID")
	e.Server = getenv("SERVER")
	if v := getenv("OUTPUT_FILES"); v != "" {
		e.OutputFiles = splitPathList(v)
	}
	e.Flags = parseFlags(getenv("FLAGS"))
	if v := getenv("SCENARIO_WAIT_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			e.WaitMultiplier = f
		}
	}
	e.DumpDotDir = getenv("DUMP_DOT_DIR")
	return e
}

func splitPathList(v string) []string {
	parts := strings.Split(v, string(os.PathListSeparator))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseFlags accepts "key=value,key=value" pairs, matching the source's
// FLAGS convention; unknown keys are ignored.
func parseFlags(v string) Flags {
	var f Flags
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		key := strings.TrimSpace(kv[0])
		val := true
		if len(kv) == 2 {
			val = parseBool(kv[1], true)
		}
		switch key {
		case "fatal_issues":
			f.FatalIssues = val
		case "fatal_warnings":
			f.FatalWarnings = val
		case "fatal_criticals":
			f.FatalCriticals = val
		case "print_issues":
			f.PrintIssues = val
		case "print_warnings":
			f.PrintWarnings = val
		case "print_criticals":
			f.PrintCriticals = val
		}
	}
	return f
}

func parseBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		return true
	case "false", "0", "no", "n":
		return false
	default:
		return def
	}
}

// ActionOverride describes one entry of the "process-wide list of
// structures" the Configuration interface names (spec.md §6): either an
// injected config action, a dispatcher-interval override, or a
// max-latency/max-dropped override.
type ActionOverride struct {
	Action                       string            `yaml:"action,omitempty"`
	ActionParams                 map[string]string `yaml:"params,omitempty"`
	ScenarioActionExecutionIntervalMS *int         `yaml:"scenario-action-execution-interval,omitempty"`
	MaxLatency                   *time.Duration    `yaml:"max-latency,omitempty"`
	MaxDropped                   *int              `yaml:"max-dropped,omitempty"`
}

// File is the on-disk YAML shape for the process-wide config list plus the
// report severity overrides supplement (SPEC_FULL.md §5).
type File struct {
	Overrides       []ActionOverride  `yaml:"overrides,omitempty"`
	ReportLevels    map[string]string `yaml:"report_levels,omitempty"`
}

// Load decodes a config.File from path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &f, nil
}

// ResolveScenariosPathDirs returns the directories to search for a scenario
// basename, in the order spec.md §4.4 specifies: (ii) SCENARIOS_PATH
// entries, then (iii) ./data/scenarios, then (iv) user data dir, (v) system
// data dir. The absolute-path and file-basename-as-given cases ((i)) are
// handled by the caller before reaching this list.
func (e Env) ResolveScenariosPathDirs() []string {
	dirs := append([]string{}, e.ScenariosPath...)
	dirs = append(dirs, filepath.Join(".", "data", "scenarios"))
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "gstreamer-1.0", "validate", "scenarios"))
	}
	dirs = append(dirs, filepath.Join(string(filepath.Separator), "usr", "share", "gstreamer-1.0", "validate", "scenarios"))
	return dirs
}
