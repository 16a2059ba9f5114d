package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/validatekit/scenario/internal/scenario/action"
	"github.com/validatekit/scenario/internal/scenario/registry"
	"github.com/validatekit/scenario/internal/scenario/vars"
)

// Description holds the parsed fields of the scenario's single
// "description" structure (spec.md §4.4).
type Description struct {
	IsConfig          bool
	HandlesStates     bool
	PipelineName      string
	MaxLatencySeconds float64
	MaxDropped        int
	Seek              bool
	ReversePlayback   bool
	NeedClockSync     bool
	MinMediaDuration  float64
	MinAudioTrack     int
	MinVideoTrack     int
	DurationSeconds   float64
	Summary           string
}

// Result is everything the Loader produces for one top-level scenario
// reference (spec.md §4.4: "produce the three action queues").
type Result struct {
	Description       Description
	MainQueue         []*action.Action
	OnAdditionQueue   []*action.Action
	ConfigDischarged  int // actions executed immediately at load time
	Vars              *vars.Store
	NeedClockSync     bool
}

// Loader resolves, parses, and validates scenario files into a Result.
type Loader struct {
	Registry   *registry.Registry
	SearchDirs []string

	// seenHashes tracks the blake3 content hash of every file included so
	// far in the current LoadScenarios call, so an include cycle is
	// detected deterministically regardless of the path spelling used to
	// reach it a second time (SPEC_FULL.md §3 domain-stack wiring:
	// blake3 → "loader include-content hashing for cycle detection").
	seenHashes map[string]bool

	actionNumber int
	sawNonConfig bool
}

func New(reg *registry.Registry, searchDirs []string) *Loader {
	return &Loader{Registry: reg, SearchDirs: searchDirs}
}

// LoadScenarios parses the colon-separated scenario reference list into a
// single Result, merging config-scenario contributions and enforcing the
// "exactly zero or one non-config scenario" constraint (spec.md §4.4).
func (l *Loader) LoadScenarios(refList string) (*Result, error) {
	refs := SplitReferences(refList)
	l.seenHashes = map[string]bool{}
	l.actionNumber = 0
	l.sawNonConfig = false

	res := &Result{Vars: vars.New()}
	for _, ref := range refs {
		path, err := ResolveReference(ref, l.SearchDirs)
		if err != nil {
			return nil, err
		}
		if err := l.loadFile(path, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (l *Loader) loadFile(path string, res *Result) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario %s: %w", path, err)
	}

	sum := blake3.Sum256(content)
	hash := string(sum[:])
	if l.seenHashes[hash] {
		return fmt.Errorf("scenario %s: include cycle detected", path)
	}
	l.seenHashes[hash] = true

	if err := l.loadVarsManifest(path, res.Vars); err != nil {
		return err
	}

	structures, err := newParser(string(content)).parseAll()
	if err != nil {
		return fmt.Errorf("parse scenario %s: %w", path, err)
	}

	isConfigFile := false
	var localDescription *Description

	for _, st := range structures {
		switch st.Name {
		case "description":
			d := parseDescription(st)
			if d.IsConfig {
				isConfigFile = true
			} else {
				if localDescription != nil {
					return fmt.Errorf("scenario %s: multiple description structures", path)
				}
				localDescription = &d
			}
		case "include":
			loc, ok := st.Fields["location"].(string)
			if !ok || loc == "" {
				return fmt.Errorf("scenario %s: include missing location field", path)
			}
			incPath, err := ResolveReference(loc, append([]string{filepath.Dir(path)}, l.SearchDirs...))
			if err != nil {
				return fmt.Errorf("scenario %s: %w", path, err)
			}
			if err := l.loadFile(incPath, res); err != nil {
				return err
			}
		default:
			if err := l.loadAction(st, path, isConfigFile, res); err != nil {
				return err
			}
		}
	}

	if localDescription != nil {
		if isConfigFile {
			return fmt.Errorf("scenario %s: a config scenario cannot also carry a non-config description", path)
		}
		if l.sawNonConfig {
			return fmt.Errorf("scenario %s: a second non-config scenario was loaded; exactly zero or one is allowed", path)
		}
		l.sawNonConfig = true
		res.Description = *localDescription
		if localDescription.NeedClockSync {
			res.NeedClockSync = true
		}
	}

	return nil
}

func (l *Loader) loadAction(st rawStructure, path string, isConfigFile bool, res *Result) error {
	typ := l.Registry.Lookup(st.Name)
	if typ == nil {
		if optional, _ := st.Fields["optional-action-type"].(bool); optional {
			return nil
		}
		return fmt.Errorf("scenario %s line %d: unknown action type %q", path, st.Line, st.Name)
	}

	for _, p := range typ.Parameters {
		if !p.Mandatory {
			continue
		}
		if _, ok := st.Fields[p.Name]; !ok {
			return fmt.Errorf("scenario %s line %d: action %q missing mandatory parameter %q", path, st.Line, st.Name, p.Name)
		}
	}

	if err := typ.Schema().Validate(st.Fields); err != nil {
		return fmt.Errorf("scenario %s line %d: action %q parameter validation: %w", path, st.Line, st.Name, err)
	}

	asConfig, _ := st.Fields["as-config"].(bool)
	if typ.Flags.Has(registry.FlagHandledInConfig) || isConfigFile || asConfig {
		if typ.Execute == nil {
			return fmt.Errorf("scenario %s line %d: config action %q has no handler", path, st.Line, st.Name)
		}
		if _, err := typ.Execute(registry.Context{Structure: st.Fields}); err != nil {
			return fmt.Errorf("scenario %s line %d: config action %q: %w", path, st.Line, st.Name, err)
		}
		res.ConfigDischarged++
		return nil
	}

	l.actionNumber++
	act := action.New(typ, st.Fields, l.actionNumber)
	if optional, ok := st.Fields["optional"].(bool); ok && optional && typ.Flags.Has(registry.FlagCanBeOptional) {
		act.Flags.Optional = true
	}

	_, hasPlaybackTime := st.Fields["playback-time"]
	if typ.Flags.Has(registry.FlagCanExecuteOnAddition) && !hasPlaybackTime && !anyQueuedHasPlaybackTime(res.MainQueue) {
		res.OnAdditionQueue = append(res.OnAdditionQueue, act)
		return nil
	}

	res.MainQueue = append(res.MainQueue, act)
	return nil
}

func anyQueuedHasPlaybackTime(queue []*action.Action) bool {
	for _, a := range queue {
		if _, ok := a.Structure["playback-time"]; ok {
			return true
		}
	}
	return false
}

func (l *Loader) loadVarsManifest(scenarioPath string, store *vars.Store) error {
	manifestPath := varsManifestPath(scenarioPath)
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read vars manifest %s: %w", manifestPath, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return fmt.Errorf("parse vars manifest %s: %w", manifestPath, err)
	}
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			store.SetString(k, t)
		case int:
			store.SetNumber(k, float64(t))
		case float64:
			store.SetNumber(k, t)
		default:
			return fmt.Errorf("vars manifest %s: key %q has unsupported value type %T", manifestPath, k, v)
		}
	}
	return nil
}

func parseDescription(st rawStructure) Description {
	d := Description{}
	d.IsConfig, _ = st.Fields["is-config"].(bool)
	d.HandlesStates, _ = st.Fields["handles-states"].(bool)
	d.PipelineName, _ = st.Fields["pipeline-name"].(string)
	d.MaxLatencySeconds = numField(st.Fields, "max-latency")
	d.MaxDropped = int(numField(st.Fields, "max-dropped"))
	d.Seek, _ = st.Fields["seek"].(bool)
	d.ReversePlayback, _ = st.Fields["reverse-playback"].(bool)
	d.NeedClockSync, _ = st.Fields["need-clock-sync"].(bool)
	d.MinMediaDuration = numField(st.Fields, "min-media-duration")
	d.MinAudioTrack = int(numField(st.Fields, "min-audio-track"))
	d.MinVideoTrack = int(numField(st.Fields, "min-video-track"))
	d.DurationSeconds = numField(st.Fields, "duration")
	d.Summary, _ = st.Fields["summary"].(string)
	return d
}

func numField(fields map[string]any, name string) float64 {
	switch v := fields[name].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	default:
		return 0
	}
}
