// Package action implements the Action Lifecycle (C5): the per-action
// state machine, variable-substitution/time-coercion/repeat resolution
// done by Prepare, and the sub-action/repeat/timeout semantics of spec.md
// §4.5. The state enum follows the shape of the teacher's
// runtime.StageStatus (internal/attractor/runtime/status.go): a string
// type with a canonicalizing Parse function and a Valid method, generalized
// from StageStatus's five outcome values to the engine's eight lifecycle
// states.
package action

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/validatekit/scenario/internal/scenario/expr"
	"github.com/validatekit/scenario/internal/scenario/registry"
	"github.com/validatekit/scenario/internal/scenario/vars"
)

// State is one of the Action Lifecycle's states (spec.md §4.5):
//
//	NONE ──prepare──► READY ──execute──► {OK, ERROR, ASYNC, INTERLACED}
type State string

const (
	StateNone          State = "none"
	StateReady         State = "ready"
	StateOK            State = "ok"
	StateError         State = "error"
	StateErrorReported State = "error_reported"
	StateAsync         State = "async"
	StateInterlaced    State = "interlaced"
	StateInProgress    State = "in_progress"
)

// ParseState canonicalizes a handler's return value into a State.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return StateNone, nil
	case "ready":
		return StateReady, nil
	case "ok", "success":
		return StateOK, nil
	case "error", "fail", "failure":
		return StateError, nil
	case "error_reported", "error-reported":
		return StateErrorReported, nil
	case "async":
		return StateAsync, nil
	case "interlaced":
		return StateInterlaced, nil
	case "in_progress", "in-progress":
		return StateInProgress, nil
	default:
		return "", fmt.Errorf("invalid action state: %q", s)
	}
}

// Valid reports whether s is one of the eight lifecycle states.
func (s State) Valid() bool {
	_, err := ParseState(string(s))
	return err == nil
}

// Terminal reports whether s is a state the dispatcher will not re-enter a
// handler from without an external set_done/repeat/sub-action transition.
func (s State) Terminal() bool {
	switch s {
	case StateOK, StateError, StateErrorReported:
		return true
	default:
		return false
	}
}

// Flags are the per-action bookkeeping bits named in spec.md §4.
type Flags struct {
	Printed                bool
	Optional               bool
	ExecutingLastSubaction bool
	PendingSetDone         bool
	NeedsPlaybackParsing   bool
}

// Action is one queued or in-flight action instance (spec.md §4, "Action:
// Record").
type Action struct {
	Type *registry.Type

	// BaseType is Type as loaded, before any sub-action swap (spec.md
	// §4.5). Type is temporarily repointed at the sub-action's type while
	// it runs; ResetForRepeat restores Type from BaseType so a repeated
	// parent iteration re-dispatches the parent's own handler, not
	// whichever sub-action type last ran.
	BaseType *registry.Type

	// Structure is the working parameter set; handlers may mutate it
	// (notably after variable substitution). MainStructure is the
	// as-loaded original, restored before each repeat iteration.
	Structure     map[string]any
	MainStructure map[string]any

	PlaybackTime         time.Duration
	PlaybackTimeDeferred string // unresolved expression, valid while NeedsPlaybackParsing

	Timeout time.Duration
	Repeat  int

	ActionNumber int
	State        State
	Flags        Flags

	ExecutionTime time.Time

	// Scenario is a weak back-pointer to the owning engine.Scenario,
	// nilled on Finalize (spec.md §4: "a weak reference"). Typed as any to
	// avoid an import cycle with internal/scenario/engine.
	Scenario any
}

// New constructs a READY-bound action from a loaded structure. Prepare must
// run before Execute.
func New(typ *registry.Type, structure map[string]any, actionNumber int) *Action {
	main := make(map[string]any, len(structure))
	for k, v := range structure {
		main[k] = v
	}
	return &Action{
		Type:          typ,
		BaseType:      typ,
		Structure:     structure,
		MainStructure: main,
		ActionNumber:  actionNumber,
		State:         StateNone,
	}
}

// Finalize drops the weak scenario reference so the Action can be released
// independently of its owning Scenario (spec.md §4: "on finalize it drops
// all three queues").
func (a *Action) Finalize() {
	a.Scenario = nil
}

// ResetForRepeat restores Structure from MainStructure before a repeat
// iteration (spec.md §4.5: "Repeat restores structure from main_structure
// before each iteration.").
func (a *Action) ResetForRepeat() {
	fresh := make(map[string]any, len(a.MainStructure))
	for k, v := range a.MainStructure {
		fresh[k] = v
	}
	a.Structure = fresh
	a.Type = a.BaseType
	a.Flags.ExecutingLastSubaction = false
	a.State = StateReady
}

// SubAction returns the raw inline-structure or string-form value stored
// under structure["sub-action"], or nil if there isn't one (spec.md §4.5).
// Resolving it into a concrete action type and field set is the caller's
// job: that needs both the structure-text parser and the type registry,
// and importing either here would cycle back through this package (the
// loader that owns the parser already imports action).
func (a *Action) SubAction() (any, bool) {
	raw, ok := a.Structure["sub-action"]
	if !ok {
		return nil, false
	}
	return raw, true
}

// Prepare performs spec.md §4.5's pre-execute pass: variable substitution
// over every string field of Structure, time-field coercion for fields the
// parameter schema declares as "time"/"double" (a string value there is
// evaluated as an expression and replaced by its float64 result), and
// repeat resolution.
func (a *Action) Prepare(store *vars.Store) error {
	if err := substituteStrings(a.Structure, store); err != nil {
		return fmt.Errorf("action %s #%d: %w", a.Type.Name, a.ActionNumber, err)
	}
	for _, p := range a.Type.Parameters {
		if p.Types != "time" && p.Types != "double" {
			continue
		}
		raw, ok := a.Structure[p.Name].(string)
		if !ok {
			continue
		}
		seconds, err := expr.Eval(raw, store.Lookup())
		if err != nil {
			return fmt.Errorf("action %s #%d: field %q: %w", a.Type.Name, a.ActionNumber, p.Name, err)
		}
		a.Structure[p.Name] = seconds
	}

	if err := a.resolvePlaybackTime(store); err != nil {
		return err
	}
	if err := a.resolveTimeout(store); err != nil {
		return err
	}
	if err := a.resolveRepeat(store); err != nil {
		return err
	}

	a.State = StateReady
	return nil
}

func substituteStrings(structure map[string]any, store *vars.Store) error {
	for k, v := range structure {
		s, ok := v.(string)
		if !ok {
			continue
		}
		substituted, err := store.Substitute(s)
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		structure[k] = substituted
	}
	return nil
}

// resolvePlaybackTime implements spec.md §4.4 step 3: "numeric ⇒ stored as
// time directly; string ⇒ deferred ... and re-evaluated at the latest by
// reaching the state where duration is known (on first async-done)."
func (a *Action) resolvePlaybackTime(store *vars.Store) error {
	raw, ok := a.Structure["playback-time"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		a.PlaybackTime = time.Duration(v * float64(time.Second))
	case int:
		a.PlaybackTime = time.Duration(v) * time.Second
	case string:
		seconds, err := expr.Eval(v, store.Lookup())
		if err != nil {
			a.PlaybackTimeDeferred = v
			a.Flags.NeedsPlaybackParsing = true
			return nil
		}
		a.PlaybackTime = time.Duration(seconds * float64(time.Second))
	default:
		return fmt.Errorf("action %s #%d: playback-time has unsupported type %T", a.Type.Name, a.ActionNumber, v)
	}
	return nil
}

// ReparsePlaybackTime retries a deferred playback-time expression once more
// context (e.g. duration) is available; called by the dispatcher on the
// first async-done (spec.md §4.4).
func (a *Action) ReparsePlaybackTime(store *vars.Store) error {
	if !a.Flags.NeedsPlaybackParsing {
		return nil
	}
	seconds, err := expr.Eval(a.PlaybackTimeDeferred, store.Lookup())
	if err != nil {
		return fmt.Errorf("action %s #%d: playback-time %q: %w", a.Type.Name, a.ActionNumber, a.PlaybackTimeDeferred, err)
	}
	a.PlaybackTime = time.Duration(seconds * float64(time.Second))
	a.Flags.NeedsPlaybackParsing = false
	return nil
}

func (a *Action) resolveTimeout(store *vars.Store) error {
	raw, ok := a.Structure["timeout"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		a.Timeout = time.Duration(v * float64(time.Second))
	case int:
		a.Timeout = time.Duration(v) * time.Second
	case string:
		seconds, err := expr.Eval(v, store.Lookup())
		if err != nil {
			return fmt.Errorf("action %s #%d: timeout %q: %w", a.Type.Name, a.ActionNumber, v, err)
		}
		a.Timeout = time.Duration(seconds * float64(time.Second))
	default:
		return fmt.Errorf("action %s #%d: timeout has unsupported type %T", a.Type.Name, a.ActionNumber, v)
	}
	return nil
}

// resolveRepeat implements "resolve repeat (integer, double, or
// expression)" with the project's resolution of spec.md §9 Open Question
// (c): a resolved value that is not an integer is a loader error, rather
// than silently truncated.
func (a *Action) resolveRepeat(store *vars.Store) error {
	raw, ok := a.Structure["repeat"]
	if !ok {
		a.Repeat = 0
		return nil
	}
	var f float64
	switch v := raw.(type) {
	case int:
		a.Repeat = v
		return nil
	case float64:
		f = v
	case string:
		evaluated, err := expr.Eval(v, store.Lookup())
		if err != nil {
			return fmt.Errorf("action %s #%d: repeat %q: %w", a.Type.Name, a.ActionNumber, v, err)
		}
		f = evaluated
	default:
		return fmt.Errorf("action %s #%d: repeat has unsupported type %T", a.Type.Name, a.ActionNumber, v)
	}
	if f != float64(int(f)) {
		return fmt.Errorf("action %s #%d: repeat must resolve to an integer, got %v", a.Type.Name, a.ActionNumber, f)
	}
	a.Repeat = int(f)
	return nil
}

// StringField reads a string-typed structure field, applying a default.
func (a *Action) StringField(name, def string) string {
	if v, ok := a.Structure[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// FloatField reads a numeric structure field (accepting a string that
// parses as a float, for fields loaded from text scenario files), applying
// a default.
func (a *Action) FloatField(name string, def float64) float64 {
	v, ok := a.Structure[name]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return def
}

// BoolField reads a boolean structure field, accepting the common textual
// forms scenario files use, applying a default.
func (a *Action) BoolField(name string, def bool) bool {
	v, ok := a.Structure[name]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return def
}
