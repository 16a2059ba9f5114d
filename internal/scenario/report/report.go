// Package report implements the Reporting adapter (C9): it translates
// internal errors and invariant violations into report(level, code,
// message) events for an externally supplied sink, and applies
// per-reporter severity overrides (spec.md §4.9/§7).
package report

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Level is the severity of a reported event. Values are ordered from least
// to most severe so FLAGS' fatal_* thresholds can be expressed as >=.
type Level int

const (
	LevelIgnore Level = iota
	LevelIssue
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelIgnore:
		return "ignore"
	case LevelIssue:
		return "issue"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Issue codes (spec.md §7 error taxonomy), one per named condition.
const (
	CodeScenarioFileMalformed        = "scenario-file-malformed"
	CodeUnknownActionType            = "unknown-action-type"
	CodeMissingMandatoryField        = "missing-mandatory-field"
	CodeIncludeNotFound              = "include-not-found"
	CodeMultipleActionScenarios      = "multiple-action-scenarios"
	CodeScenarioActionExecutionErr   = "scenario-action-execution-error"
	CodeScenarioActionTimeout        = "scenario-action-timeout"
	CodeStateChangeFailure           = "state-change-failure"
	CodeQueryPositionOutOfSegment    = "query-position-out-of-segment"
	CodeQueryPositionSuperiorDur     = "query-position-superior-duration"
	CodeEventSeekResultPositionWrong = "event-seek-result-position-wrong"
	CodeEventSeekNotHandled          = "event-seek-not-handled"
	CodeConfigLatencyTooHigh         = "config-latency-too-high"
	CodeConfigTooManyBuffersDropped  = "config-too-many-buffers-dropped"
	CodeScenarioNotEnded             = "scenario-not-ended"
)

// defaultLevels assigns the taxonomy's default severity. Loader errors are
// critical (they abort the scenario); runtime/observational errors default
// to issue/warning per spec.md §7's policy description.
var defaultLevels = map[string]Level{
	CodeScenarioFileMalformed:        LevelCritical,
	CodeUnknownActionType:            LevelCritical,
	CodeMissingMandatoryField:        LevelCritical,
	CodeIncludeNotFound:              LevelCritical,
	CodeMultipleActionScenarios:      LevelCritical,
	CodeScenarioActionExecutionErr:   LevelIssue,
	CodeScenarioActionTimeout:        LevelWarning,
	CodeStateChangeFailure:           LevelIssue,
	CodeQueryPositionOutOfSegment:    LevelWarning,
	CodeQueryPositionSuperiorDur:     LevelWarning,
	CodeEventSeekResultPositionWrong: LevelWarning,
	CodeEventSeekNotHandled:          LevelIssue,
	CodeConfigLatencyTooHigh:         LevelIssue,
	CodeConfigTooManyBuffersDropped:  LevelIssue,
	CodeScenarioNotEnded:             LevelCritical,
}

// Event is a single reported observation, handed to a Sink.
type Event struct {
	TraceID      string
	Code         string
	Level        Level
	Message      string
	ActionNumber int // 0 when not associated with a specific action
}

// Sink is the only external collaborator this package consumes (spec.md §6
// "Reporting API (consumed)"): report(reporter, code, level, message, trace?).
type Sink interface {
	Report(ev Event)
}

// Reporter is the engine-side adapter: it owns the default-level table,
// per-code overrides, and ULID trace-id generation (SPEC_FULL.md §3 —
// oklog/ulid wired here the same way the teacher wires it for run ids).
type Reporter struct {
	sink Sink

	mu        sync.Mutex
	overrides map[string]Level
	entropy   *ulid.MonotonicEntropy
}

// New creates a Reporter delivering to sink. A nil sink is valid and simply
// discards events (used by tests that do not inspect reported events).
func New(sink Sink) *Reporter {
	return &Reporter{
		sink:      sink,
		overrides: map[string]Level{},
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

// Override sets a per-code severity override (spec.md §4.9's "severity
// override hook per issue-id per reporter"); LevelIgnore silences the code
// entirely.
func (r *Reporter) Override(code string, level Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[code] = level
}

// LoadOverrides applies a code->level map in bulk, e.g. decoded from the
// YAML override file described in SPEC_FULL.md §5.
func (r *Reporter) LoadOverrides(levels map[string]string) error {
	for code, name := range levels {
		lvl, err := ParseLevel(name)
		if err != nil {
			return fmt.Errorf("override for %q: %w", code, err)
		}
		r.Override(code, lvl)
	}
	return nil
}

// ParseLevel parses the textual level names used in config/override files.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "ignore":
		return LevelIgnore, nil
	case "issue":
		return LevelIssue, nil
	case "warning":
		return LevelWarning, nil
	case "critical":
		return LevelCritical, nil
	default:
		return LevelIgnore, fmt.Errorf("unknown report level %q", s)
	}
}

func (r *Reporter) levelFor(code string) Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lvl, ok := r.overrides[code]; ok {
		return lvl
	}
	if lvl, ok := defaultLevels[code]; ok {
		return lvl
	}
	return LevelIssue
}

// Report emits one event for code, resolving its effective level through
// any override, and returns the level actually used. The engine's callers
// discard that level; no code applies FLAGS' fatal_* thresholds, so a
// reported event never aborts a scenario by itself.
func (r *Reporter) Report(code, message string, actionNumber int) Level {
	level := r.levelFor(code)
	ev := Event{
		TraceID:      ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String(),
		Code:         code,
		Level:        level,
		Message:      message,
		ActionNumber: actionNumber,
	}
	if r.sink != nil {
		r.sink.Report(ev)
	}
	return level
}

// LogSink is a Sink that writes to a *log.Logger-shaped function, matching
// the teacher's stdlib-log ambient-logging convention (DESIGN.md "Ambient
// stack"). It is the default sink wired by cmd/scenariovalidate.
type LogSink struct {
	Printf func(format string, args ...any)
}

func (s LogSink) Report(ev Event) {
	if s.Printf == nil {
		return
	}
	s.Printf("[%s] %s: %s (trace=%s action=%d)", ev.Level, ev.Code, ev.Message, ev.TraceID, ev.ActionNumber)
}
