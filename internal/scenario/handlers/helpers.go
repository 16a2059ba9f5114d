// Package handlers implements the Built-in Action Handlers (C8): the
// concrete Execute/Prepare callables registered against
// internal/scenario/registry.Registry, one action kind per spec.md §4.8.
// Handler shape follows the teacher's HandlerRegistry
// (internal/attractor/engine/handlers.go): one function/struct per kind,
// registered by name into a single registry at startup, with shared helpers
// for target resolution and type coercion factored out rather than repeated
// per handler.
package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/validatekit/scenario/internal/scenario/action"
	"github.com/validatekit/scenario/internal/scenario/engine"
	"github.com/validatekit/scenario/internal/scenario/pipeline"
	"github.com/validatekit/scenario/internal/scenario/registry"
)

// resolvePipeline extracts the Pipeline from a handler's Context, reporting
// spec.md §4.8's blanket contract: "a failure to locate a required pipeline
// ... emits scenario-action-execution-error."
func resolvePipeline(ctx registry.Context) (pipeline.Pipeline, error) {
	pl, ok := ctx.Pipeline.(pipeline.Pipeline)
	if !ok || pl == nil {
		return nil, fmt.Errorf("no pipeline available")
	}
	return pl, nil
}

// resolveScenario extracts the owning *engine.Scenario, present for every
// action discharged through the dispatcher (nil for config actions
// executed directly by the loader at parse time, and for the stop action
// the reactor synthesizes after EOS).
func resolveScenario(ctx registry.Context) (*engine.Scenario, bool) {
	s, ok := ctx.Scenario.(*engine.Scenario)
	return s, ok
}

func resolveAction(ctx registry.Context) *action.Action {
	a, _ := ctx.Action.(*action.Action)
	return a
}

// resolveElement finds a target by the three selectors spec.md §4.8 uses
// throughout (target-element-name / target-element-class /
// target-element-factory-name, with the generic "sink-name" etc. variants
// handled by their own callers).
func resolveElement(pl pipeline.Pipeline, st map[string]any, nameField, classField, factoryField string) (pipeline.Element, error) {
	if name, ok := st[nameField].(string); ok && name != "" {
		if el, ok := pl.FindElementByName(name); ok {
			return el, nil
		}
		return nil, fmt.Errorf("target element %q not found", name)
	}
	if class, ok := st[classField].(string); ok && class != "" {
		if el, ok := pl.FindElementByClass(class); ok {
			return el, nil
		}
		return nil, fmt.Errorf("no element of class %q found", class)
	}
	if factory, ok := st[factoryField].(string); ok && factory != "" {
		if el, ok := pl.FindElementByFactory(factory); ok {
			return el, nil
		}
		return nil, fmt.Errorf("no element from factory %q found", factory)
	}
	return nil, fmt.Errorf("no target element selector given")
}

// parseSeekFlags parses the "+"-joined flag-name list spec.md §4.8's seek
// fields use, e.g. "accurate+flush".
func parseSeekFlags(raw string) (pipeline.SeekFlags, error) {
	var flags pipeline.SeekFlags
	if strings.TrimSpace(raw) == "" {
		return flags, nil
	}
	for _, name := range strings.Split(raw, "+") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "", "none":
		case "flush":
			flags |= pipeline.SeekFlagFlush
		case "accurate":
			flags |= pipeline.SeekFlagAccurate
		case "key-unit", "key_unit", "keyunit":
			flags |= pipeline.SeekFlagKeyUnit
		case "segment":
			flags |= pipeline.SeekFlagSegment
		case "skip":
			flags |= pipeline.SeekFlagSkip
		case "snap-before", "snap_before":
			flags |= pipeline.SeekFlagSnapBefore
		case "snap-after", "snap_after":
			flags |= pipeline.SeekFlagSnapAfter
		default:
			return 0, fmt.Errorf("unknown seek flag %q", name)
		}
	}
	return flags, nil
}

func parseSeekType(raw string) pipeline.SeekType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "end":
		return pipeline.SeekTypeEnd
	case "none":
		return pipeline.SeekTypeNone
	default:
		return pipeline.SeekTypeSet
	}
}

func parseMessageType(raw string) (pipeline.MessageType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "eos":
		return pipeline.MessageEOS, nil
	case "error":
		return pipeline.MessageError, nil
	case "state-changed", "state_changed":
		return pipeline.MessageStateChanged, nil
	case "async-done", "async_done":
		return pipeline.MessageAsyncDone, nil
	case "buffering":
		return pipeline.MessageBuffering, nil
	case "streams-selected", "streams_selected":
		return pipeline.MessageStreamsSelected, nil
	case "latency":
		return pipeline.MessageLatency, nil
	case "qos":
		return pipeline.MessageQoS, nil
	case "element":
		return pipeline.MessageElement, nil
	default:
		return pipeline.MessageUnknown, fmt.Errorf("unknown message-type %q", raw)
	}
}

// floatField and stringField mirror action.Action's own field accessors
// for the raw map[string]any this package works with directly (structures
// reaching a handler via registry.Context are already substituted, but not
// wrapped in an *action.Action when discharged as a config action).
func floatField(st map[string]any, name string, def float64) float64 {
	v, ok := st[name]
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

func stringField(st map[string]any, name, def string) string {
	if v, ok := st[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func boolField(st map[string]any, name string, def bool) bool {
	v, ok := st[name]
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
