package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/validatekit/scenario/internal/scenario/pipeline"
	"github.com/validatekit/scenario/internal/scenario/registry"
)

var switchTrackParams = []registry.Parameter{
	{Name: "type", Mandatory: true, Types: "string", Description: "audio|video|text"},
	{Name: "index", Types: "string", Description: "absolute integer or relative +1/-1"},
	{Name: "disable", Types: "bool", Description: "disable the track instead of switching"},
}

// execSwitchTrack implements spec.md §4.8's switch-track: it resolves one
// of three backends by what the pipeline exposes (playbin3's
// stream-collection/select-streams signal, playbin's current-{audio,video,
// text} properties, or a GstStreamSelector's active-pad), then returns
// ASYNC while playing (waiting for streams-selected) or INTERLACED
// otherwise.
func execSwitchTrack(ctx registry.Context) (registry.Outcome, error) {
	pl, err := resolvePipeline(ctx)
	if err != nil {
		return registry.OutcomeError, err
	}
	trackType := stringField(ctx.Structure, "type", "")
	disable := boolField(ctx.Structure, "disable", false)
	indexRaw := stringField(ctx.Structure, "index", "0")

	propName, err := propertyNameForType(trackType)
	if err != nil {
		return registry.OutcomeError, err
	}

	var current int
	var el pipeline.Element
	var backend string
	if e, ok := pl.FindElementByFactory("playbin3"); ok {
		el, backend = e, "playbin3"
	} else if e, ok := pl.FindElementByFactory("playbin"); ok {
		el, backend = e, "playbin-flags"
	} else if e, ok := pl.FindElementByClass("GstStreamSelector"); ok {
		el, backend = e, "selector"
	} else {
		return registry.OutcomeError, fmt.Errorf("no switch-track backend element found for type %q", trackType)
	}

	if v, err := el.GetProperty(propName); err == nil {
		if n, ok := v.(int); ok {
			current = n
		}
	}
	index, err := resolveIndex(indexRaw, current)
	if err != nil {
		return registry.OutcomeError, err
	}

	if disable {
		index = -1
	}

	switch backend {
	case "playbin3":
		if _, err := el.EmitSignal("select-streams", index); err != nil {
			return registry.OutcomeError, fmt.Errorf("select-streams: %w", err)
		}
	case "playbin-flags":
		if err := el.SetProperty(propName, index); err != nil {
			return registry.OutcomeError, fmt.Errorf("set %s: %w", propName, err)
		}
	case "selector":
		if err := el.SetProperty("active-pad", fmt.Sprintf("%s_%d", trackType, index)); err != nil {
			return registry.OutcomeError, fmt.Errorf("set active-pad: %w", err)
		}
	}

	expected := []string{fmt.Sprintf("%s-%d", trackType, index)}
	s, ok := resolveScenario(ctx)
	act := resolveAction(ctx)
	if ok && act != nil && s.TargetState == pipeline.StatePlaying {
		s.SetPendingSwitchTrackLocked(act, expected)
		return registry.OutcomeAsync, nil
	}
	return registry.OutcomeInterlaced, nil
}

func propertyNameForType(trackType string) (string, error) {
	switch strings.ToLower(trackType) {
	case "audio":
		return "current-audio", nil
	case "video":
		return "current-video", nil
	case "text":
		return "current-text", nil
	default:
		return "", fmt.Errorf("switch-track: unknown track type %q", trackType)
	}
}

// resolveIndex parses an absolute integer or a relative "+1"/"-1" offset
// from current (spec.md §4.8: "index absolute or relative").
func resolveIndex(raw string, current int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return current, nil
	}
	if strings.HasPrefix(raw, "+") || strings.HasPrefix(raw, "-") {
		delta, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("switch-track: invalid relative index %q: %w", raw, err)
		}
		return current + delta, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("switch-track: invalid index %q: %w", raw, err)
	}
	return n, nil
}
