package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/validatekit/scenario/internal/scenario/pipeline"
	"github.com/validatekit/scenario/internal/scenario/registry"
)

// seekParams is the parameter schema for "seek" (spec.md §4.8).
var seekParams = []registry.Parameter{
	{Name: "start", Types: "double", Description: "segment start, seconds"},
	{Name: "stop", Types: "double", Description: "segment stop, seconds"},
	{Name: "rate", Types: "double", Default: 1.0, Description: "playback rate"},
	{Name: "flags", Types: "string", Description: "'+'-joined seek-flag names"},
	{Name: "start_type", Types: "string", Description: "set|end|none"},
	{Name: "stop_type", Types: "string", Description: "set|end|none"},
}

// execSeek sends a seek to the pipeline and records the resulting segment
// (spec.md §4.8: "Sends a seek to the pipeline; stores last-seek; returns
// ASYNC.").
func execSeek(ctx registry.Context) (registry.Outcome, error) {
	pl, err := resolvePipeline(ctx)
	if err != nil {
		return registry.OutcomeError, err
	}
	flags, err := parseSeekFlags(stringField(ctx.Structure, "flags", ""))
	if err != nil {
		return registry.OutcomeError, err
	}
	if parseSeekType(stringField(ctx.Structure, "start_type", "set")) == pipeline.SeekTypeEnd {
		return registry.OutcomeError, fmt.Errorf("seek: start_type=end is not implemented")
	}
	rate := floatField(ctx.Structure, "rate", 1.0)
	start := time.Duration(floatField(ctx.Structure, "start", 0) * float64(time.Second))
	stop := time.Duration(floatField(ctx.Structure, "stop", 0) * float64(time.Second))

	req := pipeline.SeekRequest{
		Start:     start,
		StartType: parseSeekType(stringField(ctx.Structure, "start_type", "set")),
		Stop:      stop,
		StopType:  parseSeekType(stringField(ctx.Structure, "stop_type", "none")),
		Rate:      rate,
		Flags:     flags,
	}
	if err := pl.Seek(context.Background(), req); err != nil {
		return registry.OutcomeError, fmt.Errorf("seek: %w", err)
	}

	if s, ok := resolveScenario(ctx); ok {
		s.SetSegmentLocked(start, stop, flags)
	}
	return registry.OutcomeAsync, nil
}
