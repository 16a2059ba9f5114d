package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/validatekit/scenario/internal/scenario/pipeline"
	"github.com/validatekit/scenario/internal/scenario/registry"
)

var appsrcPushParams = []registry.Parameter{
	{Name: "file-name", Mandatory: true, Types: "string"},
	{Name: "offset", Types: "int", Default: 0},
	{Name: "size", Types: "int", Description: "0 or absent reads to EOF"},
	{Name: "target-element-name", Mandatory: true, Types: "string"},
	{Name: "caps", Types: "string"},
}

// execAppsrcPush reads the requested file slice, pushes it into the named
// appsrc, and arms a one-shot probe on the downstream peer pad that calls
// SetDone when the buffer transits (spec.md §4.8 appsrc-push).
func execAppsrcPush(ctx registry.Context) (registry.Outcome, error) {
	pl, err := resolvePipeline(ctx)
	if err != nil {
		return registry.OutcomeError, err
	}
	data, err := readFileSlice(
		stringField(ctx.Structure, "file-name", ""),
		int64(floatField(ctx.Structure, "offset", 0)),
		int64(floatField(ctx.Structure, "size", 0)),
	)
	if err != nil {
		return registry.OutcomeError, err
	}
	target := stringField(ctx.Structure, "target-element-name", "")
	caps := stringField(ctx.Structure, "caps", "")
	if err := pl.PushBuffer(context.Background(), target, data, caps); err != nil {
		return registry.OutcomeError, fmt.Errorf("appsrc-push: %w", err)
	}

	s, hasScenario := resolveScenario(ctx)
	act := resolveAction(ctx)
	playing := hasScenario && s.TargetState >= pipeline.StatePaused

	if hasScenario && act != nil {
		if el, ok := pl.FindElementByName(target); ok {
			for _, pad := range el.Pads() {
				peer, ok := pad.Peer()
				if !ok {
					continue
				}
				var remove func()
				remove = peer.AddProbe(func(buf []byte) pipeline.ProbeAction {
					s.SetDone(act)
					if remove != nil {
						remove()
					}
					return pipeline.ProbeOK
				})
				break
			}
		}
	}

	if playing {
		return registry.OutcomeAsync, nil
	}
	return registry.OutcomeInterlaced, nil
}

func readFileSlice(path string, offset, size int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("appsrc-push: %w", err)
	}
	defer f.Close()
	if offset > 0 {
		if _, err := f.Seek(offset, 0); err != nil {
			return nil, fmt.Errorf("appsrc-push: seek: %w", err)
		}
	}
	if size > 0 {
		buf := make([]byte, size)
		n, err := f.Read(buf)
		if err != nil && n == 0 {
			return nil, fmt.Errorf("appsrc-push: read: %w", err)
		}
		return buf[:n], nil
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("appsrc-push: stat: %w", err)
	}
	buf := make([]byte, info.Size()-offset)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("appsrc-push: read: %w", err)
	}
	return buf[:n], nil
}

var appsrcEOSParams = []registry.Parameter{
	{Name: "target-element-name", Mandatory: true, Types: "string"},
}

func execAppsrcEOS(ctx registry.Context) (registry.Outcome, error) {
	pl, err := resolvePipeline(ctx)
	if err != nil {
		return registry.OutcomeError, err
	}
	target := stringField(ctx.Structure, "target-element-name", "")
	if err := pl.SendAppsrcEOS(context.Background(), target); err != nil {
		return registry.OutcomeError, fmt.Errorf("appsrc-eos: %w", err)
	}
	return registry.OutcomeOK, nil
}

var flushParams = []registry.Parameter{
	{Name: "target-element-name", Types: "string"},
	{Name: "target-element-class", Types: "string"},
	{Name: "target-element-factory-name", Types: "string"},
	{Name: "reset-time", Types: "bool", Default: true},
}

// execFlush sends flush-start then flush-stop to the resolved target
// (spec.md §4.8: "reset-time default true").
func execFlush(ctx registry.Context) (registry.Outcome, error) {
	pl, err := resolvePipeline(ctx)
	if err != nil {
		return registry.OutcomeError, err
	}
	el, err := resolveElement(pl, ctx.Structure, "target-element-name", "target-element-class", "target-element-factory-name")
	if err != nil {
		return registry.OutcomeError, err
	}
	resetTime := boolField(ctx.Structure, "reset-time", true)
	if err := el.SendEvent(pipeline.Event{Kind: pipeline.EventFlushStart}); err != nil {
		return registry.OutcomeError, fmt.Errorf("flush-start: %w", err)
	}
	if err := el.SendEvent(pipeline.Event{Kind: pipeline.EventFlushStop, ResetTime: resetTime}); err != nil {
		return registry.OutcomeError, fmt.Errorf("flush-stop: %w", err)
	}
	return registry.OutcomeOK, nil
}

var emitSignalParams = []registry.Parameter{
	{Name: "signal-name", Mandatory: true, Types: "string"},
	{Name: "target-element-name", Types: "string"},
	{Name: "target-element-class", Types: "string"},
	{Name: "target-element-factory-name", Types: "string"},
}

// execEmitSignal emits a zero-argument signal on the resolved target
// (spec.md §4.8 emit-signal).
func execEmitSignal(ctx registry.Context) (registry.Outcome, error) {
	pl, err := resolvePipeline(ctx)
	if err != nil {
		return registry.OutcomeError, err
	}
	el, err := resolveElement(pl, ctx.Structure, "target-element-name", "target-element-class", "target-element-factory-name")
	if err != nil {
		return registry.OutcomeError, err
	}
	name := stringField(ctx.Structure, "signal-name", "")
	if _, err := el.EmitSignal(name); err != nil {
		return registry.OutcomeError, fmt.Errorf("emit-signal %s: %w", name, err)
	}
	return registry.OutcomeOK, nil
}
