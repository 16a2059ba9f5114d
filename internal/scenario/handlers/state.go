package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/validatekit/scenario/internal/scenario/pipeline"
	"github.com/validatekit/scenario/internal/scenario/registry"
	"github.com/validatekit/scenario/internal/scenario/report"
)

var setStateParams = []registry.Parameter{
	{Name: "state", Mandatory: true, Types: "string", Description: "null|ready|paused|playing"},
}

var playParams = []registry.Parameter{}

var pauseParams = []registry.Parameter{
	{Name: "duration", Types: "double", Description: "seconds until auto-restore to playing"},
}

func parsePipelineState(raw string) (pipeline.State, error) {
	switch raw {
	case "null":
		return pipeline.StateNull, nil
	case "ready":
		return pipeline.StateReady, nil
	case "paused":
		return pipeline.StatePaused, nil
	case "playing":
		return pipeline.StatePlaying, nil
	default:
		return pipeline.StateNull, fmt.Errorf("invalid state %q", raw)
	}
}

// requestState drives a pipeline state change and records it on the
// scenario, implementing spec.md §4.8's shared contract for
// set-state/play/pause: "change target state; ASYNC on async transitions;
// on failure, report STATE_CHANGE_FAILURE."
func requestState(ctx registry.Context, target pipeline.State) (registry.Outcome, error) {
	pl, err := resolvePipeline(ctx)
	if err != nil {
		return registry.OutcomeError, err
	}
	async, err := pl.SetState(context.Background(), target)
	if err != nil {
		if s, ok := resolveScenario(ctx); ok {
			act := resolveAction(ctx)
			actionNumber := 0
			if act != nil {
				actionNumber = act.ActionNumber
			}
			s.ReportLocked(report.CodeStateChangeFailure, err.Error(), actionNumber)
		}
		return registry.OutcomeError, fmt.Errorf("set state %s: %w", target, err)
	}

	if s, ok := resolveScenario(ctx); ok {
		s.SetTargetStateLocked(target, async)
	}
	if async {
		return registry.OutcomeAsync, nil
	}
	return registry.OutcomeOK, nil
}

func execSetState(ctx registry.Context) (registry.Outcome, error) {
	target, err := parsePipelineState(stringField(ctx.Structure, "state", ""))
	if err != nil {
		return registry.OutcomeError, err
	}
	return requestState(ctx, target)
}

func execPlay(ctx registry.Context) (registry.Outcome, error) {
	return requestState(ctx, pipeline.StatePlaying)
}

// execPause changes target state to paused; with a duration field it also
// schedules an automatic restore to playing (spec.md §4.8: "pause with
// duration schedules a restore-to-PLAYING after duration").
func execPause(ctx registry.Context) (registry.Outcome, error) {
	outcome, err := requestState(ctx, pipeline.StatePaused)
	if err != nil {
		return outcome, err
	}
	if d := floatField(ctx.Structure, "duration", 0); d > 0 {
		pl, plErr := resolvePipeline(ctx)
		if plErr == nil {
			time.AfterFunc(time.Duration(d*float64(time.Second)), func() {
				_, _ = pl.SetState(context.Background(), pipeline.StatePlaying)
			})
		}
	}
	return outcome, nil
}

// execStop implements spec.md §4.8's stop contract: "cancels the dispatcher
// task, checks dropped-buffer budget, posts a state-null request."
func execStop(ctx registry.Context) (registry.Outcome, error) {
	pl, err := resolvePipeline(ctx)
	if err != nil {
		return registry.OutcomeError, err
	}
	if s, ok := resolveScenario(ctx); ok {
		if dropped, max := s.DroppedBudgetLocked(); max > 0 && dropped > max {
			s.ReportLocked(report.CodeConfigTooManyBuffersDropped, fmt.Sprintf("dropped %d buffers, max %d", dropped, max), 0)
		}
	}
	_, _ = pl.SetState(context.Background(), pipeline.StateNull)
	if s, ok := resolveScenario(ctx); ok {
		s.MarkEndedLocked()
	}
	return registry.OutcomeOK, nil
}

// execEOS sends end-of-stream to the pipeline (spec.md §4.8 eos).
func execEOS(ctx registry.Context) (registry.Outcome, error) {
	pl, err := resolvePipeline(ctx)
	if err != nil {
		return registry.OutcomeError, err
	}
	if err := pl.SendEOS(context.Background()); err != nil {
		return registry.OutcomeError, fmt.Errorf("send eos: %w", err)
	}
	return registry.OutcomeOK, nil
}
