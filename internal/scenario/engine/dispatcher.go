package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/validatekit/scenario/internal/scenario/action"
	"github.com/validatekit/scenario/internal/scenario/pipeline"
	"github.com/validatekit/scenario/internal/scenario/registry"
	"github.com/validatekit/scenario/internal/scenario/report"
)

// Run drives the main loop: it services the pipeline bus and the
// dispatcher on a single goroutine, matching spec.md §5's "single-threaded
// cooperative main loop owns the Scenario". It returns when ctx is
// cancelled or the scenario ends (stop synthesized after EOS).
func (s *Scenario) Run(ctx context.Context) error {
	var bus <-chan pipeline.Message
	if s.Pipeline != nil && s.Pipeline.Bus() != nil {
		bus = s.Pipeline.Bus().Messages()
	}

	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()

	s.kick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-bus:
			if !ok {
				bus = nil
				continue
			}
			s.HandleMessage(ctx, msg)
		case <-ticker.C:
			s.kick(ctx)
		}
		s.mu.Lock()
		ended := s.ended
		s.mu.Unlock()
		if ended {
			return nil
		}
	}
}

func (s *Scenario) tickInterval() time.Duration {
	if s.ActionExecutionInterval <= 0 {
		return DefaultActionExecutionInterval
	}
	return s.ActionExecutionInterval
}

// kick runs the dispatcher repeatedly while it keeps advancing
// synchronously (spec.md §4.6's "recursion" rule), stopping once it either
// yields (nothing more to do this tick) or the scenario ends.
func (s *Scenario) kick(ctx context.Context) {
	s.mu.Lock()
	if s.dispatchScheduled {
		s.mu.Unlock()
		return
	}
	s.dispatchScheduled = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.dispatchScheduled = false
		s.mu.Unlock()
	}()

	s.drainSetDone()
	for {
		advanced, err := s.dispatchOnce(ctx)
		if err != nil {
			return
		}
		if !advanced {
			return
		}
	}
}

// dispatchOnce evaluates the gate conditions once and, if they pass,
// executes the head action (spec.md §4.6). It returns advanced=true when
// an action was synchronously completed with no async follower, so the
// caller should immediately retry the next one.
func (s *Scenario) dispatchOnce(ctx context.Context) (advanced bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return false, nil
	}

	// Gate 1: not buffering.
	if s.Buffering {
		return false, nil
	}
	// Gate 2: not changing state, not waiting on async-done.
	if s.ChangingState || s.NeedsAsyncDone {
		return false, nil
	}
	if len(s.MainQueue) == 0 {
		return false, nil
	}
	head := s.MainQueue[0]

	// Gate 3: head not IN_PROGRESS.
	if head.State == action.StateInProgress {
		return false, nil
	}

	// Gate 4: ASYNC head — check timeout, otherwise wait.
	if head.State == action.StateAsync {
		if head.Timeout > 0 && time.Since(head.ExecutionTime) > head.Timeout {
			s.report(report.CodeScenarioActionTimeout, fmt.Sprintf("action %s #%d timed out", head.Type.Name, head.ActionNumber), head.ActionNumber)
		}
		return false, nil
	}

	// Gate 5: OK and repeat exhausted — pop and move on.
	if head.State == action.StateOK {
		if head.Repeat > 0 {
			head.Repeat--
			head.ResetForRepeat()
			return true, nil
		}
		s.popMainQueue()
		if err := s.reparseNextDeferred(); err != nil {
			s.report(report.CodeScenarioFileMalformed, err.Error(), 0)
		}
		return true, nil
	}

	// The position/execution gates below read head.PlaybackTime, which
	// Prepare resolves (action.go's resolvePlaybackTime); it must run
	// before the gates are evaluated, not inside execute() after them, or
	// every action reads PlaybackTime as its zero value and the
	// playback-time gate never actually holds anything back.
	if !s.ensurePrepared(head) {
		return true, nil
	}

	if !s.positionGateOK(ctx, head) {
		return false, nil
	}
	if !s.executionGateOK(ctx, head) {
		return false, nil
	}

	return s.execute(head), nil
}

// ensurePrepared runs Prepare (and the action type's own Prepare hook, if
// any) exactly once per READY entry, before anything reads head.PlaybackTime
// or head.Timeout (spec.md §4.5). Returns false if preparation failed, in
// which case the head action has already been reported and dropped.
func (s *Scenario) ensurePrepared(head *action.Action) bool {
	if head.State == action.StateReady {
		return true
	}
	if s.Pipeline != nil && s.Vars != nil {
		pos, posErr := s.Pipeline.Position(context.Background())
		dur, durErr := s.Pipeline.Duration(context.Background())
		s.Vars.Tick(pos, dur, posErr == nil, durErr == nil)
	}
	if err := head.Prepare(s.Vars); err != nil {
		s.reportRuntimeError(head, err.Error())
		s.dropHeadAction()
		return false
	}
	// The action type's own prepare hook (spec.md §4: "prepare (optional
	// pre-execute hook)") runs once per READY entry, after the generic
	// substitution/coercion pass.
	if head.Type.Prepare != nil {
		if _, err := head.Type.Prepare(registry.Context{Structure: head.Structure, Pipeline: s.Pipeline, Action: head, Scenario: s}); err != nil {
			s.reportRuntimeError(head, err.Error())
			s.dropHeadAction()
			return false
		}
	}
	return true
}

func (s *Scenario) popMainQueue() {
	if len(s.MainQueue) == 0 {
		return
	}
	s.MainQueue[0].Finalize()
	s.MainQueue = s.MainQueue[1:]
}

func (s *Scenario) reparseNextDeferred() error {
	if len(s.MainQueue) == 0 {
		return nil
	}
	next := s.MainQueue[0]
	if !next.Flags.NeedsPlaybackParsing {
		return nil
	}
	return next.ReparsePlaybackTime(s.Vars)
}

// positionGateOK implements spec.md §4.6's position gate.
func (s *Scenario) positionGateOK(ctx context.Context, head *action.Action) bool {
	if s.Pipeline == nil {
		return true
	}
	pos, posErr := s.Pipeline.Position(ctx)
	dur, durErr := s.Pipeline.Duration(ctx)
	rate := s.Pipeline.Rate()
	if posErr != nil {
		return true
	}
	durOK := durErr == nil

	tol := s.SeekPosTol
	if tol <= 0 {
		tol = DefaultSeekPosTol
	}

	accurate := s.SeekFlags.Has(pipeline.SeekFlagAccurate)
	if accurate && pos < s.SegmentStart-tol {
		s.report(report.CodeQueryPositionOutOfSegment, "position before segment start", head.ActionNumber)
	}
	if pos > s.SegmentStop+tol {
		s.report(report.CodeQueryPositionOutOfSegment, "position past segment stop", head.ActionNumber)
	}
	if durOK && pos > dur {
		s.report(report.CodeQueryPositionSuperiorDur, "position past stream duration", head.ActionNumber)
	}
	if s.SeekedInPause && accurate {
		diff := pos - s.SegmentStart
		if diff < 0 {
			diff = -diff
		}
		if diff > tol {
			s.report(report.CodeEventSeekResultPositionWrong, "seek-in-pause landed outside tolerance", head.ActionNumber)
		}
	}
	_ = rate
	return true
}

// executionGateOK implements spec.md §4.6's execution gate: "(a) no
// pipeline available and type permits, (b) just observed EOS (consume the
// flag), (c) pipeline state below paused, (d) action has no playback-time,
// (e) with rate > 0 and position ≥ playback-time, (f) with rate < 0 and
// position ≤ playback-time."
func (s *Scenario) executionGateOK(ctx context.Context, head *action.Action) bool {
	if s.Pipeline == nil {
		return head.Type.Flags.Has(registry.FlagDoesntNeedPipeline)
	}
	if s.GotEOS {
		s.GotEOS = false
		return true
	}
	if s.TargetState < pipeline.StatePaused {
		return true
	}
	if _, hasPlaybackTime := head.Structure["playback-time"]; !hasPlaybackTime {
		return true
	}
	pos, err := s.Pipeline.Position(ctx)
	if err != nil {
		return false
	}
	rate := s.Pipeline.Rate()
	t := head.PlaybackTime
	switch {
	case rate > 0:
		return pos >= t
	case rate < 0:
		return pos <= t
	default:
		return pos >= t
	}
}

// execute runs the head action's Execute handler, applying the lifecycle
// transition the handler's outcome implies (spec.md §4.5). The head is
// already READY by this point: dispatchOnce's ensurePrepared runs Prepare
// (and the type's own prepare hook) before the position/execution gates are
// even evaluated.
func (s *Scenario) execute(head *action.Action) (advanced bool) {
	head.State = action.StateInProgress
	head.ExecutionTime = time.Now()

	outcome, err := head.Type.Execute(registry.Context{Structure: head.Structure, Pipeline: s.Pipeline, Action: head, Scenario: s})
	if err != nil {
		s.reportRuntimeError(head, err.Error())
		s.dropHeadAction()
		return true
	}

	switch outcome {
	case registry.OutcomeOK:
		s.completeAsync(head)
		return true
	case registry.OutcomeError:
		s.reportRuntimeError(head, "handler reported error")
		s.dropHeadAction()
		return true
	case registry.OutcomeAsync:
		head.State = action.StateAsync
		return false
	case registry.OutcomeInterlaced:
		head.State = action.StateInterlaced
		s.popMainQueue()
		s.InterlacedActions = append(s.InterlacedActions, head)
		return true
	default:
		return false
	}
}

// dropHeadAction removes the head action from the main queue after a
// runtime failure. spec.md §7's policy applies uniformly here: the action
// is always dropped and reported, and the scenario goes on with the next
// action. Nothing escalates the failure to an abort: FLAGS' fatal_*
// thresholds are not applied. The dropped action's own optional/NO_EXECUTION
// flags only affect scenario-not-ended accounting, see pendingCount.
func (s *Scenario) dropHeadAction() {
	if len(s.MainQueue) == 0 {
		return
	}
	s.MainQueue[0].State = action.StateErrorReported
	s.popMainQueue()
}

func (s *Scenario) reportRuntimeError(head *action.Action, detail string) {
	s.report(report.CodeScenarioActionExecutionErr, fmt.Sprintf("action %s #%d: %s", head.Type.Name, head.ActionNumber, detail), head.ActionNumber)
}

func (s *Scenario) report(code, message string, actionNumber int) {
	if s.Reporter == nil {
		return
	}
	s.Reporter.Report(code, message, actionNumber)
}
