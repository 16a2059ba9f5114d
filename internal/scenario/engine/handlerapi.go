package engine

import (
	"time"

	"github.com/validatekit/scenario/internal/scenario/action"
	"github.com/validatekit/scenario/internal/scenario/pipeline"
)

// This file is the surface internal/scenario/handlers drives through
// registry.Context.Scenario. Every method here assumes the caller is a
// Handler invoked from dispatcher.go's execute, which already holds s.mu on
// the single dispatch goroutine — hence the "Locked" suffix, matching the
// reportLocked/endLocked convention reactor.go already uses. None of these
// take the lock themselves; doing so would deadlock.

// SetSegmentLocked records a completed seek's resulting segment and flags
// (spec.md §4.8 seek: "stores last-seek").
func (s *Scenario) SetSegmentLocked(start, stop time.Duration, flags pipeline.SeekFlags) {
	s.SegmentStart = start
	s.SegmentStop = stop
	s.SeekFlags = flags
}

// SetTargetStateLocked records a state-change request's target and whether
// the pipeline reported it as asynchronous (spec.md §4.8 set-state/play/pause).
func (s *Scenario) SetTargetStateLocked(target pipeline.State, changing bool) {
	s.TargetState = target
	s.ChangingState = changing
	if changing {
		s.NeedsAsyncDone = true
	}
}

// SetPendingSwitchTrackLocked records the action awaiting a
// streams-selected confirmation, along with the stream IDs it expects to
// see selected (spec.md §4.8 switch-track).
func (s *Scenario) SetPendingSwitchTrackLocked(act *action.Action, expectedStreams []string) {
	if act != nil {
		act.Structure["__expected_streams"] = expectedStreams
	}
	s.PendingSwitchTrack = act
}

// WaitForMessageLocked registers act as waiting for msgType, without taking
// s.mu (the exported WaitForMessage in reactor.go is for callers on a
// different goroutine; handlers run on the dispatch goroutine already
// holding the lock).
func (s *Scenario) WaitForMessageLocked(act *action.Action, msgType pipeline.MessageType) {
	s.waitingAction = act
	s.waitingMessageType = msgType
}

// MarkEndedLocked ends the scenario (spec.md §4.8 stop: "cancels the
// dispatcher task").
func (s *Scenario) MarkEndedLocked() {
	s.ended = true
}

// DroppedBudgetLocked returns the running dropped-buffer count and its
// configured ceiling, for stop's budget re-check (spec.md §4.8).
func (s *Scenario) DroppedBudgetLocked() (dropped, max int) {
	return s.Dropped, s.MaxDropped
}

// ReportLocked emits a report event under the already-held lock.
func (s *Scenario) ReportLocked(code, message string, actionNumber int) {
	s.reportLocked(code, message, actionNumber)
}
