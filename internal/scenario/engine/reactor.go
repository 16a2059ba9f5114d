package engine

import (
	"context"
	"fmt"

	"github.com/validatekit/scenario/internal/scenario/action"
	"github.com/validatekit/scenario/internal/scenario/pipeline"
	"github.com/validatekit/scenario/internal/scenario/registry"
	"github.com/validatekit/scenario/internal/scenario/report"
)

// HandleMessage is the Bus Reactor (C7): it consumes one pipeline
// observation and advances whichever action is waiting on it (spec.md
// §4.7). It always runs on the dispatch goroutine (messages arrive via
// Scenario.Run's select over the pipeline bus channel). Flags such as
// buffering or got_eos are set directly; completing a waiting action is
// posted to setDoneCh like SetDone does (without SetDone's ended check),
// and the kick at the end drains that channel in the same call.
func (s *Scenario) HandleMessage(ctx context.Context, msg pipeline.Message) {
	switch msg.Type {
	case pipeline.MessageAsyncDone:
		s.onAsyncDone()
	case pipeline.MessageStateChanged:
		s.onStateChanged(msg)
	case pipeline.MessageError:
		s.onError(msg)
	case pipeline.MessageEOS:
		s.onEOS(ctx)
	case pipeline.MessageBuffering:
		s.onBuffering(msg)
	case pipeline.MessageStreamsSelected:
		s.onStreamsSelected(msg)
	case pipeline.MessageLatency:
		s.onLatency()
	case pipeline.MessageQoS:
		s.onQoS(msg)
	}
	s.checkMessageWait(msg)
	s.kick(ctx)
}

func (s *Scenario) onAsyncDone() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.NeedsAsyncDone = false

	if s.SeekFlags != pipeline.SeekFlagNone || s.SegmentStart != 0 || s.SegmentStop != 0 {
		if s.TargetState == pipeline.StatePaused {
			s.SeekedInPause = true
		}
	}

	if len(s.MainQueue) == 0 {
		return
	}
	head := s.MainQueue[0]
	if head.State == action.StateAsync {
		head.Flags.PendingSetDone = true
		select {
		case s.setDoneCh <- head:
		default:
		}
	}
	if head.Flags.NeedsPlaybackParsing {
		_ = head.ReparsePlaybackTime(s.Vars)
	}
}

func (s *Scenario) onStateChanged(msg pipeline.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.NewState != s.TargetState {
		return
	}
	s.ChangingState = false
	if len(s.MainQueue) > 0 && s.MainQueue[0].State == action.StateAsync {
		head := s.MainQueue[0]
		head.Flags.PendingSetDone = true
		select {
		case s.setDoneCh <- head:
		default:
		}
	}
	if msg.NewState == pipeline.StatePlaying {
		s.checkLatencyLocked()
	}
}

func (s *Scenario) onError(msg pipeline.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail := "pipeline error"
	if msg.Err != nil {
		detail = msg.Err.Error()
	}
	s.reportLocked(report.CodeScenarioActionExecutionErr, detail, 0)
	s.endLocked()
}

// onEOS implements spec.md §4.7's EOS path: set got_eos, resolve any
// message wait, drain pending set_done before counting unfinished actions,
// then synthesize and run a stop action.
func (s *Scenario) onEOS(ctx context.Context) {
	s.mu.Lock()
	s.GotEOS = true
	if s.waitingAction != nil {
		w := s.waitingAction
		s.waitingAction = nil
		w.Flags.PendingSetDone = true
		select {
		case s.setDoneCh <- w:
		default:
		}
	}
	s.mu.Unlock()

	s.drainSetDone()

	s.mu.Lock()
	pending := s.pendingCount()
	if pending > 0 {
		s.reportLocked(report.CodeScenarioNotEnded, fmt.Sprintf("%d action(s) did not execute before EOS", pending), 0)
	}
	s.mu.Unlock()

	s.synthesizeStop(ctx)
}

// synthesizeStop runs the registered "stop" action type directly, bypassing
// the queue (spec.md §4.7: "Synthesize a stop action and execute it.").
func (s *Scenario) synthesizeStop(ctx context.Context) {
	s.mu.Lock()
	reg := s.Registry
	pl := s.Pipeline
	s.mu.Unlock()
	if reg == nil {
		return
	}
	stopType := reg.Lookup("stop")
	if stopType == nil || stopType.Execute == nil {
		s.mu.Lock()
		s.endLocked()
		s.mu.Unlock()
		return
	}
	_, _ = stopType.Execute(registry.Context{Structure: map[string]any{}, Pipeline: pl})
	s.mu.Lock()
	s.endLocked()
	s.mu.Unlock()
}

func (s *Scenario) onBuffering(msg pipeline.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Buffering = msg.Percent < 100
}

func (s *Scenario) onStreamsSelected(msg pipeline.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PendingSwitchTrack == nil {
		return
	}
	expected, _ := s.PendingSwitchTrack.Structure["__expected_streams"].([]string)
	if len(expected) > 0 && !sameStreamSet(expected, msg.Streams) {
		s.reportLocked(report.CodeScenarioActionExecutionErr, "switch-track: selected stream set did not match expectation", s.PendingSwitchTrack.ActionNumber)
	}
	pending := s.PendingSwitchTrack
	s.PendingSwitchTrack = nil
	pending.Flags.PendingSetDone = true
	select {
	case s.setDoneCh <- pending:
	default:
	}
}

func sameStreamSet(expected []string, got []pipeline.StreamInfo) bool {
	if len(expected) != len(got) {
		return false
	}
	seen := map[string]bool{}
	for _, g := range got {
		seen[g.ID] = true
	}
	for _, e := range expected {
		if !seen[e] {
			return false
		}
	}
	return true
}

func (s *Scenario) onLatency() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkLatencyLocked()
}

func (s *Scenario) checkLatencyLocked() {
	if s.Pipeline == nil || s.MaxLatency <= 0 {
		return
	}
	latency, err := s.Pipeline.Latency(context.Background())
	if err != nil {
		return
	}
	if latency > s.MaxLatency {
		s.reportLocked(report.CodeConfigLatencyTooHigh, fmt.Sprintf("latency %s exceeds max %s", latency, s.MaxLatency), 0)
	}
}

func (s *Scenario) onQoS(msg pipeline.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Dropped += int(msg.Dropped)
	if s.MaxDropped > 0 && s.Dropped > s.MaxDropped {
		s.reportLocked(report.CodeConfigTooManyBuffersDropped, fmt.Sprintf("dropped %d buffers, max %d", s.Dropped, s.MaxDropped), 0)
	}
}

// checkMessageWait implements the "wait, message-type=…" handler contract
// (spec.md §4.7's "message-type wait").
func (s *Scenario) checkMessageWait(msg pipeline.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waitingAction == nil || msg.Type != s.waitingMessageType {
		return
	}
	w := s.waitingAction
	s.waitingAction = nil
	w.Flags.PendingSetDone = true
	select {
	case s.setDoneCh <- w:
	default:
	}
}

// WaitForMessage registers the head action as waiting for the named
// message type, called by the "wait" handler (spec.md §4.8).
func (s *Scenario) WaitForMessage(act *action.Action, msgType pipeline.MessageType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitingAction = act
	s.waitingMessageType = msgType
}

func (s *Scenario) reportLocked(code, message string, actionNumber int) {
	if s.Reporter == nil {
		return
	}
	s.Reporter.Report(code, message, actionNumber)
}

func (s *Scenario) endLocked() {
	s.ended = true
}
