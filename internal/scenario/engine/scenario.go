// Package engine implements the Dispatcher (C6) and Bus Reactor (C7): the
// Scenario's action queues, the gate conditions that decide when the next
// action fires, and the pipeline-message handling that advances waiting
// actions (spec.md §4.6, §4.7, §5). The cross-thread set_done handshake is
// a buffered Go channel drained on the single dispatching goroutine, the
// same role the teacher's cxdb_sink.go gives a channel-backed queue
// draining on a single writer goroutine (internal/attractor/engine,
// deleted after extracting this shape — see DESIGN.md).
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/validatekit/scenario/internal/scenario/action"
	"github.com/validatekit/scenario/internal/scenario/loader"
	"github.com/validatekit/scenario/internal/scenario/pipeline"
	"github.com/validatekit/scenario/internal/scenario/registry"
	"github.com/validatekit/scenario/internal/scenario/report"
	"github.com/validatekit/scenario/internal/scenario/vars"
)

// DefaultSeekPosTol is the default position-gate tolerance (spec.md §4.6).
const DefaultSeekPosTol = time.Millisecond

// DefaultActionExecutionInterval is the default idle-dispatch cadence
// (spec.md §3: "action_execution_interval (default 10 ms)").
const DefaultActionExecutionInterval = 10 * time.Millisecond

// Scenario owns the three action queues and all of the cross-cutting
// engine state the dispatcher and reactor read and mutate (spec.md §3).
type Scenario struct {
	mu sync.Mutex

	MainQueue         []*action.Action
	InterlacedActions []*action.Action
	OnAdditionQueue   []*action.Action

	Vars     *vars.Store
	Registry *registry.Registry
	Reporter *report.Reporter

	// Pipeline is a weak reference to the external collaborator (spec.md
	// §3, §5): nilled on Finalize.
	Pipeline pipeline.Pipeline

	SegmentStart, SegmentStop time.Duration
	SeekFlags                 pipeline.SeekFlags
	SeekedInPause             bool

	TargetState    pipeline.State
	ChangingState  bool
	NeedsAsyncDone bool
	Buffering      bool
	GotEOS         bool

	PendingSwitchTrack *action.Action

	Dropped    int
	MaxDropped int
	MaxLatency time.Duration

	ActionExecutionInterval time.Duration
	SeekPosTol              time.Duration

	HandlesStates bool

	// Overrides is the loaded report-severity override table (spec.md §6
	// "Configuration interface").
	Overrides map[string]string

	// waitingMessageType/waitingAction implement the "wait, message-type=…"
	// handler contract (spec.md §4.8): the reactor compares incoming
	// messages against this and, on a match, posts the waiting action to
	// setDoneCh.
	waitingMessageType pipeline.MessageType
	waitingAction      *action.Action

	// setDoneCh is the only thread-safe cross-thread entry point (spec.md
	// §5: "the only thread-safe cross-thread API"). Handler goroutines,
	// pad probes, and signal callbacks call SetDone, which posts here;
	// the dispatch loop drains it before re-evaluating gate conditions.
	setDoneCh chan *action.Action

	// dispatchScheduled guards execute_actions_source_id (spec.md §4.6):
	// "Only one dispatcher task may be outstanding at any time."
	dispatchScheduled bool

	ended bool
}

// New builds a Scenario from a freshly loaded Result.
func New(res *loader.Result, reg *registry.Registry, reporter *report.Reporter, pl pipeline.Pipeline) *Scenario {
	s := &Scenario{
		MainQueue:               res.MainQueue,
		OnAdditionQueue:         res.OnAdditionQueue,
		Vars:                    res.Vars,
		Registry:                reg,
		Reporter:                reporter,
		Pipeline:                pl,
		HandlesStates:           res.Description.HandlesStates,
		MaxDropped:              res.Description.MaxDropped,
		MaxLatency:              time.Duration(res.Description.MaxLatencySeconds * float64(time.Second)),
		ActionExecutionInterval: DefaultActionExecutionInterval,
		SeekPosTol:              DefaultSeekPosTol,
		setDoneCh:               make(chan *action.Action, 64),
	}
	for _, a := range s.MainQueue {
		a.Scenario = s
	}
	for _, a := range s.OnAdditionQueue {
		a.Scenario = s
	}
	return s
}

// Finalize drops all three queues and the pipeline reference (spec.md §4:
// "on finalize it drops all three queues").
func (s *Scenario) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.MainQueue {
		a.Finalize()
	}
	for _, a := range s.InterlacedActions {
		a.Finalize()
	}
	for _, a := range s.OnAdditionQueue {
		a.Finalize()
	}
	s.MainQueue = nil
	s.InterlacedActions = nil
	s.OnAdditionQueue = nil
	s.Pipeline = nil
	s.ended = true
}

// SetDone is the one thread-safe cross-thread API (spec.md §5): it may be
// called from a handler's pad-probe, signal callback, or timer goroutine.
// If the scenario has already been finalized the weak pipeline/queue
// references are gone and this is a silent no-op (spec.md §5:
// "Cancellation").
func (s *Scenario) SetDone(act *action.Action) {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended || act == nil {
		return
	}
	act.Flags.PendingSetDone = true
	select {
	case s.setDoneCh <- act:
	default:
		// Channel full: the dispatch loop will still find this action
		// pending via its PendingSetDone flag on its next pass, so a
		// dropped wakeup costs latency, not correctness.
	}
}

// drainSetDone processes every action.Action currently queued on
// setDoneCh, advancing its sub-action chain (or marking it OK) and
// clearing PendingSetDone. No execution duration is recorded. Returns the
// number drained. Must run on the dispatch goroutine; kick calls it before
// running the dispatcher.
func (s *Scenario) drainSetDone() int {
	n := 0
	for {
		select {
		case act := <-s.setDoneCh:
			s.completeAsync(act)
			n++
		default:
			return n
		}
	}
}

func (s *Scenario) completeAsync(act *action.Action) {
	act.Flags.PendingSetDone = false
	if raw, ok := act.SubAction(); ok && !act.Flags.ExecutingLastSubaction {
		name, fields, err := resolveSubAction(raw)
		if err != nil {
			s.report(report.CodeScenarioFileMalformed, fmt.Sprintf("action %s #%d: sub-action: %s", act.Type.Name, act.ActionNumber, err), act.ActionNumber)
			s.dropHeadAction()
			return
		}
		typ := s.Registry.Lookup(name)
		if typ == nil {
			s.report(report.CodeUnknownActionType, fmt.Sprintf("action %s #%d: sub-action %q is not a registered action type", act.Type.Name, act.ActionNumber, name), act.ActionNumber)
			s.dropHeadAction()
			return
		}
		// This model supports one level of sub-action, so the sub-action
		// we're about to dispatch is always the terminal one: mark it now
		// rather than waiting to discover there's no further nesting, so
		// a following ASYNC completion of the sub-action itself can't be
		// mistaken for another sub-action to chain into (spec.md §4.5:
		// "a following ASYNC does not retrigger").
		act.Flags.ExecutingLastSubaction = true
		act.Type = typ
		act.Structure = fields
		act.State = action.StateReady
		return
	}
	act.State = action.StateOK
}

// resolveSubAction turns the raw structure["sub-action"] value — a
// structure-text string (`"set-property, target-element-name=…"`) or an
// already-parsed inline structure — into the action type name and field set
// to dispatch (spec.md §4.5 / scenario #3).
func resolveSubAction(raw any) (string, map[string]any, error) {
	switch v := raw.(type) {
	case string:
		return loader.ParseStructureText(v)
	case map[string]any:
		name, _ := v["name"].(string)
		if name == "" {
			return "", nil, fmt.Errorf("inline sub-action structure is missing its %q field", "name")
		}
		fields := make(map[string]any, len(v))
		for k, val := range v {
			if k == "name" {
				continue
			}
			fields[k] = val
		}
		return name, fields, nil
	default:
		return "", nil, fmt.Errorf("unsupported sub-action value type %T", raw)
	}
}

// pendingCount returns the number of actions that are neither executed nor
// excused from "scenario ended" accounting (spec.md §4.7 EOS handling,
// §8's testable property).
func (s *Scenario) pendingCount() int {
	n := 0
	for _, a := range s.MainQueue {
		if a.State == action.StateOK {
			continue
		}
		if a.Flags.Optional || a.Type.Flags.Has(registry.FlagNoExecutionNotFatal) {
			continue
		}
		n++
	}
	return n
}
