package engine

import (
	"context"
	"testing"

	"github.com/validatekit/scenario/internal/scenario/action"
	"github.com/validatekit/scenario/internal/scenario/pipeline"
	"github.com/validatekit/scenario/internal/scenario/registry"
	"github.com/validatekit/scenario/internal/scenario/report"
)

func TestOnBufferingSetsAndClears(t *testing.T) {
	s, _ := newTestScenario()
	s.HandleMessage(context.Background(), pipeline.Message{Type: pipeline.MessageBuffering, Percent: 50})
	if !s.Buffering {
		t.Fatal("Buffering should be true at 50%")
	}
	s.HandleMessage(context.Background(), pipeline.Message{Type: pipeline.MessageBuffering, Percent: 100})
	if s.Buffering {
		t.Fatal("Buffering should clear at 100%")
	}
}

func TestOnQoSAccumulatesDroppedAndReports(t *testing.T) {
	s, sink := newTestScenario()
	s.MaxDropped = 10
	s.HandleMessage(context.Background(), pipeline.Message{Type: pipeline.MessageQoS, Dropped: 6})
	s.HandleMessage(context.Background(), pipeline.Message{Type: pipeline.MessageQoS, Dropped: 6})
	if s.Dropped != 12 {
		t.Fatalf("Dropped = %d, want 12", s.Dropped)
	}
	found := false
	for _, ev := range sink.events {
		if ev.Code == report.CodeConfigTooManyBuffersDropped {
			found = true
		}
	}
	if !found {
		t.Error("expected a config-too-many-buffers-dropped report once MaxDropped is exceeded")
	}
}

func TestEOSSynthesizesStopAndEndsScenario(t *testing.T) {
	stopRan := false
	typ := &registry.Type{
		Name:  "stop",
		Flags: registry.FlagDoesntNeedPipeline,
		Execute: func(registry.Context) (registry.Outcome, error) {
			stopRan = true
			return registry.OutcomeOK, nil
		},
	}
	reg := registry.New()
	if _, err := reg.Register("stop", "core", 0, nil, typ.Execute, nil, registry.FlagDoesntNeedPipeline); err != nil {
		t.Fatal(err)
	}

	sink := &fakeSink{}
	s := &Scenario{
		Registry:  reg,
		Reporter:  report.New(sink),
		setDoneCh: make(chan *action.Action, 8),
	}

	s.HandleMessage(context.Background(), pipeline.Message{Type: pipeline.MessageEOS})

	if !stopRan {
		t.Error("expected the synthesized stop action to run")
	}
	if !s.GotEOS {
		t.Error("GotEOS should be set")
	}
	if !s.ended {
		t.Error("scenario should be marked ended after EOS handling")
	}
}

func TestWaitForMessageResolvesOnMatch(t *testing.T) {
	s, _ := newTestScenario()
	typ := &registry.Type{Name: "wait", Flags: registry.FlagDoesntNeedPipeline}
	waiter := action.New(typ, map[string]any{}, 1)
	s.WaitForMessage(waiter, pipeline.MessageLatency)

	// HandleMessage ends with a kick, which drains setDoneCh, so the
	// observable effect of set_done is the waiting action reaching OK.
	s.HandleMessage(context.Background(), pipeline.Message{Type: pipeline.MessageQoS})
	if waiter.State == action.StateOK {
		t.Fatal("wait should not resolve on a non-matching message type")
	}

	s.HandleMessage(context.Background(), pipeline.Message{Type: pipeline.MessageLatency})
	if s.waitingAction != nil {
		t.Error("the matching message type should clear the waiting action")
	}
	if waiter.State != action.StateOK {
		t.Fatal("expected set_done for the matching message type to complete the waiting action")
	}
}
