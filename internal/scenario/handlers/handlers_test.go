package handlers

import (
	"context"
	"crypto/sha1"
	"testing"
	"time"

	"github.com/validatekit/scenario/internal/scenario/action"
	"github.com/validatekit/scenario/internal/scenario/engine"
	"github.com/validatekit/scenario/internal/scenario/loader"
	"github.com/validatekit/scenario/internal/scenario/pipeline"
	"github.com/validatekit/scenario/internal/scenario/registry"
	"github.com/validatekit/scenario/internal/scenario/report"
	"github.com/validatekit/scenario/internal/scenario/vars"
)

type fakeElement struct {
	name, factory string
	props         map[string]any
	pads          []pipeline.Pad
}

func (e *fakeElement) Name() string        { return e.name }
func (e *fakeElement) FactoryName() string { return e.factory }
func (e *fakeElement) SetProperty(name string, value any) error {
	if e.props == nil {
		e.props = map[string]any{}
	}
	e.props[name] = value
	return nil
}
func (e *fakeElement) GetProperty(name string) (any, error) { return e.props[name], nil }
func (e *fakeElement) Connect(signal string, cb func(args ...any)) (disconnect func()) {
	return func() {}
}
func (e *fakeElement) SendEvent(ev pipeline.Event) error { return nil }
func (e *fakeElement) EmitSignal(name string, args ...any) (any, error) { return nil, nil }
func (e *fakeElement) Pads() []pipeline.Pad { return e.pads }

type fakePipeline struct {
	elements map[string]*fakeElement
	sinks    map[string]pipeline.Sample
	state    pipeline.State
	stateErr error
	async    bool
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{elements: map[string]*fakeElement{}, sinks: map[string]pipeline.Sample{}}
}

func (p *fakePipeline) Seek(ctx context.Context, req pipeline.SeekRequest) error { return nil }
func (p *fakePipeline) SetState(ctx context.Context, target pipeline.State) (bool, error) {
	if p.stateErr != nil {
		return false, p.stateErr
	}
	p.state = target
	return p.async, nil
}
func (p *fakePipeline) Position(ctx context.Context) (time.Duration, error) { return 0, nil }
func (p *fakePipeline) Duration(ctx context.Context) (time.Duration, error) { return 0, nil }
func (p *fakePipeline) Rate() float64                                       { return 1 }
func (p *fakePipeline) Latency(ctx context.Context) (time.Duration, error)  { return 0, nil }
func (p *fakePipeline) FindElementByName(name string) (pipeline.Element, bool) {
	e, ok := p.elements[name]
	return e, ok
}
func (p *fakePipeline) FindElementByFactory(factory string) (pipeline.Element, bool) {
	for _, e := range p.elements {
		if e.factory == factory {
			return e, true
		}
	}
	return nil, false
}
func (p *fakePipeline) FindElementByClass(class string) (pipeline.Element, bool) { return nil, false }
func (p *fakePipeline) FindSinkForCheck(name, factory, caps string) (pipeline.Element, error) {
	if e, ok := p.elements[name]; ok {
		return e, nil
	}
	return nil, nil
}
func (p *fakePipeline) LastSample(sink pipeline.Element) (pipeline.Sample, bool) {
	s, ok := p.sinks[sink.Name()]
	return s, ok
}
func (p *fakePipeline) SendEOS(ctx context.Context) error                               { return nil }
func (p *fakePipeline) PushBuffer(ctx context.Context, appsrc string, data []byte, caps string) error {
	return nil
}
func (p *fakePipeline) SendAppsrcEOS(ctx context.Context, appsrc string) error { return nil }
func (p *fakePipeline) Bus() pipeline.Bus                                     { return nil }

func newTestScenario() *engine.Scenario {
	reg := registry.New()
	reporter := report.New(nil)
	res := &loader.Result{Vars: vars.New()}
	return engine.New(res, reg, reporter, nil)
}

func TestExecSeekRecordsSegment(t *testing.T) {
	pl := newFakePipeline()
	s := newTestScenario()
	s.Pipeline = pl
	out, err := execSeek(registry.Context{
		Structure: map[string]any{"start": 5.0, "flags": "accurate+flush"},
		Pipeline:  pipeline.Pipeline(pl),
		Scenario:  s,
	})
	if err != nil {
		t.Fatalf("execSeek: %v", err)
	}
	if out != registry.OutcomeAsync {
		t.Errorf("outcome = %v, want async", out)
	}
	if s.SegmentStart != 5*time.Second {
		t.Errorf("SegmentStart = %v, want 5s", s.SegmentStart)
	}
	if !s.SeekFlags.Has(pipeline.SeekFlagAccurate) || !s.SeekFlags.Has(pipeline.SeekFlagFlush) {
		t.Errorf("SeekFlags = %v, want accurate+flush", s.SeekFlags)
	}
}

func TestExecSetStateSynchronous(t *testing.T) {
	pl := newFakePipeline()
	s := newTestScenario()
	s.Pipeline = pl
	out, err := execSetState(registry.Context{
		Structure: map[string]any{"state": "paused"},
		Pipeline:  pipeline.Pipeline(pl),
		Scenario:  s,
	})
	if err != nil {
		t.Fatalf("execSetState: %v", err)
	}
	if out != registry.OutcomeOK {
		t.Errorf("outcome = %v, want ok (synchronous)", out)
	}
	if s.TargetState != pipeline.StatePaused {
		t.Errorf("TargetState = %v, want paused", s.TargetState)
	}
}

func TestExecSetStateAsync(t *testing.T) {
	pl := newFakePipeline()
	pl.async = true
	s := newTestScenario()
	s.Pipeline = pl
	out, err := execPlay(registry.Context{Structure: map[string]any{}, Pipeline: pipeline.Pipeline(pl), Scenario: s})
	if err != nil {
		t.Fatalf("execPlay: %v", err)
	}
	if out != registry.OutcomeAsync {
		t.Errorf("outcome = %v, want async", out)
	}
	if !s.ChangingState || !s.NeedsAsyncDone {
		t.Error("async transition should set ChangingState and NeedsAsyncDone")
	}
}

func TestExecStopEndsScenario(t *testing.T) {
	pl := newFakePipeline()
	s := newTestScenario()
	s.Pipeline = pl
	out, err := execStop(registry.Context{Structure: map[string]any{}, Pipeline: pipeline.Pipeline(pl), Scenario: s})
	if err != nil {
		t.Fatalf("execStop: %v", err)
	}
	if out != registry.OutcomeOK {
		t.Errorf("outcome = %v, want ok", out)
	}
	if pl.state != pipeline.StateNull {
		t.Errorf("pipeline state = %v, want null", pl.state)
	}
}

func TestExecSetVarsCopiesStructure(t *testing.T) {
	s := newTestScenario()
	_, err := execSetVars(registry.Context{
		Structure: map[string]any{"foo": "bar", "count": 3.0},
		Scenario:  s,
	})
	if err != nil {
		t.Fatalf("execSetVars: %v", err)
	}
	if v, ok := s.Vars.GetString("foo"); !ok || v != "bar" {
		t.Errorf("GetString(foo) = %q, %v, want bar, true", v, ok)
	}
	if v, ok := s.Vars.Get("count"); !ok || v != 3.0 {
		t.Errorf("Get(count) = %v, %v, want 3.0, true", v, ok)
	}
}

func TestExecWaitDurationResolvesViaSetDone(t *testing.T) {
	SetWaitMultiplier(1.0)
	s := newTestScenario()
	typ := &registry.Type{Name: "wait", Flags: registry.FlagDoesntNeedPipeline}
	act := action.New(typ, map[string]any{"duration": 0.01}, 1)

	out, err := execWait(registry.Context{Structure: act.Structure, Scenario: s, Action: act})
	if err != nil {
		t.Fatalf("execWait: %v", err)
	}
	if out != registry.OutcomeAsync {
		t.Fatalf("outcome = %v, want async", out)
	}
	time.Sleep(50 * time.Millisecond)
	if !act.Flags.PendingSetDone {
		t.Error("expected the wait timer to have called SetDone on the action")
	}
}

func TestExecWaitDisabledByZeroMultiplier(t *testing.T) {
	SetWaitMultiplier(0)
	defer SetWaitMultiplier(1.0)
	s := newTestScenario()
	typ := &registry.Type{Name: "wait", Flags: registry.FlagDoesntNeedPipeline}
	act := action.New(typ, map[string]any{"duration": 5.0}, 1)

	out, err := execWait(registry.Context{Structure: act.Structure, Scenario: s, Action: act})
	if err != nil {
		t.Fatalf("execWait: %v", err)
	}
	if out != registry.OutcomeOK {
		t.Errorf("outcome = %v, want ok when wait multiplier is 0", out)
	}
}

func TestExecCheckLastSampleMatchesChecksum(t *testing.T) {
	pl := newFakePipeline()
	data := []byte("sample-bytes")
	sum := sha1.Sum(data)
	pl.elements["sink0"] = &fakeElement{name: "sink0"}
	pl.sinks["sink0"] = pipeline.Sample{Bytes: data}

	out, err := execCheckLastSample(registry.Context{
		Structure: map[string]any{"sink-name": "sink0", "checksum": hexString(sum[:])},
		Pipeline:  pipeline.Pipeline(pl),
	})
	if err != nil {
		t.Fatalf("execCheckLastSample: %v", err)
	}
	if out != registry.OutcomeOK {
		t.Errorf("outcome = %v, want ok", out)
	}
}

func TestExecCheckLastSampleMismatch(t *testing.T) {
	pl := newFakePipeline()
	pl.elements["sink0"] = &fakeElement{name: "sink0"}
	pl.sinks["sink0"] = pipeline.Sample{Bytes: []byte("actual")}

	_, err := execCheckLastSample(registry.Context{
		Structure: map[string]any{"sink-name": "sink0", "checksum": "0000000000000000000000000000000000000000"},
		Pipeline:  pipeline.Pipeline(pl),
	})
	if err == nil {
		t.Error("expected a checksum mismatch error")
	}
}

func TestExecSetPropertyRoundTrips(t *testing.T) {
	pl := newFakePipeline()
	el := &fakeElement{name: "el0", props: map[string]any{"volume": 1.0}}
	pl.elements["el0"] = el

	out, err := execSetProperty(registry.Context{
		Structure: map[string]any{"target-element-name": "el0", "property-name": "volume", "property-value": "0.5"},
		Pipeline:  pipeline.Pipeline(pl),
	})
	if err != nil {
		t.Fatalf("execSetProperty: %v", err)
	}
	if out != registry.OutcomeOK {
		t.Errorf("outcome = %v, want ok", out)
	}
	if el.props["volume"] != 0.5 {
		t.Errorf("volume = %v, want 0.5", el.props["volume"])
	}
}

func TestRegisterAllRegistersEveryBuiltin(t *testing.T) {
	reg := registry.New()
	if err := RegisterAll(reg); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	for _, name := range []string{
		"seek", "set-state", "play", "pause", "stop", "eos", "switch-track",
		"wait", "set-property", "set-rank", "set-feature-rank", "disable-plugin",
		"set-vars", "set-debug-threshold", "appsrc-push", "appsrc-eos", "flush",
		"emit-signal", "dot-pipeline", "check-last-sample",
	} {
		if reg.Lookup(name) == nil {
			t.Errorf("type %q was not registered", name)
		}
	}
}

func hexString(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}
