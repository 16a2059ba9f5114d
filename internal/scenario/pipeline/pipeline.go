// Package pipeline declares the interface the Scenario Engine drives and
// observes. The streaming pipeline itself, its element graph, and its bus
// implementation are external collaborators (spec.md §1); this package
// specs only the shape the engine needs, not an implementation.
package pipeline

import (
	"context"
	"time"
)

// State mirrors the four-state pipeline state machine (NULL < READY < PAUSED < PLAYING).
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// SeekFlags is a bitset mirroring the pipeline's seek-flag vocabulary
// (spec.md §4.8 seek fields).
type SeekFlags uint32

const (
	SeekFlagNone SeekFlags = 0
	SeekFlagFlush SeekFlags = 1 << iota
	SeekFlagAccurate
	SeekFlagKeyUnit
	SeekFlagSegment
	SeekFlagSkip
	SeekFlagSnapBefore
	SeekFlagSnapAfter
)

// Has reports whether f contains the bit for want.
func (f SeekFlags) Has(want SeekFlags) bool { return f&want == want }

// SeekType distinguishes the three endpoint kinds a seek field can carry
// (spec.md §4.8, §9 Open Question (b)).
type SeekType int

const (
	SeekTypeNone SeekType = iota
	SeekTypeSet
	SeekTypeEnd
)

// SeekRequest is the parameter set sent to Pipeline.Seek.
type SeekRequest struct {
	Start     time.Duration
	StartType SeekType
	Stop      time.Duration
	StopType  SeekType
	Rate      float64
	Flags     SeekFlags
}

// StreamType enumerates the three track kinds switch-track operates on.
type StreamType int

const (
	StreamAudio StreamType = iota
	StreamVideo
	StreamText
)

// StreamInfo describes one track in a streams-selected observation.
type StreamInfo struct {
	ID   string
	Type StreamType
}

// MessageType enumerates the bus observations the reactor (C7) consumes.
type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageStateChanged
	MessageAsyncDone
	MessageEOS
	MessageError
	MessageBuffering
	MessageStreamsSelected
	MessageLatency
	MessageQoS
	MessageElement // generic element-posted message; wait matches it by type only, Name is not compared
)

// Message is one observation delivered over Bus.Messages.
type Message struct {
	Type MessageType
	Src  Element

	// StateChanged
	OldState State
	NewState State

	// Buffering
	Percent int

	// StreamsSelected
	Streams []StreamInfo

	// Latency
	Latency time.Duration

	// QoS
	Dropped uint64

	// Error
	Err error

	// Element (generic named messages used by `wait, message-type=...`)
	Name string

	// Structure carries any additional named fields the message source attached,
	// used for expression/variable lookups when a handler needs them.
	Structure map[string]any
}

// Element is a single node in the pipeline graph, resolvable by name,
// factory name, or class.
type Element interface {
	Name() string
	FactoryName() string
	SetProperty(name string, value any) error
	GetProperty(name string) (any, error)
	Connect(signal string, cb func(args ...any)) (disconnect func())
	SendEvent(ev Event) error
	EmitSignal(name string, args ...any) (any, error)
	Pads() []Pad
}

// Pad is a single pad on an Element; used by appsrc-push's chain-wrapper
// probe and by check-last-sample's sink resolution.
type Pad interface {
	Name() string
	Peer() (Pad, bool)
	Caps() (string, bool)
	AddProbe(cb func(buf []byte) ProbeAction) (remove func())
}

// ProbeAction is returned by a pad-probe callback.
type ProbeAction int

const (
	ProbeOK ProbeAction = iota
	ProbeDrop
	ProbeRemove
)

// EventKind enumerates the events a handler can post to an element.
type EventKind int

const (
	EventFlushStart EventKind = iota
	EventFlushStop
	EventEOS
)

// Event is sent via Element.SendEvent.
type Event struct {
	Kind      EventKind
	ResetTime bool // FlushStop's reset-time flag (spec.md §4.8 flush)
}

// Sample is the last-sample buffer read back from a sink (check-last-sample).
type Sample struct {
	Bytes []byte
	Caps  string
}

// Bus delivers asynchronous pipeline observations to the reactor.
type Bus interface {
	Messages() <-chan Message
}

// Open constructs a live Pipeline for the named pipeline description
// (spec.md §4.4's `pipeline-name`). It is nil by default: this package
// specs only the shape the engine needs (§1), not an implementation, so a
// real binding (GStreamer via cgo, or a test double) must set Open before
// cmd/scenariovalidate's run subcommand can do anything beyond dry-run
// validation.
var Open func(pipelineName string) (Pipeline, error)

// Pipeline is the external collaborator the engine drives. All methods must
// be safe to call from the dispatcher's single goroutine; handlers that need
// to react to asynchronous completion register via Bus or a Pad probe and
// signal back through engine.Scenario.SetDone (never by blocking here).
type Pipeline interface {
	Seek(ctx context.Context, req SeekRequest) error
	SetState(ctx context.Context, target State) (async bool, err error)
	Position(ctx context.Context) (time.Duration, error)
	Duration(ctx context.Context) (time.Duration, error)
	Rate() float64
	Latency(ctx context.Context) (time.Duration, error)

	FindElementByName(name string) (Element, bool)
	FindElementByFactory(factory string) (Element, bool)
	FindElementByClass(class string) (Element, bool)
	// FindSinkForCheck resolves at most one sink matching the given
	// name/factory/caps selector for check-last-sample; returns an error if
	// more than one element matches (spec.md §4.8).
	FindSinkForCheck(name, factory, sinkpadCaps string) (Element, error)
	LastSample(sink Element) (Sample, bool)

	SendEOS(ctx context.Context) error
	PushBuffer(ctx context.Context, appsrc string, data []byte, caps string) error
	SendAppsrcEOS(ctx context.Context, appsrc string) error

	Bus() Bus
}
