package handlers

import (
	"fmt"

	"github.com/validatekit/scenario/internal/scenario/registry"
)

// namespace is the ImplementerNamespace every built-in type registers
// under, distinguishing it from any scenario-supplied plugin action type
// with the same rank (spec.md §4.3).
const namespace = "core"

type typeSpec struct {
	name    string
	rank    int
	params  []registry.Parameter
	execute registry.Handler
	prepare registry.Handler
	flags   registry.Flags
}

// RegisterAll registers every built-in action type (spec.md §4.8) into
// reg, following the teacher's NewDefaultRegistry shape
// (internal/attractor/engine/handlers.go): one entry per kind, registered
// by name at startup.
func RegisterAll(reg *registry.Registry) error {
	specs := []typeSpec{
		{name: "seek", rank: 0, params: seekParams, execute: execSeek, flags: registry.FlagAsync},
		{name: "set-state", rank: 0, params: setStateParams, execute: execSetState, flags: registry.FlagAsync},
		{name: "play", rank: 0, params: playParams, execute: execPlay, flags: registry.FlagAsync},
		{name: "pause", rank: 0, params: pauseParams, execute: execPause, flags: registry.FlagAsync},
		{name: "stop", rank: 0, execute: execStop, flags: registry.FlagDoesntNeedPipeline | registry.FlagCanExecuteOnAddition},
		{name: "eos", rank: 0, execute: execEOS},
		{name: "switch-track", rank: 0, params: switchTrackParams, execute: execSwitchTrack, flags: registry.FlagAsync | registry.FlagInterlaced},
		{name: "wait", rank: 0, params: waitParams, execute: execWait, flags: registry.FlagAsync | registry.FlagDoesntNeedPipeline | registry.FlagCanExecuteOnAddition},
		{name: "set-property", rank: 0, params: setPropertyParams, execute: execSetProperty, flags: registry.FlagCanBeOptional},
		{name: "set-rank", rank: 0, params: setRankParams, execute: execSetRank, flags: registry.FlagDoesntNeedPipeline | registry.FlagHandledInConfig},
		{name: "set-feature-rank", rank: 0, params: setFeatureRankParams, execute: execSetFeatureRank, flags: registry.FlagDoesntNeedPipeline | registry.FlagHandledInConfig},
		{name: "disable-plugin", rank: 0, params: disablePluginParams, execute: execDisablePlugin, flags: registry.FlagDoesntNeedPipeline | registry.FlagHandledInConfig},
		{name: "set-vars", rank: 0, params: setVarsParams, execute: execSetVars, flags: registry.FlagDoesntNeedPipeline | registry.FlagCanExecuteOnAddition},
		{name: "set-debug-threshold", rank: 0, params: setDebugThresholdParams, execute: execSetDebugThreshold, flags: registry.FlagDoesntNeedPipeline | registry.FlagCanExecuteOnAddition},
		{name: "appsrc-push", rank: 0, params: appsrcPushParams, execute: execAppsrcPush, flags: registry.FlagAsync | registry.FlagInterlaced},
		{name: "appsrc-eos", rank: 0, params: appsrcEOSParams, execute: execAppsrcEOS},
		{name: "flush", rank: 0, params: flushParams, execute: execFlush},
		{name: "emit-signal", rank: 0, params: emitSignalParams, execute: execEmitSignal},
		{name: "dot-pipeline", rank: 0, params: dotPipelineParams, execute: execDotPipeline, flags: registry.FlagDoesntNeedPipeline | registry.FlagNoExecutionNotFatal},
		{name: "check-last-sample", rank: 0, params: checkLastSampleParams, execute: execCheckLastSample, flags: registry.FlagCanBeOptional | registry.FlagInterlaced},
	}

	for _, sp := range specs {
		if _, err := reg.Register(sp.name, namespace, sp.rank, sp.params, sp.execute, sp.prepare, sp.flags); err != nil {
			return fmt.Errorf("register %s: %w", sp.name, err)
		}
	}
	return nil
}
