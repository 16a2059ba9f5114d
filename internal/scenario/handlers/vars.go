package handlers

import (
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/validatekit/scenario/internal/scenario/registry"
)

var setVarsParams = []registry.Parameter{}

// execSetVars copies every field of the structure into the variable store
// (spec.md §4.8: "set-vars copies all fields of the structure into the
// variable store").
func execSetVars(ctx registry.Context) (registry.Outcome, error) {
	s, ok := resolveScenario(ctx)
	if !ok {
		return registry.OutcomeError, nil
	}
	for k, v := range ctx.Structure {
		switch t := v.(type) {
		case string:
			s.Vars.SetString(k, t)
		case float64:
			s.Vars.SetNumber(k, t)
		case int:
			s.Vars.SetNumber(k, float64(t))
		}
	}
	return registry.OutcomeOK, nil
}

var setDebugThresholdParams = []registry.Parameter{
	{Name: "debug-threshold", Mandatory: true, Types: "string"},
}

var debugLoggerMu sync.Mutex
var debugLogger = log.New(os.Stderr, "", log.LstdFlags)
var debugThresholdSet int32

// execSetDebugThreshold passes the requested threshold through to the
// logging subsystem (spec.md §4.8: "pass-through to the logging
// subsystem").
func execSetDebugThreshold(ctx registry.Context) (registry.Outcome, error) {
	threshold := stringField(ctx.Structure, "debug-threshold", "")
	debugLoggerMu.Lock()
	debugLogger.SetPrefix("[" + threshold + "] ")
	debugLoggerMu.Unlock()
	atomic.StoreInt32(&debugThresholdSet, 1)
	return registry.OutcomeOK, nil
}

// DebugLogger exposes the logger set-debug-threshold configures, for
// cmd/scenariovalidate to route other ambient logging through the same
// sink.
func DebugLogger() *log.Logger {
	debugLoggerMu.Lock()
	defer debugLoggerMu.Unlock()
	return debugLogger
}
