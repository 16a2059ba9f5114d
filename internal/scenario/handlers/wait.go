package handlers

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/validatekit/scenario/internal/scenario/registry"
)

var waitParams = []registry.Parameter{
	{Name: "duration", Types: "double", Description: "seconds to wait"},
	{Name: "signal-name", Types: "string", Description: "signal to wait for on target-element-name"},
	{Name: "target-element-name", Types: "string", Description: "element the signal fires on"},
	{Name: "message-type", Types: "string", Description: "bus message type to wait for"},
}

// waitMultiplier scales every "duration" wait, per SCENARIO_WAIT_MULTIPLIER
// (spec.md §6); 0 disables waits entirely. Stored as bits of a float64 so
// cmd/scenariovalidate can set it once at startup without adding a
// synchronization dependency to this package's public surface.
var waitMultiplierBits uint64 = 0x3ff0000000000000 // 1.0

// SetWaitMultiplier installs the process-wide wait-duration multiplier.
func SetWaitMultiplier(m float64) {
	atomic.StoreUint64(&waitMultiplierBits, math.Float64bits(m))
}

func waitMultiplier() float64 {
	return math.Float64frombits(atomic.LoadUint64(&waitMultiplierBits))
}

// execWait implements spec.md §4.8's wait: one of duration (timed),
// signal-name on target-element-name (a one-shot callback), or message-type
// (delegated to the bus reactor). Returns ASYNC, except that a duration
// wait returns OK at once when the multiplier is 0; missing context or
// parameters return ERROR.
func execWait(ctx registry.Context) (registry.Outcome, error) {
	s, hasScenario := resolveScenario(ctx)
	act := resolveAction(ctx)
	if !hasScenario || act == nil {
		return registry.OutcomeError, fmt.Errorf("wait: no scenario context")
	}

	if _, ok := ctx.Structure["duration"]; ok {
		seconds := floatField(ctx.Structure, "duration", 0)
		m := waitMultiplier()
		if m == 0 {
			return registry.OutcomeOK, nil
		}
		time.AfterFunc(time.Duration(seconds*m*float64(time.Second)), func() {
			s.SetDone(act)
		})
		return registry.OutcomeAsync, nil
	}

	if signalName := stringField(ctx.Structure, "signal-name", ""); signalName != "" {
		pl, err := resolvePipeline(ctx)
		if err != nil {
			return registry.OutcomeError, err
		}
		el, err := resolveElement(pl, ctx.Structure, "target-element-name", "target-element-class", "target-element-factory-name")
		if err != nil {
			return registry.OutcomeError, err
		}
		var disconnect func()
		disconnect = el.Connect(signalName, func(args ...any) {
			s.SetDone(act)
			if disconnect != nil {
				disconnect()
			}
		})
		return registry.OutcomeAsync, nil
	}

	if msgTypeRaw := stringField(ctx.Structure, "message-type", ""); msgTypeRaw != "" {
		msgType, err := parseMessageType(msgTypeRaw)
		if err != nil {
			return registry.OutcomeError, err
		}
		s.WaitForMessageLocked(act, msgType)
		return registry.OutcomeAsync, nil
	}

	return registry.OutcomeError, fmt.Errorf("wait: none of duration/signal-name/message-type given")
}
