package handlers

import (
	"fmt"
	"sync"

	"github.com/validatekit/scenario/internal/scenario/registry"
)

var setRankParams = []registry.Parameter{
	{Name: "name", Mandatory: true, Types: "string", Description: "plugin name"},
	{Name: "rank", Mandatory: true, Types: "int"},
}

var setFeatureRankParams = []registry.Parameter{
	{Name: "name", Mandatory: true, Types: "string", Description: "feature (element factory) name"},
	{Name: "rank", Mandatory: true, Types: "int"},
}

var disablePluginParams = []registry.Parameter{
	{Name: "name", Mandatory: true, Types: "string", Description: "plugin name to disable"},
}

// pluginRanks is the process-wide plugin/feature rank table spec.md §4.8
// describes set-rank/set-feature-rank/disable-plugin as mutating "at load
// time"; there is no element-registry primitive in internal/scenario/
// pipeline (the plugin system lives below this engine's abstraction), so
// these CONFIG-like actions record the override here for a real pipeline
// implementation to consult when instantiating elements.
var pluginRanks = struct {
	mu       sync.Mutex
	plugins  map[string]int
	features map[string]int
	disabled map[string]bool
}{
	plugins:  map[string]int{},
	features: map[string]int{},
	disabled: map[string]bool{},
}

// PluginRank returns the overridden rank for a plugin, if any was set by a
// set-rank action.
func PluginRank(name string) (int, bool) {
	pluginRanks.mu.Lock()
	defer pluginRanks.mu.Unlock()
	r, ok := pluginRanks.plugins[name]
	return r, ok
}

// FeatureRank returns the overridden rank for a feature, if any was set by
// a set-feature-rank action.
func FeatureRank(name string) (int, bool) {
	pluginRanks.mu.Lock()
	defer pluginRanks.mu.Unlock()
	r, ok := pluginRanks.features[name]
	return r, ok
}

// PluginDisabled reports whether name was disabled by a disable-plugin
// action.
func PluginDisabled(name string) bool {
	pluginRanks.mu.Lock()
	defer pluginRanks.mu.Unlock()
	return pluginRanks.disabled[name]
}

func execSetRank(ctx registry.Context) (registry.Outcome, error) {
	name := stringField(ctx.Structure, "name", "")
	if name == "" {
		return registry.OutcomeError, fmt.Errorf("set-rank: missing name")
	}
	rank := int(floatField(ctx.Structure, "rank", 0))
	pluginRanks.mu.Lock()
	pluginRanks.plugins[name] = rank
	pluginRanks.mu.Unlock()
	return registry.OutcomeOK, nil
}

func execSetFeatureRank(ctx registry.Context) (registry.Outcome, error) {
	name := stringField(ctx.Structure, "name", "")
	if name == "" {
		return registry.OutcomeError, fmt.Errorf("set-feature-rank: missing name")
	}
	rank := int(floatField(ctx.Structure, "rank", 0))
	pluginRanks.mu.Lock()
	pluginRanks.features[name] = rank
	pluginRanks.mu.Unlock()
	return registry.OutcomeOK, nil
}

func execDisablePlugin(ctx registry.Context) (registry.Outcome, error) {
	name := stringField(ctx.Structure, "name", "")
	if name == "" {
		return registry.OutcomeError, fmt.Errorf("disable-plugin: missing name")
	}
	pluginRanks.mu.Lock()
	pluginRanks.disabled[name] = true
	pluginRanks.mu.Unlock()
	return registry.OutcomeOK, nil
}
