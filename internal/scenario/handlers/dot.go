package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/validatekit/scenario/internal/scenario/registry"
	"github.com/validatekit/scenario/internal/scenario/report"
)

var dotPipelineParams = []registry.Parameter{
	{Name: "name", Types: "string", Description: "file name, without extension"},
}

var dumpDotDirMu sync.Mutex
var dumpDotDir string

// SetDumpDotDir installs the directory dot-pipeline writes into, sourced
// from the DUMP_DOT_DIR environment variable (spec.md §6).
func SetDumpDotDir(dir string) {
	dumpDotDirMu.Lock()
	dumpDotDir = dir
	dumpDotDirMu.Unlock()
}

// execDotPipeline dumps a best-effort pipeline graph to disk; purely
// observational, so a write failure is reported but never drops the
// action's place in the queue as an OutcomeError would (spec.md §4.8:
// "dump a pipeline graph to disk (observational)").
func execDotPipeline(ctx registry.Context) (registry.Outcome, error) {
	dumpDotDirMu.Lock()
	dir := dumpDotDir
	dumpDotDirMu.Unlock()
	if dir == "" {
		return registry.OutcomeOK, nil
	}
	name := stringField(ctx.Structure, "name", fmt.Sprintf("dump-%d", time.Now().UnixNano()))
	path := filepath.Join(dir, name+".dot")
	content := "digraph pipeline {\n  // observational dump, elements not enumerable via this engine's Pipeline interface\n}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		if s, ok := resolveScenario(ctx); ok {
			actionNumber := 0
			if act := resolveAction(ctx); act != nil {
				actionNumber = act.ActionNumber
			}
			s.ReportLocked(report.CodeScenarioActionExecutionErr, fmt.Sprintf("dot-pipeline: %v", err), actionNumber)
		}
		return registry.OutcomeOK, nil
	}
	return registry.OutcomeOK, nil
}
