package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/validatekit/scenario/internal/scenario/registry"
)

// ScenarioInfo is one entry of a list_scenarios result (spec.md §6:
// "list_scenarios(paths?) -> key-value listing").
type ScenarioInfo struct {
	Name        string
	Path        string
	Description Description
}

// ListScenarios walks searchDirs for *.scenario files and returns each
// one's description fields, deriving NeedClockSync from any referenced
// action type flagged FlagNeedsClock (spec.md §6: "reports ... a derived
// need-clock-sync=true if any action type in the file is flagged
// NEEDS_CLOCK"). reg may be nil, in which case the derived check is
// skipped and only each file's own description fields are reported.
func ListScenarios(reg *registry.Registry, searchDirs []string) ([]ScenarioInfo, error) {
	seen := map[string]bool{}
	var out []ScenarioInfo

	for _, dir := range searchDirs {
		matches, err := doublestar.Glob(os.DirFS(dir), "**/*"+scenarioExt)
		if err != nil {
			continue
		}
		for _, m := range matches {
			full := filepath.Join(dir, m)
			if seen[full] {
				continue
			}
			seen[full] = true

			info, err := describeScenarioFile(reg, full)
			if err != nil {
				return nil, err
			}
			out = append(out, info)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func describeScenarioFile(reg *registry.Registry, path string) (ScenarioInfo, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return ScenarioInfo{}, fmt.Errorf("read scenario %s: %w", path, err)
	}
	structures, err := newParser(string(content)).parseAll()
	if err != nil {
		return ScenarioInfo{}, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	info := ScenarioInfo{
		Name: strings.TrimSuffix(filepath.Base(path), scenarioExt),
		Path: path,
	}
	for _, st := range structures {
		switch st.Name {
		case "description":
			info.Description = parseDescription(st)
		case "include":
		default:
			if reg == nil {
				continue
			}
			if typ := reg.Lookup(st.Name); typ != nil && typ.Flags.Has(registry.FlagNeedsClock) {
				info.Description.NeedClockSync = true
			}
		}
	}
	return info, nil
}
