package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const scenarioExt = ".scenario"

// ResolveReference implements spec.md §4.4's search order for a single
// scenario reference: "(i) absolute path; (ii) each directory from the
// scenario-path environment list; (iii) ./data/scenarios; (iv) user data
// dir; (v) system data dir." A reference may be a full file path, a bare
// basename, or a basename missing its .scenario extension.
func ResolveReference(ref string, searchDirs []string) (string, error) {
	if filepath.IsAbs(ref) {
		if fileExists(ref) {
			return ref, nil
		}
		return "", fmt.Errorf("scenario %q: absolute path not found", ref)
	}

	candidates := candidateNames(ref)
	for _, dir := range searchDirs {
		for _, name := range candidates {
			full := filepath.Join(dir, name)
			if fileExists(full) {
				return full, nil
			}
			// Recognize repo-local layouts that glob the tree for
			// basenames instead of requiring an exact relative path
			// (spec.md §4.4's directory-list search order is silent on
			// recursion, so this is a loader convenience).
			matches, err := doublestar.Glob(os.DirFS(dir), "**/"+name)
			if err == nil && len(matches) > 0 {
				return filepath.Join(dir, matches[0]), nil
			}
		}
	}
	return "", fmt.Errorf("scenario %q: not found in search path %v", ref, searchDirs)
}

func candidateNames(ref string) []string {
	if strings.HasSuffix(ref, scenarioExt) {
		return []string{ref}
	}
	return []string{ref + scenarioExt, ref}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// SplitReferences splits spec.md §4.4's colon-separated scenario reference
// list, e.g. "seek-accurate:switch-track-all".
func SplitReferences(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ":")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// varsManifestPath derives the sibling `<name>.vars.yaml` manifest path for
// a scenario file (SPEC_FULL.md §5 supplemented feature).
func varsManifestPath(scenarioPath string) string {
	ext := filepath.Ext(scenarioPath)
	base := strings.TrimSuffix(scenarioPath, ext)
	return base + ".vars.yaml"
}
