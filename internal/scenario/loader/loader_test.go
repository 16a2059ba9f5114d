package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/validatekit/scenario/internal/scenario/registry"
)

func noopHandler(registry.Context) (registry.Outcome, error) { return registry.OutcomeOK, nil }

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	mustRegister := func(name string, flags registry.Flags, params []registry.Parameter) {
		if _, err := r.Register(name, "core", 0, params, noopHandler, nil, flags); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	mustRegister("seek", registry.FlagAsync, []registry.Parameter{
		{Name: "start", Mandatory: true, Types: "double"},
	})
	mustRegister("set-state", registry.FlagAsync|registry.FlagCanExecuteOnAddition, nil)
	mustRegister("stop", 0, nil)
	return r
}

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseStructureBasic(t *testing.T) {
	src := `description, summary="basic seek", handles-states=true;
seek, start=5.0;
`
	structs, err := newParser(src).parseAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(structs) != 2 {
		t.Fatalf("got %d structures, want 2", len(structs))
	}
	if structs[0].Name != "description" || structs[0].Fields["summary"] != "basic seek" {
		t.Errorf("unexpected description structure: %+v", structs[0])
	}
	if structs[1].Name != "seek" || structs[1].Fields["start"] != 5.0 {
		t.Errorf("unexpected seek structure: %+v", structs[1])
	}
}

func TestParseStructureCommentsAndContinuation(t *testing.T) {
	src := "# leading comment\n" +
		"seek, start=1.0, \\\n  stop=2.0; # trailing comment\n"
	structs, err := newParser(src).parseAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(structs) != 1 {
		t.Fatalf("got %d structures, want 1", len(structs))
	}
	if structs[0].Fields["stop"] != 2.0 {
		t.Errorf("continuation line field not parsed: %+v", structs[0])
	}
}

func TestLoadScenariosBasic(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "basic.scenario", `description, summary="basic", handles-states=true;
seek, start=5.0;
`)

	l := New(newTestRegistry(t), []string{dir})
	res, err := l.LoadScenarios("basic")
	if err != nil {
		t.Fatal(err)
	}
	if res.Description.Summary != "basic" {
		t.Errorf("Description.Summary = %q, want basic", res.Description.Summary)
	}
	if len(res.MainQueue) != 1 || res.MainQueue[0].Type.Name != "seek" {
		t.Fatalf("MainQueue = %+v", res.MainQueue)
	}
}

func TestLoadScenariosMandatoryParameterMissing(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "bad.scenario", `description, summary="bad";
seek;
`)
	l := New(newTestRegistry(t), []string{dir})
	if _, err := l.LoadScenarios("bad"); err == nil {
		t.Fatal("expected mandatory-parameter error")
	}
}

func TestLoadScenariosUnknownActionType(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "unknown.scenario", `description, summary="x";
frobnicate, foo=1;
`)
	l := New(newTestRegistry(t), []string{dir})
	if _, err := l.LoadScenarios("unknown"); err == nil {
		t.Fatal("expected unknown-action-type error")
	}
}

func TestLoadScenariosOptionalUnknownActionType(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "opt.scenario", `description, summary="x";
frobnicate, foo=1, optional-action-type=true;
seek, start=1.0;
`)
	l := New(newTestRegistry(t), []string{dir})
	res, err := l.LoadScenarios("opt")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.MainQueue) != 1 {
		t.Fatalf("MainQueue = %+v, want 1 entry (the unknown-optional action should be skipped)", res.MainQueue)
	}
}

func TestLoadScenariosInclude(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "common.scenario", `seek, start=1.0;
`)
	writeScenario(t, dir, "main.scenario", `description, summary="includer";
include, location=common;
stop;
`)
	l := New(newTestRegistry(t), []string{dir})
	res, err := l.LoadScenarios("main")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.MainQueue) != 2 {
		t.Fatalf("MainQueue = %+v, want 2 entries (include + stop)", res.MainQueue)
	}
}

func TestLoadScenariosMultipleNonConfigIsError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a.scenario", `description, summary="a";
stop;
`)
	writeScenario(t, dir, "b.scenario", `description, summary="b";
stop;
`)
	l := New(newTestRegistry(t), []string{dir})
	if _, err := l.LoadScenarios("a:b"); err == nil {
		t.Fatal("expected error for a second non-config scenario")
	}
}

func TestLoadScenariosConfigScenarioDischargesImmediately(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "cfg.scenario", `description, is-config=true;
stop;
`)
	l := New(newTestRegistry(t), []string{dir})
	res, err := l.LoadScenarios("cfg")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.MainQueue) != 0 {
		t.Errorf("MainQueue = %+v, want empty (config scenario actions discharge at load time)", res.MainQueue)
	}
	if res.ConfigDischarged != 1 {
		t.Errorf("ConfigDischarged = %d, want 1", res.ConfigDischarged)
	}
}

func TestLoadScenariosVarsManifest(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "withvars.scenario", `description, summary="x";
seek, start=1.0;
`)
	writeScenario(t, dir, "withvars.vars.yaml", "base: 2.5\nname: sink0\n")

	l := New(newTestRegistry(t), []string{dir})
	res, err := l.LoadScenarios("withvars")
	if err != nil {
		t.Fatal(err)
	}
	v, ok := res.Vars.Get("base")
	if !ok || v != 2.5 {
		t.Errorf("vars manifest not merged: base = %v, %v", v, ok)
	}
}

func TestResolveReferenceMissingExtension(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "foo.scenario", "stop;\n")
	path, err := ResolveReference("foo", []string{dir})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "foo.scenario" {
		t.Errorf("resolved path = %q", path)
	}
}

func TestSplitReferences(t *testing.T) {
	got := SplitReferences("a:b: c :")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
