package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func buildScenariovalidateBinary(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	// wd is .../cmd/scenariovalidate
	root := filepath.Dir(filepath.Dir(wd))
	bin := filepath.Join(t.TempDir(), "scenariovalidate")
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/scenariovalidate")
	cmd.Dir = root
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build: %v\n%s", err, string(out))
	}
	return bin
}

func runScenariovalidate(t *testing.T, bin string, env []string, args ...string) (exitCode int, stdoutStderr string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		t.Fatalf("scenariovalidate timed out\n%s", string(out))
	}
	if err == nil {
		return 0, string(out)
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("scenariovalidate failed: %v\n%s", err, string(out))
	}
	return ee.ExitCode(), string(out)
}

func writeMinimalScenario(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name+".scenario")
	content := "description, summary=\"" + name + "\", handles-states=true;\n" +
		"set-vars, foo=\"bar\";\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func TestUsageExitsOne(t *testing.T) {
	bin := buildScenariovalidateBinary(t)
	code, out := runScenariovalidate(t, bin, nil)
	if code != 1 {
		t.Fatalf("exit code: got %d want 1\n%s", code, out)
	}
	if !strings.Contains(out, "scenariovalidate run") || !strings.Contains(out, "scenariovalidate validate") {
		t.Fatalf("usage should mention run and validate subcommands; output:\n%s", out)
	}
}

func TestVersionFlagExitsZero(t *testing.T) {
	bin := buildScenariovalidateBinary(t)
	code, out := runScenariovalidate(t, bin, nil, "--version")
	if code != 0 {
		t.Fatalf("exit code: got %d want 0\n%s", code, out)
	}
	if !strings.Contains(out, "scenariovalidate") {
		t.Fatalf("expected version string; output:\n%s", out)
	}
}

func TestValidateSucceedsOnWellFormedScenario(t *testing.T) {
	bin := buildScenariovalidateBinary(t)
	dir := t.TempDir()
	writeMinimalScenario(t, dir, "smoke")

	code, out := runScenariovalidate(t, bin, []string{"SCENARIOS_PATH=" + dir}, "validate", "--scenario", "smoke")
	if code != 0 {
		t.Fatalf("exit code: got %d want 0\n%s", code, out)
	}
	if !strings.Contains(out, "ok: smoke") {
		t.Fatalf("expected ok output; got:\n%s", out)
	}
}

func TestValidateFailsOnUnknownActionType(t *testing.T) {
	bin := buildScenariovalidateBinary(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.scenario")
	if err := os.WriteFile(path, []byte("description, summary=\"broken\";\nnot-a-real-action, foo=1;\n"), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	code, out := runScenariovalidate(t, bin, []string{"SCENARIOS_PATH=" + dir}, "validate", "--scenario", "broken")
	if code != 1 {
		t.Fatalf("exit code: got %d want 1\n%s", code, out)
	}
	if !strings.Contains(out, "unknown action type") {
		t.Fatalf("expected unknown-action-type error; got:\n%s", out)
	}
}

func TestValidateRequiresScenarioFlag(t *testing.T) {
	bin := buildScenariovalidateBinary(t)
	code, out := runScenariovalidate(t, bin, nil, "validate")
	if code != 1 {
		t.Fatalf("exit code: got %d want 1\n%s", code, out)
	}
}

func TestListScenariosFindsScenarioFiles(t *testing.T) {
	bin := buildScenariovalidateBinary(t)
	dir := t.TempDir()
	writeMinimalScenario(t, dir, "alpha")
	writeMinimalScenario(t, dir, "beta")

	code, out := runScenariovalidate(t, bin, []string{"SCENARIOS_PATH=" + dir}, "list-scenarios")
	if code != 0 {
		t.Fatalf("exit code: got %d want 0\n%s", code, out)
	}
	if !strings.Contains(out, "name=alpha") || !strings.Contains(out, "name=beta") {
		t.Fatalf("expected both scenarios listed; got:\n%s", out)
	}
}

func TestListScenariosJSON(t *testing.T) {
	bin := buildScenariovalidateBinary(t)
	dir := t.TempDir()
	writeMinimalScenario(t, dir, "gamma")

	code, out := runScenariovalidate(t, bin, []string{"SCENARIOS_PATH=" + dir}, "list-scenarios", "--json")
	if code != 0 {
		t.Fatalf("exit code: got %d want 0\n%s", code, out)
	}
	if !strings.Contains(out, `"Name": "gamma"`) {
		t.Fatalf("expected JSON listing with Name field; got:\n%s", out)
	}
}

func TestRunWithoutPipelineBackendExitsOne(t *testing.T) {
	bin := buildScenariovalidateBinary(t)
	dir := t.TempDir()
	writeMinimalScenario(t, dir, "smoke")

	code, out := runScenariovalidate(t, bin, []string{"SCENARIOS_PATH=" + dir}, "run", "--scenario", "smoke")
	if code != 1 {
		t.Fatalf("exit code: got %d want 1\n%s", code, out)
	}
	if !strings.Contains(out, "no pipeline backend linked") {
		t.Fatalf("expected no-pipeline-backend error; got:\n%s", out)
	}
}
