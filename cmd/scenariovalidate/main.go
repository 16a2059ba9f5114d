// Command scenariovalidate drives the Scenario Engine from the command
// line: load and type-check scenario files, list what's available on the
// configured search path, or run a scenario against a live pipeline.
// Subcommand dispatch, --version, and signalCancelContext are modeled on
// cmd/kilroy/main.go's switch os.Args[1] shape.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/validatekit/scenario/internal/scenario/config"
	"github.com/validatekit/scenario/internal/scenario/engine"
	"github.com/validatekit/scenario/internal/scenario/handlers"
	"github.com/validatekit/scenario/internal/scenario/loader"
	"github.com/validatekit/scenario/internal/scenario/pipeline"
	"github.com/validatekit/scenario/internal/scenario/registry"
	"github.com/validatekit/scenario/internal/scenario/report"
)

const version = "0.1.0"

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("stopped by signal %s", sig.String()))
			case <-stopCh:
				return
			}
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel(nil)
	}
	return ctx, cleanup
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Printf("scenariovalidate %s\n", version)
		os.Exit(0)
	case "run":
		cmdRun(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	case "list-scenarios":
		cmdListScenarios(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  scenariovalidate --version")
	fmt.Fprintln(os.Stderr, "  scenariovalidate run --scenario <ref[:ref...]> [--pipeline-name <name>] [--config <overrides.yaml>]")
	fmt.Fprintln(os.Stderr, "  scenariovalidate validate --scenario <ref[:ref...]>")
	fmt.Fprintln(os.Stderr, "  scenariovalidate list-scenarios [--json]")
}

// newRegistry builds a fully populated Action Type Registry: the built-in
// handlers (C8) registered at rank 0, ready for a loader to validate and
// queue scenario-file actions against.
func newRegistry() *registry.Registry {
	reg := registry.New()
	if err := handlers.RegisterAll(reg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return reg
}

func parseCommonFlags(args []string) (scenario string, pipelineName string, configPath string, jsonOut bool) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--scenario":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--scenario requires a value")
				os.Exit(1)
			}
			scenario = args[i]
		case "--pipeline-name":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--pipeline-name requires a value")
				os.Exit(1)
			}
			pipelineName = args[i]
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			configPath = args[i]
		case "--json":
			jsonOut = true
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}
	return
}

// cmdValidate implements SPEC_FULL.md §5's dry-run validation command: load
// and fully type-check a scenario (action types resolved, mandatory fields
// and schema validated, includes resolved) without a live pipeline,
// mirroring the teacher's "kilroy attractor validate --graph".
func cmdValidate(args []string) {
	scenarioRef, _, _, _ := parseCommonFlags(args)
	if scenarioRef == "" {
		usage()
		os.Exit(1)
	}

	env := config.FromOS()
	reg := newRegistry()
	ld := loader.New(reg, env.ResolveScenariosPathDirs())

	res, err := ld.LoadScenarios(scenarioRef)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("ok: %s\n", scenarioRef)
	fmt.Printf("main-queue=%d on-addition-queue=%d config-discharged=%d\n",
		len(res.MainQueue), len(res.OnAdditionQueue), res.ConfigDischarged)
	if res.Description.Summary != "" {
		fmt.Printf("summary: %s\n", res.Description.Summary)
	}
	if res.NeedClockSync {
		fmt.Println("need-clock-sync=true")
	}
	os.Exit(0)
}

// cmdListScenarios implements list_scenarios (spec.md §6), in both the
// human-readable key-value form the spec names and the --json form
// SPEC_FULL.md §5 adds for machine consumption.
func cmdListScenarios(args []string) {
	_, _, _, jsonOut := parseCommonFlags(args)

	env := config.FromOS()
	reg := newRegistry()
	infos, err := loader.ListScenarios(reg, env.ResolveScenariosPathDirs())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	writers := []*os.File{os.Stdout}
	for _, f := range env.OutputFiles {
		switch f {
		case "stdout":
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			fh, err := os.Create(f)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			defer fh.Close()
			writers = append(writers, fh)
		}
	}

	if jsonOut {
		b, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, w := range writers {
			fmt.Fprintln(w, string(b))
		}
		os.Exit(0)
	}

	for _, info := range infos {
		for _, w := range writers {
			fmt.Fprintf(w, "name=%s path=%s\n", info.Name, info.Path)
			fmt.Fprintf(w, "  summary=%q handles-states=%t pipeline-name=%s\n",
				info.Description.Summary, info.Description.HandlesStates, info.Description.PipelineName)
			fmt.Fprintf(w, "  max-latency=%g max-dropped=%d seek=%t reverse-playback=%t\n",
				info.Description.MaxLatencySeconds, info.Description.MaxDropped,
				info.Description.Seek, info.Description.ReversePlayback)
			if info.Description.NeedClockSync {
				fmt.Fprintln(w, "  need-clock-sync=true")
			}
		}
	}
	os.Exit(0)
}

// cmdRun loads a scenario, attaches it to a live pipeline obtained through
// pipeline.Open, and drives it to completion. pipeline.Open is nil unless a
// concrete binding (GStreamer via cgo, or a test double) has been linked
// into this build; scenariovalidate's own module ships none (spec.md §1:
// the pipeline is an external collaborator, interface only).
func cmdRun(args []string) {
	scenarioRef, pipelineNameFlag, configPath, _ := parseCommonFlags(args)
	if scenarioRef == "" {
		usage()
		os.Exit(1)
	}

	env := config.FromOS()
	handlers.SetWaitMultiplier(env.WaitMultiplier)
	handlers.SetDumpDotDir(env.DumpDotDir)

	reg := newRegistry()
	ld := loader.New(reg, env.ResolveScenariosPathDirs())
	res, err := ld.LoadScenarios(scenarioRef)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "[scenariovalidate] ", log.LstdFlags)
	reporter := report.New(report.LogSink{Printf: logger.Printf})

	if configPath != "" {
		cfgFile, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := reporter.LoadOverrides(cfgFile.ReportLevels); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if pipeline.Open == nil {
		fmt.Fprintln(os.Stderr, "no pipeline backend linked into this build; scenariovalidate run requires a pipeline.Open implementation")
		os.Exit(1)
	}
	pipelineName := pipelineNameFlag
	if pipelineName == "" {
		pipelineName = res.Description.PipelineName
	}
	pl, err := pipeline.Open(pipelineName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	s := engine.New(res, reg, reporter, pl)
	ctx, cleanupSignalCtx := signalCancelContext()
	err = s.Run(ctx)
	cleanupSignalCtx()
	s.Finalize()
	if err != nil && err != context.Canceled {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}
