// Package registry implements the Action Type Registry (C3): named action
// kinds with parameter schemas, scheduling flags, and handler callables,
// with rank-based override (spec.md §4.3). Parameter schema compilation
// follows the shape of the teacher's tool registry
// (internal/agent/tool_registry.go), which compiles a JSON-Schema document
// per registered tool and validates call arguments against it before
// dispatch; here a Type compiles its Parameters into the same kind of
// jsonschema.Schema and the loader validates an action's structure against
// it before the action is queued.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Flags is the scheduling-control bitset from spec.md §4.3/§5.
type Flags uint32

const (
	FlagConfig Flags = 1 << iota
	FlagNeedsClock
	FlagAsync
	FlagCanExecuteOnAddition
	FlagCanBeOptional
	FlagDoesntNeedPipeline
	FlagNoExecutionNotFatal
	FlagInterlaced
	FlagHandledInConfig
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Parameter is one entry of an action type's parameter schema (spec.md
// §4.3's "Action Type" record, "Parameter schema entry").
type Parameter struct {
	Name              string
	Mandatory         bool
	Types             string // textual, e.g. "double", "string", "enum(play,pause)"
	Description       string
	Default           any
	PossibleVariables []string
}

// Handler executes a prepared action's structure against a pipeline. It is
// declared here against the narrow Context below, so registry does not
// import the packages whose values Context carries.
type Handler func(ctx Context) (Outcome, error)

// Context is the minimal execution context a Handler needs: the action's
// already-substituted parameter structure plus a Pipeline obtained from the
// caller. Declared narrowly here (map[string]any, any) so registry has no
// dependency on internal/scenario/action, internal/scenario/pipeline, or
// internal/scenario/engine; internal/scenario/handlers type-asserts Action
// and Scenario back to their concrete types.
type Context struct {
	Structure map[string]any
	Pipeline  any

	// Action is the *action.Action under execution, opaque here to avoid an
	// import cycle. Handlers that complete asynchronously (timers, pad
	// probes, signal callbacks) need it to call Scenario.SetDone on
	// completion.
	Action any

	// Scenario is the owning *engine.Scenario, opaque for the same reason.
	// nil for config actions discharged directly by the loader at parse
	// time, which have no engine yet, and for the stop action the engine
	// synthesizes after EOS.
	Scenario any
}

// Outcome is the result states a Handler may return, matching the action
// lifecycle's terminal/non-terminal states (spec.md §4.5): a handler never
// returns NONE or IN_PROGRESS, those are dispatcher-internal.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeError
	OutcomeAsync
	OutcomeInterlaced
)

// Type is a registered action kind (spec.md §4.3's "Action Type" record).
type Type struct {
	Name                 string
	ImplementerNamespace string
	Rank                 int
	Flags                Flags
	Parameters           []Parameter
	Prepare              Handler // optional pre-execute hook
	Execute              Handler

	schema *jsonschema.Schema

	// OverridenType links to the registration this one replaced, for
	// debuggability (spec.md §9 testability notes: "keep a single current
	// map plus an append-only history list per name").
	OverridenType *Type
}

func (t *Type) Schema() *jsonschema.Schema { return t.schema }

// Registry is the name-keyed mapping of registered Types with rank-based
// override (spec.md §4.3).
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

func New() *Registry {
	return &Registry{types: map[string]*Type{}}
}

// Register adds or overrides a type registration (spec.md §4.3):
// "If a type with this name exists: if existing rank > new rank → return
// existing; else replace, chaining the old one as overriden_type."
func (r *Registry) Register(name, namespace string, rank int, params []Parameter, execute Handler, prepare Handler, flags Flags) (*Type, error) {
	schema, err := compileSchema(name, params)
	if err != nil {
		return nil, fmt.Errorf("action type %s: %w", name, err)
	}

	nt := &Type{
		Name:                 name,
		ImplementerNamespace: namespace,
		Rank:                 rank,
		Flags:                flags,
		Parameters:           params,
		Prepare:              prepare,
		Execute:              execute,
		schema:               schema,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[name]; ok {
		if existing.Rank > rank {
			return existing, nil
		}
		nt.OverridenType = existing
	}
	r.types[name] = nt
	return nt, nil
}

// Lookup returns the registered type for name, or nil if unknown.
func (r *Registry) Lookup(name string) *Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[name]
}

// List returns the currently-registered types, in no particular order.
func (r *Registry) List() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	return out
}

// PrintTypes renders a human-readable listing of the selected types (or all
// types if selection is empty), one line per type plus its parameters,
// matching the level of detail of a CLI introspection command.
func (r *Registry) PrintTypes(w interface{ WriteString(string) (int, error) }, selection ...string) {
	want := map[string]bool{}
	for _, s := range selection {
		want[s] = true
	}
	for _, t := range r.List() {
		if len(want) > 0 && !want[t.Name] {
			continue
		}
		w.WriteString(fmt.Sprintf("%s (namespace=%s rank=%d flags=%#x)\n", t.Name, t.ImplementerNamespace, t.Rank, uint32(t.Flags)))
		for _, p := range t.Parameters {
			mand := ""
			if p.Mandatory {
				mand = " [mandatory]"
			}
			w.WriteString(fmt.Sprintf("  %s: %s%s — %s\n", p.Name, p.Types, mand, p.Description))
		}
	}
}

// compileSchema builds a JSON-Schema document from the parameter list and
// compiles it, the same two-step a RegisteredTool's Definition.Parameters
// goes through in the teacher's tool registry.
func compileSchema(name string, params []Parameter) (*jsonschema.Schema, error) {
	properties := map[string]any{}
	var required []string
	for _, p := range params {
		prop := map[string]any{"description": p.Description}
		if jsonType := schemaType(p.Types); jsonType != "" {
			prop["type"] = jsonType
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Mandatory {
			required = append(required, p.Name)
		}
	}
	doc := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal parameter schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	url := "action-type://" + name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// schemaType maps the textual parameter type used throughout scenario
// files (spec.md's "types (textual)") onto a JSON-Schema primitive. An
// enum(...) or free-form descriptor has no single JSON type and is left
// unconstrained (validated instead by the handler at execution time).
func schemaType(textual string) string {
	switch textual {
	case "double", "float", "time":
		return "number"
	case "int", "integer":
		return "integer"
	case "string":
		return "string"
	case "bool", "boolean":
		return "boolean"
	default:
		return ""
	}
}
