package handlers

import (
	"fmt"
	"strconv"

	"github.com/validatekit/scenario/internal/scenario/registry"
)

var setPropertyParams = []registry.Parameter{
	{Name: "property-name", Mandatory: true, Types: "string"},
	{Name: "property-value", Mandatory: true, Types: "string"},
	{Name: "target-element-name", Types: "string"},
	{Name: "target-element-class", Types: "string"},
	{Name: "target-element-factory-name", Types: "string"},
	{Name: "optional", Types: "bool"},
}

// execSetProperty implements spec.md §4.8 set-property: resolve by
// name/class/factory-name, type-coerce the value against the current
// property's Go type, set it, then verify by reading it back.
func execSetProperty(ctx registry.Context) (registry.Outcome, error) {
	pl, err := resolvePipeline(ctx)
	if err != nil {
		return outcomeForOptional(ctx, err)
	}
	el, err := resolveElement(pl, ctx.Structure, "target-element-name", "target-element-class", "target-element-factory-name")
	if err != nil {
		return outcomeForOptional(ctx, err)
	}
	name := stringField(ctx.Structure, "property-name", "")
	rawValue, _ := ctx.Structure["property-value"]

	current, _ := el.GetProperty(name)
	coerced, err := coerceLike(current, rawValue)
	if err != nil {
		return outcomeForOptional(ctx, fmt.Errorf("set-property %s: %w", name, err))
	}

	if err := el.SetProperty(name, coerced); err != nil {
		return outcomeForOptional(ctx, fmt.Errorf("set-property %s: %w", name, err))
	}

	readBack, err := el.GetProperty(name)
	if err != nil {
		return outcomeForOptional(ctx, fmt.Errorf("set-property %s: read-back failed: %w", name, err))
	}
	if fmt.Sprint(readBack) != fmt.Sprint(coerced) {
		return outcomeForOptional(ctx, fmt.Errorf("set-property %s: read-back %v does not match set value %v", name, readBack, coerced))
	}
	return registry.OutcomeOK, nil
}

// coerceLike converts value (as read from a scenario file, so typically a
// string, float64, int, or bool) to the Go type reference currently holds,
// so SetProperty receives the element's own type rather than a raw string.
func coerceLike(reference any, value any) (any, error) {
	if reference == nil {
		return value, nil
	}
	s := fmt.Sprint(value)
	switch reference.(type) {
	case int, int32, int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", s)
		}
		return int(n), nil
	case float32, float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("expected float, got %q", s)
		}
		return f, nil
	case bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expected bool, got %q", s)
		}
		return b, nil
	default:
		return value, nil
	}
}

func outcomeForOptional(ctx registry.Context, err error) (registry.Outcome, error) {
	if boolField(ctx.Structure, "optional", false) {
		return registry.OutcomeOK, nil
	}
	return registry.OutcomeError, err
}
