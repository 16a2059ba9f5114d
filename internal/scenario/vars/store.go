// Package vars implements the Variable Store (C2): named scalar bindings
// updated per tick from pipeline queries, with $(name) substitution into
// string fields (spec.md §4.2).
package vars

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/validatekit/scenario/internal/scenario/expr"
)

// value is either a string or a double, matching spec.md §4.2's mapping
// "name -> (string | double)".
type value struct {
	isString bool
	str      string
	num      float64
}

// Store is the mutable name-keyed binding table threaded through the
// engine. Touched only on the main dispatcher loop (spec.md §5 "the
// variable store is touched only on the main loop"), so it does not need
// its own lock for cross-goroutine access — the mutex here only guards
// against accidental reentrant use within a single goroutine's call stack.
type Store struct {
	mu   sync.Mutex
	vars map[string]value
}

// New creates an empty Store. position/duration are undefined (+Inf) until
// the first Tick.
func New() *Store {
	s := &Store{vars: map[string]value{}}
	s.vars["position"] = value{num: math.Inf(1)}
	s.vars["duration"] = value{num: math.Inf(1)}
	return s
}

// Tick recomputes the position/duration pseudo-variables (spec.md §4.2),
// both in seconds; an unknown value maps to +Inf.
func (s *Store) Tick(position, duration time.Duration, positionKnown, durationKnown bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if positionKnown {
		s.vars["position"] = value{num: position.Seconds()}
	} else {
		s.vars["position"] = value{num: math.Inf(1)}
	}
	if durationKnown {
		s.vars["duration"] = value{num: duration.Seconds()}
	} else {
		s.vars["duration"] = value{num: math.Inf(1)}
	}
}

// SetNumber binds name to a numeric value.
func (s *Store) SetNumber(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value{num: v}
}

// SetString binds name to a string value.
func (s *Store) SetString(name, v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value{isString: true, str: v}
}

// Get returns the numeric value of name. A string-typed binding that
// parses as a number is returned as that number (spec.md §9 Open Question
// (a): "implementations should substitute the numeric literal" rather than
// the source's surprising name-string-for-later-reparsing behavior). The
// second return is false when name is unbound or is a non-numeric string.
func (s *Store) Get(name string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	if !ok {
		return 0, false
	}
	if !v.isString {
		return v.num, true
	}
	if f, err := strconv.ParseFloat(v.str, 64); err == nil {
		return f, true
	}
	return 0, false
}

// GetString returns the raw string form of name, formatting a numeric
// binding if needed. Used by $(name) substitution.
func (s *Store) GetString(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	if !ok {
		return "", false
	}
	if v.isString {
		return v.str, true
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64), true
}

// Lookup adapts the store to expr.Lookup for passing into expr.Eval.
func (s *Store) Lookup() expr.Lookup {
	return s.Get
}

var substitutionToken = regexp.MustCompile(`\$\(([A-Za-z_$][A-Za-z0-9_$]*)\)`)

// Substitute replaces every $(name) occurrence in s with the current
// binding for name. Referencing an undefined name is a fatal error (spec.md
// §4.2): the first undefined reference aborts and reports it.
func (s *Store) Substitute(text string) (string, error) {
	var firstErr error
	out := substitutionToken.ReplaceAllStringFunc(text, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := substitutionToken.FindStringSubmatch(match)[1]
		v, ok := s.GetString(name)
		if !ok {
			firstErr = fmt.Errorf("undefined variable %q referenced in %q", name, text)
			return match
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// SubstituteIdempotent reports whether text contains no $(...) token, a
// convenience used by tests asserting substitution is idempotent on plain
// strings (spec.md §8).
func SubstituteIdempotent(text string) bool {
	return !strings.Contains(text, "$(")
}
