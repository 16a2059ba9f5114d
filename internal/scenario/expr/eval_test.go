package expr

import "testing"

func lookupMap(vars map[string]float64) Lookup {
	return func(name string) (float64, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestEvalArithmetic(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"2^3^2", 512}, // right-associative: 2^(3^2) = 2^9
		{"-2^2", -4},   // unary binds looser than ^
		{"10/4", 2.5},
		{"min(3,5)", 3},
		{"max(3,5)", 5},
		{"1 == 1", 1},
		{"1 != 1", 0},
		{"1 < 2 && 2 < 3", 1},
		{"0 || 0", 0},
		{"0 || 1", 1},
	}
	for _, c := range cases {
		got, err := Eval(c.expr, nil)
		if err != nil {
			t.Fatalf("Eval(%q): %v", c.expr, err)
		}
		if got != c.want {
			t.Errorf("Eval(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestEvalVariables(t *testing.T) {
	lookup := lookupMap(map[string]float64{"base": 2.0, "position": 1.5})
	got, err := Eval("base*3", lookup)
	if err != nil {
		t.Fatal(err)
	}
	if got != 6 {
		t.Errorf("got %v want 6", got)
	}

	if _, err := Eval("undefined_var", lookup); err == nil {
		t.Fatal("expected unknown-identifier error")
	} else if ee, ok := err.(*EvalError); !ok || ee.Kind != ErrUnknownIdentifier {
		t.Errorf("got %v, want unknown-identifier", err)
	}
}

func TestEvalMinMaxProperty(t *testing.T) {
	lookup := lookupMap(map[string]float64{"a": 3, "b": 7})
	got, err := Eval("min(a,b)", lookup)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := Eval("a", lookup)
	b, _ := Eval("b", lookup)
	want := a
	if b < a {
		want = b
	}
	if got != want {
		t.Errorf("min(a,b) = %v, want %v", got, want)
	}
}

func TestEvalAdditiveProperty(t *testing.T) {
	lookup := lookupMap(map[string]float64{"x": 4, "y": 9})
	got, err := Eval("x+y", lookup)
	if err != nil {
		t.Fatal(err)
	}
	x, _ := Eval("x", lookup)
	y, _ := Eval("y", lookup)
	if got != x+y {
		t.Errorf("x+y = %v, want %v", got, x+y)
	}
}

func TestEvalArityMismatch(t *testing.T) {
	_, err := Eval("min(1,2,3)", nil)
	if err == nil {
		t.Fatal("expected arity-mismatch error")
	}
	ee, ok := err.(*EvalError)
	if !ok || ee.Kind != ErrArityMismatch {
		t.Errorf("got %v, want arity-mismatch", err)
	}
}

func TestEvalUnexpectedEOF(t *testing.T) {
	_, err := Eval("1+", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	ee, ok := err.(*EvalError)
	if !ok || ee.Kind != ErrUnexpectedEOF {
		t.Errorf("got %v, want unexpected-eof", err)
	}
}

func TestEvalUnexpectedChar(t *testing.T) {
	_, err := Eval("1 @ 2", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	ee, ok := err.(*EvalError)
	if !ok || ee.Kind != ErrUnexpectedChar {
		t.Errorf("got %v, want unexpected-char", err)
	}
}

func TestIsIdentifier(t *testing.T) {
	cases := map[string]bool{
		"position": true,
		"$foo":     true,
		"_bar9":    true,
		"9bar":     false,
		"":         false,
		"a+b":      false,
	}
	for s, want := range cases {
		if got := IsIdentifier(s); got != want {
			t.Errorf("IsIdentifier(%q) = %v, want %v", s, got, want)
		}
	}
}
