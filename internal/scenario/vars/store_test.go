package vars

import (
	"math"
	"testing"
	"time"
)

func TestStoreTickUndefined(t *testing.T) {
	s := New()
	pos, ok := s.Get("position")
	if !ok || !math.IsInf(pos, 1) {
		t.Fatalf("position = %v, %v; want +Inf, true", pos, ok)
	}
	dur, ok := s.Get("duration")
	if !ok || !math.IsInf(dur, 1) {
		t.Fatalf("duration = %v, %v; want +Inf, true", dur, ok)
	}
}

func TestStoreTickKnown(t *testing.T) {
	s := New()
	s.Tick(2500*time.Millisecond, 10*time.Second, true, true)
	pos, _ := s.Get("position")
	if pos != 2.5 {
		t.Errorf("position = %v, want 2.5", pos)
	}
	dur, _ := s.Get("duration")
	if dur != 10 {
		t.Errorf("duration = %v, want 10", dur)
	}

	s.Tick(0, 0, false, false)
	pos, _ = s.Get("position")
	if !math.IsInf(pos, 1) {
		t.Errorf("position after unknown tick = %v, want +Inf", pos)
	}
}

func TestStoreSubstitute(t *testing.T) {
	s := New()
	s.SetString("name", "sink0")
	s.SetNumber("count", 3)

	got, err := s.Substitute("element $(name) saw $(count) buffers")
	if err != nil {
		t.Fatal(err)
	}
	want := "element sink0 saw 3 buffers"
	if got != want {
		t.Errorf("Substitute = %q, want %q", got, want)
	}
}

func TestStoreSubstituteUndefinedIsFatal(t *testing.T) {
	s := New()
	if _, err := s.Substitute("$(nope)"); err == nil {
		t.Fatal("expected error for undefined variable reference")
	}
}

func TestStoreSubstituteIdempotentOnPlainText(t *testing.T) {
	s := New()
	plain := "no tokens here"
	got, err := s.Substitute(plain)
	if err != nil {
		t.Fatal(err)
	}
	if got != plain {
		t.Errorf("Substitute(%q) = %q, want unchanged", plain, got)
	}
	again, err := s.Substitute(got)
	if err != nil {
		t.Fatal(err)
	}
	if again != got {
		t.Errorf("Substitute is not idempotent on token-free text: %q != %q", again, got)
	}
	if !SubstituteIdempotent(got) {
		t.Errorf("SubstituteIdempotent(%q) = false, want true", got)
	}
}

func TestStoreLookupFeedsExpr(t *testing.T) {
	s := New()
	s.SetNumber("base", 4)
	lookup := s.Lookup()
	v, ok := lookup("base")
	if !ok || v != 4 {
		t.Errorf("lookup(base) = %v, %v; want 4, true", v, ok)
	}
	if _, ok := lookup("missing"); ok {
		t.Error("lookup(missing) should report undefined")
	}
}

func TestStoreGetStringFormatsNumber(t *testing.T) {
	s := New()
	s.SetNumber("x", 1.5)
	got, ok := s.GetString("x")
	if !ok || got != "1.5" {
		t.Errorf("GetString(x) = %q, %v; want 1.5, true", got, ok)
	}
}
