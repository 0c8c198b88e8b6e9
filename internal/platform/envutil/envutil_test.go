package envutil

import (
	"testing"
	"time"
)

func TestInt(t *testing.T) {
	t.Setenv("AW_TEST_INT", "42")
	if got := Int("AW_TEST_INT", 1, nil); got != 42 {
		t.Fatalf("Int=%d, want 42", got)
	}
	t.Setenv("AW_TEST_INT", "nope")
	if got := Int("AW_TEST_INT", 7, nil); got != 7 {
		t.Fatalf("Int (bad)=%d, want 7", got)
	}
	if got := Int("AW_TEST_INT_MISSING", 9, nil); got != 9 {
		t.Fatalf("Int (missing)=%d, want 9", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("AW_TEST_BOOL", "FALSE")
	if Bool("AW_TEST_BOOL", true, nil) {
		t.Fatalf("expected false")
	}
	t.Setenv("AW_TEST_BOOL", "maybe")
	if !Bool("AW_TEST_BOOL", true, nil) {
		t.Fatalf("expected default true on parse failure")
	}
}

func TestMillis(t *testing.T) {
	t.Setenv("AW_TEST_MS", "1500")
	if got := Millis("AW_TEST_MS", time.Second, nil); got != 1500*time.Millisecond {
		t.Fatalf("Millis=%v", got)
	}
	t.Setenv("AW_TEST_MS", "-3")
	if got := Millis("AW_TEST_MS", time.Second, nil); got != time.Second {
		t.Fatalf("Millis (negative)=%v, want default", got)
	}
}
