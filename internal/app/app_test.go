package app

import (
	"errors"
	"testing"

	"github.com/toddbot/todd/internal/testutil"
)

func TestClose_ReverseOrder(t *testing.T) {
	t.Parallel()

	a := &App{logger: testutil.DiscardLogger()}

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		a.addCloser(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("Close() ran %d closers, want %d", len(order), len(want))
	}
	for i, got := range order {
		if got != want[i] {
			t.Errorf("closer[%d] = %q, want %q", i, got, want[i])
		}
	}
}

func TestClose_RunsAllDespiteErrors(t *testing.T) {
	t.Parallel()

	a := &App{logger: testutil.DiscardLogger()}

	errBroken := errors.New("broken")
	var ran []string
	a.addCloser("inner", func() error {
		ran = append(ran, "inner")
		return nil
	})
	a.addCloser("middle", func() error {
		ran = append(ran, "middle")
		return errBroken
	})
	a.addCloser("outer", func() error {
		ran = append(ran, "outer")
		return nil
	})

	err := a.Close()
	if !errors.Is(err, errBroken) {
		t.Errorf("Close() error = %v, want it to wrap %v", err, errBroken)
	}
	if len(ran) != 3 {
		t.Errorf("Close() ran %d closers, want all 3", len(ran))
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	a := &App{logger: testutil.DiscardLogger()}

	calls := 0
	a.addCloser("once", func() error {
		calls++
		return nil
	})

	if err := a.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close() unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("closer ran %d times, want 1", calls)
	}
}
