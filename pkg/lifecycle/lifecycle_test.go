package lifecycle

import (
	"errors"
	"testing"
)

func TestCloseReverseOrder(t *testing.T) {
	reg := NewRegistry()
	var order []string
	reg.RegisterFunc(func() error { order = append(order, "db"); return nil })
	reg.RegisterFunc(func() error { order = append(order, "redis"); return nil })
	reg.RegisterFunc(func() error { order = append(order, "worker"); return nil })

	if err := reg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	want := []string{"worker", "redis", "db"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected close order %v, got %v", want, order)
		}
	}
}

func TestCloseCombinesErrors(t *testing.T) {
	reg := NewRegistry()
	errDB := errors.New("db close failed")
	errWorker := errors.New("worker close failed")
	reg.RegisterFunc(func() error { return errDB })
	reg.RegisterFunc(func() error { return nil })
	reg.RegisterFunc(func() error { return errWorker })

	err := reg.Close()
	if !errors.Is(err, errDB) || !errors.Is(err, errWorker) {
		t.Fatalf("expected combined error containing both causes, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	reg := NewRegistry()
	var calls int
	reg.RegisterFunc(func() error { calls++; return nil })

	if err := reg.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one close call, got %d", calls)
	}
}

func TestRegisterAfterCloseIgnored(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	var called bool
	reg.RegisterFunc(func() error { called = true; return nil })
	if err := reg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if called {
		t.Fatal("closer registered after Close should not run")
	}
}
