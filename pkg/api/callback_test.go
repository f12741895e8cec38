package api

import (
	"errors"
	"testing"
)

func TestActionMuxDispatch(t *testing.T) {
	mux := NewActionMux()
	mux.Handle("greet", func(ctx Context) (ActionResult, error) {
		return OKValue("hello"), nil
	})

	res, err := mux.Action("greet", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.kind != actionValue || res.value != "hello" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestActionMuxUnknownTag(t *testing.T) {
	mux := NewActionMux()
	_, err := mux.Action("missing", nil)

	var unknown *UnknownActionError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownActionError, got %v", err)
	}
	if unknown.Tag != "missing" {
		t.Fatalf("unexpected tag: %q", unknown.Tag)
	}
}

func TestActionMuxNilHandlerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for nil handler")
		}
	}()
	NewActionMux().Handle("x", nil)
}

func TestContextClone(t *testing.T) {
	ctx := Context{"a": 1}
	clone := ctx.Clone()
	clone["a"] = 2
	if ctx["a"] != 1 {
		t.Fatalf("clone aliases the original map")
	}

	if Context(nil).Clone() != nil {
		t.Fatalf("nil clone should stay nil")
	}
}
