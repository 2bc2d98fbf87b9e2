package requests

import "testing"

func TestReduceSetSemantics(t *testing.T) {
	g1 := Path{"includes", "g1"}
	state := Reduce(State{}, Action{Type: StartRequest, Path: g1})
	again := Reduce(state, Action{Type: StartRequest, Path: g1})
	if len(again) != 1 || !again.Has(g1) {
		t.Fatalf("starting twice must keep one entry, got %v", again)
	}

	canceled := Reduce(again, Action{Type: CancelRequest, Path: g1})
	if !canceled.Has(g1) {
		t.Fatal("cancel alone must not change the state")
	}

	cleaned := Reduce(canceled, Action{Type: CleanupRequest, Path: g1})
	if cleaned.Has(g1) {
		t.Fatal("cleanup must remove the path")
	}
	if !state.Has(g1) {
		t.Fatal("reduce must not modify its input")
	}
}

func TestPathKeys(t *testing.T) {
	p := Path{"includes", "g1", "i2"}
	if p.Key() != "includes/g1/i2" {
		t.Fatalf("unexpected key %q", p.Key())
	}
	if ParsePath("/includes/g1/i2").Key() != p.Key() {
		t.Fatal("parse must invert Key")
	}
	if ParsePath("") != nil {
		t.Fatal("empty key is the empty path")
	}
}
