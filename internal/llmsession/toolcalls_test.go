package llmsession

import "testing"

func TestToolCallAccumulatorKeyedByCallID(t *testing.T) {
	acc := newToolCallAccumulator()

	acc.start("call_1", "check_hours")
	acc.start("call_2", "get_address")

	// Interleaved argument deltas for both calls within one response.
	acc.appendDelta("call_1", `{"da`)
	acc.appendDelta("call_2", `{"ci`)
	acc.appendDelta("call_1", `y":"mon"}`)
	acc.appendDelta("call_2", `ty":"nyc"}`)

	name1, args1, ok1 := acc.done("call_1")
	if !ok1 || name1 != "check_hours" || args1 != `{"day":"mon"}` {
		t.Fatalf("call_1: ok=%v name=%q args=%q", ok1, name1, args1)
	}

	name2, args2, ok2 := acc.done("call_2")
	if !ok2 || name2 != "get_address" || args2 != `{"city":"nyc"}` {
		t.Fatalf("call_2: ok=%v name=%q args=%q", ok2, name2, args2)
	}

	if _, _, ok := acc.done("call_1"); ok {
		t.Fatal("call_1 should have been removed after done()")
	}
}

func TestToolCallAccumulatorReset(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.start("call_1", "end_call")
	acc.appendDelta("call_1", `{}`)
	acc.reset()

	if _, _, ok := acc.done("call_1"); ok {
		t.Fatal("expected call_1 to be cleared by reset")
	}
}
