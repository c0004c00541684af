package playlist

import "testing"

func TestModeMergeLeaveIsIdempotent(t *testing.T) {
	m := Modes{RepeatOne: true, RepeatAll: false, Consume: true}
	before := m
	m.Merge(ModeRequest{RepeatOne: Leave, RepeatAll: Leave, Consume: Leave})
	if m != before {
		t.Fatalf("Merge with all-Leave changed modes: got %+v, want %+v", m, before)
	}
}

func TestModeMergeSetUnsetToggle(t *testing.T) {
	m := Modes{}
	m.Merge(ModeRequest{RepeatOne: Set, RepeatAll: Unset, Consume: Toggle})
	if !m.RepeatOne || m.RepeatAll || !m.Consume {
		t.Fatalf("unexpected modes after merge: %+v", m)
	}

	m.Merge(ModeRequest{Consume: Toggle})
	if m.Consume {
		t.Fatalf("expected Consume toggled back to false")
	}
}

func TestTriStateApply(t *testing.T) {
	if Set.Apply(false) != true {
		t.Errorf("Set.Apply(false) = false, want true")
	}
	if Unset.Apply(true) != false {
		t.Errorf("Unset.Apply(true) = true, want false")
	}
	if Toggle.Apply(true) != false || Toggle.Apply(false) != true {
		t.Errorf("Toggle.Apply did not flip")
	}
	if Leave.Apply(true) != true || Leave.Apply(false) != false {
		t.Errorf("Leave.Apply changed the value")
	}
}
