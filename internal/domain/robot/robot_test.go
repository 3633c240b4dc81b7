package robot

import "testing"

func TestMatchesBareCapability(t *testing.T) {
	r := &Robot{RobotID: "KUKA_1", Capabilities: map[string]int{"navigation": 70}}
	ok, err := r.Matches("navigation")
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = r.Matches("welding")
	if err != nil || ok {
		t.Fatalf("expected no match for absent capability, got ok=%v err=%v", ok, err)
	}
}

func TestMatchesZeroStrengthExcluded(t *testing.T) {
	r := &Robot{RobotID: "ABB_2", Capabilities: map[string]int{"navigation": 0}}
	ok, err := r.Matches("navigation")
	if err != nil || ok {
		t.Fatalf("expected strength 0 to not match, got ok=%v err=%v", ok, err)
	}
}

func TestMatchesAlternativeExpression(t *testing.T) {
	r := &Robot{RobotID: "Ford", Capabilities: map[string]int{"heavy_lifting": 90}}
	ok, err := r.Matches("delicate_task || heavy_lifting")
	if err != nil || !ok {
		t.Fatalf("expected alternative to match, got ok=%v err=%v", ok, err)
	}

	r2 := &Robot{RobotID: "Scion", Capabilities: map[string]int{"navigation": 80}}
	ok, err = r2.Matches("delicate_task || heavy_lifting")
	if err != nil || ok {
		t.Fatalf("expected no match, got ok=%v err=%v", ok, err)
	}

	// one arm held at a nonzero strength must satisfy the alternative
	r3 := &Robot{RobotID: "KUKA_1", Capabilities: map[string]int{"delicate_task": 90}}
	ok, err = r3.Matches("delicate_task || heavy_lifting")
	if err != nil || !ok {
		t.Fatalf("expected delicate_task arm to match, got ok=%v err=%v", ok, err)
	}

	// strength 0 counts as absent inside expressions too
	r4 := &Robot{RobotID: "ABB_2", Capabilities: map[string]int{"delicate_task": 0, "heavy_lifting": 0}}
	ok, err = r4.Matches("delicate_task || heavy_lifting")
	if err != nil || ok {
		t.Fatalf("expected zero strengths to not match, got ok=%v err=%v", ok, err)
	}
}

func TestRequirementStrength(t *testing.T) {
	r := &Robot{Capabilities: map[string]int{"delicate_task": 60, "heavy_lifting": 85}}
	if got := r.RequirementStrength("delicate_task"); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := r.RequirementStrength("delicate_task || heavy_lifting"); got != 85 {
		t.Fatalf("expected max across alternatives 85, got %d", got)
	}
}

func TestRequirementCapabilitiesSorted(t *testing.T) {
	caps := RequirementCapabilities("heavy_lifting || delicate_task")
	if len(caps) != 2 || caps[0] != "delicate_task" || caps[1] != "heavy_lifting" {
		t.Fatalf("expected sorted capability names, got %v", caps)
	}
	caps = RequirementCapabilities("navigation")
	if len(caps) != 1 || caps[0] != "navigation" {
		t.Fatalf("expected bare name passthrough, got %v", caps)
	}
}
