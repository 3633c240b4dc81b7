package robot

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/delegation-hub/delegation-hub/internal/domain/robot"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/memory"
)

func newTestService() *Service {
	return NewService(memory.NewRobotRepository(), zerolog.Nop())
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "", map[string]int{"navigation": 50}, ""); err == nil {
		t.Fatal("expected error for empty robot id")
	}
	if _, err := svc.Register(ctx, "Ford", nil, ""); err == nil {
		t.Fatal("expected error for empty capability map")
	}
	if _, err := svc.Register(ctx, "Ford", map[string]int{"navigation": 101}, ""); err == nil {
		t.Fatal("expected error for out-of-range strength")
	}
	if _, err := svc.Register(ctx, "Ford", map[string]int{"navigation": -1}, ""); err == nil {
		t.Fatal("expected error for negative strength")
	}
}

func TestReregisterReplacesCapabilities(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Scion", map[string]int{"navigation": 80, "delicate_task": 60}, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "Scion", map[string]int{"heavy_lifting": 70}, ""); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	caps, err := svc.Lookup(ctx, "Scion")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(caps) != 1 || caps["heavy_lifting"] != 70 {
		t.Fatalf("expected whole-map replacement, got %v", caps)
	}
}

func TestLookupUnknownRobot(t *testing.T) {
	svc := newTestService()

	_, err := svc.Lookup(context.Background(), "ghost")
	if !errors.Is(err, robot.ErrUnknownRobot) {
		t.Fatalf("expected unknown robot error, got %v", err)
	}
}

func TestCandidatesFilterAndOrder(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	robots := map[string]map[string]int{
		"Ford":   {"heavy_lifting": 95},
		"Scion":  {"navigation": 80, "delicate_task": 60},
		"KUKA_1": {"navigation": 90, "delicate_task": 90},
	}
	for id, caps := range robots {
		if _, err := svc.Register(ctx, id, caps, ""); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	got, err := svc.Candidates(ctx, "navigation")
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 2 || got[0].RobotID != "KUKA_1" || got[1].RobotID != "Scion" {
		t.Fatalf("expected [KUKA_1 Scion], got %v", robotIDs(got))
	}

	got, err = svc.Candidates(ctx, "delicate_task || heavy_lifting")
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected all robots to satisfy the alternative, got %v", robotIDs(got))
	}
}

func TestDeactivatedRobotLeavesCandidateSet(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ford", map[string]int{"heavy_lifting": 95}, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Deactivate(ctx, "Ford"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	got, err := svc.Candidates(ctx, "heavy_lifting")
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %v", robotIDs(got))
	}

	if err := svc.Activate(ctx, "Ford"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	got, err = svc.Candidates(ctx, "heavy_lifting")
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected Ford back in the candidate set, got %v", robotIDs(got))
	}
}

func TestVerifyToken(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "KUKA_1", map[string]int{"navigation": 90}, "secret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.VerifyToken(ctx, "KUKA_1", "secret"); err != nil {
		t.Fatalf("expected token to verify: %v", err)
	}
	if err := svc.VerifyToken(ctx, "KUKA_1", "wrong"); err == nil {
		t.Fatal("expected wrong token to be rejected")
	}

	// No token configured means the channel is open.
	if _, err := svc.Register(ctx, "Ford", map[string]int{"heavy_lifting": 95}, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.VerifyToken(ctx, "Ford", "anything"); err != nil {
		t.Fatalf("expected open channel without token, got %v", err)
	}
}

func robotIDs(robots []*robot.Robot) []string {
	ids := make([]string, 0, len(robots))
	for _, r := range robots {
		ids = append(ids, r.RobotID)
	}
	return ids
}
