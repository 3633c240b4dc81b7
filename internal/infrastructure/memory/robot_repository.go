package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/delegation-hub/delegation-hub/internal/domain/robot"
)

// RobotRepository is an in-memory robot.Repository used by tests and by
// the server when no database is configured.
type RobotRepository struct {
	mu     sync.RWMutex
	robots map[string]*robot.Robot
}

func NewRobotRepository() *RobotRepository {
	return &RobotRepository{robots: make(map[string]*robot.Robot)}
}

func (r *RobotRepository) Upsert(_ context.Context, rb *robot.Robot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.robots[rb.RobotID] = copyRobot(rb)
	return nil
}

func (r *RobotRepository) GetByID(_ context.Context, robotID string) (*robot.Robot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rb, ok := r.robots[robotID]
	if !ok {
		return nil, nil
	}
	return copyRobot(rb), nil
}

func (r *RobotRepository) List(_ context.Context) ([]*robot.Robot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*robot.Robot, 0, len(r.robots))
	for _, rb := range r.robots {
		out = append(out, copyRobot(rb))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RobotID < out[j].RobotID })
	return out, nil
}

func (r *RobotRepository) UpdateStatus(_ context.Context, robotID string, status robot.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rb, ok := r.robots[robotID]
	if !ok {
		return fmt.Errorf("%w: %s", robot.ErrUnknownRobot, robotID)
	}
	rb.Status = status
	return nil
}

func copyRobot(rb *robot.Robot) *robot.Robot {
	cp := *rb
	cp.Capabilities = make(map[string]int, len(rb.Capabilities))
	for k, v := range rb.Capabilities {
		cp.Capabilities[k] = v
	}
	if rb.TokenHash != nil {
		cp.TokenHash = append([]byte(nil), rb.TokenHash...)
	}
	return &cp
}
