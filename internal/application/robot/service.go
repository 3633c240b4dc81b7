package robot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/delegation-hub/delegation-hub/internal/domain/robot"
)

// Service is the capability registry: robot registration plus candidate
// lookup for subtask scoring.
type Service struct {
	repo   robot.Repository
	logger zerolog.Logger
}

func NewService(repo robot.Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("service", "robot").Logger(),
	}
}

// Register creates or replaces a robot entry. Re-registration swaps the
// whole capability map in one write. The channel token is stored hashed.
func (s *Service) Register(ctx context.Context, robotID string, capabilities map[string]int, token string) (*robot.Robot, error) {
	if robotID == "" {
		return nil, fmt.Errorf("robotId is required")
	}
	if len(capabilities) == 0 {
		return nil, fmt.Errorf("at least one capability is required")
	}
	for name, strength := range capabilities {
		if name == "" {
			return nil, fmt.Errorf("capability name cannot be empty")
		}
		if strength < 0 || strength > 100 {
			return nil, fmt.Errorf("capability %s strength %d out of range [0,100]", name, strength)
		}
	}

	var tokenHash []byte
	if token != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash channel token: %w", err)
		}
		tokenHash = hash
	}

	now := time.Now().UTC()
	r := &robot.Robot{
		RobotID:      robotID,
		Capabilities: capabilities,
		TokenHash:    tokenHash,
		Status:       robot.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Upsert(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info().Str("robot_id", robotID).Int("capabilities", len(capabilities)).Msg("robot registered")
	return r, nil
}

// Lookup returns a robot's capability map.
func (s *Service) Lookup(ctx context.Context, robotID string) (map[string]int, error) {
	r, err := s.repo.GetByID(ctx, robotID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", robot.ErrUnknownRobot, robotID)
	}
	return r.Capabilities, nil
}

// VerifyToken checks a robot's channel token against the stored hash.
func (s *Service) VerifyToken(ctx context.Context, robotID, token string) error {
	r, err := s.repo.GetByID(ctx, robotID)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%w: %s", robot.ErrUnknownRobot, robotID)
	}
	if len(r.TokenHash) == 0 {
		return nil
	}
	return bcrypt.CompareHashAndPassword(r.TokenHash, []byte(token))
}

// Candidates returns every active robot satisfying a capability
// requirement with strength > 0, sorted by robot id. An empty result is
// valid, not an error.
func (s *Service) Candidates(ctx context.Context, requirement string) ([]*robot.Robot, error) {
	robots, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make([]*robot.Robot, 0, len(robots))
	for _, r := range robots {
		if r.Status != robot.StatusActive {
			continue
		}
		ok, err := r.Matches(requirement)
		if err != nil {
			return nil, fmt.Errorf("evaluate capability requirement %q: %w", requirement, err)
		}
		if ok {
			candidates = append(candidates, r)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].RobotID < candidates[j].RobotID
	})
	return candidates, nil
}

// List returns all registered robots.
func (s *Service) List(ctx context.Context) ([]*robot.Robot, error) {
	return s.repo.List(ctx)
}

// Deactivate removes a robot from candidate sets without deleting it.
func (s *Service) Deactivate(ctx context.Context, robotID string) error {
	return s.repo.UpdateStatus(ctx, robotID, robot.StatusInactive)
}

// Activate returns a robot to candidate sets.
func (s *Service) Activate(ctx context.Context, robotID string) error {
	return s.repo.UpdateStatus(ctx, robotID, robot.StatusActive)
}
