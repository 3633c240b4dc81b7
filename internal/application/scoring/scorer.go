package scoring

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	approbot "github.com/delegation-hub/delegation-hub/internal/application/robot"
	"github.com/delegation-hub/delegation-hub/internal/domain/task"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/metrics"
)

// PredictionRequest is the payload sent to the suitability oracle.
type PredictionRequest struct {
	Capability string    `json:"capability"`
	Parameters []float64 `json:"parameters"`
	Candidates []string  `json:"candidates"`
}

// PredictedScore is one entry of the oracle's ranked response.
type PredictedScore struct {
	RobotID string  `json:"robot_id"`
	Score   float64 `json:"score"`
}

// Predictor is the external suitability oracle. It is a soft dependency:
// any error or timeout triggers the registry fallback, never task failure.
type Predictor interface {
	Predict(ctx context.Context, req PredictionRequest) ([]PredictedScore, error)
}

// Candidate is a ranked scoring result for one robot.
type Candidate struct {
	RobotID string
	Score   float64
	Source  string
}

// Scorer ranks candidate robots for a subtask, preferring the prediction
// service and falling back to registry strengths.
type Scorer struct {
	registry  *approbot.Service
	predictor Predictor
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewScorer(registry *approbot.Service, predictor Predictor, timeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Scorer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Scorer{
		registry:  registry,
		predictor: predictor,
		timeout:   timeout,
		metrics:   m,
		logger:    logger.With().Str("service", "scoring").Logger(),
	}
}

// Score returns candidates ordered by score descending, ties broken by
// ascending robot id. An empty list means no capable robot; the scorer
// itself never fails for that case.
func (s *Scorer) Score(ctx context.Context, sub *task.Subtask) ([]Candidate, error) {
	candidates, err := s.registry.Candidates(ctx, sub.RequiredCapability)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	member := make(map[string]bool, len(candidates))
	candidateIDs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		member[c.RobotID] = true
		candidateIDs = append(candidateIDs, c.RobotID)
	}

	if s.predictor != nil {
		predicted, err := s.predict(ctx, sub, candidateIDs, member)
		if err == nil && len(predicted) > 0 {
			return predicted, nil
		}
		if err != nil {
			s.logger.Warn().Err(err).
				Str("subtask_id", sub.SubtaskID.String()).
				Str("capability", sub.RequiredCapability).
				Msg("prediction unavailable; using registry fallback")
		}
		s.metrics.PredictionFallbacks.Inc()
	}

	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, Candidate{
			RobotID: c.RobotID,
			Score:   float64(c.RequirementStrength(sub.RequiredCapability)) / 100,
			Source:  task.ScoreSourceFallback,
		})
	}
	sortCandidates(ranked)
	return ranked, nil
}

func (s *Scorer) predict(ctx context.Context, sub *task.Subtask, candidateIDs []string, member map[string]bool) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	scores, err := s.predictor.Predict(ctx, PredictionRequest{
		Capability: sub.RequiredCapability,
		Parameters: sub.Parameters,
		Candidates: candidateIDs,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(scores))
	ranked := make([]Candidate, 0, len(scores))
	for _, ps := range scores {
		if !member[ps.RobotID] || seen[ps.RobotID] {
			continue
		}
		if ps.Score < 0 || ps.Score > 1 {
			continue
		}
		seen[ps.RobotID] = true
		ranked = append(ranked, Candidate{
			RobotID: ps.RobotID,
			Score:   ps.Score,
			Source:  task.ScoreSourcePredicted,
		})
	}
	if len(ranked) == 0 {
		return nil, errors.New("prediction response named no known candidates")
	}
	sortCandidates(ranked)
	return ranked, nil
}

func sortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].RobotID < cs[j].RobotID
	})
}
