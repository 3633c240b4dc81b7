package robot

import (
	"errors"
	"sort"
	"time"

	"github.com/Knetic/govaluate"
)

// Status represents robot status.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

var ErrUnknownRobot = errors.New("unknown robot")

// Robot represents a registered executor and its capability strengths.
type Robot struct {
	RobotID      string         `json:"robotId"`
	Capabilities map[string]int `json:"capabilities"`
	TokenHash    []byte         `json:"-"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Strength returns the stored strength for a capability, 0 if absent.
func (r *Robot) Strength(capability string) int {
	return r.Capabilities[capability]
}

// Matches reports whether the robot satisfies a capability requirement.
// The requirement is either a bare capability name or a govaluate
// expression over capabilities, e.g. "delicate_task || heavy_lifting".
// Each capability binds as a boolean (strength > 0, absent = false) so
// the logical operators compose; the expression must evaluate to a bool.
func (r *Robot) Matches(requirement string) (bool, error) {
	if requirement == "" {
		return false, errors.New("empty capability requirement")
	}
	if !isExpression(requirement) {
		return r.Strength(requirement) > 0, nil
	}

	expr, err := govaluate.NewEvaluableExpression(requirement)
	if err != nil {
		return false, err
	}
	params := map[string]interface{}{}
	for _, v := range expr.Vars() {
		params[v] = r.Capabilities[v] > 0
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	matched, ok := result.(bool)
	if !ok {
		return false, errors.New("capability requirement did not evaluate to a boolean")
	}
	return matched, nil
}

// RequirementStrength returns the robot's strength against a requirement:
// the plain strength for a bare capability, the maximum strength across
// referenced capabilities for an expression.
func (r *Robot) RequirementStrength(requirement string) int {
	if !isExpression(requirement) {
		return r.Strength(requirement)
	}
	expr, err := govaluate.NewEvaluableExpression(requirement)
	if err != nil {
		return 0
	}
	max := 0
	for _, v := range expr.Vars() {
		if s := r.Capabilities[v]; s > max {
			max = s
		}
	}
	return max
}

// RequirementCapabilities lists the capability names referenced by a
// requirement, sorted for determinism.
func RequirementCapabilities(requirement string) []string {
	if !isExpression(requirement) {
		return []string{requirement}
	}
	expr, err := govaluate.NewEvaluableExpression(requirement)
	if err != nil {
		return nil
	}
	vars := expr.Vars()
	sort.Strings(vars)
	return vars
}

func isExpression(requirement string) bool {
	for _, c := range requirement {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return true
		}
	}
	return false
}
