package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/delegation-hub/delegation-hub/internal/domain/robot"
	"github.com/delegation-hub/delegation-hub/internal/domain/task"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/metrics"
)

// Command is the message sent over a robot's command channel.
type Command struct {
	TaskID     uuid.UUID `json:"task_id"`
	SubtaskID  uuid.UUID `json:"subtask_id"`
	RobotID    string    `json:"robot_id"`
	Command    string    `json:"command"`
	Parameters []float64 `json:"parameters"`
}

// Reply statuses a robot may send back.
const (
	ReplyAck     = "ack"
	ReplySuccess = "success"
	ReplyError   = "error"
)

// Reply is a robot's response to a command.
type Reply struct {
	SubtaskID uuid.UUID `json:"subtask_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// ErrRobotOffline indicates no channel is attached for the target robot.
var ErrRobotOffline = errors.New("robot not attached to command channel")

// CommandChannel delivers a command to its robot and blocks until a
// terminal reply arrives or the context is cancelled. Intermediate "ack"
// replies do not resolve the call.
type CommandChannel interface {
	Send(ctx context.Context, cmd Command) (Reply, error)
}

// Result classifies a dispatch outcome.
type Result string

const (
	ResultAck     Result = "ack"
	ResultFailure Result = "failure"
	ResultTimeout Result = "timeout"
)

// Outcome is the resolved result of one dispatch attempt. Timeout does
// not imply the robot never acted; idempotent redelivery is the channel
// layer's concern.
type Outcome struct {
	Result Result
	Reason string
}

// Dispatcher sends assigned subtasks over the command channel with a
// bounded, capability-class-specific wait.
type Dispatcher struct {
	channel        CommandChannel
	defaultTimeout time.Duration
	timeouts       map[string]time.Duration
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

func NewDispatcher(channel CommandChannel, defaultTimeout time.Duration, timeouts map[string]time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Dispatcher{
		channel:        channel,
		defaultTimeout: defaultTimeout,
		timeouts:       timeouts,
		metrics:        m,
		logger:         logger.With().Str("service", "dispatch").Logger(),
	}
}

// Dispatch sends a subtask to the given robot and resolves the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, sub *task.Subtask, robotID string) Outcome {
	timeout := d.timeoutFor(sub.RequiredCapability)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := d.channel.Send(ctx, Command{
		TaskID:     sub.TaskID,
		SubtaskID:  sub.SubtaskID,
		RobotID:    robotID,
		Command:    sub.Name,
		Parameters: sub.Parameters,
	})

	var outcome Outcome
	switch {
	case err == nil && reply.Status == ReplySuccess:
		outcome = Outcome{Result: ResultAck}
	case err == nil:
		outcome = Outcome{Result: ResultFailure, Reason: replyReason(reply)}
	case errors.Is(err, context.DeadlineExceeded):
		outcome = Outcome{Result: ResultTimeout, Reason: "dispatch timed out after " + timeout.String()}
	default:
		outcome = Outcome{Result: ResultFailure, Reason: err.Error()}
	}

	d.metrics.DispatchOutcomes.WithLabelValues(string(outcome.Result)).Inc()
	d.logger.Debug().
		Str("task_id", sub.TaskID.String()).
		Str("subtask_id", sub.SubtaskID.String()).
		Str("robot_id", robotID).
		Str("result", string(outcome.Result)).
		Msg("dispatch resolved")
	return outcome
}

// timeoutFor picks the largest configured timeout across the capabilities
// a requirement references, defaulting when none is configured.
func (d *Dispatcher) timeoutFor(requirement string) time.Duration {
	best := time.Duration(0)
	for _, capability := range robot.RequirementCapabilities(requirement) {
		if t, ok := d.timeouts[capability]; ok && t > best {
			best = t
		}
	}
	if best <= 0 {
		return d.defaultTimeout
	}
	return best
}

func replyReason(reply Reply) string {
	if reply.Message != "" {
		return reply.Message
	}
	return "robot reported " + reply.Status
}
