package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/delegation-hub/delegation-hub/internal/application/decomposer"
	appRobot "github.com/delegation-hub/delegation-hub/internal/application/robot"
	appTask "github.com/delegation-hub/delegation-hub/internal/application/task"
	"github.com/delegation-hub/delegation-hub/internal/domain/robot"
	"github.com/delegation-hub/delegation-hub/internal/domain/task"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/channel"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	taskSvc  *appTask.Service
	robotSvc *appRobot.Service
	hub      *channel.Hub
	registry *prometheus.Registry
	logger   zerolog.Logger
}

func NewServer(taskSvc *appTask.Service, robotSvc *appRobot.Service, hub *channel.Hub, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	return &Server{
		taskSvc:  taskSvc,
		robotSvc: robotSvc,
		hub:      hub,
		registry: registry,
		logger:   logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.submitTask)
			r.Get("/", s.listTasks)
			r.Get("/{taskId}", s.getTask)
			r.Get("/{taskId}/subtasks", s.listSubtasks)
			r.Post("/{taskId}/cancel", s.cancelTask)
		})

		r.Route("/robots", func(r chi.Router) {
			r.Post("/", s.registerRobot)
			r.Get("/", s.listRobots)
			r.Get("/{robotId}", s.getRobot)
			r.Post("/{robotId}/activate", s.activateRobot)
			r.Post("/{robotId}/deactivate", s.deactivateRobot)
			r.Get("/{robotId}/channel", s.attachChannel)
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

type submitTaskRequest struct {
	TaskID         *uuid.UUID `json:"taskId"`
	Command        string     `json:"command"`
	Parameters     []float64  `json:"parameters"`
	PreferredRobot *string    `json:"preferredRobot"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	t, err := s.taskSvc.Submit(r.Context(), req.TaskID, req.Command, req.Parameters, req.PreferredRobot)
	if err != nil {
		switch {
		case errors.Is(err, decomposer.ErrUnsupportedCommand):
			respondError(w, http.StatusBadRequest, "UNSUPPORTED_COMMAND", err.Error())
		case errors.Is(err, decomposer.ErrInvalidParameters):
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusAccepted, t)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var status *task.Status
	if v := r.URL.Query().Get("status"); v != "" {
		st := task.Status(v)
		status = &st
	}
	limit, offset := parseLimitOffset(r, 50, 500)
	tasks, err := s.taskSvc.List(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid task id")
		return
	}
	t, err := s.taskSvc.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) listSubtasks(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid task id")
		return
	}
	t, err := s.taskSvc.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"subtasks": t.Subtasks})
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid task id")
		return
	}
	if err := s.taskSvc.Cancel(r.Context(), taskID); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusConflict, "CONFLICT", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

type registerRobotRequest struct {
	RobotID      string         `json:"robotId"`
	Capabilities map[string]int `json:"capabilities"`
	ChannelToken string         `json:"channelToken"`
}

func (s *Server) registerRobot(w http.ResponseWriter, r *http.Request) {
	var req registerRobotRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	rb, err := s.robotSvc.Register(r.Context(), req.RobotID, req.Capabilities, req.ChannelToken)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, rb)
}

func (s *Server) listRobots(w http.ResponseWriter, r *http.Request) {
	robots, err := s.robotSvc.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"robots": robots})
}

func (s *Server) getRobot(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotId")
	caps, err := s.robotSvc.Lookup(r.Context(), robotID)
	if err != nil {
		if errors.Is(err, robot.ErrUnknownRobot) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"robotId":      robotID,
		"capabilities": caps,
		"connected":    s.hub.Connected(robotID),
	})
}

func (s *Server) activateRobot(w http.ResponseWriter, r *http.Request) {
	s.setRobotStatus(w, r, s.robotSvc.Activate)
}

func (s *Server) deactivateRobot(w http.ResponseWriter, r *http.Request) {
	s.setRobotStatus(w, r, s.robotSvc.Deactivate)
}

func (s *Server) setRobotStatus(w http.ResponseWriter, r *http.Request, update func(ctx context.Context, robotID string) error) {
	robotID := chi.URLParam(r, "robotId")
	if err := update(r.Context(), robotID); err != nil {
		if errors.Is(err, robot.ErrUnknownRobot) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"robotId": robotID})
}

// attachChannel authenticates a robot and hands the connection to the
// command channel hub. The token travels in the X-Channel-Token header.
func (s *Server) attachChannel(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotId")
	token := r.Header.Get("X-Channel-Token")
	if err := s.robotSvc.VerifyToken(r.Context(), robotID, token); err != nil {
		if errors.Is(err, robot.ErrUnknownRobot) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "channel token rejected")
		return
	}
	if err := s.hub.Attach(w, r, robotID); err != nil {
		s.logger.Warn().Err(err).Str("robot_id", robotID).Msg("channel attach failed")
	}
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
