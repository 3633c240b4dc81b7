package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/delegation-hub/delegation-hub/internal/application/dispatch"
	"github.com/delegation-hub/delegation-hub/internal/application/orchestrator"
	appRobot "github.com/delegation-hub/delegation-hub/internal/application/robot"
	"github.com/delegation-hub/delegation-hub/internal/application/scoring"
	appTask "github.com/delegation-hub/delegation-hub/internal/application/task"
	"github.com/delegation-hub/delegation-hub/internal/domain/task"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/channel"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/memory"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/metrics"
)

func newTestServer(t *testing.T) (*httptest.Server, *channel.Hub) {
	t.Helper()
	logger := zerolog.Nop()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	robotSvc := appRobot.NewService(memory.NewRobotRepository(), logger)
	store := memory.NewTaskRepository()
	hub := channel.NewHub(m, logger)
	scorer := scoring.NewScorer(robotSvc, nil, time.Second, m, logger)
	dispatcher := dispatch.NewDispatcher(hub, 2*time.Second, nil, m, logger)
	orch := orchestrator.NewOrchestrator(store, scorer, dispatcher, m, 3, 1, logger)
	taskSvc := appTask.NewService(store, orch, m, false, logger)

	srv := httptest.NewServer(NewServer(taskSvc, robotSvc, hub, registry, logger).Router())
	t.Cleanup(srv.Close)
	return srv, hub
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func attachRobot(t *testing.T, srv *httptest.Server, hub *channel.Hub, robotID, token string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/robots/" + robotID + "/channel"
	header := http.Header{"X-Channel-Token": []string{token}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("attach %s: %v", robotID, err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	go func() {
		for {
			var cmd dispatch.Command
			if err := ws.ReadJSON(&cmd); err != nil {
				return
			}
			_ = ws.WriteJSON(dispatch.Reply{SubtaskID: cmd.SubtaskID, Status: dispatch.ReplySuccess})
		}
	}()

	deadline := time.Now().Add(time.Second)
	for !hub.Connected(robotID) {
		if time.Now().After(deadline) {
			t.Fatalf("robot %s never attached", robotID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitTaskRoundTrip(t *testing.T) {
	srv, hub := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/robots", map[string]interface{}{
		"robotId":      "KUKA_1",
		"capabilities": map[string]int{"navigation": 90, "delicate_task": 90},
		"channelToken": "secret",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register robot: status %d", resp.StatusCode)
	}

	attachRobot(t, srv, hub, "KUKA_1", "secret")

	resp = postJSON(t, srv.URL+"/v1/tasks", map[string]interface{}{
		"command":    "weld_component",
		"parameters": []float64{100, 10, 20, 30, 1},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit task: status %d", resp.StatusCode)
	}
	var submitted task.Task
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}

	getResp, err := http.Get(srv.URL + "/v1/tasks/" + submitted.TaskID.String())
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	defer getResp.Body.Close()
	var got task.Task
	if err := json.NewDecoder(getResp.Body).Decode(&got); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}
	if len(got.Subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(got.Subtasks))
	}
	for _, sub := range got.Subtasks {
		if sub.AssignedRobot == nil || *sub.AssignedRobot != "KUKA_1" {
			t.Fatalf("subtask %s not assigned to KUKA_1: %+v", sub.Name, sub)
		}
	}
}

func TestSubmitUnknownCommandRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/tasks", map[string]interface{}{
		"command":    "fold_laundry",
		"parameters": []float64{1},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetUnknownTaskReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/tasks/6f9b6ec1-7b6e-4dd2-9a44-2b6f9f6f2a11")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestChannelRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/robots", map[string]interface{}{
		"robotId":      "Ford",
		"capabilities": map[string]int{"heavy_lifting": 80},
		"channelToken": "secret",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register robot: status %d", resp.StatusCode)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/robots/Ford/channel"
	header := http.Header{"X-Channel-Token": []string{"wrong"}}
	_, wsResp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected dial to fail with a bad token")
	}
	if wsResp == nil || wsResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", wsResp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
