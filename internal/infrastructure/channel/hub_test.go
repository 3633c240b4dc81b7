package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/delegation-hub/delegation-hub/internal/application/dispatch"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/metrics"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Attach(w, r, r.URL.Query().Get("robot"))
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialRobot(t *testing.T, srv *httptest.Server, robotID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?robot=" + robotID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func waitConnected(t *testing.T, hub *Hub, robotID string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !hub.Connected(robotID) {
		if time.Now().After(deadline) {
			t.Fatalf("robot %s never attached", robotID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sampleCommand(robotID string) dispatch.Command {
	taskID := uuid.New()
	return dispatch.Command{
		TaskID:     taskID,
		SubtaskID:  uuid.NewSHA1(uuid.NameSpaceOID, []byte(taskID.String()+":0")),
		RobotID:    robotID,
		Command:    "move_to_position",
		Parameters: []float64{100, 10, 20},
	}
}

func TestSendRoundTrip(t *testing.T) {
	hub, srv := newTestHub(t)
	ws := dialRobot(t, srv, "KUKA_1")
	waitConnected(t, hub, "KUKA_1")

	go func() {
		var cmd dispatch.Command
		if err := ws.ReadJSON(&cmd); err != nil {
			return
		}
		_ = ws.WriteJSON(dispatch.Reply{SubtaskID: cmd.SubtaskID, Status: dispatch.ReplyAck})
		_ = ws.WriteJSON(dispatch.Reply{SubtaskID: cmd.SubtaskID, Status: dispatch.ReplySuccess})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := hub.Send(ctx, sampleCommand("KUKA_1"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Status != dispatch.ReplySuccess {
		t.Fatalf("expected terminal success after ack, got %q", reply.Status)
	}
}

func TestSendErrorReplyCarriesMessage(t *testing.T) {
	hub, srv := newTestHub(t)
	ws := dialRobot(t, srv, "Ford")
	waitConnected(t, hub, "Ford")

	go func() {
		var cmd dispatch.Command
		if err := ws.ReadJSON(&cmd); err != nil {
			return
		}
		_ = ws.WriteJSON(dispatch.Reply{SubtaskID: cmd.SubtaskID, Status: dispatch.ReplyError, Message: "battery low"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := hub.Send(ctx, sampleCommand("Ford"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Status != dispatch.ReplyError || reply.Message != "battery low" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestSendToOfflineRobot(t *testing.T) {
	hub, _ := newTestHub(t)

	_, err := hub.Send(context.Background(), sampleCommand("Scion"))
	if !errors.Is(err, dispatch.ErrRobotOffline) {
		t.Fatalf("expected offline error, got %v", err)
	}
}

func TestSendTimesOutWithoutReply(t *testing.T) {
	hub, srv := newTestHub(t)
	dialRobot(t, srv, "KUKA_1")
	waitConnected(t, hub, "KUKA_1")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := hub.Send(ctx, sampleCommand("KUKA_1"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDisconnectResolvesPendingSend(t *testing.T) {
	hub, srv := newTestHub(t)
	ws := dialRobot(t, srv, "KUKA_1")
	waitConnected(t, hub, "KUKA_1")

	go func() {
		var cmd dispatch.Command
		if err := ws.ReadJSON(&cmd); err != nil {
			return
		}
		_ = ws.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := hub.Send(ctx, sampleCommand("KUKA_1"))
	if !errors.Is(err, dispatch.ErrRobotOffline) {
		t.Fatalf("expected offline error after disconnect, got %v", err)
	}
}
