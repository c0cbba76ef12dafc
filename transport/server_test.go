package transport

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestServer(t *testing.T, orchestrator contract.IOrchestrator) *httptest.Server {
	t.Helper()
	s := NewServer(logs.GetLoggerFromLevel(slog.LevelDebug), orchestrator, ":0", 8, 4096)
	s.newID = func() string { return "c1" }
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return server
}

func TestServer_Healthz(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	server := newTestServer(t, mocks.NewMockIOrchestrator(ctrl))

	resp, err := http.Get(server.URL + "/healthz")
	req.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("ok", string(body))
}

func TestServer_Websocket_Round_Trip(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	orchestrator := mocks.NewMockIOrchestrator(ctrl)
	server := newTestServer(t, orchestrator)

	sinks := make(chan contract.EventSink, 1)
	dispatched := make(chan domain.Command, 1)
	disconnected := make(chan string, 1)

	orchestrator.EXPECT().Connect("c1", gomock.Any()).Do(func(_ string, sink contract.EventSink) {
		sinks <- sink
	})
	orchestrator.EXPECT().Dispatch(gomock.Any()).Do(func(cmd domain.Command) {
		dispatched <- cmd
	})
	orchestrator.EXPECT().Disconnect("c1").Do(func(connectionID string) {
		disconnected <- connectionID
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	req.NoError(err)

	var sink contract.EventSink
	select {
	case sink = <-sinks:
	case <-time.After(time.Second):
		req.FailNow("connection was never attached")
	}

	// When the client sends a malformed frame then a join
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"join","data":{}}`)))
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"join","data":{"username":"Alice","userId":"u1"}}`)))

	// Then only the join reaches the relay
	select {
	case cmd := <-dispatched:
		req.Equal(domain.Join{Connection: "c1", UserID: "u1", Username: "Alice"}, cmd)
	case <-time.After(time.Second):
		req.FailNow("join was never dispatched")
	}

	// When the relay emits an event for the connection
	req.NoError(sink.Consume(context.Background(), event.UserTyping{UserID: "u2", Username: "Bob"}))

	// Then the client receives the frame
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, frame, err := conn.ReadMessage()
	req.NoError(err)
	req.JSONEq(`{"event":"user-typing","data":{"userId":"u2","username":"Bob"}}`, string(frame))

	// When the client leaves
	req.NoError(conn.Close())

	select {
	case connectionID := <-disconnected:
		req.Equal("c1", connectionID)
	case <-time.After(time.Second):
		req.FailNow("disconnect was never reported")
	}
}
