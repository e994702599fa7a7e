package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schedule-service/internal/model"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (r *recordingHandler) HandleEvent(ctx context.Context, identity model.Identity, event string, data json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingHandler) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// tokenAuth treats the token as "<role>:<uuid>".
func tokenAuth(token string) (model.Identity, error) {
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 {
		return model.Identity{}, errors.New("bad token")
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return model.Identity{}, err
	}
	return model.Identity{CallerID: id, Role: model.Role(parts[0])}, nil
}

func startHub(t *testing.T, events EventHandler) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(Config{BufferSize: 16, ClientSendBuffer: 8, MessagesPerSecond: 100}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(h.Handler(tokenAuth, events))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHub_PushWithoutConnectionIsNoop(t *testing.T) {
	h, _ := startHub(t, nil)

	require.NotPanics(t, func() {
		h.Push(uuid.New(), EventNewSchedule, map[string]string{"id": "x"})
	})
}

func TestHub_PushNeverBlocks(t *testing.T) {
	h := New(Config{BufferSize: 1}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Push(uuid.New(), EventNewMessage, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked while the hub was not running")
	}
}

func TestHub_RunTwice(t *testing.T) {
	h, _ := startHub(t, nil)
	require.Eventually(t, func() bool { return h.running.Load() }, time.Second, 10*time.Millisecond)

	require.ErrorIs(t, h.Run(context.Background()), ErrHubAlreadyRunning)
}

func TestHub_DeliversToEveryConnectionOfUser(t *testing.T) {
	h, srv := startHub(t, nil)
	userID := uuid.New()

	first := dial(t, srv, "student:"+userID.String())
	second := dial(t, srv, "student:"+userID.String())
	require.Eventually(t, func() bool { return h.ConnectionCount(userID) == 2 }, time.Second, 10*time.Millisecond)

	h.Push(userID, EventScheduleUpdated, map[string]string{"status": "accepted"})

	for _, conn := range []*websocket.Conn{first, second} {
		frame := readEnvelope(t, conn)
		require.Equal(t, EventScheduleUpdated, frame["event"])
		require.Equal(t, "accepted", frame["data"].(map[string]interface{})["status"])
	}
}

func TestHub_OtherUsersDoNotReceive(t *testing.T) {
	h, srv := startHub(t, nil)
	alice, bob := uuid.New(), uuid.New()

	aliceConn := dial(t, srv, "tutor:"+alice.String())
	bobConn := dial(t, srv, "student:"+bob.String())
	require.Eventually(t, func() bool { return h.Online(alice) && h.Online(bob) }, time.Second, 10*time.Millisecond)

	h.Push(bob, EventNewMessage, "hi bob")

	frame := readEnvelope(t, bobConn)
	require.Equal(t, "hi bob", frame["data"])

	require.NoError(t, aliceConn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := aliceConn.ReadMessage()
	require.Error(t, err, "alice must not receive bob's push")
}

func TestHub_DisconnectLeavesRoom(t *testing.T) {
	h, srv := startHub(t, nil)
	userID := uuid.New()

	conn := dial(t, srv, "student:"+userID.String())
	require.Eventually(t, func() bool { return h.Online(userID) }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !h.Online(userID) }, time.Second, 10*time.Millisecond)
}

func TestHub_RejectsMissingToken(t *testing.T) {
	_, srv := startHub(t, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_JoinRoom(t *testing.T) {
	h, srv := startHub(t, nil)
	userID := uuid.New()

	conn := dial(t, srv, "student:"+userID.String())
	require.Eventually(t, func() bool { return h.Online(userID) }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Envelope{Event: "joinRoom", Data: map[string]string{"userId": userID.String()}}))
	frame := readEnvelope(t, conn)
	require.Equal(t, "roomJoined", frame["event"])
	require.Equal(t, 1, h.ConnectionCount(userID))

	require.NoError(t, conn.WriteJSON(Envelope{Event: "joinRoom", Data: map[string]string{"userId": uuid.NewString()}}))
	frame = readEnvelope(t, conn)
	require.Equal(t, "error", frame["event"])
}

func TestHub_ForwardsClientEvents(t *testing.T) {
	handler := &recordingHandler{}
	h, srv := startHub(t, handler)
	userID := uuid.New()

	conn := dial(t, srv, "student:"+userID.String())
	require.Eventually(t, func() bool { return h.Online(userID) }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Envelope{Event: "sendMessage", Data: map[string]string{"content": "hello"}}))
	require.Eventually(t, func() bool { return len(handler.seen()) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, "sendMessage", handler.seen()[0])
}

func TestHub_ClientEventErrorIsReported(t *testing.T) {
	handler := &recordingHandler{err: errors.New("receiver not found")}
	h, srv := startHub(t, handler)
	userID := uuid.New()

	conn := dial(t, srv, "student:"+userID.String())
	require.Eventually(t, func() bool { return h.Online(userID) }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Envelope{Event: "sendMessage", Data: map[string]string{}}))
	frame := readEnvelope(t, conn)
	require.Equal(t, "error", frame["event"])
	require.Equal(t, "receiver not found", frame["data"].(map[string]interface{})["message"])
}
