package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mxf-project/mxf/internal/bus"
)

func newWebsocketTestServer(t *testing.T) (*Server, *httptest.Server, string) {
	t.Helper()
	s := newTestServer(t)
	s.Auth.Credentials().Issue("agent-1", "key-1", "secret-1")

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebsocket)
	httpSrv := httptest.NewServer(mux)
	t.Cleanup(httpSrv.Close)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	return s, httpSrv, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *bus.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame bus.Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	return &frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame bus.Frame) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestHandshakeSucceedsAndIssuesSessionToken(t *testing.T) {
	_, _, wsURL := newWebsocketTestServer(t)
	conn := dial(t, wsURL)

	hsData, _ := json.Marshal(handshakeFrame{
		KeyID:       "key-1",
		SecretKey:   "secret-1",
		ChannelID:   "channel-1",
		DisplayName: "tester",
		Provider:    "anthropic",
		Model:       "claude-3",
	})
	writeFrame(t, conn, bus.Frame{Type: "handshake", RequestID: "req-1", Data: hsData})

	ack := readFrame(t, conn)
	require.Equal(t, "handshake.ack", ack.Type)
	require.Equal(t, "req-1", ack.RequestID)

	var payload handshakeAck
	require.NoError(t, json.Unmarshal(ack.Data, &payload))
	require.Equal(t, "agent-1", payload.AgentID)
	require.Equal(t, "channel-1", payload.ChannelID)
	require.NotEmpty(t, payload.SessionID)
	require.NotEmpty(t, payload.Token)
}

func TestHandshakeRejectsBadCredentials(t *testing.T) {
	_, _, wsURL := newWebsocketTestServer(t)
	conn := dial(t, wsURL)

	hsData, _ := json.Marshal(handshakeFrame{
		KeyID:     "key-1",
		SecretKey: "wrong-secret",
		ChannelID: "channel-1",
	})
	writeFrame(t, conn, bus.Frame{Type: "handshake", RequestID: "req-1", Data: hsData})

	resp := readFrame(t, conn)
	require.Equal(t, "error", resp.Type)
}

func TestFirstFrameMustBeHandshake(t *testing.T) {
	_, _, wsURL := newWebsocketTestServer(t)
	conn := dial(t, wsURL)

	writeFrame(t, conn, bus.Frame{Type: "ping", RequestID: "req-1"})

	resp := readFrame(t, conn)
	require.Equal(t, "error", resp.Type)
}

func TestTokenResumeReusesPriorSessionID(t *testing.T) {
	_, _, wsURL := newWebsocketTestServer(t)

	conn1 := dial(t, wsURL)
	hsData, _ := json.Marshal(handshakeFrame{
		KeyID:     "key-1",
		SecretKey: "secret-1",
		ChannelID: "channel-1",
	})
	writeFrame(t, conn1, bus.Frame{Type: "handshake", RequestID: "req-1", Data: hsData})
	ack1 := readFrame(t, conn1)
	var first handshakeAck
	require.NoError(t, json.Unmarshal(ack1.Data, &first))

	_ = conn1.Close()
	time.Sleep(50 * time.Millisecond)

	conn2 := dial(t, wsURL)
	resumeData, _ := json.Marshal(handshakeFrame{
		Token:     first.Token,
		ChannelID: "channel-1",
		SessionID: first.SessionID,
	})
	writeFrame(t, conn2, bus.Frame{Type: "handshake", RequestID: "req-2", Data: resumeData})
	ack2 := readFrame(t, conn2)
	var second handshakeAck
	require.NoError(t, json.Unmarshal(ack2.Data, &second))

	require.Equal(t, first.SessionID, second.SessionID)
}

func TestUnknownFrameTypeReturnsError(t *testing.T) {
	_, _, wsURL := newWebsocketTestServer(t)
	conn := dial(t, wsURL)

	hsData, _ := json.Marshal(handshakeFrame{
		KeyID:     "key-1",
		SecretKey: "secret-1",
		ChannelID: "channel-1",
	})
	writeFrame(t, conn, bus.Frame{Type: "handshake", RequestID: "req-1", Data: hsData})
	_ = readFrame(t, conn)

	writeFrame(t, conn, bus.Frame{Type: "bogus", RequestID: "req-2"})
	resp := readFrame(t, conn)
	require.Equal(t, "error", resp.Type)
}
