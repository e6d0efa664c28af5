package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csms/types"
)

// wsPair upgrades one connection and hands both ends to the test.
func wsPair(t *testing.T) (*WebSocket, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConn := make(chan *websocket.Conn, 1)
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %s", err)
			return
		}
		serverConn <- conn
	}))
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = clientConn.Close()
	})

	select {
	case conn := <-serverConn:
		ws := &WebSocket{conn: conn, id: "ST-1", version: types.Version16, alive: true}
		t.Cleanup(ws.Terminate)
		return ws, clientConn
	case <-time.After(time.Second):
		t.Fatalf("no server connection")
		return nil, nil
	}
}

func newTestCentralSystem() *CentralSystem {
	return &CentralSystem{
		server: &Server{registry: NewRegistry(), logger: nopLogger{}},
		logger: nopLogger{},
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) []interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var fields []interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	return fields
}

func TestUnknownActionGetsNotImplemented(t *testing.T) {
	ws, client := wsPair(t)
	ws.features = dispatchTable16(NewSystemHandler(time.UTC, 60))
	cs := newTestCentralSystem()

	err := cs.handleIncomingMessage(ws, []byte(`[2,"req-7","ClearCache",{}]`))
	require.NoError(t, err)

	fields := readFrame(t, client)
	require.Len(t, fields, 5)
	assert.Equal(t, 4.0, fields[0])
	assert.Equal(t, "req-7", fields[1])
	assert.Equal(t, ErrorCodeNotImplemented, fields[2])
	assert.Equal(t, "unsupported action: ClearCache", fields[3])
}

func TestMissingActionGetsProtocolError(t *testing.T) {
	ws, client := wsPair(t)
	ws.features = dispatchTable16(NewSystemHandler(time.UTC, 60))
	cs := newTestCentralSystem()

	err := cs.handleIncomingMessage(ws, []byte(`[2,"req-8",42,{}]`))
	require.NoError(t, err)

	fields := readFrame(t, client)
	assert.Equal(t, "req-8", fields[1])
	assert.Equal(t, ErrorCodeProtocolError, fields[2])
}

func TestUnresolvedVersionGetsNotSupported(t *testing.T) {
	ws, client := wsPair(t)
	cs := newTestCentralSystem()

	err := cs.handleIncomingMessage(ws, []byte(`[2,"req-9","Heartbeat",{}]`))
	require.NoError(t, err)

	fields := readFrame(t, client)
	assert.Equal(t, "req-9", fields[1])
	assert.Equal(t, ErrorCodeNotSupported, fields[2])
}

func TestMalformedFrameIsDropped(t *testing.T) {
	ws, _ := wsPair(t)
	cs := newTestCentralSystem()

	if err := cs.handleIncomingMessage(ws, []byte(`[2,"req-10"]`)); err == nil {
		t.Fatalf("expected an error for a short frame")
	}
	if err := cs.handleIncomingMessage(ws, []byte(`not json`)); err == nil {
		t.Fatalf("expected an error for non-json data")
	}
}

func TestResultAndErrorFramesAreIgnored(t *testing.T) {
	ws, _ := wsPair(t)
	cs := newTestCentralSystem()

	require.NoError(t, cs.handleIncomingMessage(ws, []byte(`[3,"req-11",{"status":"Accepted"}]`)))
	require.NoError(t, cs.handleIncomingMessage(ws, []byte(`[4,"req-12","InternalError","boom",{}]`)))
}
