package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annadata/internal/infrastructure"
	"annadata/internal/operations"
)

func dial(t *testing.T, server *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func TestHandlerStreamsRunEvents(t *testing.T) {
	hub := startHub(t)
	server := httptest.NewServer(NewHandler(hub, nil, infrastructure.DiscardLogger()))
	defer server.Close()

	conn, _, err := dial(t, server, "")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var welcome Message
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, TypeConnection, welcome.Type)

	NewProgressAdapter(hub, nil).BroadcastUpdate(operations.EventTypeRunComplete, "",
		operations.RunStatusCompleted, map[string]interface{}{"run_id": "run-3"})

	var done Message
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, operations.EventTypeRunComplete, done.Type)
	assert.Equal(t, LevelSuccess, done.Level)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerChecksOrigin(t *testing.T) {
	hub := startHub(t)
	server := httptest.NewServer(NewHandler(hub, []string{"https://dash.example"}, infrastructure.DiscardLogger()))
	defer server.Close()

	_, resp, err := dial(t, server, "https://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, server, "https://dash.example")
	require.NoError(t, err)
	conn.Close()

	conn, _, err = dial(t, server, server.URL)
	require.NoError(t, err)
	conn.Close()
}
