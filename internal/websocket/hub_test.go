package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"annadata/internal/infrastructure"
	"annadata/internal/operations"
)

// fakeConn records written frames and blocks reads until closed
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("connection closed")
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadLimit(int64) {}
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(infrastructure.DiscardLogger(), nil)
	hub.Start()
	t.Cleanup(hub.Stop)
	return hub
}

func readMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHubRegisterSendsWelcome(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, newFakeConn(), "trace-1", infrastructure.DiscardLogger())

	hub.Register(client)
	msg := readMessage(t, client)

	assert.Equal(t, TypeConnection, msg.Type)
	assert.Equal(t, "connected", msg.Status)
	assert.Equal(t, "trace-1", msg.TraceID)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(client)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub := startHub(t)
	a := NewClient(hub, newFakeConn(), "", nil)
	b := NewClient(hub, newFakeConn(), "", nil)
	hub.Register(a)
	hub.Register(b)
	readMessage(t, a)
	readMessage(t, b)

	hub.Send(Message{Type: operations.EventTypeRunStatus, Status: operations.RunStatusRunning})

	for _, c := range []*Client{a, b} {
		msg := readMessage(t, c)
		assert.Equal(t, operations.EventTypeRunStatus, msg.Type)
		assert.NotEmpty(t, msg.Timestamp)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := startHub(t)
	slow := NewClient(hub, newFakeConn(), "", nil)
	hub.Register(slow)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	// nobody drains the client buffer; some sends may also be dropped at the
	// hub queue, so send well over its capacity
	for i := 0; i < 2*sendBuffer; i++ {
		hub.Send(Message{Type: "fill"})
	}
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Start()
	client := NewClient(hub, newFakeConn(), "", nil)
	hub.Register(client)
	readMessage(t, client)

	hub.Stop()
	_, ok := <-client.send
	assert.False(t, ok)
	assert.Equal(t, 0, hub.ClientCount())

	// late registrations and broadcasts are harmless
	late := NewClient(hub, newFakeConn(), "", nil)
	hub.Register(late)
	_, ok = <-late.send
	assert.False(t, ok)
	assert.NotPanics(t, func() { hub.Send(Message{Type: "after-stop"}) })
	hub.Stop()
}

func TestWritePumpWritesAndCloses(t *testing.T) {
	hub := startHub(t)
	conn := newFakeConn()
	client := NewClient(hub, conn, "", nil)
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		client.WritePump()
		close(done)
	}()
	go client.ReadPump()

	hub.Send(Message{Type: operations.EventTypeRunComplete})
	assert.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.written) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	// closing the peer ends the read pump, which unregisters the client
	conn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not exit")
	}
	assert.Equal(t, 0, hub.ClientCount())
}

func TestProgressAdapterLevels(t *testing.T) {
	tests := []struct {
		eventType string
		status    string
		want      string
	}{
		{operations.EventTypeRunStatus, operations.RunStatusRunning, LevelInfo},
		{operations.EventTypeStepProgress, string(operations.StepStatusSkipped), LevelWarning},
		{operations.EventTypeRunComplete, operations.RunStatusCompleted, LevelSuccess},
		{operations.EventTypeRunError, operations.RunStatusFailed, LevelError},
		{operations.EventTypeRunError, operations.RunStatusCancelled, LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.eventType+"/"+tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, levelFor(tt.eventType, tt.status))
		})
	}
}

func TestProgressAdapterPublishes(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, newFakeConn(), "", nil)
	hub.Register(client)
	readMessage(t, client)

	adapter := NewProgressAdapter(hub, nil)
	adapter.BroadcastUpdate(operations.EventTypeStepProgress, operations.StepIDTrain,
		string(operations.StepStatusCompleted), map[string]interface{}{"run_id": "run-7"})

	msg := readMessage(t, client)
	assert.Equal(t, operations.EventTypeStepProgress, msg.Type)
	assert.Equal(t, operations.StepIDTrain, msg.Step)
	assert.Equal(t, LevelInfo, msg.Level)
	assert.Equal(t, "run-7", msg.Data.(map[string]interface{})["run_id"])
}

func TestStreamMetricsRecordConnections(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewStreamMetrics(provider.Meter("test"))
	require.NoError(t, err)

	hub := NewHub(infrastructure.DiscardLogger(), metrics)
	hub.Start()
	defer hub.Stop()
	client := NewClient(hub, newFakeConn(), "", nil)
	hub.Register(client)
	readMessage(t, client)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["websocket_connections_total"])
	assert.True(t, names["websocket_connections_active"])
}

func TestNewStreamMetricsWithoutMeter(t *testing.T) {
	metrics, err := NewStreamMetrics(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		metrics.connected(context.Background())
		metrics.dropped(context.Background())
	})
}
