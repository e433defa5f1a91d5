package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinolu52/e-tap/module/core/domain"
)

func newTestServer(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := gin.New()
	hub.Register(r.Group(""))

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/session/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

var lagosViewport = domain.Viewport{
	Center:        domain.Coordinate{Lat: 6.4541, Lon: 3.3947},
	LatitudeSpan:  0.05,
	LongitudeSpan: 0.05,
}

func TestHub_SendsLatestViewportOnConnect(t *testing.T) {
	hub, url := newTestServer(t)
	hub.PublishViewport(lagosViewport)

	conn := dial(t, url)
	m := readMessage(t, conn)

	assert.Equal(t, "viewport", m.Type)
	require.NotNil(t, m.Viewport)
	assert.Equal(t, lagosViewport, *m.Viewport)
}

func TestHub_BroadcastsViewportsAndEvents(t *testing.T) {
	hub, url := newTestServer(t)
	hub.PublishViewport(lagosViewport)

	a := dial(t, url)
	b := dial(t, url)
	readMessage(t, a)
	readMessage(t, b)
	require.Equal(t, 2, hub.Clients())

	zoomed := lagosViewport
	zoomed.LatitudeSpan, zoomed.LongitudeSpan = 0.005, 0.005
	hub.PublishViewport(zoomed)
	require.NoError(t, hub.Publish(context.Background(), &domain.Event{
		SessionID: "s1",
		Kind:      domain.EventGeofenceEntered,
		FenceID:   "1",
	}))

	for _, conn := range []*websocket.Conn{a, b} {
		m := readMessage(t, conn)
		assert.Equal(t, "viewport", m.Type)
		assert.Equal(t, 0.005, m.Viewport.LatitudeSpan)

		m = readMessage(t, conn)
		assert.Equal(t, "event", m.Type)
		require.NotNil(t, m.Event)
		assert.Equal(t, domain.EventGeofenceEntered, m.Event.Kind)
		assert.Equal(t, "1", m.Event.FenceID)
	}
}

func TestHub_RemovesDisconnectedViewer(t *testing.T) {
	hub, url := newTestServer(t)
	hub.PublishViewport(lagosViewport)

	conn := dial(t, url)
	readMessage(t, conn)
	require.Equal(t, 1, hub.Clients())

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishWithoutViewers(t *testing.T) {
	hub := NewHub(nil)

	assert.NotPanics(t, func() {
		hub.PublishViewport(lagosViewport)
		require.NoError(t, hub.Publish(context.Background(), &domain.Event{Kind: domain.EventSessionStarted}))
	})
	assert.Equal(t, 0, hub.Clients())
}

func TestHub_RejectsViewersAfterClose(t *testing.T) {
	hub, url := newTestServer(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	late, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if late != nil {
		_ = late.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 0, hub.Clients())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "existing viewer should be disconnected")
}
