package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzanin/switchmon/internal/models"
)

func dialHub(t *testing.T, hub *AlertHub) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/ws/alerts", hub.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *AlertHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d clients (have %d)", want, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAlertHubBroadcast(t *testing.T) {
	hub := NewAlertHub(zerolog.Nop())
	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	event := &models.AlertEvent{
		ID: 1, RuleID: 2, DeviceID: 3,
		Value: 95, Message: "Alert: high cpu triggered (value: 95)",
		Severity: models.SeverityCritical,
	}
	hub.BroadcastAlert(event)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got models.AlertEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, event.Message, got.Message)
	assert.Equal(t, event.Severity, got.Severity)
}

func TestAlertHubDropsClosedClients(t *testing.T) {
	hub := NewAlertHub(zerolog.Nop())
	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.Close())
	waitForClients(t, hub, 0)

	// Broadcasting with no clients is a no-op.
	hub.BroadcastAlert(&models.AlertEvent{ID: 9})
	assert.Zero(t, hub.ClientCount())
}

func TestAlertHubBroadcastWithNoClients(t *testing.T) {
	hub := NewAlertHub(zerolog.Nop())
	hub.BroadcastAlert(&models.AlertEvent{ID: 1})
	assert.Zero(t, hub.ClientCount())
}
