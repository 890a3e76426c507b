package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mzanin/switchmon/internal/config"
	"github.com/mzanin/switchmon/internal/models"
	"github.com/mzanin/switchmon/internal/store"
)

func testAPI(t *testing.T) (*gin.Engine, *API, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	st, err := store.New(db)
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret: "test-secret",
		AdminUser: "admin",
		AdminPass: "letmein",
	}
	api := NewAPI(st, NewAlertHub(zerolog.Nop()), cfg, zerolog.Nop())

	r := gin.New()
	api.RegisterRoutes(r)
	return r, api, st
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/login", "", gin.H{
		"username": "admin", "password": "letmein",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthIsPublic(t *testing.T) {
	r, _, _ := testAPI(t)
	w := doJSON(t, r, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	r, _, _ := testAPI(t)
	w := doJSON(t, r, http.MethodPost, "/api/v1/login", "", gin.H{
		"username": "admin", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r, _, _ := testAPI(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/devices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/devices", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareRejectsWrongKey(t *testing.T) {
	r, _, _ := testAPI(t)

	// Token signed with a different secret must not pass.
	otherCfg := &config.Config{JWTSecret: "other-secret", AdminUser: "admin", AdminPass: "x"}
	other := NewAPI(nil, nil, otherCfg, zerolog.Nop())
	token, err := other.generateJWT("admin")
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodGet, "/api/v1/devices", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeviceLifecycleOverHTTP(t *testing.T) {
	r, _, st := testAPI(t)
	token := login(t, r)

	// Create.
	w := doJSON(t, r, http.MethodPost, "/api/v1/devices", token, gin.H{
		"hostname": "core-sw1",
		"ip":       "192.168.1.1",
		"vendor":   "cisco",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.SNMPEnabled, "snmp collection defaults to on")
	assert.Equal(t, uint16(161), created.SNMPPort)

	// Duplicate IP rejected.
	w = doJSON(t, r, http.MethodPost, "/api/v1/devices", token, gin.H{
		"hostname": "core-sw2", "ip": "192.168.1.1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Read back.
	w = doJSON(t, r, http.MethodGet, "/api/v1/devices", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []models.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	// Partial update flips only the named field.
	w = doJSON(t, r, http.MethodPut, "/api/v1/devices/1", token, gin.H{
		"snmp_enabled": false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	device, err := st.GetDevice(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, device.SNMPEnabled)
	assert.Equal(t, "core-sw1", device.Hostname)

	// Delete.
	w = doJSON(t, r, http.MethodDelete, "/api/v1/devices/1", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, r, http.MethodGet, "/api/v1/devices/1", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeviceMetricsEndpoints(t *testing.T) {
	r, _, _ := testAPI(t)
	token := login(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/devices", token, gin.H{
		"hostname": "sw1", "ip": "10.0.0.1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/devices/1/metrics", token, gin.H{
		"cpu_usage": 42, "memory_usage": 67, "uptime": 3600,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/api/v1/devices/1/metrics", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var metrics []models.DeviceMetric
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	require.Len(t, metrics, 1)
	assert.Equal(t, 42, metrics[0].CPUUsage)

	// Metrics for a missing device 404.
	w = doJSON(t, r, http.MethodGet, "/api/v1/devices/99/metrics", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInterfaceEndpoints(t *testing.T) {
	r, _, _ := testAPI(t)
	token := login(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/devices", token, gin.H{
		"hostname": "sw1", "ip": "10.0.0.1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/devices/1/interfaces", token, gin.H{
		"name": "GigabitEthernet0/1", "if_index": 1, "speed": 1000000000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Duplicate name on the same device rejected.
	w = doJSON(t, r, http.MethodPost, "/api/v1/devices/1/interfaces", token, gin.H{
		"name": "GigabitEthernet0/1", "if_index": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/devices/1/interfaces", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ifaces []models.Interface
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ifaces))
	require.Len(t, ifaces, 1)

	w = doJSON(t, r, http.MethodGet, "/api/v1/interfaces/1/metrics", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAlertRuleAndEventEndpoints(t *testing.T) {
	r, _, st := testAPI(t)
	token := login(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/alerts/rules", token, gin.H{
		"name":      "high cpu",
		"oid":       "1.3.6.1.2.1.25.3.3.1.2",
		"operator":  ">",
		"threshold": 90,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var rule models.AlertRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	assert.Equal(t, models.SeverityWarning, rule.Severity, "severity defaults to warning")
	assert.True(t, rule.Enabled)

	w = doJSON(t, r, http.MethodGet, "/api/v1/alerts/rules", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Seed an event directly and acknowledge it over HTTP.
	event := &models.AlertEvent{RuleID: rule.ID, DeviceID: 1, Value: 95, Message: "cpu", Severity: models.SeverityWarning}
	require.NoError(t, st.SaveEvent(context.Background(), event))

	w = doJSON(t, r, http.MethodGet, "/api/v1/alerts/events", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []models.AlertEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)

	w = doJSON(t, r, http.MethodPost, "/api/v1/alerts/events/1/ack", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/alerts/events/99/ack", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/v1/alerts/rules/1", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPathIDRejectsGarbage(t *testing.T) {
	r, _, _ := testAPI(t)
	token := login(t, r)

	w := doJSON(t, r, http.MethodGet, "/api/v1/devices/banana", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
