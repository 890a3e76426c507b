package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzanin/switchmon/internal/models"
)

type fakeStore struct {
	mu sync.Mutex

	rules    []models.AlertRule
	rulesErr error
	devices  []models.Device
	metrics  map[uint]*models.DeviceMetric

	events []models.AlertEvent
	nextID uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{metrics: make(map[uint]*models.DeviceMetric)}
}

func (s *fakeStore) ListEnabledRules(ctx context.Context) ([]models.AlertRule, error) {
	if s.rulesErr != nil {
		return nil, s.rulesErr
	}
	return s.rules, nil
}

func (s *fakeStore) ListDevices(ctx context.Context, limit int) ([]models.Device, error) {
	return s.devices, nil
}

func (s *fakeStore) LatestMetricForDevice(ctx context.Context, deviceID uint) (*models.DeviceMetric, error) {
	return s.metrics[deviceID], nil
}

func (s *fakeStore) FindRecentEvent(ctx context.Context, ruleID, deviceID uint, since time.Time) (*models.AlertEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if ev.RuleID == ruleID && ev.DeviceID == deviceID && ev.Timestamp.After(since) {
			return &ev, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) SaveEvent(ctx context.Context, event *models.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	event.ID = s.nextID
	event.Timestamp = time.Now()
	s.events = append(s.events, *event)
	return nil
}

func (s *fakeStore) savedEvents() []models.AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AlertEvent(nil), s.events...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []models.AlertEvent
}

func (n *fakeNotifier) BroadcastAlert(event *models.AlertEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, *event)
}

func cpuRule(deviceID *uint, threshold float64) models.AlertRule {
	r := models.AlertRule{
		Name:      "high cpu",
		DeviceID:  deviceID,
		OID:       oidProcessorLoad,
		Operator:  ">",
		Threshold: threshold,
		Severity:  models.SeverityCritical,
		Enabled:   true,
	}
	r.ID = 1
	return r
}

func deviceWithID(id uint) models.Device {
	d := models.Device{Hostname: "sw1", IP: "10.0.0.1"}
	d.ID = id
	return d
}

func TestCheckCondition(t *testing.T) {
	cases := []struct {
		value     float64
		operator  string
		threshold float64
		want      bool
	}{
		{5, ">", 3, true},
		{3, ">", 5, false},
		{3, "<", 5, true},
		{5, "<", 3, false},
		{5, "==", 5, true},
		{5, "==", 4, false},
		{5, ">=", 5, true},
		{4, ">=", 5, false},
		{5, "<=", 5, true},
		{6, "<=", 5, false},
		{5, "!=", 3, false}, // unsupported operator never triggers
		{5, "", 3, false},
		{5, "between", 3, false},
	}
	for _, tc := range cases {
		got := CheckCondition(tc.value, tc.operator, tc.threshold)
		assert.Equalf(t, tc.want, got, "CheckCondition(%g, %q, %g)", tc.value, tc.operator, tc.threshold)
	}
}

func TestEvaluateTriggersEvent(t *testing.T) {
	deviceID := uint(7)
	store := newFakeStore()
	store.rules = []models.AlertRule{cpuRule(&deviceID, 90)}
	store.metrics[deviceID] = &models.DeviceMetric{DeviceID: deviceID, CPUUsage: 95}

	notifier := &fakeNotifier{}
	e := New(store, notifier, Options{}, zerolog.Nop())
	e.evaluateAll(context.Background())

	events := store.savedEvents()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, uint(1), ev.RuleID)
	assert.Equal(t, deviceID, ev.DeviceID)
	assert.Equal(t, float64(95), ev.Value)
	assert.Equal(t, models.SeverityCritical, ev.Severity)
	assert.Contains(t, ev.Message, "95")
	assert.Contains(t, ev.Message, "high cpu")

	require.Len(t, notifier.events, 1)
	assert.Equal(t, ev.ID, notifier.events[0].ID)
}

func TestEvaluateBelowThresholdNoEvent(t *testing.T) {
	deviceID := uint(7)
	store := newFakeStore()
	store.rules = []models.AlertRule{cpuRule(&deviceID, 90)}
	store.metrics[deviceID] = &models.DeviceMetric{DeviceID: deviceID, CPUUsage: 42}

	e := New(store, nil, Options{}, zerolog.Nop())
	e.evaluateAll(context.Background())

	assert.Empty(t, store.savedEvents())
}

func TestEvaluateDedupsWithinSuppressionWindow(t *testing.T) {
	deviceID := uint(7)
	store := newFakeStore()
	store.rules = []models.AlertRule{cpuRule(&deviceID, 90)}
	store.metrics[deviceID] = &models.DeviceMetric{DeviceID: deviceID, CPUUsage: 95}

	e := New(store, nil, Options{Suppression: time.Hour}, zerolog.Nop())
	e.evaluateAll(context.Background())
	e.evaluateAll(context.Background())

	assert.Len(t, store.savedEvents(), 1, "second tick inside the window must not fire")
}

func TestEvaluateFiresAgainAfterWindowExpires(t *testing.T) {
	deviceID := uint(7)
	store := newFakeStore()
	store.rules = []models.AlertRule{cpuRule(&deviceID, 90)}
	store.metrics[deviceID] = &models.DeviceMetric{DeviceID: deviceID, CPUUsage: 95}

	e := New(store, nil, Options{Suppression: time.Hour}, zerolog.Nop())
	e.evaluateAll(context.Background())

	// Age the first event past the window.
	store.mu.Lock()
	store.events[0].Timestamp = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()

	e.evaluateAll(context.Background())
	assert.Len(t, store.savedEvents(), 2)
}

func TestGlobalRuleEvaluatesEveryDevice(t *testing.T) {
	store := newFakeStore()
	store.rules = []models.AlertRule{cpuRule(nil, 90)}
	store.devices = []models.Device{deviceWithID(1), deviceWithID(2), deviceWithID(3)}
	store.metrics[1] = &models.DeviceMetric{DeviceID: 1, CPUUsage: 95}
	store.metrics[3] = &models.DeviceMetric{DeviceID: 3, CPUUsage: 99}
	// device 2 has no metrics yet and is skipped

	e := New(store, nil, Options{}, zerolog.Nop())
	e.evaluateAll(context.Background())

	events := store.savedEvents()
	require.Len(t, events, 2)
	assert.Equal(t, uint(1), events[0].DeviceID)
	assert.Equal(t, uint(3), events[1].DeviceID)
}

func TestEvaluateRuleListFailureSkipsTick(t *testing.T) {
	store := newFakeStore()
	store.rulesErr = errors.New("database locked")

	e := New(store, nil, Options{}, zerolog.Nop())
	e.evaluateAll(context.Background())

	assert.Empty(t, store.savedEvents())
}

func TestMetricValueResolution(t *testing.T) {
	metric := &models.DeviceMetric{
		CPUUsage:    10,
		MemoryUsage: 20,
		Temperature: 30,
		Uptime:      40,
	}

	assert.Equal(t, float64(10), metricValue(metric, oidProcessorLoad+".196608"))
	assert.Equal(t, float64(20), metricValue(metric, oidStorageUsed+".1"))
	assert.Equal(t, float64(30), metricValue(metric, oidSensorValue+".1004"))
	assert.Equal(t, float64(40), metricValue(metric, oidSysUpTime+".0"))
	assert.Equal(t, float64(10), metricValue(metric, "1.3.6.1.9.9.9"), "unknown OID falls back to CPU")
}

func TestStartStopLifecycle(t *testing.T) {
	e := New(newFakeStore(), nil, Options{Interval: time.Hour}, zerolog.Nop())
	e.Start(context.Background())
	e.Start(context.Background())
	e.Stop()
	e.Stop()
}
