// Package alerting implements the alert rule evaluation loop: rules are
// checked against the latest collected metrics, and triggered rules emit
// deduplicated alert events.
package alerting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mzanin/switchmon/internal/models"
)

// Metric OID prefixes the evaluator knows how to resolve against a
// DeviceMetric row. A rule whose OID matches none of these is compared
// against CPU usage, the dominant rule target in practice.
const (
	oidProcessorLoad = "1.3.6.1.2.1.25.3.3.1.2"
	oidStorageUsed   = "1.3.6.1.2.1.25.2.3.1.6"
	oidSensorValue   = "1.3.6.1.4.1.9.9.91.1.1.1.1.4"
	oidSysUpTime     = "1.3.6.1.2.1.1.3"
)

// Store is the slice of the storage layer the evaluator reads rules and
// metrics from and writes events to.
type Store interface {
	ListEnabledRules(ctx context.Context) ([]models.AlertRule, error)
	ListDevices(ctx context.Context, limit int) ([]models.Device, error)
	// LatestMetricForDevice returns nil with no error when the device has
	// no metrics yet.
	LatestMetricForDevice(ctx context.Context, deviceID uint) (*models.DeviceMetric, error)
	// FindRecentEvent returns the newest event for the rule/device pair
	// with a timestamp after since, or nil when there is none.
	FindRecentEvent(ctx context.Context, ruleID, deviceID uint, since time.Time) (*models.AlertEvent, error)
	SaveEvent(ctx context.Context, event *models.AlertEvent) error
}

// Notifier receives every persisted alert event, fire-and-forget.
type Notifier interface {
	BroadcastAlert(event *models.AlertEvent)
}

// Options tune an Evaluator; zero values fall back to defaults.
type Options struct {
	Interval time.Duration // tick interval, default 60s
	// Suppression is the dedup lookback window: a rule/device pair with
	// an event inside it does not fire again. Default = Interval.
	Suppression     time.Duration
	DevicePageLimit int // device scan bound for global rules, default 1000
}

// Evaluator runs the rule evaluation loop. Per-rule failures are logged
// and isolated; only a failure to load the rule list skips a whole tick.
type Evaluator struct {
	store    Store
	notifier Notifier
	opts     Options
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds an Evaluator. The notifier may be nil.
func New(store Store, notifier Notifier, opts Options, logger zerolog.Logger) *Evaluator {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Suppression <= 0 {
		opts.Suppression = opts.Interval
	}
	if opts.DevicePageLimit <= 0 {
		opts.DevicePageLimit = 1000
	}
	return &Evaluator{
		store:    store,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "evaluator").Logger(),
	}
}

// Start launches the evaluation loop. A second Start while running is a
// warned no-op.
func (e *Evaluator) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.logger.Warn().Msg("evaluator is already running")
		return
	}
	e.running = true

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	e.logger.Info().
		Dur("interval", e.opts.Interval).
		Dur("suppression", e.opts.Suppression).
		Msg("starting alert evaluator")

	go e.run(ctx)
}

// Stop cancels the pending sleep and waits for the loop to exit.
func (e *Evaluator) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	done := e.done
	e.mu.Unlock()

	<-done
	e.logger.Info().Msg("evaluator stopped")
}

func (e *Evaluator) run(ctx context.Context) {
	defer close(e.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.evaluateAll(ctx)
			timer.Reset(e.opts.Interval)
		}
	}
}

// evaluateAll performs one tick over every enabled rule.
func (e *Evaluator) evaluateAll(ctx context.Context) {
	rules, err := e.store.ListEnabledRules(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("listing rules; skipping tick")
		return
	}

	for _, rule := range rules {
		if err := e.evaluateRule(ctx, rule); err != nil {
			e.logger.Error().Err(err).
				Uint("rule_id", rule.ID).
				Str("rule", rule.Name).
				Msg("rule evaluation failed")
		}
	}
}

// evaluateRule checks one rule against its device, or against every
// device when the rule is global.
func (e *Evaluator) evaluateRule(ctx context.Context, rule models.AlertRule) error {
	if rule.DeviceID != nil {
		return e.evaluateForDevice(ctx, rule, *rule.DeviceID)
	}

	devices, err := e.store.ListDevices(ctx, e.opts.DevicePageLimit)
	if err != nil {
		return fmt.Errorf("listing devices for global rule: %w", err)
	}
	for _, device := range devices {
		if err := e.evaluateForDevice(ctx, rule, device.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) evaluateForDevice(ctx context.Context, rule models.AlertRule, deviceID uint) error {
	metric, err := e.store.LatestMetricForDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("fetching latest metric: %w", err)
	}
	if metric == nil {
		return nil // nothing collected yet
	}

	value := metricValue(metric, rule.OID)
	if !CheckCondition(value, rule.Operator, rule.Threshold) {
		return nil
	}

	since := time.Now().Add(-e.opts.Suppression)
	recent, err := e.store.FindRecentEvent(ctx, rule.ID, deviceID, since)
	if err != nil {
		return fmt.Errorf("checking for duplicate event: %w", err)
	}
	if recent != nil {
		e.logger.Debug().
			Uint("rule_id", rule.ID).
			Uint("device_id", deviceID).
			Time("last_event", recent.Timestamp).
			Msg("alert suppressed by recent event")
		return nil
	}

	event := &models.AlertEvent{
		RuleID:   rule.ID,
		DeviceID: deviceID,
		Value:    value,
		Message:  fmt.Sprintf("Alert: %s triggered (value: %g)", rule.Name, value),
		Severity: rule.Severity,
	}
	if err := e.store.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("saving event: %w", err)
	}

	if e.notifier != nil {
		e.notifier.BroadcastAlert(event)
	}

	e.logger.Info().
		Uint("rule_id", rule.ID).
		Uint("device_id", deviceID).
		Float64("value", value).
		Str("severity", event.Severity).
		Msg(event.Message)
	return nil
}

// metricValue resolves a rule's target OID to a field of the latest
// metric row. Unknown OIDs fall back to CPU usage.
func metricValue(metric *models.DeviceMetric, oid string) float64 {
	switch {
	case strings.HasPrefix(oid, oidStorageUsed):
		return float64(metric.MemoryUsage)
	case strings.HasPrefix(oid, oidSensorValue):
		return float64(metric.Temperature)
	case strings.HasPrefix(oid, oidSysUpTime):
		return float64(metric.Uptime)
	case strings.HasPrefix(oid, oidProcessorLoad):
		return float64(metric.CPUUsage)
	default:
		return float64(metric.CPUUsage)
	}
}

// CheckCondition applies a comparison operator to a value and threshold.
// An unrecognized operator is "not triggered", never an error.
func CheckCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "==":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		return false
	}
}
