package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mzanin/switchmon/internal/models"
	"github.com/mzanin/switchmon/internal/snmp"
)

// Store is the slice of the storage layer the collector writes through.
type Store interface {
	ListDevices(ctx context.Context, limit int) ([]models.Device, error)
	UpdateDeviceStatus(ctx context.Context, deviceID uint, status models.DeviceStatus, lastSeen time.Time) error
	UpdateDeviceInfo(ctx context.Context, deviceID uint, sysDescr string) error
	SaveDeviceMetric(ctx context.Context, metric *models.DeviceMetric) error
	GetOrCreateInterface(ctx context.Context, iface *models.Interface) (*models.Interface, error)
	SaveInterfaceMetric(ctx context.Context, metric *models.InterfaceMetric) error
}

// Prober is the SNMP surface the collector polls devices with.
type Prober interface {
	GetDeviceInfo(ctx context.Context, target snmp.Target) (snmp.DeviceInfo, error)
	WalkMultiple(ctx context.Context, target snmp.Target, baseOIDs []string) map[string]snmp.Result
}

// Options tune a Collector; zero values fall back to defaults.
type Options struct {
	Interval        time.Duration // tick interval, default 300s
	Workers         int           // concurrent device polls per tick, default 10
	DevicePageLimit int           // max devices loaded per tick, default 1000
}

// Collector polls every SNMP-enabled device on a fixed interval and
// persists the normalized results. One device's failure never aborts the
// tick: failures are logged, recorded on the device's status, and the
// rest of the batch proceeds.
type Collector struct {
	store  Store
	probe  Prober
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a Collector. Zero option fields get defaults.
func New(store Store, probe Prober, opts Options, logger zerolog.Logger) *Collector {
	if opts.Interval <= 0 {
		opts.Interval = 300 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 10
	}
	if opts.DevicePageLimit <= 0 {
		opts.DevicePageLimit = 1000
	}
	return &Collector{
		store:  store,
		probe:  probe,
		opts:   opts,
		logger: logger.With().Str("component", "collector").Logger(),
	}
}

// Start launches the polling loop. Calling Start while the loop is
// already running is a no-op, logged as a warning.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.logger.Warn().Msg("collector is already running")
		return
	}
	c.running = true

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	c.logger.Info().Dur("interval", c.opts.Interval).Msg("starting collector")

	go c.run(ctx)
}

// Stop cancels the pending sleep and prevents further ticks, then waits
// for in-flight work to settle.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	done := c.done
	c.mu.Unlock()

	<-done
	c.logger.Info().Msg("collector stopped")
}

// run executes ticks back to back with an interval sleep in between.
// The next sleep starts only after the previous fan-out has fully joined,
// so ticks can never overlap.
func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	timer := time.NewTimer(0) // first tick fires immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.collectAll(ctx)
			timer.Reset(c.opts.Interval)
		}
	}
}

// collectAll performs one tick: load devices, skip opted-out ones, fan
// the rest out over a bounded worker group, and wait for every poll to
// finish. A failure to load the device list aborts this tick only.
func (c *Collector) collectAll(ctx context.Context) {
	devices, err := c.store.ListDevices(ctx, c.opts.DevicePageLimit)
	if err != nil {
		c.logger.Error().Err(err).Msg("listing devices; skipping tick")
		return
	}

	start := time.Now()

	var (
		mu        sync.Mutex
		polled    int
		failed    int
		skipped   int
		waitGroup errgroup.Group
	)
	waitGroup.SetLimit(c.opts.Workers)

	for _, device := range devices {
		if !device.SNMPEnabled {
			skipped++
			continue
		}

		device := device
		waitGroup.Go(func() error {
			err := c.collectDevice(ctx, device)

			mu.Lock()
			polled++
			if err != nil {
				failed++
			}
			mu.Unlock()

			if err != nil {
				c.logger.Error().Err(err).
					Uint("device_id", device.ID).
					Str("host", device.IP).
					Msg("device collection failed")
			}
			return nil
		})
	}
	_ = waitGroup.Wait() // per-device errors are handled above, never returned

	c.logger.Info().
		Int("polled", polled).
		Int("failed", failed).
		Int("skipped", skipped).
		Dur("elapsed", time.Since(start)).
		Msg("collection tick complete")
}

// collectDevice polls one device: device info, CPU, and interfaces, as
// three independent SNMP batches. Each batch's output is persisted as it
// arrives, so a later failure never discards earlier data. Any failure
// leaves the device in the error state.
func (c *Collector) collectDevice(ctx context.Context, device models.Device) error {
	now := time.Now()
	if err := c.store.UpdateDeviceStatus(ctx, device.ID, models.StatusCollecting, now); err != nil {
		return fmt.Errorf("marking device collecting: %w", err)
	}

	target := snmp.Target{
		Host:      device.IP,
		Port:      device.SNMPPort,
		Community: device.SNMPCommunity,
	}

	var failures []error

	// Batch 1: system group.
	var uptime int64
	info, err := c.probe.GetDeviceInfo(ctx, target)
	if err != nil {
		failures = append(failures, fmt.Errorf("device info: %w", err))
	} else {
		uptime = ParseUptime(info.SysUpTime)
		if err := c.store.UpdateDeviceInfo(ctx, device.ID, info.SysDescr); err != nil {
			failures = append(failures, fmt.Errorf("saving device info: %w", err))
		}
	}

	// Batch 2: processor load.
	cpuResults := c.probe.WalkMultiple(ctx, target, []string{OIDHrProcessorLoad})
	if err := batchErr(cpuResults); err != nil {
		failures = append(failures, fmt.Errorf("cpu metrics: %w", err))
	} else if samples := NormalizeCPU(cpuResults); len(samples) > 0 || uptime > 0 {
		metric := &models.DeviceMetric{
			DeviceID: device.ID,
			CPUUsage: AverageCPU(samples),
			Uptime:   uptime,
		}
		if err := c.store.SaveDeviceMetric(ctx, metric); err != nil {
			failures = append(failures, fmt.Errorf("saving device metric: %w", err))
		}
	}

	// Batch 3: interface table.
	ifResults := c.probe.WalkMultiple(ctx, target, InterfaceTableOIDs)
	if err := batchErr(ifResults); err != nil {
		failures = append(failures, fmt.Errorf("interface metrics: %w", err))
	} else {
		failures = append(failures, c.persistInterfaces(ctx, device.ID, NormalizeInterfaces(ifResults))...)
	}

	if len(failures) > 0 {
		if err := c.store.UpdateDeviceStatus(ctx, device.ID, models.StatusError, now); err != nil {
			failures = append(failures, fmt.Errorf("marking device error: %w", err))
		}
		return errors.Join(failures...)
	}

	if err := c.store.UpdateDeviceStatus(ctx, device.ID, models.StatusOnline, now); err != nil {
		return fmt.Errorf("marking device online: %w", err)
	}
	return nil
}

// persistInterfaces stores one InterfaceMetric row per normalized record,
// creating interface rows lazily for names not seen before. Row-level
// storage failures are collected, not fatal to the remaining rows.
func (c *Collector) persistInterfaces(ctx context.Context, deviceID uint, records []InterfaceRecord) []error {
	var failures []error

	for _, rec := range records {
		iface, err := c.store.GetOrCreateInterface(ctx, &models.Interface{
			DeviceID:    deviceID,
			Name:        rec.Name,
			IfIndex:     rec.IfIndex,
			AdminStatus: rec.AdminUp,
			OperStatus:  rec.OperUp,
		})
		if err != nil {
			failures = append(failures, fmt.Errorf("interface %q: %w", rec.Name, err))
			continue
		}

		metric := &models.InterfaceMetric{
			InterfaceID: iface.ID,
			BytesIn:     rec.BytesIn,
			BytesOut:    rec.BytesOut,
			ErrorsIn:    rec.ErrorsIn,
			ErrorsOut:   rec.ErrorsOut,
			DiscardsIn:  rec.DiscardsIn,
			DiscardsOut: rec.DiscardsOut,
		}
		if err := c.store.SaveInterfaceMetric(ctx, metric); err != nil {
			failures = append(failures, fmt.Errorf("interface %q metric: %w", rec.Name, err))
		}
	}
	return failures
}

// batchErr reports a batch as failed only when every result in it carries
// an error; mixed batches are usable and handled per-OID downstream.
func batchErr(results map[string]snmp.Result) error {
	if len(results) == 0 {
		return nil
	}
	var first error
	for _, res := range results {
		if res.Err == nil {
			return nil
		}
		if first == nil {
			first = res.Err
		}
	}
	return first
}
