// Package store is the persistence layer for switchmon. It defines the
// Store interface consumed by the collector, evaluator, and API layers,
// and implements it on GORM with SQLite.
package store

import (
	"context"
	"time"

	"github.com/mzanin/switchmon/internal/models"
)

// DeviceFilter narrows ListDevicesFiltered results. Zero fields match all.
type DeviceFilter struct {
	Vendor string
	Status string
	Offset int
	Limit  int
}

// Store is the full storage surface. Getters returning a pointer yield
// (nil, nil) when the row does not exist; callers decide whether absence
// is an error.
type Store interface {
	// ── Devices ──────────────────────────────────────────────────────────────
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id uint) (*models.Device, error)
	GetDeviceByIP(ctx context.Context, ip string) (*models.Device, error)
	GetDeviceByHostname(ctx context.Context, hostname string) (*models.Device, error)
	ListDevices(ctx context.Context, limit int) ([]models.Device, error)
	ListDevicesFiltered(ctx context.Context, filter DeviceFilter) ([]models.Device, error)
	UpdateDevice(ctx context.Context, device *models.Device) error
	DeleteDevice(ctx context.Context, id uint) error
	UpdateDeviceStatus(ctx context.Context, deviceID uint, status models.DeviceStatus, lastSeen time.Time) error
	UpdateDeviceInfo(ctx context.Context, deviceID uint, sysDescr string) error

	// ── Interfaces ───────────────────────────────────────────────────────────
	CreateInterface(ctx context.Context, iface *models.Interface) error
	GetInterface(ctx context.Context, id uint) (*models.Interface, error)
	GetInterfaceByName(ctx context.Context, deviceID uint, name string) (*models.Interface, error)
	ListInterfaces(ctx context.Context, deviceID uint) ([]models.Interface, error)
	// GetOrCreateInterface finds the row matching (DeviceID, Name) and
	// refreshes its status fields, or creates it when absent.
	GetOrCreateInterface(ctx context.Context, iface *models.Interface) (*models.Interface, error)

	// ── Metrics (append-only) ────────────────────────────────────────────────
	SaveDeviceMetric(ctx context.Context, metric *models.DeviceMetric) error
	ListDeviceMetrics(ctx context.Context, deviceID uint, since, until *time.Time, limit int) ([]models.DeviceMetric, error)
	LatestMetricForDevice(ctx context.Context, deviceID uint) (*models.DeviceMetric, error)
	SaveInterfaceMetric(ctx context.Context, metric *models.InterfaceMetric) error
	ListInterfaceMetrics(ctx context.Context, interfaceID uint, limit int) ([]models.InterfaceMetric, error)

	// ── Alert rules & events ─────────────────────────────────────────────────
	CreateRule(ctx context.Context, rule *models.AlertRule) error
	ListRules(ctx context.Context) ([]models.AlertRule, error)
	ListEnabledRules(ctx context.Context) ([]models.AlertRule, error)
	DeleteRule(ctx context.Context, id uint) error
	SaveEvent(ctx context.Context, event *models.AlertEvent) error
	ListEvents(ctx context.Context, limit int) ([]models.AlertEvent, error)
	FindRecentEvent(ctx context.Context, ruleID, deviceID uint, since time.Time) (*models.AlertEvent, error)
	AcknowledgeEvent(ctx context.Context, eventID uint) (*models.AlertEvent, error)
}
