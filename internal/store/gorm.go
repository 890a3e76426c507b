package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mzanin/switchmon/internal/models"
)

// gormStore implements Store on a GORM handle. The handle is injected at
// construction; there is no package-level database state.
type gormStore struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path, runs AutoMigrate,
// and returns a ready Store.
func Open(path string) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return New(db)
}

// New wraps an existing GORM handle, running AutoMigrate first. Tests use
// this with an in-memory SQLite handle.
func New(db *gorm.DB) (Store, error) {
	err := db.AutoMigrate(
		&models.Device{},
		&models.Interface{},
		&models.DeviceMetric{},
		&models.InterfaceMetric{},
		&models.AlertRule{},
		&models.AlertEvent{},
	)
	if err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return &gormStore{db: db}, nil
}

// ─── Devices ─────────────────────────────────────────────────────────────────

func (s *gormStore) CreateDevice(ctx context.Context, device *models.Device) error {
	return s.db.WithContext(ctx).Create(device).Error
}

func (s *gormStore) GetDevice(ctx context.Context, id uint) (*models.Device, error) {
	var device models.Device
	err := s.db.WithContext(ctx).First(&device, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *gormStore) GetDeviceByIP(ctx context.Context, ip string) (*models.Device, error) {
	var device models.Device
	err := s.db.WithContext(ctx).Where("ip = ?", ip).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *gormStore) GetDeviceByHostname(ctx context.Context, hostname string) (*models.Device, error) {
	var device models.Device
	err := s.db.WithContext(ctx).Where("hostname = ?", hostname).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *gormStore) ListDevices(ctx context.Context, limit int) ([]models.Device, error) {
	return s.ListDevicesFiltered(ctx, DeviceFilter{Limit: limit})
}

func (s *gormStore) ListDevicesFiltered(ctx context.Context, filter DeviceFilter) ([]models.Device, error) {
	query := s.db.WithContext(ctx).Model(&models.Device{})
	if filter.Vendor != "" {
		query = query.Where("vendor = ?", filter.Vendor)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var devices []models.Device
	if err := query.Order("id").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *gormStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	return s.db.WithContext(ctx).Save(device).Error
}

func (s *gormStore) DeleteDevice(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Device{}, id).Error
}

func (s *gormStore) UpdateDeviceStatus(
	ctx context.Context, deviceID uint, status models.DeviceStatus, lastSeen time.Time,
) error {
	return s.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", deviceID).
		Updates(map[string]any{
			"status":    status,
			"last_seen": lastSeen,
		}).Error
}

// UpdateDeviceInfo refreshes the description a device reported about
// itself. An empty report leaves the stored value untouched.
func (s *gormStore) UpdateDeviceInfo(ctx context.Context, deviceID uint, sysDescr string) error {
	if sysDescr == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", deviceID).
		Update("sys_descr", firstLine(sysDescr)).Error
}

// ─── Interfaces ──────────────────────────────────────────────────────────────

func (s *gormStore) CreateInterface(ctx context.Context, iface *models.Interface) error {
	return s.db.WithContext(ctx).Create(iface).Error
}

func (s *gormStore) GetInterface(ctx context.Context, id uint) (*models.Interface, error) {
	var iface models.Interface
	err := s.db.WithContext(ctx).First(&iface, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &iface, nil
}

func (s *gormStore) GetInterfaceByName(ctx context.Context, deviceID uint, name string) (*models.Interface, error) {
	var iface models.Interface
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND name = ?", deviceID, name).
		First(&iface).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &iface, nil
}

func (s *gormStore) ListInterfaces(ctx context.Context, deviceID uint) ([]models.Interface, error) {
	var ifaces []models.Interface
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("if_index").
		Find(&ifaces).Error
	if err != nil {
		return nil, err
	}
	return ifaces, nil
}

func (s *gormStore) GetOrCreateInterface(ctx context.Context, iface *models.Interface) (*models.Interface, error) {
	existing, err := s.GetInterfaceByName(ctx, iface.DeviceID, iface.Name)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if err := s.db.WithContext(ctx).Create(iface).Error; err != nil {
			return nil, err
		}
		return iface, nil
	}

	// Refresh the mutable fields the poll just observed.
	err = s.db.WithContext(ctx).
		Model(existing).
		Updates(map[string]any{
			"if_index":     iface.IfIndex,
			"admin_status": iface.AdminStatus,
			"oper_status":  iface.OperStatus,
		}).Error
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// ─── Metrics ─────────────────────────────────────────────────────────────────

func (s *gormStore) SaveDeviceMetric(ctx context.Context, metric *models.DeviceMetric) error {
	return s.db.WithContext(ctx).Create(metric).Error
}

func (s *gormStore) ListDeviceMetrics(
	ctx context.Context, deviceID uint, since, until *time.Time, limit int,
) ([]models.DeviceMetric, error) {
	query := s.db.WithContext(ctx).Where("device_id = ?", deviceID)
	if since != nil {
		query = query.Where("timestamp >= ?", *since)
	}
	if until != nil {
		query = query.Where("timestamp <= ?", *until)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var metrics []models.DeviceMetric
	if err := query.Order("timestamp desc").Find(&metrics).Error; err != nil {
		return nil, err
	}
	return metrics, nil
}

func (s *gormStore) LatestMetricForDevice(ctx context.Context, deviceID uint) (*models.DeviceMetric, error) {
	var metric models.DeviceMetric
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp desc").
		Order("id desc").
		First(&metric).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &metric, nil
}

func (s *gormStore) SaveInterfaceMetric(ctx context.Context, metric *models.InterfaceMetric) error {
	return s.db.WithContext(ctx).Create(metric).Error
}

func (s *gormStore) ListInterfaceMetrics(
	ctx context.Context, interfaceID uint, limit int,
) ([]models.InterfaceMetric, error) {
	query := s.db.WithContext(ctx).Where("interface_id = ?", interfaceID)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var metrics []models.InterfaceMetric
	if err := query.Order("timestamp desc").Find(&metrics).Error; err != nil {
		return nil, err
	}
	return metrics, nil
}

// ─── Alert rules & events ────────────────────────────────────────────────────

func (s *gormStore) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	return s.db.WithContext(ctx).Create(rule).Error
}

func (s *gormStore) ListRules(ctx context.Context) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	if err := s.db.WithContext(ctx).Order("id").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *gormStore) ListEnabledRules(ctx context.Context) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("id").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *gormStore) DeleteRule(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.AlertRule{}, id).Error
}

func (s *gormStore) SaveEvent(ctx context.Context, event *models.AlertEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *gormStore) ListEvents(ctx context.Context, limit int) ([]models.AlertEvent, error) {
	query := s.db.WithContext(ctx).Order("timestamp desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []models.AlertEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *gormStore) FindRecentEvent(
	ctx context.Context, ruleID, deviceID uint, since time.Time,
) (*models.AlertEvent, error) {
	var event models.AlertEvent
	err := s.db.WithContext(ctx).
		Where("rule_id = ? AND device_id = ? AND timestamp > ?", ruleID, deviceID, since).
		Order("timestamp desc").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *gormStore) AcknowledgeEvent(ctx context.Context, eventID uint) (*models.AlertEvent, error) {
	var event models.AlertEvent
	err := s.db.WithContext(ctx).First(&event, eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&event).Update("acknowledged", true).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// firstLine trims a multi-line SNMP string down to its first line.
func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return s[:i]
		}
	}
	return s
}
