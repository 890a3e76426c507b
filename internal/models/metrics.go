// Package models defines GORM data models for switchmon.
package models

import "time"

// DeviceMetric stores one point-in-time telemetry sample for a device.
// Rows are append-only: the collector only ever inserts, and nothing
// except a device cascade ever deletes.
type DeviceMetric struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"index;autoCreateTime" json:"timestamp"`
	DeviceID  uint      `gorm:"index;not null" json:"device_id"`

	CPUUsage    int   `json:"cpu_usage"`    // percent 0-100, averaged across cores
	MemoryUsage int   `json:"memory_usage"` // percent 0-100
	Temperature int   `json:"temperature"`  // Celsius
	Uptime      int64 `json:"uptime"`       // seconds
}

// InterfaceMetric stores one point-in-time counter sample for an interface.
// Append-only, like DeviceMetric.
type InterfaceMetric struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Timestamp   time.Time `gorm:"index;autoCreateTime" json:"timestamp"`
	InterfaceID uint      `gorm:"index;not null" json:"interface_id"`

	BytesIn     int64 `json:"bytes_in"`
	BytesOut    int64 `json:"bytes_out"`
	ErrorsIn    int64 `json:"errors_in"`
	ErrorsOut   int64 `json:"errors_out"`
	DiscardsIn  int64 `json:"discards_in"`
	DiscardsOut int64 `json:"discards_out"`
}
