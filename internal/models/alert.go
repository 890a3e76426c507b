// Package models defines GORM data models for switchmon.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Severity levels used by alert rules and the events they produce.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AlertRule defines a threshold condition evaluated against collected
// metrics. DeviceID nil means the rule is global and applies to every
// device. Rules are managed through the API and read-only to the
// evaluator.
type AlertRule struct {
	gorm.Model

	Name     string `gorm:"not null" json:"name"`
	DeviceID *uint  `gorm:"index" json:"device_id,omitempty"` // nil = global

	OID       string  `gorm:"not null" json:"oid"`
	Operator  string  `gorm:"not null" json:"operator"` // > < == >= <=
	Threshold float64 `gorm:"not null" json:"threshold"`

	Severity string `gorm:"default:'warning'" json:"severity"`
	Enabled  bool   `gorm:"default:true" json:"enabled"`
}

// AlertEvent records a single firing of a rule. Immutable except for
// Acknowledged, which operators flip via the API.
type AlertEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"index;autoCreateTime" json:"timestamp"`

	RuleID   uint `gorm:"index;not null" json:"rule_id"`
	DeviceID uint `gorm:"index;not null" json:"device_id"`

	Value        float64 `gorm:"not null" json:"value"`
	Message      string  `gorm:"not null" json:"message"`
	Severity     string  `gorm:"not null" json:"severity"`
	Acknowledged bool    `gorm:"default:false" json:"acknowledged"`
	Extra        string  `gorm:"type:text" json:"extra,omitempty"` // free-form JSON payload
}
