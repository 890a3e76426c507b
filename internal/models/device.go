// Package models defines GORM data models for switchmon.
package models

import (
	"time"

	"gorm.io/gorm"
)

// DeviceStatus reflects the outcome of the most recent poll attempt.
type DeviceStatus string

const (
	StatusUp         DeviceStatus = "up"
	StatusDown       DeviceStatus = "down"
	StatusUnknown    DeviceStatus = "unknown"
	StatusCollecting DeviceStatus = "collecting"
	StatusOnline     DeviceStatus = "online"
	StatusError      DeviceStatus = "error"
)

// DeviceVendor classifies a device for vendor-specific handling.
type DeviceVendor string

const (
	VendorCisco  DeviceVendor = "cisco"
	VendorHuawei DeviceVendor = "huawei"
	VendorOther  DeviceVendor = "other"
)

// Device represents a monitored switch or router.
// Status and LastSeen are written by the collector on every poll attempt;
// everything else is managed through the REST API.
type Device struct {
	gorm.Model

	// Identity — both unique across all devices.
	Hostname string `gorm:"uniqueIndex;not null" json:"hostname"`
	IP       string `gorm:"uniqueIndex;not null" json:"ip"`

	// Classification
	Vendor      DeviceVendor `gorm:"default:'other'" json:"vendor"`
	DeviceModel string       `gorm:"column:model" json:"model"`
	OSVersion   string       `json:"os_version"`
	SysDescr    string       `json:"sys_descr"`

	// SNMP connection parameters. SNMPEnabled is the collection opt-out:
	// the collector never touches a device where it is false.
	SNMPCommunity string `json:"snmp_community"`
	SNMPPort      uint16 `gorm:"default:161" json:"snmp_port"`
	SNMPEnabled   bool   `gorm:"default:true" json:"snmp_enabled"`

	// SSH fallback management credentials (optional).
	SSHUsername string `json:"ssh_username,omitempty"`
	SSHPassword string `json:"-"`

	// Lifecycle
	Status   DeviceStatus `gorm:"default:'unknown'" json:"status"`
	LastSeen *time.Time   `json:"last_seen,omitempty"`

	// Relationships
	Interfaces []Interface `gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE" json:"interfaces,omitempty"`
}

// Interface represents a single port on a device.
// Name is unique within the owning device; rows are created either
// explicitly via the API or lazily when a metric arrives for an
// interface name the ingest path has not seen before.
type Interface struct {
	gorm.Model

	DeviceID uint   `gorm:"uniqueIndex:idx_device_ifname;not null" json:"device_id"`
	Name     string `gorm:"uniqueIndex:idx_device_ifname;not null" json:"name"`

	Description string `json:"description"`
	IfIndex     int    `gorm:"not null" json:"if_index"`
	MACAddress  string `json:"mac_address"`
	MTU         int    `json:"mtu"`
	Speed       int64  `json:"speed"` // bps
	AdminStatus bool   `gorm:"default:true" json:"admin_status"`
	OperStatus  bool   `gorm:"default:false" json:"oper_status"`
}
