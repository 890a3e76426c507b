package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mzanin/switchmon/internal/config"
	"github.com/mzanin/switchmon/internal/models"
	"github.com/mzanin/switchmon/internal/store"
)

// API holds the handler state: the storage handle, the alert hub, and
// the credentials from config. Everything is injected at construction.
type API struct {
	store  store.Store
	hub    *AlertHub
	logger zerolog.Logger

	jwtSecret []byte
	adminUser string
	adminPass string
}

// NewAPI wires the REST layer.
func NewAPI(st store.Store, hub *AlertHub, cfg *config.Config, logger zerolog.Logger) *API {
	return &API{
		store:     st,
		hub:       hub,
		logger:    logger.With().Str("component", "api").Logger(),
		jwtSecret: []byte(cfg.JWTSecret),
		adminUser: cfg.AdminUser,
		adminPass: cfg.AdminPass,
	}
}

// RegisterRoutes wires all API routes onto the engine.
//
//	Public:          POST /api/v1/login, GET /api/v1/health, GET /ws/alerts
//	JWT-protected:   everything else under /api/v1
func (a *API) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")

	api.POST("/login", a.handleLogin)
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	r.GET("/ws/alerts", a.hub.Handle)

	auth := api.Group("/", a.authMiddleware())
	{
		auth.GET("/system/stats", a.handleSystemStats)

		auth.POST("/devices", a.handleDeviceCreate)
		auth.GET("/devices", a.handleDeviceList)
		auth.GET("/devices/:id", a.handleDeviceGet)
		auth.PUT("/devices/:id", a.handleDeviceUpdate)
		auth.DELETE("/devices/:id", a.handleDeviceDelete)
		auth.POST("/devices/:id/exec", a.handleDeviceExec)

		auth.GET("/devices/:id/metrics", a.handleDeviceMetricList)
		auth.POST("/devices/:id/metrics", a.handleDeviceMetricCreate)
		auth.GET("/devices/:id/interfaces", a.handleInterfaceList)
		auth.POST("/devices/:id/interfaces", a.handleInterfaceCreate)
		auth.GET("/interfaces/:id/metrics", a.handleInterfaceMetricList)

		auth.POST("/alerts/rules", a.handleRuleCreate)
		auth.GET("/alerts/rules", a.handleRuleList)
		auth.DELETE("/alerts/rules/:id", a.handleRuleDelete)
		auth.GET("/alerts/events", a.handleEventList)
		auth.POST("/alerts/events/:id/ack", a.handleEventAck)
	}
}

// pathID parses the :id path parameter; on failure it writes the 400
// response itself and reports false.
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// ── Devices ──────────────────────────────────────────────────────────────────

type devicePayload struct {
	Hostname      string              `json:"hostname" binding:"required"`
	IP            string              `json:"ip" binding:"required"`
	Vendor        models.DeviceVendor `json:"vendor"`
	Model         string              `json:"model"`
	OSVersion     string              `json:"os_version"`
	SNMPCommunity string              `json:"snmp_community"`
	SNMPPort      uint16              `json:"snmp_port"`
	SNMPEnabled   *bool               `json:"snmp_enabled"`
	SSHUsername   string              `json:"ssh_username"`
	SSHPassword   string              `json:"ssh_password"`
}

func (a *API) handleDeviceCreate(c *gin.Context) {
	var body devicePayload
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if existing, err := a.store.GetDeviceByIP(ctx, body.IP); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	} else if existing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device with this IP already exists"})
		return
	}
	if existing, err := a.store.GetDeviceByHostname(ctx, body.Hostname); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	} else if existing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device with this hostname already exists"})
		return
	}

	device := models.Device{
		Hostname:      body.Hostname,
		IP:            body.IP,
		Vendor:        body.Vendor,
		DeviceModel:   body.Model,
		OSVersion:     body.OSVersion,
		SNMPCommunity: body.SNMPCommunity,
		SNMPPort:      body.SNMPPort,
		SNMPEnabled:   true,
		SSHUsername:   body.SSHUsername,
		SSHPassword:   body.SSHPassword,
		Status:        models.StatusUnknown,
	}
	if body.Vendor == "" {
		device.Vendor = models.VendorOther
	}
	if body.SNMPPort == 0 {
		device.SNMPPort = 161
	}
	if body.SNMPEnabled != nil {
		device.SNMPEnabled = *body.SNMPEnabled
	}

	if err := a.store.CreateDevice(ctx, &device); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (a *API) handleDeviceList(c *gin.Context) {
	filter := store.DeviceFilter{
		Vendor: c.Query("vendor"),
		Status: c.Query("status"),
		Offset: intQuery(c, "skip", 0),
		Limit:  intQuery(c, "limit", 100),
	}

	devices, err := a.store.ListDevicesFiltered(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (a *API) handleDeviceGet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	device, err := a.store.GetDevice(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if device == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, device)
}

func (a *API) handleDeviceUpdate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		Hostname      *string              `json:"hostname"`
		IP            *string              `json:"ip"`
		Vendor        *models.DeviceVendor `json:"vendor"`
		Model         *string              `json:"model"`
		OSVersion     *string              `json:"os_version"`
		SNMPCommunity *string              `json:"snmp_community"`
		SNMPPort      *uint16              `json:"snmp_port"`
		SNMPEnabled   *bool                `json:"snmp_enabled"`
		SSHUsername   *string              `json:"ssh_username"`
		SSHPassword   *string              `json:"ssh_password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	device, err := a.store.GetDevice(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if device == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	// Uniqueness checks against other rows when identity fields change.
	if body.IP != nil && *body.IP != device.IP {
		other, err := a.store.GetDeviceByIP(ctx, *body.IP)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if other != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "another device with this IP already exists"})
			return
		}
		device.IP = *body.IP
	}
	if body.Hostname != nil && *body.Hostname != device.Hostname {
		other, err := a.store.GetDeviceByHostname(ctx, *body.Hostname)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if other != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "another device with this hostname already exists"})
			return
		}
		device.Hostname = *body.Hostname
	}

	if body.Vendor != nil {
		device.Vendor = *body.Vendor
	}
	if body.Model != nil {
		device.DeviceModel = *body.Model
	}
	if body.OSVersion != nil {
		device.OSVersion = *body.OSVersion
	}
	if body.SNMPCommunity != nil {
		device.SNMPCommunity = *body.SNMPCommunity
	}
	if body.SNMPPort != nil {
		device.SNMPPort = *body.SNMPPort
	}
	if body.SNMPEnabled != nil {
		device.SNMPEnabled = *body.SNMPEnabled
	}
	if body.SSHUsername != nil {
		device.SSHUsername = *body.SSHUsername
	}
	if body.SSHPassword != nil {
		device.SSHPassword = *body.SSHPassword
	}

	if err := a.store.UpdateDevice(ctx, device); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, device)
}

func (a *API) handleDeviceDelete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	device, err := a.store.GetDevice(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if device == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	if err := a.store.DeleteDevice(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ── Device metrics ───────────────────────────────────────────────────────────

func (a *API) handleDeviceMetricList(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if notFound := a.requireDevice(c, id); notFound {
		return
	}

	since := timeQuery(c, "start_time")
	until := timeQuery(c, "end_time")
	limit := intQuery(c, "limit", 100)

	metrics, err := a.store.ListDeviceMetrics(ctx, id, since, until, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (a *API) handleDeviceMetricCreate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if notFound := a.requireDevice(c, id); notFound {
		return
	}

	var body struct {
		CPUUsage    int   `json:"cpu_usage"`
		MemoryUsage int   `json:"memory_usage"`
		Temperature int   `json:"temperature"`
		Uptime      int64 `json:"uptime"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metric := models.DeviceMetric{
		DeviceID:    id,
		CPUUsage:    body.CPUUsage,
		MemoryUsage: body.MemoryUsage,
		Temperature: body.Temperature,
		Uptime:      body.Uptime,
	}
	if err := a.store.SaveDeviceMetric(c.Request.Context(), &metric); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, metric)
}

// ── Interfaces ───────────────────────────────────────────────────────────────

func (a *API) handleInterfaceList(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if notFound := a.requireDevice(c, id); notFound {
		return
	}

	ifaces, err := a.store.ListInterfaces(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ifaces)
}

func (a *API) handleInterfaceCreate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if notFound := a.requireDevice(c, id); notFound {
		return
	}

	var body struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		IfIndex     int    `json:"if_index"`
		MACAddress  string `json:"mac_address"`
		MTU         int    `json:"mtu"`
		Speed       int64  `json:"speed"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	existing, err := a.store.GetInterfaceByName(ctx, id, body.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if existing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interface with this name already exists for this device"})
		return
	}

	iface := models.Interface{
		DeviceID:    id,
		Name:        body.Name,
		Description: body.Description,
		IfIndex:     body.IfIndex,
		MACAddress:  body.MACAddress,
		MTU:         body.MTU,
		Speed:       body.Speed,
	}
	if err := a.store.CreateInterface(ctx, &iface); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, iface)
}

func (a *API) handleInterfaceMetricList(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	iface, err := a.store.GetInterface(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if iface == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "interface not found"})
		return
	}

	metrics, err := a.store.ListInterfaceMetrics(ctx, id, intQuery(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// ── Alert rules & events ─────────────────────────────────────────────────────

func (a *API) handleRuleCreate(c *gin.Context) {
	var body struct {
		Name      string  `json:"name" binding:"required"`
		DeviceID  *uint   `json:"device_id"`
		OID       string  `json:"oid" binding:"required"`
		Operator  string  `json:"operator" binding:"required"`
		Threshold float64 `json:"threshold"`
		Severity  string  `json:"severity"`
		Enabled   *bool   `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := models.AlertRule{
		Name:      body.Name,
		DeviceID:  body.DeviceID,
		OID:       body.OID,
		Operator:  body.Operator,
		Threshold: body.Threshold,
		Severity:  body.Severity,
		Enabled:   true,
	}
	if rule.Severity == "" {
		rule.Severity = models.SeverityWarning
	}
	if body.Enabled != nil {
		rule.Enabled = *body.Enabled
	}

	if err := a.store.CreateRule(c.Request.Context(), &rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (a *API) handleRuleList(c *gin.Context) {
	rules, err := a.store.ListRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (a *API) handleRuleDelete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := a.store.DeleteRule(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleEventList(c *gin.Context) {
	events, err := a.store.ListEvents(c.Request.Context(), intQuery(c, "limit", 200))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (a *API) handleEventAck(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	event, err := a.store.AcknowledgeEvent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "event_id": event.ID})
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// requireDevice writes a 404/500 response and reports true when the
// device does not exist or the lookup failed.
func (a *API) requireDevice(c *gin.Context, id uint) bool {
	device, err := a.store.GetDevice(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return true
	}
	if device == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return true
	}
	return false
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func timeQuery(c *gin.Context, name string) *time.Time {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
