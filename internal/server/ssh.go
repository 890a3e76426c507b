package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/ssh"

	"github.com/mzanin/switchmon/internal/models"
)

// SSHClient wraps an authenticated SSH connection to a managed device.
// It is the fallback management path for boxes where SNMP alone is not
// enough (config pulls, manual remediation).
type SSHClient struct {
	client *ssh.Client
	host   string
}

// DialDevice opens an SSH connection using the device's stored credentials.
func DialDevice(device *models.Device) (*SSHClient, error) {
	if device.SSHUsername == "" {
		return nil, fmt.Errorf("device %s has no SSH credentials", device.Hostname)
	}

	cfg := &ssh.ClientConfig{
		User:            device.SSHUsername,
		Auth:            []ssh.AuthMethod{ssh.Password(device.SSHPassword)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: use known_hosts in production
		Timeout:         15 * time.Second,
	}

	addr := device.IP
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}
	return &SSHClient{client: client, host: device.IP}, nil
}

// Close cleanly shuts down the SSH connection.
func (s *SSHClient) Close() error { return s.client.Close() }

// Run executes a command and returns combined stdout+stderr.
func (s *SSHClient) Run(cmd string) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	defer sess.Close()

	out, err := sess.CombinedOutput(cmd)
	return string(out), err
}

// handleDeviceExec runs a single command on the device over SSH.
//
//	POST /api/v1/devices/:id/exec
//	Body: { "command": "show version" }
func (a *API) handleDeviceExec(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command required"})
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

	client, err := DialDevice(device)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer client.Close()

	out, err := client.Run(body.Command)
	if err != nil {
		a.logger.Warn().Err(err).Str("host", device.IP).Str("command", body.Command).
			Msg("ssh command failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "output": out})
		return
	}

	c.JSON(http.StatusOK, gin.H{"output": out})
}
