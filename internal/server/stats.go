package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// handleSystemStats reports the monitoring server's own health so a
// dashboard can tell poller saturation apart from device problems.
//
//	GET /api/v1/system/stats
func (a *API) handleSystemStats(c *gin.Context) {
	stats := gin.H{
		"goroutines": runtime.NumGoroutine(),
		"ws_clients": a.hub.ClientCount(),
		"time":       time.Now().UTC(),
	}

	if pcts, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pcts) > 0 {
		stats["cpu_percent"] = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["mem_percent"] = vm.UsedPercent
	}
	if up, err := host.Uptime(); err == nil {
		stats["host_uptime"] = up
	}

	c.JSON(http.StatusOK, stats)
}
