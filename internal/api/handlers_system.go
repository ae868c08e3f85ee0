package api

import (
	"errors"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/luke-wagner/PlantCare-Monitor/internal/apiresp"
	"github.com/luke-wagner/PlantCare-Monitor/internal/collector"
	"github.com/luke-wagner/PlantCare-Monitor/internal/logger"
	"github.com/luke-wagner/PlantCare-Monitor/internal/version"
)

func (s *Server) handleCollectStatus(c *gin.Context) {
	apiresp.OK(c, s.collector.Status())
}

// handleCollectTrigger queues a run; ?wait=true runs it inline and returns the result
func (s *Server) handleCollectTrigger(c *gin.Context) {
	if c.Query("wait") == "true" || c.Query("wait") == "1" {
		run, err := s.collector.Run(c.Request.Context())
		if err != nil && (errors.Is(err, collector.ErrRunInProgress) || run.ID == "") {
			failErr(c, err)
			return
		}
		apiresp.OK(c, run)
		return
	}
	apiresp.OK(c, gin.H{"queued": s.collector.Trigger()})
}

func (s *Server) handleCollectRuns(c *gin.Context) {
	runs, err := s.store.ListRuns(queryLimit(c, 20))
	if err != nil {
		failErr(c, err)
		return
	}
	apiresp.OK(c, gin.H{"runs": runs})
}

func (s *Server) handleMQTTStatus(c *gin.Context) {
	if s.mqtt == nil {
		apiresp.OK(c, gin.H{"enabled": false, "connected": false})
		return
	}
	st, err := s.mqtt.GetStatus()
	if err != nil {
		failErr(c, err)
		return
	}
	apiresp.OK(c, gin.H{"enabled": true, "status": st})
}

func (s *Server) handleMQTTLogs(c *gin.Context) {
	logs, err := s.store.ListMQTTLogs(queryLimit(c, 100))
	if err != nil {
		failErr(c, err)
		return
	}
	apiresp.OK(c, gin.H{"logs": logs})
}

func (s *Server) handleSystemInfo(c *gin.Context) {
	cpuUsage := 0.0
	if pct, err := cpu.Percent(500*time.Millisecond, false); err == nil && len(pct) > 0 {
		cpuUsage = pct[0]
	}
	memoryUsage := 0.0
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		memoryUsage = vm.UsedPercent
	}
	uptimeSec := uint64(0)
	if up, err := host.Uptime(); err == nil {
		uptimeSec = up
	}
	bootTime := ""
	if bt, err := host.BootTime(); err == nil && bt > 0 {
		bootTime = time.Unix(int64(bt), 0).Format(time.RFC3339)
	}

	s.cfgMu.RLock()
	deviceID := s.config.Device.ID
	dbPath := s.config.Database.Path
	s.cfgMu.RUnlock()

	diskUsage := 0.0
	if du, err := disk.Usage("/"); err == nil && du != nil {
		diskUsage = du.UsedPercent
	}
	plants, _ := s.store.ListPlants()
	hostname, _ := os.Hostname()

	apiresp.OK(c, gin.H{
		"hostname":     hostname,
		"device_id":    deviceID,
		"version":      version.Version,
		"commit":       version.Commit,
		"build_time":   version.BuildTime,
		"go_version":   runtime.Version(),
		"uptime":       uptimeSec,
		"boot_time":    bootTime,
		"cpu_usage":    cpuUsage,
		"memory_usage": memoryUsage,
		"disk_usage":   diskUsage,
		"database":     dbPath,
		"log_path":     logger.CurrentLogPath(),
		"plants":       len(plants),
		"ws_clients":   s.hub.Count(),
	})
}
