package tr069

import (
	"math"
	"os"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"

	"github.com/ispbillingai/acs-sub000/models"
)

type statusInfo struct {
	Hostname       string  `json:"hostname"`
	OS             string  `json:"os"`
	Uptime         uint64  `json:"uptime"`
	CPUUsage       float64 `json:"cpu_usage"`
	CPUCores       int     `json:"cpu_cores"`
	MemTotal       uint64  `json:"mem_total"`
	MemUsed        uint64  `json:"mem_used"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	DiskTotal      uint64  `json:"disk_total"`
	DiskUsed       uint64  `json:"disk_used"`
	DiskPercent    float64 `json:"disk_percent"`
	ProcessMem     uint64  `json:"process_mem"`
	ProcessCPU     float64 `json:"process_cpu"`
	NumGoroutine   int     `json:"num_goroutine"`
	GoVersion      string  `json:"go_version"`

	DeviceTotal    int64 `json:"device_total"`
	DeviceOnline   int64 `json:"device_online"`
	TaskPending    int64 `json:"task_pending"`
	TaskInProgress int64 `json:"task_in_progress"`
	TaskFailed     int64 `json:"task_failed"`
}

// StatusIndex reports process and host vitals plus fleet counters. It is
// unauthenticated and safe to poll from a load balancer health check.
func (s *Tr069Server) StatusIndex(c echo.Context) error {
	info := statusInfo{}

	info.Hostname, _ = os.Hostname()
	info.GoVersion = runtime.Version()
	info.NumGoroutine = runtime.NumGoroutine()
	info.CPUCores = runtime.NumCPU()
	info.OS = runtime.GOOS + "/" + runtime.GOARCH

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		info.CPUUsage = math.Round(cpuPercent[0]*100) / 100
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.MemTotal = memInfo.Total
		info.MemUsed = memInfo.Used
		info.MemUsedPercent = math.Round(memInfo.UsedPercent*100) / 100
	}
	if diskInfo, err := disk.Usage("/"); err == nil {
		info.DiskTotal = diskInfo.Total
		info.DiskUsed = diskInfo.Used
		info.DiskPercent = math.Round(diskInfo.UsedPercent*100) / 100
	}
	if hostInfo, err := host.Info(); err == nil {
		info.Uptime = hostInfo.Uptime
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if pcpu, err := p.CPUPercent(); err == nil {
			info.ProcessCPU = math.Round(pcpu*100) / 100
		}
		if pmem, err := p.MemoryInfo(); err == nil {
			info.ProcessMem = pmem.RSS
		}
	}

	db := s.app.DB()
	db.Model(&models.Device{}).Count(&info.DeviceTotal)
	db.Model(&models.Device{}).
		Where("last_inform > ?", time.Now().Add(-models.OnlineWindow)).
		Count(&info.DeviceOnline)
	db.Model(&models.Task{}).Where("status = ?", models.TaskPending).Count(&info.TaskPending)
	db.Model(&models.Task{}).Where("status = ?", models.TaskInProgress).Count(&info.TaskInProgress)
	db.Model(&models.Task{}).Where("status = ?", models.TaskFailed).Count(&info.TaskFailed)

	return c.JSON(200, info)
}
