package handlers

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core/db"
	"github.com/zuchzub/vcplayer/pkg/lang"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
)

// AppStats holds both process and system info.
type AppStats struct {
	Uptime          string
	ProcessID       int32
	NumGoroutines   int
	CPUPercent      float64
	MemUsed         string
	MemPerc         float64
	MemLimit        string
	GoVersion       string
	Arch            string
	OS              string
	SystemCPUUsage  float64
	SystemMemUsed   string
	SystemMemTotal  string
	SystemDiskUsed  string
	SystemDiskTotal string
}

// Converts bytes to human-readable string.
func humanBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Reads memory limit if running inside Docker.
func readContainerMemLimit() uint64 {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		if limit, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64); err == nil {
			if limit > 0 && limit < (1<<60) {
				return limit
			}
		}
	}

	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		val := strings.TrimSpace(string(data))
		if val != "max" {
			if limit, err := strconv.ParseUint(val, 10, 64); err == nil && limit > 0 && limit < (1<<60) {
				return limit
			}
		}
	}
	return 0
}

// Collects both app and system-level stats.
func gatherAppStats() (*AppStats, error) {
	pid := int32(os.Getpid())
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}

	cpuPercent, _ := proc.CPUPercent()
	memPerc, _ := proc.MemoryPercent()
	stats := &AppStats{
		Uptime:        time.Since(startTime).Round(time.Second).String(),
		ProcessID:     pid,
		NumGoroutines: runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemPerc:       float64(memPerc),
		GoVersion:     runtime.Version(),
		Arch:          fmt.Sprintf("%s (%d CPU cores)", runtime.GOARCH, runtime.NumCPU()),
		OS:            runtime.GOOS,
	}
	if memInfo, err := proc.MemoryInfo(); err == nil {
		stats.MemUsed = humanBytes(memInfo.RSS)
	}

	// ---- System stats ----
	if vmem, err := mem.VirtualMemory(); err == nil {
		stats.SystemMemUsed = humanBytes(vmem.Used)
		stats.SystemMemTotal = humanBytes(vmem.Total)
	}
	if cpus, err := cpu.Percent(0, false); err == nil && len(cpus) > 0 {
		stats.SystemCPUUsage = cpus[0]
	}

	// Choose root path for disk usage
	rootPath := "/"
	if runtime.GOOS == "windows" {
		rootPath = "C:\\"
	}
	if diskUsage, err := disk.Usage(rootPath); err == nil {
		stats.SystemDiskUsed = humanBytes(diskUsage.Used)
		stats.SystemDiskTotal = humanBytes(diskUsage.Total)
	}
	if limit := readContainerMemLimit(); limit > 0 {
		stats.MemLimit = humanBytes(limit)
	}

	return stats, nil
}

// sysStatsHandler handles /stats.
func (h *Handlers) sysStatsHandler(msg *telegram.NewMessage) error {
	langCode := h.lang(msg.ChatID())
	sysMsg, err := msg.Reply(lang.GetString(langCode, "stats_gathering"))
	if err != nil {
		return err
	}

	info, err := gatherAppStats()
	if err != nil {
		_, _ = sysMsg.Edit(lang.Format(langCode, "stats_error", err))
		return nil
	}

	var chats, users int64
	if h.Settings != nil {
		ctx, cancel := db.Ctx()
		chats, users, err = h.Settings.Counts(ctx)
		cancel()
		if err != nil {
			gologging.WarnF("[stats] Counting chats and users: %v", err)
		}
	}
	assistants := 0
	if h.Assistants != nil {
		assistants = h.Assistants.Count()
	}

	var sb strings.Builder
	sb.WriteString(lang.Format(langCode, "stats_header", msg.Client.Me().FirstName))
	sb.WriteString(strings.Repeat("-", 40) + "\n\n")

	sb.WriteString(lang.GetString(langCode, "stats_app_header"))
	sb.WriteString(lang.Format(langCode, "stats_uptime", info.Uptime))
	sb.WriteString(lang.Format(langCode, "stats_cpu", info.CPUPercent))
	if info.MemLimit != "" {
		sb.WriteString(lang.Format(langCode, "stats_mem_limited", info.MemUsed, info.MemLimit, info.MemPerc))
	} else {
		sb.WriteString(lang.Format(langCode, "stats_mem", info.MemUsed, info.MemPerc))
	}
	sb.WriteString(lang.Format(langCode, "stats_goroutines", info.NumGoroutines))
	sb.WriteString(lang.Format(langCode, "stats_sessions", h.Registry.Len(), assistants))
	sb.WriteString(lang.Format(langCode, "stats_db", chats, users))
	sb.WriteString(lang.Format(langCode, "stats_go_version", info.GoVersion))
	sb.WriteString(lang.Format(langCode, "stats_platform", info.OS, info.Arch))

	sb.WriteString(lang.GetString(langCode, "stats_server_header"))
	sb.WriteString(lang.Format(langCode, "stats_server_cpu", info.SystemCPUUsage))
	sb.WriteString(lang.Format(langCode, "stats_server_ram", info.SystemMemUsed, info.SystemMemTotal))
	sb.WriteString(lang.Format(langCode, "stats_server_disk", info.SystemDiskUsed, info.SystemDiskTotal))
	sb.WriteString(strings.Repeat("-", 40))

	_, _ = sysMsg.Edit(sb.String())
	return nil
}
