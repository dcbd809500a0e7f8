package monitor

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is a snapshot of the monitor host itself, attached to
// system notifications and served by the health endpoint so an operator
// can tell a provider outage from a dying monitor box.
type HostStats struct {
	Load1          float64 `json:"load1"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	UptimeSeconds  uint64  `json:"uptime_seconds"`
}

// CollectHostStats gathers load, memory, and uptime. Each probe fails
// independently; missing values stay zero.
func CollectHostStats() HostStats {
	var stats HostStats
	if avg, err := load.Avg(); err == nil {
		stats.Load1 = avg.Load1
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemUsedPercent = vm.UsedPercent
	}
	if up, err := host.Uptime(); err == nil {
		stats.UptimeSeconds = up
	}
	return stats
}

// Lines renders the stats for inclusion in a system notification.
func (s HostStats) Lines() []string {
	uptime := time.Duration(s.UptimeSeconds) * time.Second
	return []string{
		fmt.Sprintf("Host load: %.2f", s.Load1),
		fmt.Sprintf("Host memory: %.0f%% used", s.MemUsedPercent),
		fmt.Sprintf("Host uptime: %s", uptime.Round(time.Minute)),
	}
}
