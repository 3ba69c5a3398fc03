// Package sysinfo describes the host a solve runs on.
package sysinfo

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"

	"topsolver/internal/model"
)

var (
	once   sync.Once
	cached model.SysInfo
)

// Collect queries the host once and returns the cached stamp afterwards.
func Collect() model.SysInfo {
	once.Do(func() { cached = gather() })
	return cached
}

// gather falls back to runtime values when a lookup fails.
func gather() model.SysInfo {
	si := model.SysInfo{Platform: runtime.GOOS, Cores: runtime.NumCPU()}
	if hostStat, err := host.Info(); err == nil && hostStat.Platform != "" {
		si.Platform = hostStat.Platform
	}
	if cpuStat, err := cpu.Info(); err == nil && len(cpuStat) > 0 {
		si.CPU = cpuStat[0].ModelName
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		si.Cores = n
	}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		si.RAM = formatGB(vmStat.Total)
	}
	return si
}

func formatGB(bytes uint64) string {
	return fmt.Sprintf("%d GB", bytes/1024/1024/1024)
}
