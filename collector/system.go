package collector

import (
	"observex-wss/models"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sys/unix"
)

// Gathers OS, kernel and memory size of the host
func CollectSystemInfo() models.SystemInfo {
	info := models.SystemInfo{PageSize: unix.Getpagesize()}

	if hostInfo, err := host.Info(); err == nil {
		info.OS = hostInfo.OS + " " + hostInfo.Platform + " " + hostInfo.PlatformVersion
		info.Kernel = hostInfo.KernelVersion
		info.Arch = hostInfo.KernelArch
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotal = memInfo.Total
	}

	return info
}
