package collector

import (
	"fmt"
	"os"

	"observex-wss/models"

	"golang.org/x/exp/slog"
	"golang.org/x/sys/unix"
)

const dockerSocket = "/var/run/docker.sock"

// DetectCapabilities probes the host for what a measurement needs
func DetectCapabilities(idlePath string) models.Capabilities {
	if idlePath == "" {
		idlePath = DefaultIdleBitmapPath
	}

	return models.Capabilities{
		HasIdleTracking: fileExists(idlePath),
		CanWriteIdle:    unix.Access(idlePath, unix.W_OK) == nil,
		IsRoot:          os.Geteuid() == 0,
		HasDockerSocket: fileExists(dockerSocket),
		PageSize:        unix.Getpagesize(),
	}
}

// LogCapabilities prints the capability banner at debug level
func LogCapabilities(logger *slog.Logger, caps models.Capabilities) {
	logger.Debug("╭─ Host Capabilities ───────────────────────────────────────╮")
	logCap(logger, "Idle map", caps.HasIdleTracking, "(CONFIG_IDLE_PAGE_TRACKING)")
	logCap(logger, "Idle write", caps.CanWriteIdle, "(reset page idle bits)")
	logCap(logger, "Root", caps.IsRoot, "(pagemap PFNs are zero otherwise)")
	logCap(logger, "Docker", caps.HasDockerSocket, "(-container lookup)")
	logCap(logger, "4K pages", caps.PageSize == models.PageSize, "(base page size)")
	logger.Debug("╰───────────────────────────────────────────────────────────╯")

	if caps.PageSize != models.PageSize {
		logger.Warn("host page size differs from the assumed page size",
			slog.Int("PageSize", caps.PageSize), slog.Int("Assumed", models.PageSize))
	}
}

func logCap(logger *slog.Logger, name string, available bool, desc string) {
	icon := "✗"
	status := "unavailable"
	if available {
		icon = "✓"
		status = "enabled"
	}
	logger.Debug(fmt.Sprintf("│ %s %-10s │ %-11s │ %-34s │", icon, name, status, desc))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
