package collector

import "github.com/cockroachdb/errors"

// Error kinds. Callers classify failures with errors.Is against these.
var (
	// ErrIdleTrackingUnavailable means the host has no idle page tracking bitmap.
	ErrIdleTrackingUnavailable = errors.New("idle page tracking unavailable")
	// ErrPermission means a kernel file exists but cannot be opened or written.
	ErrPermission = errors.New("permission denied")
	// ErrTargetUnavailable means the target process is gone or its proc files can't be opened.
	ErrTargetUnavailable = errors.New("target process unavailable")
	// ErrRegionVanished means a single region could not be read from the pagemap.
	ErrRegionVanished = errors.New("region vanished during scan")
	// ErrIntervalTooShort is the usage error for sampling intervals below MinInterval.
	ErrIntervalTooShort = errors.New("interval too short")
)
