package collector

import (
	"os"
	"time"

	"observex-wss/models"
)

// NewPayload wraps an estimate with host and target details for reporting
func NewPayload(est *models.Estimate, proc *models.ProcessInfo, container string) *models.Payload {
	hostname, _ := os.Hostname()

	return &models.Payload{
		Timestamp: time.Now(),
		Hostname:  hostname,
		System:    CollectSystemInfo(),
		Process:   proc,
		Container: container,
		Estimate:  est,
	}
}
