package models

type SystemInfo struct {
	OS          string `json:"os"`
	Kernel      string `json:"kernel"`
	Arch        string `json:"arch"`
	MemoryTotal uint64 `json:"memoryTotal"`
	PageSize    int    `json:"pageSize"`
}

// Capabilities lists the host features the estimator depends on
type Capabilities struct {
	HasIdleTracking bool
	CanWriteIdle    bool
	IsRoot          bool
	HasDockerSocket bool
	PageSize        int
}
