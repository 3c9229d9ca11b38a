package models

import "time"

// PageSize is the base page size the estimate assumes
const PageSize = 4096

const bytesPerMB = 1024 * 1024

// MappingUsage holds page counters for all regions sharing one path
type MappingUsage struct {
	Path string
	ScanResult
}

// Estimate is the output of one scan cycle
type Estimate struct {
	PID      int
	Interval time.Duration

	// Set is the cost of the idle bitmap reset
	Set time.Duration
	// Sleep is the measured length of the sleep phase
	Sleep time.Duration
	// ReloadScan covers the bitmap reload and the pagemap walk
	ReloadScan time.Duration
	Total      time.Duration
	// Est is Total corrected for half of the reset and reload overheads
	Est time.Duration

	ScanResult
	PageSize    uint64
	BitmapBytes int

	RegionsScanned int
	RegionsKernel  int
	RegionsFailed  int

	Mappings []MappingUsage
}

// ReferencedMB is the working set size in megabytes
func (e *Estimate) ReferencedMB() float64 {
	return float64(e.ActivePages*e.PageSize) / bytesPerMB
}

// WalkedMB is the resident size seen by the walk in megabytes
func (e *Estimate) WalkedMB() float64 {
	return float64(e.WalkedPages*e.PageSize) / bytesPerMB
}

// Payload is the document sent to the API and printed with -json
type Payload struct {
	Timestamp time.Time    `json:"timestamp"`
	Hostname  string       `json:"hostname"`
	System    SystemInfo   `json:"system"`
	Process   *ProcessInfo `json:"process,omitempty"`
	Container string       `json:"container,omitempty"`
	Estimate  *Estimate    `json:"estimate"`
}
