package models

import "fmt"

// Region is one [Start, End) virtual mapping of a process
type Region struct {
	Start uint64
	End   uint64
	Path  string
}

// Size in bytes
func (r Region) Size() uint64 {
	return r.End - r.Start
}

func (r Region) String() string {
	return fmt.Sprintf("%x-%x", r.Start, r.End)
}

// Label used when grouping regions, anonymous mappings have no path
func (r Region) Label() string {
	if r.Path == "" {
		return "[anon]"
	}
	return r.Path
}

// ScanResult holds page counters for a region or a whole cycle
type ScanResult struct {
	ActivePages uint64
	WalkedPages uint64
}

// Add accumulates other into r
func (r *ScanResult) Add(other ScanResult) {
	r.ActivePages += other.ActivePages
	r.WalkedPages += other.WalkedPages
}
