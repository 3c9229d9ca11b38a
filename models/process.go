package models

type ProcessInfo struct {
	PID     int    `json:"pid"`
	Name    string `json:"name"`
	RSS     uint64 `json:"rss"`
	VMS     uint64 `json:"vms"`
	Command string `json:"command"`
}
