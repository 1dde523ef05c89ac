package syshealth

import "time"

type Zone string

const (
	ZoneCritical Zone = "critical" // score 0-33
	ZoneWarning  Zone = "warning"  // score 34-66
	ZoneSafe     Zone = "safe"     // score 67-100
)

// Snapshot is the latest sampled host state. Score is 0-100, higher is healthier.
type Snapshot struct {
	Score         int       `json:"score"`
	Zone          Zone      `json:"zone"`
	CPULoadAvg    float64   `json:"cpuLoadAvg"`
	IOWaitPercent float64   `json:"ioWaitPercent"`
	MemoryPercent float64   `json:"memoryPercent"`
	DBPoolPercent float64   `json:"dbPoolPercent"`
	CollectedAt   time.Time `json:"collectedAt"`
	Stale         bool      `json:"stale"`
}

// Critical reports whether fresh metrics put the host in the critical zone.
func (s Snapshot) Critical() bool {
	return !s.Stale && s.Zone == ZoneCritical
}

type Monitor interface {
	Start() error
	Stop() error
	Snapshot() Snapshot
}
