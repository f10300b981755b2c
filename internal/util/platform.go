package util

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessHealth is a lightweight snapshot of this agent process's own
// resource usage, surfaced by the introspection API's /healthz handler
// — scoped to what a single long-lived agent needs, not the
// per-game-server disk/CPU polling a full orchestrator would run.
type ProcessHealth struct {
	PID           int     `json:"pid"`
	RSSBytes      uint64  `json:"rss_bytes"`
	CPUPercent    float64 `json:"cpu_percent"`
	NumGoroutines int     `json:"num_goroutines"`
}

// GetProcessHealth reads the current process's memory and CPU usage via
// gopsutil.
func GetProcessHealth() (ProcessHealth, error) {
	h := ProcessHealth{
		PID:           os.Getpid(),
		NumGoroutines: runtime.NumGoroutine(),
	}

	proc, err := process.NewProcess(int32(h.PID))
	if err != nil {
		return h, err
	}

	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		h.RSSBytes = mem.RSS
	}
	if pct, err := proc.CPUPercent(); err == nil {
		h.CPUPercent = pct
	}

	return h, nil
}
