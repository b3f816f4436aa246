package listener

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
)

// health snapshots listener and host state. Host lookups that fail leave
// their fields zero.
func (s *Server) health() Health {
	h := Health{
		Status:        "ok",
		UptimeSec:     time.Since(s.started).Seconds(),
		Scanners:      int(s.scanners.Load()),
		Viewers:       s.broadcaster.ClientCount(),
		ScansRecorded: s.store.Total(),
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := p.MemoryInfo(); err == nil {
			h.ProcessRSSBytes = mem.RSS
		}
	}
	if up, err := host.Uptime(); err == nil {
		h.HostUptimeSec = up
	}
	return h
}
