package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/caseta-bridge/internal/process"
)

// SystemMetrics represents the metrics response.
type SystemMetrics struct {
	Timestamp     string             `json:"timestamp"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Runtime       RuntimeMetrics     `json:"runtime"`
	WebSocket     WSMetrics          `json:"websocket"`
	Accessories   AccessoryMetrics   `json:"accessories"`
	Events        EventMetrics       `json:"events"`
	Relay         *process.Stats     `json:"relay,omitempty"`
	Hubs          map[string]HubPass `json:"hubs"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// AccessoryMetrics counts persisted accessories and live drivers.
type AccessoryMetrics struct {
	Registered int `json:"registered"`
	Drivers    int `json:"drivers"`
}

// EventMetrics contains event bus statistics.
type EventMetrics struct {
	Dropped uint64 `json:"dropped"`
}

// HubPass summarises the most recent pass over a hub.
type HubPass struct {
	Succeeded int   `json:"succeeded"`
	Skipped   int   `json:"skipped"`
	Failed    int   `json:"failed"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Accessories: AccessoryMetrics{
			Registered: len(s.accessories.List()),
			Drivers:    s.engine.DriverCount(),
		},
		Hubs: make(map[string]HubPass),
	}
	if s.eventsDropped != nil {
		metrics.Events.Dropped = s.eventsDropped()
	}
	if s.relayStats != nil {
		stats := s.relayStats()
		metrics.Relay = &stats
	}
	for _, id := range s.engine.Hubs() {
		if r, ok := s.engine.LastReport(id); ok {
			metrics.Hubs[id] = HubPass{
				Succeeded: r.Succeeded,
				Skipped:   r.Skipped,
				Failed:    r.Failed,
				ElapsedMS: r.Elapsed.Milliseconds(),
			}
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
