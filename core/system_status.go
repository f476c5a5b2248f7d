package core

import (
	"context"
	"runtime"
	"time"
)

// SystemStatus is the aggregate served by /api/v1/status.
type SystemStatus struct {
	Sessions struct {
		Backend string `json:"backend"`
		Healthy bool   `json:"healthy"`
		// Active is omitted when the backend cannot count cheaply.
		Active *int `json:"active,omitempty"`
	} `json:"sessions"`
	Memory struct {
		HeapBytes uint64 `json:"heap_bytes"`
		SysBytes  uint64 `json:"sys_bytes"`
	} `json:"memory"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// CollectSystemStatus is best-effort: a failing backend is reported as unhealthy, never as an error.
func CollectSystemStatus(ctx context.Context, backend *SessionBackend, auth AuthProvider, startedAt time.Time) SystemStatus {
	var st SystemStatus
	st.Sessions.Healthy = true

	if backend != nil {
		st.Sessions.Backend = backend.Name
		if backend.pinger != nil && backend.pinger.Ping(ctx) != nil {
			st.Sessions.Healthy = false
		}
		if backend.counter != nil {
			if n, err := backend.counter.Count(ctx); err == nil {
				st.Sessions.Active = &n
			} else {
				st.Sessions.Healthy = false
			}
		}
	}
	if st.Sessions.Active == nil {
		if counter, ok := auth.(interface{ ActiveSessions() (int, bool) }); ok {
			if n, ok := counter.ActiveSessions(); ok {
				st.Sessions.Active = &n
			}
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	st.Memory.HeapBytes = ms.HeapAlloc
	st.Memory.SysBytes = ms.Sys

	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return st
}
