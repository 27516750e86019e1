package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics holds process-wide counters. A nil *Metrics is valid and records
// nothing, so components can be built without one in tests.
type Metrics struct {
	signups       atomic.Uint64
	logins        atomic.Uint64
	heartbeats    atomic.Uint64
	sweptOffline  atomic.Uint64
	announcements atomic.Uint64
	relays        atomic.Uint64
	dropped       atomic.Uint64
	activeConns   atomic.Int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncSignup() {
	if m != nil {
		m.signups.Add(1)
	}
}

func (m *Metrics) IncLogin() {
	if m != nil {
		m.logins.Add(1)
	}
}

func (m *Metrics) IncHeartbeat() {
	if m != nil {
		m.heartbeats.Add(1)
	}
}

func (m *Metrics) AddSweptOffline(n int64) {
	if m != nil && n > 0 {
		m.sweptOffline.Add(uint64(n))
	}
}

func (m *Metrics) IncAnnouncement() {
	if m != nil {
		m.announcements.Add(1)
	}
}

func (m *Metrics) IncRelay() {
	if m != nil {
		m.relays.Add(1)
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		m.dropped.Add(1)
	}
}

func (m *Metrics) IncConn() {
	if m != nil {
		m.activeConns.Add(1)
	}
}

func (m *Metrics) DecConn() {
	if m != nil {
		m.activeConns.Add(-1)
	}
}

// Snapshot returns the current counter values keyed by their exported name.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return map[string]any{
		"signups_total":       m.signups.Load(),
		"logins_total":        m.logins.Load(),
		"heartbeats_total":    m.heartbeats.Load(),
		"swept_offline_total": m.sweptOffline.Load(),
		"announcements_total": m.announcements.Load(),
		"relays_total":        m.relays.Load(),
		"dropped_deliveries":  m.dropped.Load(),
		"active_connections":  m.activeConns.Load(),
	}
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
