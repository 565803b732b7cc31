package backend

import "time"

// Metrics is a point-in-time snapshot of connection counters.
// The Manager owns the live counters; callers always receive a copy.
type Metrics struct {
	ConnectAttempts  int
	ConnectSuccesses int
	ConnectFailures  int

	LastConnectedAt    time.Time
	LastDisconnectedAt time.Time

	// Uptime is the cumulative time spent in StateConnected, including
	// the current connection if one is up.
	Uptime time.Duration
}

// metrics is the Manager-internal mutable form, guarded by Manager.mu.
type metrics struct {
	connectAttempts  int
	connectSuccesses int
	connectFailures  int

	lastConnectedAt    time.Time
	lastDisconnectedAt time.Time

	// accumulatedUptime covers completed connections only; the live
	// connection's share is added at snapshot time.
	accumulatedUptime time.Duration
}

// snapshot converts the internal counters to the exported value form.
// connected tells the snapshot whether to extend uptime to now.
func (m *metrics) snapshot(connected bool, now time.Time) Metrics {
	uptime := m.accumulatedUptime
	if connected && !m.lastConnectedAt.IsZero() {
		uptime += now.Sub(m.lastConnectedAt)
	}
	return Metrics{
		ConnectAttempts:    m.connectAttempts,
		ConnectSuccesses:   m.connectSuccesses,
		ConnectFailures:    m.connectFailures,
		LastConnectedAt:    m.lastConnectedAt,
		LastDisconnectedAt: m.lastDisconnectedAt,
		Uptime:             uptime,
	}
}

// recordConnect marks a successful connect.
func (m *metrics) recordConnect(now time.Time) {
	m.connectSuccesses++
	m.lastConnectedAt = now
}

// recordDisconnect closes out the current connection's uptime share.
func (m *metrics) recordDisconnect(now time.Time) {
	if !m.lastConnectedAt.IsZero() && now.After(m.lastConnectedAt) {
		m.accumulatedUptime += now.Sub(m.lastConnectedAt)
	}
	m.lastDisconnectedAt = now
}
