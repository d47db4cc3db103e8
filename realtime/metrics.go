package realtime

import "github.com/prometheus/client_golang/prometheus"

// Purge and rejection reasons, used as metric labels and log fields.
const (
	reasonReplaced     = "replaced"
	reasonDisconnect   = "disconnect-session"
	reasonUserGone     = "disconnect-user"
	reasonProtocol     = "protocol"
	reasonClosed       = "closed"
	reasonExpired      = "expired"
	reasonSlowConsumer = "slow-consumer"
	reasonWriteFailed  = "write-failed"
	reasonAccess       = "access"
	reasonShutdown     = "shutdown"

	rejectPath     = "path"
	rejectOrigin   = "origin"
	rejectProtocol = "protocol"
	rejectTicket   = "ticket"
	rejectUpgrade  = "upgrade"
)

// Metrics are the delivery engine's prometheus collectors.
type Metrics struct {
	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	Delivered   prometheus.Counter
	Purges      *prometheus.CounterVec
	Rejected    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "syncd_realtime_connections",
			Help: "Open real-time connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "syncd_realtime_rooms",
			Help: "Rooms with at least one member.",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syncd_realtime_events_delivered_total",
			Help: "Events queued to a connection.",
		}),
		Purges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncd_realtime_purges_total",
			Help: "Connections closed by the server, by reason.",
		}, []string{"reason"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncd_realtime_upgrades_rejected_total",
			Help: "Upgrade requests torn down before the handshake, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.Connections, m.Rooms, m.Delivered, m.Purges, m.Rejected)
	}
	return m
}
