package httptransport

import "expvar"

var (
	metricCommandTotal  = expvar.NewInt("room_command_total")
	metricCommandErrors = expvar.NewInt("room_command_errors_total")

	metricSSEConnectionsTotal  = expvar.NewInt("room_sse_connections_total")
	metricSSEConnectionsActive = expvar.NewInt("room_sse_connections_active")

	metricPresenceUpgradesTotal = expvar.NewInt("presence_upgrades_total")
)
