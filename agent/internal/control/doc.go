// Package control is the agent's local control and status surface.
//
// Controller ties the fix source, ingestor and flush scheduler together:
// StartUpdates begins reading fixes and flushing on the configured interval,
// StopUpdates stops the source, supersedes any in-flight request and drains
// the buffer once more within agent.stop_timeout.
//
// NewHandler serves, on agent.control.listen:
//
//	GET  /api/v1/status   current Status
//	POST /api/v1/start    start updates, returns Status
//	POST /api/v1/stop     stop updates with a final flush, returns FlushResponse
//	POST /api/v1/flush    one flush sequence now, returns FlushResponse
//	GET  /metrics         Prometheus exposition
//	GET  /ws/status       WebSocket stream of Status, pushed every
//	                      agent.control.status_interval
//
// Responses are JSON. The surface binds to loopback by default and has no
// authentication of its own.
package control
