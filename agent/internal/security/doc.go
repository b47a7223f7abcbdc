// Package security inspects the TLS certificate presented by the collection
// endpoint. The agent runs CheckEndpoint at startup and then daily, logging
// certificates that are close to expiry and exporting the remaining
// lifetime as a gauge.
package security
