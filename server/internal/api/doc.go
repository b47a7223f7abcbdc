// Package api implements the collector's HTTP surface.
//
// New(store, opts) returns an http.Handler that serves:
//
//	POST /locations              ingest one batch; 201 with an empty body
//	GET  /api/v1/health          liveness and device count
//	GET  /api/v1/devices         all live devices ([]DeviceResponse)
//	GET  /api/v1/devices/{id}    one device with its newest points;
//	                             ?limit=N caps the points (default 100)
//
// Every route except /api/v1/health sits behind bearer authentication when
// a secret is configured. Ingest accepts Content-Encoding: gzip and answers
// 400 for bodies that do not decode, 413 for bodies over the size limit and
// 415 for other encodings. Read endpoints answer 405 for non-GET methods and
// 404 for unknown or stale devices.
package api
