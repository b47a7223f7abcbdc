// Package store holds received tracks in memory, keyed by device id.
//
// Each device keeps at most maxPoints samples, oldest dropped first, along
// with its last reported battery level and the time of its last batch.
// Devices that have not posted within the retention window are hidden from
// List and removed by Evict, which Run calls periodically.
package store
