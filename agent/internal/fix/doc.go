// Package fix turns position fixes from a receiver into buffered samples.
//
// A Source emits Fix values until its context is cancelled:
//   - SerialSource reads NMEA 0183 from a GPS receiver on a serial port
//   - FileSource replays an NMEA log at a fixed pace
//   - SimulatedSource produces a random walk, for demos and soak tests
//
// Only GGA sentences are used: they carry position, fix quality and HDOP.
// The accuracy radius is estimated as HDOP × UERE (user equivalent range
// error, 5 m by default).
//
// Ingestor is the sink for every source. It drops fixes whose accuracy
// radius exceeds the configured maximum (50 m by default, inclusive), appends
// the rest to the sample buffer and remembers when the last accepted fix
// was taken.
package fix
