// Package device provides the identity and battery readings attached to
// every uploaded batch.
//
// # Identity
//
// FileIdentity resolves the device id once at startup, in order:
//
//  1. device.id from the config file, if set.
//  2. The first line of device.id_file, if it exists and is non-empty.
//  3. A fresh random UUID, written to device.id_file when one is configured.
//
// A pinned id can be replaced at runtime with Set (config hot reload).
// Watch re-reads id_file when it changes on disk, unless the id is pinned.
//
// # Battery
//
// SysfsBattery reads the Linux power-supply class "capacity" attribute on
// every call, so the value is always current. Any read or parse failure
// reports the battery as unavailable and the field is left out of the
// batch. StaticBattery returns a fixed value.
package device
