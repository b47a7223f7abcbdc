// Package upload delivers encoded batches to the collection endpoint.
//
// An Uploader owns a single delivery slot. Begin claims it, cancelling and
// waiting for any previous holder first, so at most one request is ever in
// flight. The holder sends with Attempt.Send, acts on the Outcome (removing
// delivered samples from the buffer) and then calls Release. A successor
// therefore never reads the buffer before its predecessor's removal is done.
//
// State machine:
//
//	idle ──Send──▶ sending ──response──▶ idle
//	sending ──Begin (new attempt)──▶ cancelling ──previous released──▶ idle
//
// Outcomes:
//   - Delivered(count): HTTP 201; the whole batch was accepted
//   - Failed(err): *TransportError (dial, TLS, timeout) or *RejectedError
//     (any status other than 201)
//   - Superseded: the attempt was cancelled by a newer one while in flight
//
// Requests are POST <endpoint>/locations with Content-Type and Accept set to
// application/json and Authorization: Bearer <secret>. The secret is read
// from the environment on every request so rotation needs no restart.
// With compression: gzip the body is compressed with klauspost/compress and
// Content-Encoding: gzip is added.
//
// Backoff implements the optional capped exponential retry delay used by the
// flush scheduler after failed deliveries.
package upload
