// Package flush drives delivery of buffered samples on a fixed interval.
//
// Scheduler moves between Stopped and Running. While running, every tick of
// the flush interval starts a flush sequence in its own goroutine:
//
//  1. claim the uploader slot (cancelling a still-pending sequence)
//  2. peek up to max_batch samples; stop if there are none
//  3. encode with the current device id and battery level, then send
//  4. on Delivered(n) remove exactly n samples; if the batch was full and
//     samples remain, go back to 1 at once (catch-up drain)
//  5. on Failed or Superseded leave the buffer alone; the next tick retries
//     the same prefix
//
// Stop cancels the ticker and any pending sequence, then runs one final
// synchronous sequence bounded by the caller's context.
//
// With backoff enabled, ticks after a failed delivery are skipped until a
// capped exponential delay has passed; a delivery resets the delay.
// Without it every tick retries, which keeps the load on the endpoint at one
// request per interval during an outage.
package flush
