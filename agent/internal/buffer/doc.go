// Package buffer holds the samples that have not yet been acknowledged by the
// collection endpoint.
//
// Buffer is an ordered, unbounded FIFO. The producer only calls Append; the
// flush cycle reads with PeekPrefix and, after a confirmed delivery, drops
// exactly the delivered prefix with RemovePrefix. Each method holds the
// internal mutex for that single operation only, so a network round trip
// between a peek and the matching removal never blocks the producer.
//
// Samples appended after a peek sit behind the peeked prefix and are not
// touched by the removal that follows it.
package buffer
