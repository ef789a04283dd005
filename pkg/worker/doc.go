// Package worker provides a generic, bounded worker pool.
//
// A Pool runs a fixed number of goroutines that drain a buffered channel of
// work items. Two submission modes are offered:
//
//   - Submit never blocks and returns ErrQueueFull when the queue is at capacity.
//   - SubmitWait blocks until there is room, the context ends or the pool stops.
//     The socket receiver uses it so that a saturated pool stalls the acceptor
//     instead of dropping connections.
//
// Stop closes the pool to new work, lets in-flight items finish within the
// timeout and hands any still-queued items to the WithDiscard callback:
//
//	pool := worker.NewPool(5, 5, handleConn,
//	    worker.WithDiscard(func(c net.Conn) { _ = c.Close() }))
//	_ = pool.Start(ctx)
//	defer pool.Stop(5 * time.Second)
//
// Statistics are always tracked; Prometheus metrics are registered when
// WithMetricsRegistry is supplied.
package worker
