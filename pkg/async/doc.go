// Package async runs background work off the request path.
//
// WorkerPool owns a fixed set of goroutines fed from a bounded queue. Submit
// never blocks: a full queue is reported as ErrQueueFull so callers can fall
// back or drop. Each task gets its own timeout, and panics are recovered and
// logged through the observability logger.
//
//	pool := async.NewWorkerPool(ctx, "mail", 2, 100, 30*time.Second, logger)
//	shutdown.Register("mail queue", pool.Shutdown)
//
//	err := pool.Submit(func(ctx context.Context) error {
//		return smtp.Send(ctx, msg)
//	})
//
// Shutdown matches observability.ShutdownFunc. It drains queued tasks and
// cancels running ones only if its context expires first.
package async
