// Package pagination walks an event's results pages in index order until the
// series runs out.
//
// The site publishes no page count, so the end of a series is inferred: after
// MaxConsecutiveFailures pages in a row fail (not found, rate limited,
// transient, unparseable) the controller stops. Any usable page resets the
// counter. A failed index is never retried within a run; a later run picks it
// up again because nothing was cached for it.
//
// Example usage:
//
//	pipeline := harvest.NewPipeline(fetcher, extract.New(logger), store, logger)
//	ctrl := pagination.NewController(pipeline, pagination.DefaultConfig(), progress, logger)
//	result, err := ctrl.Run(ctx)
//
// Fatal errors (cache I/O, a corrupt parsed artifact, cancellation) stop the
// run at once; Run returns them together with the pages gathered so far.
package pagination
