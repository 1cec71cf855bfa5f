/*
Package tracing records timed spans for API requests and scrape runs.

Spans share a trace ID carried in the request context and in the X-Trace-ID
and X-Span-ID headers. Finished spans are queued to a buffered collector
that writes them to the structured log; when the buffer is full spans are
dropped with a warning.

	tracer := tracing.New("scraper", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "scrape")
	defer tracer.Finish(span)
*/
package tracing
