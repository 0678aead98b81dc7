// Package resource bounds the work a segment manager performs on behalf of
// its callers.
//
// A Controller governs three budgets:
//
//   - Constructions: how many segment instances may be built concurrently
//     (blocking, context aware)
//   - Memory: bytes held by loaded segment instances (fail-fast)
//   - IO: bytes per second read from the blob store while loading (token bucket)
//
// Usage:
//
//	rc := resource.NewController(resource.Config{
//	    MaxConcurrentConstructions: 4,
//	    MemoryLimitBytes:           1 << 30,
//	})
//
//	release, err := rc.AcquireConstruction(ctx)
//	if err != nil {
//	    return err
//	}
//	defer release()
//
// All methods are safe for concurrent use, and a nil *Controller accepts
// every request.
package resource
