// Package middleware provides the HTTP middleware that reshapes JSON bodies
// passing through the proxy.
//
// For each request the matching rule is looked up. Its request chain rewrites
// the request body before the handler runs, and its response chain rewrites
// the buffered response body after the handler completes:
//
//	tm := middleware.NewTransform(registry,
//	    middleware.WithTransformLogger(logger),
//	    middleware.WithTransformMetrics(metrics),
//	    middleware.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
//	)
//	handler := tm.Handler(proxy)
//
// Bodies that are not JSON, are compressed, exceed the size limit, or fail to
// transform reach their destination unchanged.
package middleware
