package tsunami

import (
	"context"
)

// HandlerFunc represents the next handler in an interceptor chain.
// It is passed to [UnaryInterceptor] functions to invoke the next
// interceptor or the final endpoint function.
type HandlerFunc func(ctx context.Context, req any) (res any, err error)

// UnaryInterceptor is a hook that wraps endpoint execution.
//
//	func logging(ctx context.Context, req any, info *tsunami.RouteInfo, handler tsunami.HandlerFunc) (any, error) {
//	    start := time.Now()
//	    res, err := handler(ctx, req)
//	    log.Printf("%s took %v", info.Key, time.Since(start))
//	    return res, err
//	}
//
// Interceptors can inspect or replace the request before calling handler,
// inspect the response after, short-circuit by returning an error, or add
// values to the context. req/res are pointers to the decoded structs.
type UnaryInterceptor func(ctx context.Context, req any, info *RouteInfo, handler HandlerFunc) (res any, err error)

// chainInterceptors combines multiple interceptors into a single one.
// The first interceptor in the slice is the outermost (runs first).
func chainInterceptors(interceptors []UnaryInterceptor) UnaryInterceptor {
	if len(interceptors) == 0 {
		return nil
	}
	if len(interceptors) == 1 {
		return interceptors[0]
	}
	return func(ctx context.Context, req any, info *RouteInfo, handler HandlerFunc) (any, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			current, next := interceptors[i], chain
			chain = func(ctx context.Context, req any) (any, error) {
				return current(ctx, req, info, next)
			}
		}
		return chain(ctx, req)
	}
}
