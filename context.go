package tsunami

import (
	"context"
	"net/http"
)

type contextKey struct {
	name string
}

var (
	requestKey = &contextKey{"request"}
	writerKey  = &contextKey{"writer"}
	routeKey   = &contextKey{"route"}
)

// RouteInfo carries metadata about the current dispatch: the declared
// key or pattern that matched, its specification, and the values
// captured by wildcard segments.
type RouteInfo struct {
	Key    string
	Spec   Spec
	Params map[string]string
}

// RequestFromContext returns the HTTP request from the context.
func RequestFromContext(ctx context.Context) *http.Request {
	if r, ok := ctx.Value(requestKey).(*http.Request); ok {
		return r
	}
	return nil
}

// SetHeader sets an HTTP response header.
// It requires that the handler was called via the App.
func SetHeader(ctx context.Context, key, value string) {
	if w, ok := ctx.Value(writerKey).(http.ResponseWriter); ok {
		w.Header().Set(key, value)
	}
}

// RouteFromContext returns the route metadata of the current dispatch.
func RouteFromContext(ctx context.Context) (*RouteInfo, bool) {
	info, ok := ctx.Value(routeKey).(*RouteInfo)
	return info, ok
}

// PathValue returns one captured path parameter, or "" when absent.
func PathValue(ctx context.Context, name string) string {
	if info, ok := RouteFromContext(ctx); ok {
		return info.Params[name]
	}
	return ""
}

func newContext(ctx context.Context, w http.ResponseWriter, r *http.Request, info *RouteInfo) context.Context {
	ctx = context.WithValue(ctx, writerKey, w)
	ctx = context.WithValue(ctx, requestKey, r)
	ctx = context.WithValue(ctx, routeKey, info)
	return ctx
}

// NewTestContext injects route metadata into a context for tests that
// exercise endpoints without going through the App dispatcher.
func NewTestContext(ctx context.Context, info *RouteInfo) context.Context {
	return context.WithValue(ctx, routeKey, info)
}
