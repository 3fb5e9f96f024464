package tsunami

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/tsunami-dev/tsunami/internal/meta"
)

// App installs handlers for the endpoint keys and patterns declared in a
// Registry and dispatches incoming HTTP requests to them. It manages
// handler registration, middleware, interceptors, and error handling.
// Use Handler() to get an http.Handler for use with http.ListenAndServe.
//
// The App and the Client must be built from the same Registry value;
// the shared table is the single source of truth for both sides.
type App struct {
	registry *Registry

	mu                 sync.RWMutex
	endpoints          map[string]Endpoint
	errorTransformer   ErrorTransformer
	maskInternalErrors bool
	interceptors       []UnaryInterceptor
	middlewares        []func(http.Handler) http.Handler
	logger             *slog.Logger
	maxRequestBodySize int64
}

// NewApp creates an App serving the given registry.
func NewApp(registry *Registry) *App {
	return &App{
		registry:           registry,
		endpoints:          make(map[string]Endpoint),
		maxRequestBodySize: 1 << 20, // 1MB default
	}
}

// Registry returns the specification table the app dispatches against.
func (a *App) Registry() *Registry { return a.registry }

// WithErrorTransformer adds a custom error transformer.
// It returns the app for chaining.
func (a *App) WithErrorTransformer(fn ErrorTransformer) *App {
	a.errorTransformer = fn
	return a
}

// WithMaskInternalErrors enables masking of internal error messages.
// This is useful in production to avoid leaking sensitive information.
// The original error is still available to interceptors.
func (a *App) WithMaskInternalErrors() *App {
	a.maskInternalErrors = true
	return a
}

// WithUnaryInterceptor adds a global interceptor. Global interceptors
// run before endpoint-level interceptors, in the order they were added.
func (a *App) WithUnaryInterceptor(i UnaryInterceptor) *App {
	a.interceptors = append(a.interceptors, i)
	return a
}

// WithMiddleware adds an HTTP middleware to wrap the app.
// Middleware is applied in the order added (first added is outermost).
func (a *App) WithMiddleware(mw func(http.Handler) http.Handler) *App {
	a.middlewares = append(a.middlewares, mw)
	return a
}

// WithLogger sets a custom logger for the app.
// If not set, slog.Default() will be used.
func (a *App) WithLogger(logger *slog.Logger) *App {
	a.logger = logger
	return a
}

// WithMaxRequestBodySize sets the maximum request body size for all
// handlers. A value of 0 means no limit. Default is 1MB (1 << 20).
func (a *App) WithMaxRequestBodySize(size int64) *App {
	a.maxRequestBodySize = size
	return a
}

// Handle registers the endpoint for a declared static key or dynamic
// pattern. Registering a key the registry does not declare, or
// registering the same key twice, is a configuration mistake and panics
// before the server ever accepts traffic.
func (a *App) Handle(key string, ep Endpoint) *App {
	if !a.registry.Declared(key) {
		panic(Errorf(CodeConfiguration, "Handle(%q): key not declared in registry", key))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.endpoints[key]; dup {
		panic(Errorf(CodeConfiguration, "Handle(%q): endpoint already registered", key))
	}
	a.endpoints[key] = ep
	return a
}

// Handler returns an http.Handler for use with http.ListenAndServe or
// other HTTP servers. The returned handler includes all configured
// middleware.
func (a *App) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(a.serveHTTP)
	// Apply middleware in reverse order so first added is outermost
	for i := len(a.middlewares) - 1; i >= 0; i-- {
		h = a.middlewares[i](h)
	}
	return h
}

// serveHTTP dispatches one request (internal, called via Handler()).
func (a *App) serveHTTP(w http.ResponseWriter, req *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			logger := a.logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Error("PANIC recovered",
				slog.Any("panic", rec),
				slog.String("stack", string(stack)))
			writeError(w, Errorf(CodeInternal, "internal server error (panic): %v", rec))
		}
	}()

	methodToken := strings.ToLower(req.Method)
	if _, ok := httpMethods[methodToken]; !ok {
		writeError(w, Errorf(CodeMethodNotAllowed, "method %s not supported", req.Method))
		return
	}

	segments := splitPath(req.URL.EscapedPath())

	// Debug route listing, mirroring the scaffold's /__routes endpoint.
	if len(segments) == 1 && segments[0] == "__routes" && req.Method == http.MethodGet {
		a.serveRoutes(w)
		return
	}

	match, ok := a.registry.match(append(segments, methodToken))
	if !ok {
		writeError(w, NewError(CodeNotFound, "no matching route"))
		return
	}

	a.mu.RLock()
	ep, registered := a.endpoints[match.Key]
	a.mu.RUnlock()
	if !registered {
		writeError(w, Errorf(CodeNotFound, "no handler registered for %q", match.Key))
		return
	}

	info := &RouteInfo{Key: match.Key, Spec: match.Spec, Params: match.Params}
	ctx := newContext(req.Context(), w, req, info)

	cfg := handlerConfig{
		errorTransformer:   a.errorTransformer,
		maskInternalErrors: a.maskInternalErrors,
		interceptors:       a.interceptors,
		maxRequestBodySize: a.maxRequestBodySize,
		logger:             a.logger,
	}
	ep.serve(w, req.WithContext(ctx), cfg)
}

// serveRoutes writes the registry manifest annotated with registration
// state.
func (a *App) serveRoutes(w http.ResponseWriter) {
	entries := a.registry.Manifest()
	a.mu.RLock()
	for i := range entries {
		_, entries[i].Registered = a.endpoints[entries[i].Key]
	}
	a.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"routes": entries}); err != nil {
		logger := a.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("failed to encode route listing", slog.Any("error", err))
	}
}

// Endpoints returns metadata for the registered endpoints, keyed by
// declared key. Useful for diagnostics and tooling.
func (a *App) Endpoints() map[string]*meta.EndpointMetadata {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]*meta.EndpointMetadata, len(a.endpoints))
	for key, ep := range a.endpoints {
		md := ep.Metadata()
		md.Key = key
		md.Method = MethodForKey(key)
		md.Path = PathPattern(key)
		out[key] = md
	}
	return out
}

// splitPath splits an escaped URL path into decoded segments. Splitting
// before unescaping keeps an encoded slash inside a parameter value from
// producing extra segments.
func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		if u, err := url.PathUnescape(s); err == nil {
			segs[i] = u
		}
	}
	return segs
}
