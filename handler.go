package tsunami

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	"github.com/tsunami-dev/tsunami/internal/meta"
)

var (
	validate      = validator.New()
	schemaDecoder = schema.NewDecoder()
)

func init() {
	schemaDecoder.IgnoreUnknownKeys(true)
}

// handlerConfig carries App-level settings into endpoint dispatch.
type handlerConfig struct {
	errorTransformer   ErrorTransformer
	maskInternalErrors bool
	interceptors       []UnaryInterceptor
	maxRequestBodySize int64
	logger             *slog.Logger
}

// Endpoint is the interface for registered handlers. It is exported so
// users can pass it to Handle, but sealed so they cannot implement it.
type Endpoint interface {
	serve(w http.ResponseWriter, r *http.Request, cfg handlerConfig)
	Metadata() *meta.EndpointMetadata
}

// Handler implements Endpoint for a specific Req/Res pair. The request
// struct is populated from three sources, later ones winning: the JSON
// body (non-GET/HEAD), the query string (via `schema` tags), and the
// captured path parameters (also via `schema` tags).
type Handler[Req any, Res any] struct {
	fn           func(context.Context, Req) (Res, error)
	cacheTTL     time.Duration
	interceptors []UnaryInterceptor
}

// Unary creates an endpoint from a generic function. The HTTP method is
// determined by the endpoint key the handler is registered under, not by
// the handler itself.
func Unary[Req any, Res any](fn func(context.Context, Req) (Res, error)) *Handler[Req, Res] {
	return &Handler[Req, Res]{fn: fn}
}

// Cache sets a Cache-Control max-age emitted on successful responses.
func (h *Handler[Req, Res]) Cache(d time.Duration) *Handler[Req, Res] {
	h.cacheTTL = d
	return h
}

// WithUnaryInterceptor adds an interceptor to this endpoint. Endpoint
// interceptors run after App-level interceptors.
func (h *Handler[Req, Res]) WithUnaryInterceptor(i UnaryInterceptor) *Handler[Req, Res] {
	h.interceptors = append(h.interceptors, i)
	return h
}

// Metadata returns the runtime metadata for the handler.
func (h *Handler[Req, Res]) Metadata() *meta.EndpointMetadata {
	var req Req
	var res Res
	return &meta.EndpointMetadata{
		Request:  reflect.TypeOf(req),
		Response: reflect.TypeOf(res),
		CacheTTL: h.cacheTTL,
	}
}

// serve implements the generic glue code.
func (h *Handler[Req, Res]) serve(w http.ResponseWriter, r *http.Request, cfg handlerConfig) {
	ctx := r.Context()
	info, _ := RouteFromContext(ctx)
	if info == nil {
		info = &RouteInfo{}
	}

	if cfg.maxRequestBodySize > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.maxRequestBodySize)
	}

	req, err := decodeRequest[Req](r, info)
	if err != nil {
		handleError(w, err, cfg)
		return
	}

	allInterceptors := make([]UnaryInterceptor, 0, len(cfg.interceptors)+len(h.interceptors))
	allInterceptors = append(allInterceptors, cfg.interceptors...)
	allInterceptors = append(allInterceptors, h.interceptors...)
	chain := chainInterceptors(allInterceptors)

	finalHandler := func(ctx context.Context, reqAny any) (any, error) {
		reqTyped, ok := reqAny.(Req)
		if !ok {
			return nil, Errorf(CodeInternal, "interceptor modified request type incorrectly")
		}
		return h.fn(ctx, reqTyped)
	}

	var res any
	if chain != nil {
		res, err = chain(ctx, req, info, finalHandler)
	} else {
		res, err = finalHandler(ctx, req)
	}
	if err != nil {
		handleError(w, err, cfg)
		return
	}

	// A nil result is an explicit no-content success.
	if isNilResult(res) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if h.cacheTTL > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", int(h.cacheTTL.Seconds())))
	}
	if encErr := json.NewEncoder(w).Encode(res); encErr != nil {
		// Response may be partially written; nothing to recover here.
		logEncodeFailure(cfg.logger, r, encErr)
	}
}

// decodeRequest populates a Req value from body, query, and path params.
func decodeRequest[Req any](r *http.Request, info *RouteInfo) (Req, error) {
	var req Req

	// Handle pointer request types: allocate the element so decoding has
	// a struct to fill.
	target := any(&req)
	if t := reflect.TypeOf(req); t != nil && t.Kind() == reflect.Ptr {
		val := reflect.New(t.Elem())
		req = val.Interface().(Req)
		target = val.Interface()
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(target); err != nil {
			if !errors.Is(err, io.EOF) {
				return req, Errorf(CodeInvalidArgument, "failed to decode body: %v", err)
			}
		}
	}

	if isStructTarget(target) {
		values := url.Values{}
		for k, vs := range r.URL.Query() {
			values[k] = vs
		}
		// Path parameters win over identically named query parameters.
		for k, v := range info.Params {
			values.Set(k, v)
		}
		if len(values) > 0 {
			if err := schemaDecoder.Decode(target, values); err != nil {
				return req, Errorf(CodeInvalidArgument, "failed to decode parameters: %v", err)
			}
		}
		if err := validate.Struct(target); err != nil {
			return req, err
		}
	}

	return req, nil
}

// isStructTarget reports whether target is a pointer to a struct that
// schema decoding and validation can operate on.
func isStructTarget(target any) bool {
	t := reflect.TypeOf(target)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

// isNilResult reports whether a handler result should map to 204.
func isNilResult(res any) bool {
	if res == nil {
		return true
	}
	rv := reflect.ValueOf(res)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}

func handleError(w http.ResponseWriter, err error, cfg handlerConfig) {
	var svcErr *Error
	if cfg.errorTransformer != nil {
		svcErr = cfg.errorTransformer(err)
	}
	if svcErr == nil {
		svcErr = DefaultErrorTransformer(err)
	}
	if cfg.maskInternalErrors && svcErr.Code == CodeInternal {
		svcErr = NewError(CodeInternal, "internal server error")
	}
	writeError(w, svcErr)
}

func logEncodeFailure(logger *slog.Logger, r *http.Request, err error) {
	// Headers are already sent; surfacing to the client is impossible.
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("failed to encode response",
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
}
