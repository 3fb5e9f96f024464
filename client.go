package tsunami

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client executes endpoint calls against a base URL. The zero value is
// not usable; construct with NewClient and share across goroutines —
// every call is an independent unit of work with no state in common
// beyond the read-only registry.
//
// The pipeline never retries and never logs; both are caller concerns.
type Client struct {
	baseURL      string
	registry     *Registry
	httpClient   *http.Client
	timeout      time.Duration
	headers      http.Header
	textFallback bool
}

// NewClient creates a client for the given base URL. The registry may be
// nil, in which case every key resolves to the permissive default spec.
func NewClient(baseURL string, registry *Registry) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		registry:   registry,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		headers:    make(http.Header),
	}
}

// WithHTTPClient sets a custom underlying *http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithTimeout sets the default per-call timeout. Zero restores DefaultTimeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// WithHeader sets a header applied to every call.
func (c *Client) WithHeader(key, value string) *Client {
	c.headers.Set(key, value)
	return c
}

// WithTextFallback makes non-JSON response bodies decode as raw text by
// default. Without it, an undeclared content type yields an explicit
// no-value result — decoding is never attempted speculatively.
func (c *Client) WithTextFallback() *Client {
	c.textFallback = true
	return c
}

type callOptions struct {
	pathParams   map[string]string
	query        any
	timeout      time.Duration
	headers      http.Header
	textFallback *bool
}

// CallOption configures one call.
type CallOption func(*callOptions)

// PathParams supplies values for the key's bracketed segments.
func PathParams(params map[string]string) CallOption {
	return func(o *callOptions) {
		if o.pathParams == nil {
			o.pathParams = make(map[string]string, len(params))
		}
		for k, v := range params {
			o.pathParams[k] = v
		}
	}
}

// PathParam supplies one path parameter.
func PathParam(name, value string) CallOption {
	return func(o *callOptions) {
		if o.pathParams == nil {
			o.pathParams = make(map[string]string, 1)
		}
		o.pathParams[name] = value
	}
}

// Query supplies query parameters: a map[string]any, url.Values, or a
// struct with `schema` tags.
func Query(params any) CallOption {
	return func(o *callOptions) { o.query = params }
}

// Timeout overrides the client's per-call timeout for this call.
func Timeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Header sets a header for this call only.
func Header(key, value string) CallOption {
	return func(o *callOptions) {
		if o.headers == nil {
			o.headers = make(http.Header)
		}
		o.headers.Set(key, value)
	}
}

// TextFallback overrides the client-level text fallback for this call.
func TextFallback(enabled bool) CallOption {
	return func(o *callOptions) { o.textFallback = &enabled }
}

// Response is the decoded outcome of a successful exchange.
type Response struct {
	Status int
	Header http.Header

	// NoContent is true for 204/205 responses and for bodies whose
	// content type the call did not opt into decoding. It is a distinct,
	// explicit success value, never conflated with an error.
	NoContent bool

	raw    []byte
	isJSON bool
	isText bool
}

// Decode unmarshals a JSON response body into v. Decoding a no-content
// or text response is an error.
func (r *Response) Decode(v any) error {
	if !r.isJSON {
		return NewError(CodeDecoding, "response has no JSON body to decode")
	}
	if err := json.Unmarshal(r.raw, v); err != nil {
		return Errorf(CodeDecoding, "cannot decode response: %v", err)
	}
	return nil
}

// Text returns the response body decoded as text, if the call opted into
// text fallback and the body was not JSON.
func (r *Response) Text() (string, bool) {
	if !r.isText {
		return "", false
	}
	return string(r.raw), true
}

// Raw returns the undecoded response body.
func (r *Response) Raw() []byte { return r.raw }

// Do resolves key against the registry, translates it into a method and
// URL, executes the exchange, and returns the decoded response or a
// structured error. body is only sent for methods other than GET/HEAD.
//
// One call owns exactly one cancellation token, composed from ctx and
// the per-call timer; the token is released before Do returns.
func (c *Client) Do(ctx context.Context, key string, body any, opts ...CallOption) (*Response, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	spec := DefaultSpec()
	if c.registry != nil {
		spec = c.registry.Resolve(key)
	}

	// Path parameters must cover the declared path shape. This fails
	// fast, before any translation or I/O.
	if spec.Path != nil {
		for _, f := range spec.Path.Fields() {
			if v, ok := o.pathParams[f.Name]; !ok || v == "" {
				return nil, Errorf(CodeConfiguration,
					"key %q: missing path parameter %q", key, f.Name)
			}
		}
	}

	method, path, err := Translate(key, o.pathParams)
	if err != nil {
		return nil, err
	}

	// A keyed body is checked for field presence against the declared
	// body shape. Typed struct bodies rely on the compiler instead.
	if spec.Body != nil {
		if fields, ok := body.(Fields); ok {
			if err := spec.Body.Validate(fields); err != nil {
				return nil, err
			}
		} else if m, ok := body.(map[string]any); ok {
			if err := spec.Body.Validate(m); err != nil {
				return nil, err
			}
		}
	}

	values, err := encodeQuery(o.query)
	if err != nil {
		return nil, err
	}

	rawURL := c.baseURL + path
	if len(values) > 0 {
		rawURL += "?" + values.Encode()
	}

	var reqBody io.Reader
	contentType := ""
	if body != nil && method != http.MethodGet && method != http.MethodHead {
		switch b := body.(type) {
		case []byte:
			reqBody = bytes.NewReader(b)
		case io.Reader:
			reqBody = b
		case url.Values:
			reqBody = strings.NewReader(b.Encode())
			contentType = "application/x-www-form-urlencoded"
		default:
			data, err := json.Marshal(body)
			if err != nil {
				return nil, Errorf(CodeConfiguration, "cannot encode request body: %v", err)
			}
			reqBody = bytes.NewReader(data)
			contentType = "application/json"
		}
	}

	timeout := c.timeout
	if o.timeout > 0 {
		timeout = o.timeout
	}
	cctx, cancel := withCallTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, method, rawURL, reqBody)
	if err != nil {
		return nil, Errorf(CodeConfiguration, "cannot build request: %v", err)
	}

	req.Header.Set("Accept", "application/json")
	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range o.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(cctx, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(resp.StatusCode, resp.Status, rawURL, readCapped(resp.Body))
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header}

	// 204/205 are an explicit no-value result regardless of the declared
	// response shape.
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusResetContent {
		out.NoContent = true
		return out, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(cctx, rawURL, err)
	}

	if isJSONContentType(resp.Header.Get("Content-Type")) {
		if len(data) > 0 && !json.Valid(data) {
			e := NewError(CodeDecoding, "response declared JSON but body is not valid JSON")
			e.URL = rawURL
			return nil, e
		}
		if len(data) == 0 {
			out.NoContent = true
			return out, nil
		}
		out.raw = data
		out.isJSON = true
		return out, nil
	}

	textFallback := c.textFallback
	if o.textFallback != nil {
		textFallback = *o.textFallback
	}
	if textFallback {
		out.raw = data
		out.isText = true
		return out, nil
	}

	out.NoContent = true
	return out, nil
}

// Call executes an exchange and decodes the JSON response into Res. A
// no-content result yields the zero value. When text fallback applies
// and Res is string, the raw text is returned.
func Call[Res any](ctx context.Context, c *Client, key string, body any, opts ...CallOption) (Res, error) {
	var zero Res
	resp, err := c.Do(ctx, key, body, opts...)
	if err != nil {
		return zero, err
	}
	if resp.NoContent {
		return zero, nil
	}
	if text, ok := resp.Text(); ok {
		if v, ok := any(text).(Res); ok {
			return v, nil
		}
		return zero, NewError(CodeDecoding, "text response cannot decode into target type")
	}
	if err := resp.Decode(&zero); err != nil {
		return zero, err
	}
	return zero, nil
}

// readCapped reads an error body best-effort, bounded to maxErrorBody.
// A read failure yields whatever was read; it never propagates.
func readCapped(r io.Reader) []byte {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return data
}

// isJSONContentType reports whether a content type is JSON-family:
// application/json or any type with a +json suffix.
func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
