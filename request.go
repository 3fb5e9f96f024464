package tsunami

import (
	"net/http"
	"net/url"
	"strings"
)

// httpMethods maps a trailing key segment to its HTTP method.
var httpMethods = map[string]string{
	"get":     http.MethodGet,
	"post":    http.MethodPost,
	"put":     http.MethodPut,
	"patch":   http.MethodPatch,
	"delete":  http.MethodDelete,
	"head":    http.MethodHead,
	"options": http.MethodOptions,
}

// MethodForKey returns the HTTP method derived from the key's trailing
// segment. An unrecognized or missing suffix defaults to GET.
func MethodForKey(key string) string {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return http.MethodGet
	}
	if m, ok := httpMethods[strings.ToLower(parts[len(parts)-1])]; ok {
		return m
	}
	return http.MethodGet
}

// Translate decomposes an endpoint key into an HTTP method and a URL
// path. The trailing method segment is stripped; remaining segments are
// percent-encoded and joined with "/". Bracketed segments are substituted
// from pathParams. A placeholder with no supplied parameter is a
// configuration error — the literal "[name]" is never emitted into a URL.
func Translate(key string, pathParams map[string]string) (method, path string, err error) {
	parts := strings.Split(key, ".")
	method = http.MethodGet
	if len(parts) > 0 {
		if m, ok := httpMethods[strings.ToLower(parts[len(parts)-1])]; ok {
			method = m
			parts = parts[:len(parts)-1]
		}
	}

	segs := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return "", "", Errorf(CodeConfiguration, "key %q contains an empty segment", key)
		}
		if strings.HasPrefix(part, "[") && strings.HasSuffix(part, "]") {
			name := strings.TrimSpace(part[1 : len(part)-1])
			value, ok := pathParams[name]
			if !ok || value == "" {
				return "", "", Errorf(CodeConfiguration,
					"key %q: no value supplied for path parameter %q", key, name)
			}
			segs = append(segs, url.PathEscape(value))
			continue
		}
		segs = append(segs, url.PathEscape(part))
	}

	return method, "/" + strings.Join(segs, "/"), nil
}

// PathPattern renders the URL path of a declared key with placeholders in
// {name} form, e.g. "note.[note_id].get" -> "/note/{note_id}". Used for
// route listings and the manifest.
func PathPattern(key string) string {
	parts := strings.Split(key, ".")
	if len(parts) > 0 {
		if _, ok := httpMethods[strings.ToLower(parts[len(parts)-1])]; ok {
			parts = parts[:len(parts)-1]
		}
	}
	segs := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.HasPrefix(part, "[") && strings.HasSuffix(part, "]") {
			segs = append(segs, "{"+strings.TrimSpace(part[1:len(part)-1])+"}")
			continue
		}
		segs = append(segs, part)
	}
	return "/" + strings.Join(segs, "/")
}
