package tsunami

import (
	"strings"
)

// Spec is the 4-tuple contract of one endpoint: its response shape, body
// shape, query shape and path-parameter shape. A nil member means the
// endpoint declares nothing there — no body expected, no query expected,
// and so on. A nil Response leaves the response unconstrained.
type Spec struct {
	Response *Shape
	Body     *Shape
	Query    *Shape
	Path     *Shape
}

// DefaultSpec is the permissive fallback returned for keys that match no
// declaration: response unconstrained, no body, query or path expected.
func DefaultSpec() Spec { return Spec{} }

type dynamicEntry struct {
	pattern pattern
	spec    Spec
}

// Builder accumulates endpoint declarations for a Registry.
// Declaration order of dynamic patterns is semantic: the first pattern
// that structurally matches a key wins, so more specific patterns must
// be declared before more general ones.
type Builder struct {
	static      map[string]Spec
	staticOrder []string
	dynamic     []dynamicEntry
	errs        []error
}

// NewRegistry starts a registry builder.
func NewRegistry() *Builder {
	return &Builder{static: make(map[string]Spec)}
}

// Static declares an exact endpoint key. The key must carry a trailing
// method token and no parameter segments.
func (b *Builder) Static(key string, spec Spec) *Builder {
	p, err := parsePattern(key)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	if p.dynamic() {
		b.errs = append(b.errs, Errorf(CodeConfiguration,
			"static key %q contains parameter segments; use Dynamic", key))
		return b
	}
	if _, dup := b.static[key]; dup {
		b.errs = append(b.errs, Errorf(CodeConfiguration, "duplicate static key %q", key))
		return b
	}
	b.static[key] = spec
	b.staticOrder = append(b.staticOrder, key)
	return b
}

// Dynamic declares a wildcard pattern. The pattern must carry a trailing
// method token and at least one parameter segment.
func (b *Builder) Dynamic(key string, spec Spec) *Builder {
	p, err := parsePattern(key)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	if !p.dynamic() {
		b.errs = append(b.errs, Errorf(CodeConfiguration,
			"pattern %q has no parameter segments; use Static", key))
		return b
	}
	b.dynamic = append(b.dynamic, dynamicEntry{pattern: p, spec: spec})
	return b
}

// Build finalizes the table. It fails on malformed declarations and on
// unreachable dynamic patterns (a later pattern fully shadowed by an
// earlier one would never match anything).
func (b *Builder) Build() (*Registry, error) {
	errs := append([]error(nil), b.errs...)
	for i := 0; i < len(b.dynamic); i++ {
		for j := i + 1; j < len(b.dynamic); j++ {
			if b.dynamic[i].pattern.shadows(b.dynamic[j].pattern) {
				errs = append(errs, Errorf(CodeConfiguration,
					"pattern %q is unreachable: shadowed by earlier pattern %q",
					b.dynamic[j].pattern.key, b.dynamic[i].pattern.key))
			}
		}
	}
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, NewError(CodeConfiguration, strings.Join(msgs, "; "))
	}

	static := make(map[string]Spec, len(b.static))
	for k, v := range b.static {
		static[k] = v
	}
	return &Registry{
		static:      static,
		staticOrder: append([]string(nil), b.staticOrder...),
		dynamic:     append([]dynamicEntry(nil), b.dynamic...),
	}, nil
}

// MustBuild is like Build but panics on error. Registries are built once
// at startup, so a malformed table is fatal.
func (b *Builder) MustBuild() *Registry {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

// Registry is the process-wide endpoint specification table: a static
// exact-key map plus an ordered dynamic pattern list. It is immutable
// after Build, so concurrent lookups need no locking. Construct one
// registry from shared declarations and hand the same value to both the
// client and the server installer — two tables built from divergent
// declarations will drift.
type Registry struct {
	static      map[string]Spec
	staticOrder []string
	dynamic     []dynamicEntry
}

// Match describes a resolved endpoint key.
type Match struct {
	// Key is the declared key (static) or pattern (dynamic) that matched.
	Key     string
	Spec    Spec
	Dynamic bool

	// Params holds the values captured by wildcard segments, by name.
	Params map[string]string
}

// Resolve returns the specification for an endpoint key: the static
// table first, then the dynamic list in declaration order, first match
// wins. Keys matching nothing get the permissive DefaultSpec.
func (r *Registry) Resolve(key string) Spec {
	if m, ok := r.match(strings.Split(key, ".")); ok {
		return m.Spec
	}
	return DefaultSpec()
}

// Match is Resolve plus the matched declaration and captured wildcard
// values. ok is false when the key falls through to the default spec.
func (r *Registry) Match(key string) (Match, bool) {
	return r.match(strings.Split(key, "."))
}

// match resolves pre-split key parts. The server dispatches on raw URL
// path segments through this entry point so that segment values
// containing dots cannot change the match.
func (r *Registry) match(parts []string) (Match, bool) {
	joined := strings.Join(parts, ".")
	if spec, ok := r.static[joined]; ok {
		// Reject aliasing from segment values that contain dots.
		if len(strings.Split(joined, ".")) == len(parts) {
			return Match{Key: joined, Spec: spec}, true
		}
	}
	for _, entry := range r.dynamic {
		if params, ok := entry.pattern.match(parts); ok {
			return Match{
				Key:     entry.pattern.key,
				Spec:    entry.spec,
				Dynamic: true,
				Params:  params,
			}, true
		}
	}
	return Match{}, false
}

// StaticKeys returns the static keys in declaration order.
func (r *Registry) StaticKeys() []string {
	return append([]string(nil), r.staticOrder...)
}

// DynamicKeys returns the dynamic patterns in declaration order.
func (r *Registry) DynamicKeys() []string {
	keys := make([]string, len(r.dynamic))
	for i, entry := range r.dynamic {
		keys[i] = entry.pattern.key
	}
	return keys
}

// Declared reports whether key is a declared static key or dynamic
// pattern. The server installer uses this to reject handlers for
// undeclared routes.
func (r *Registry) Declared(key string) bool {
	if _, ok := r.static[key]; ok {
		return true
	}
	for _, entry := range r.dynamic {
		if entry.pattern.key == key {
			return true
		}
	}
	return false
}
