package tsunami

// ManifestEntry is one row of the registry's JSON manifest: the
// consumable description of a declared endpoint for tooling and the
// /__routes debug listing.
type ManifestEntry struct {
	Key        string `json:"key"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Dynamic    bool   `json:"dynamic,omitempty"`
	Response   string `json:"response,omitempty"`
	Body       string `json:"body,omitempty"`
	Query      string `json:"query,omitempty"`
	PathParams string `json:"path_params,omitempty"`
	Registered bool   `json:"registered,omitempty"`
}

// Manifest renders the table in declaration order: static keys first,
// then dynamic patterns in their load-bearing declared order.
func (r *Registry) Manifest() []ManifestEntry {
	entries := make([]ManifestEntry, 0, len(r.staticOrder)+len(r.dynamic))
	for _, key := range r.staticOrder {
		entries = append(entries, newManifestEntry(key, r.static[key], false))
	}
	for _, entry := range r.dynamic {
		entries = append(entries, newManifestEntry(entry.pattern.key, entry.spec, true))
	}
	return entries
}

func newManifestEntry(key string, spec Spec, dynamic bool) ManifestEntry {
	e := ManifestEntry{
		Key:     key,
		Method:  MethodForKey(key),
		Path:    PathPattern(key),
		Dynamic: dynamic,
	}
	if spec.Response != nil {
		e.Response = spec.Response.Name()
	}
	if spec.Body != nil {
		e.Body = spec.Body.Name()
	}
	if spec.Query != nil {
		e.Query = spec.Query.Name()
	}
	if spec.Path != nil {
		e.PathParams = spec.Path.Name()
	}
	return e
}
