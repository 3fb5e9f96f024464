package tsunami

import (
	"strings"
)

// An endpoint key is a dot-delimited string whose final segment is a
// method token and whose interior segments are either literal path
// components or bracketed parameter placeholders:
//
//	notes.post             -> POST /notes
//	note.[note_id].get     -> GET  /note/{note_id}
//	notebook.[title].get   -> GET  /notebook/{title}
//
// A pattern with at least one bracketed segment is dynamic; it matches
// any key with the same segment count whose literal segments are equal,
// with each bracketed segment matching any non-empty value.

type segment struct {
	literal string
	param   string // non-empty for [name] wildcard segments
}

func (s segment) wildcard() bool { return s.param != "" }

// parseSegment classifies one dot segment. A bracketed name must be
// non-empty and must not start with a digit.
func parseSegment(raw string) (segment, error) {
	if raw == "" {
		return segment{}, NewError(CodeConfiguration, "empty key segment")
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		name := strings.TrimSpace(raw[1 : len(raw)-1])
		if name == "" || (name[0] >= '0' && name[0] <= '9') {
			return segment{}, Errorf(CodeConfiguration, "invalid parameter segment %q", raw)
		}
		return segment{param: name}, nil
	}
	return segment{literal: raw}, nil
}

type pattern struct {
	key      string
	segments []segment
}

// parsePattern parses a declared endpoint key or dynamic pattern.
// The last segment must be a recognized method token and cannot be a
// placeholder.
func parsePattern(key string) (pattern, error) {
	parts := strings.Split(key, ".")
	segs := make([]segment, 0, len(parts))
	seen := map[string]bool{}
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return pattern{}, Errorf(CodeConfiguration, "key %q: %s", key, err.(*Error).Message)
		}
		if seg.wildcard() {
			if seen[seg.param] {
				return pattern{}, Errorf(CodeConfiguration, "key %q: duplicate parameter %q", key, seg.param)
			}
			seen[seg.param] = true
		}
		segs = append(segs, seg)
	}
	last := segs[len(segs)-1]
	if last.wildcard() {
		return pattern{}, Errorf(CodeConfiguration, "key %q: method segment cannot be a parameter", key)
	}
	if _, ok := httpMethods[strings.ToLower(last.literal)]; !ok {
		return pattern{}, Errorf(CodeConfiguration, "key %q: last segment %q is not a method token", key, last.literal)
	}
	return pattern{key: key, segments: segs}, nil
}

func (p pattern) dynamic() bool {
	for _, s := range p.segments {
		if s.wildcard() {
			return true
		}
	}
	return false
}

// match checks the key parts against the pattern: same segment count,
// literal segments equal, wildcards matching any non-empty value. On a
// match it returns the wildcard values by parameter name.
func (p pattern) match(parts []string) (map[string]string, bool) {
	if len(parts) != len(p.segments) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range p.segments {
		if seg.wildcard() {
			if parts[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg.param] = parts[i]
			continue
		}
		if parts[i] != seg.literal {
			return nil, false
		}
	}
	return params, true
}

// shadows reports whether every key matched by q is also matched by p.
// When p precedes q in the dynamic list, q is unreachable.
func (p pattern) shadows(q pattern) bool {
	if len(p.segments) != len(q.segments) {
		return false
	}
	for i, ps := range p.segments {
		if ps.wildcard() {
			continue
		}
		qs := q.segments[i]
		if qs.wildcard() || qs.literal != ps.literal {
			return false
		}
	}
	return true
}
