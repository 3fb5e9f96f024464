package tsunami

import (
	"fmt"
	"strings"
)

// Kind is the semantic value type of a shape field.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Field is one named member of a Shape.
type Field struct {
	Name string
	Kind Kind

	// Shape describes the nested shape for KindObject fields, and the
	// element shape for KindArray fields whose elements are objects.
	Shape *Shape

	// Elem is the element kind for KindArray fields with scalar elements.
	// Ignored when Shape is set.
	Elem Kind
}

// Str declares a string field.
func Str(name string) Field { return Field{Name: name, Kind: KindString} }

// Num declares a numeric field.
func Num(name string) Field { return Field{Name: name, Kind: KindNumber} }

// Bool declares a boolean field.
func Bool(name string) Field { return Field{Name: name, Kind: KindBool} }

// Obj declares a nested-shape field.
func Obj(name string, shape *Shape) Field {
	return Field{Name: name, Kind: KindObject, Shape: shape}
}

// Arr declares an array field with scalar elements.
func Arr(name string, elem Kind) Field {
	return Field{Name: name, Kind: KindArray, Elem: elem}
}

// ArrOf declares an array field whose elements follow a shape.
func ArrOf(name string, shape *Shape) Field {
	return Field{Name: name, Kind: KindArray, Shape: shape}
}

// Shape is a named, ordered, immutable field-set description. It describes
// the wire contract of a request body, response, query bundle, or path
// parameter bundle. Field order is fixed at declaration and used only for
// positional construction; the wire representation is always a keyed
// mapping. Shapes carry no behavior and never check field value types at
// runtime — that obligation stays with Go's type system on the typed path.
type Shape struct {
	name   string
	fields []Field
	index  map[string]int
}

// NewShape builds a shape from an ordered field list.
func NewShape(name string, fields ...Field) (*Shape, error) {
	if name == "" {
		return nil, NewError(CodeConfiguration, "shape name must not be empty")
	}
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, Errorf(CodeConfiguration, "shape %q: field %d has no name", name, i)
		}
		if f.Kind < KindString || f.Kind > KindArray {
			return nil, Errorf(CodeConfiguration, "shape %q: field %q has invalid kind", name, f.Name)
		}
		if _, dup := index[f.Name]; dup {
			return nil, Errorf(CodeConfiguration, "shape %q: duplicate field %q", name, f.Name)
		}
		index[f.Name] = i
	}
	return &Shape{
		name:   name,
		fields: append([]Field(nil), fields...),
		index:  index,
	}, nil
}

// Declare is like NewShape but panics on a malformed declaration.
// Shapes are declared once at startup, so a bad declaration is fatal.
func Declare(name string, fields ...Field) *Shape {
	s, err := NewShape(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the declared shape name.
func (s *Shape) Name() string { return s.name }

// Fields returns a copy of the ordered field list.
func (s *Shape) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Len returns the number of declared fields.
func (s *Shape) Len() int { return len(s.fields) }

// Has reports whether the shape declares a field with the given name.
func (s *Shape) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Fields is a keyed value produced by a shape constructor.
type Fields map[string]any

// New constructs a keyed value from positional arguments matching the
// declared field order. An arity mismatch is a construction error.
func (s *Shape) New(values ...any) (Fields, error) {
	if len(values) != len(s.fields) {
		return nil, Errorf(CodeConfiguration,
			"shape %q takes %d values, got %d", s.name, len(s.fields), len(values))
	}
	out := make(Fields, len(values))
	for i, f := range s.fields {
		out[f.Name] = values[i]
	}
	return out, nil
}

// Validate checks that a keyed value carries exactly the declared fields:
// no field missing, no extra field. Value types are not inspected.
func (s *Shape) Validate(v Fields) error {
	var missing, extra []string
	for _, f := range s.fields {
		if _, ok := v[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	for name := range v {
		if !s.Has(name) {
			extra = append(extra, name)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		parts = append(parts, "unexpected "+strings.Join(extra, ", "))
	}
	return Errorf(CodeInvalidArgument, "shape %q: %s", s.name, strings.Join(parts, "; "))
}

func (s *Shape) String() string {
	if s == nil {
		return "<none>"
	}
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return fmt.Sprintf("%s{%s}", s.name, strings.Join(names, ", "))
}
