package tsunami

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"time"

	"github.com/gorilla/schema"
)

var queryEncoder = schema.NewEncoder()

func init() {
	queryEncoder.RegisterEncoder(time.Time{}, func(v reflect.Value) string {
		return v.Interface().(time.Time).Format(time.RFC3339)
	})
}

// encodeQuery serializes query parameters to url.Values.
//
// Maps follow the wire rules of the dispatch contract: nil values are
// omitted entirely, slices produce repeated keys, time values serialize
// to RFC 3339, and nested objects serialize to their canonical JSON
// encoding. Structs are encoded with gorilla/schema using `schema` tags.
func encodeQuery(params any) (url.Values, error) {
	switch q := params.(type) {
	case nil:
		return nil, nil
	case url.Values:
		return q, nil
	case map[string]any:
		return encodeQueryMap(q)
	case Fields:
		return encodeQueryMap(q)
	default:
		values := url.Values{}
		if err := queryEncoder.Encode(params, values); err != nil {
			return nil, Errorf(CodeConfiguration, "cannot encode query parameters: %v", err)
		}
		return values, nil
	}
}

func encodeQueryMap(params map[string]any) (url.Values, error) {
	values := url.Values{}
	for key, raw := range params {
		rv := reflect.ValueOf(raw)
		if raw == nil || (rv.Kind() == reflect.Ptr && rv.IsNil()) {
			continue
		}
		if rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
			raw = rv.Interface()
		}
		if isQuerySlice(rv) {
			for i := 0; i < rv.Len(); i++ {
				elem := rv.Index(i).Interface()
				if elem == nil {
					continue
				}
				s, err := queryValue(elem)
				if err != nil {
					return nil, err
				}
				values.Add(key, s)
			}
			continue
		}
		s, err := queryValue(raw)
		if err != nil {
			return nil, err
		}
		values.Add(key, s)
	}
	return values, nil
}

// isQuerySlice reports whether a value produces repeated query keys.
// Byte slices are treated as scalar strings, not repetition.
func isQuerySlice(rv reflect.Value) bool {
	if !rv.IsValid() {
		return false
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	return rv.Type().Elem().Kind() != reflect.Uint8
}

// queryValue renders one scalar query value.
func queryValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case json.Number:
		return x.String(), nil
	case time.Time:
		return x.Format(time.RFC3339), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		// Nested objects serialize to their canonical JSON encoding.
		b, err := json.Marshal(v)
		if err != nil {
			return "", Errorf(CodeConfiguration, "cannot encode query value: %v", err)
		}
		return string(b), nil
	}
}
