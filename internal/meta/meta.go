// Package meta holds runtime metadata for registered endpoints.
package meta

import (
	"reflect"
	"time"
)

// EndpointMetadata holds the runtime metadata for a registered endpoint.
// This type is internal so it cannot be instantiated by external
// packages, which allows us to seal the Endpoint interface.
type EndpointMetadata struct {
	Key      string
	Method   string
	Path     string
	Request  reflect.Type
	Response reflect.Type
	CacheTTL time.Duration
}
