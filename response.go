package tsunami

import "encoding/json"

// Empty represents a void response. A handler returning Empty (or any
// nil result) produces an explicit 204 No Content, which the client
// surfaces as a distinct no-value success — never as an error.
//
// Example:
//
//	func DeleteNote(ctx context.Context, req *DeleteNoteRequest) (tsunami.Empty, error) {
//	    // ... delete the note
//	    return nil, nil
//	}
type Empty *struct{}

// errorResponse is the envelope type for error responses.
// Successful responses are written as plain JSON bodies; only errors are
// wrapped, in an {"error": {...}} structure.
type errorResponse struct {
	Error *Error `json:"error"`
}

// encodeErrorResponse writes an error response to the ResponseWriter.
func encodeErrorResponse(w jsonWriter, err *Error) error {
	return json.NewEncoder(w).Encode(errorResponse{Error: err})
}

// jsonWriter is satisfied by http.ResponseWriter and allows testing.
type jsonWriter interface {
	Write([]byte) (int, error)
}
