package middleware

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"
)

// ContentTypeJSON is the JSON content type.
const ContentTypeJSON = "application/json"

// Error response bodies.
const (
	errBadRequestBody        = `{"error":"bad request","message":"failed to read request body"}`
	errRequestEntityTooLarge = `{"error":"request entity too large"}`
)
