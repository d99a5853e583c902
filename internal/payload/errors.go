package payload

import "errors"

// Sentinel errors the HTTP layer maps to specific status codes.
// Checked with errors.Is so wrapping with context never loses the
// caller's ability to classify the failure.
var (
	ErrPayloadTooLarge  = errors.New("payload: exceeds maximum size")
	ErrStructuralUnsafe = errors.New("payload: failed structural safety check")
	ErrParseFailed      = errors.New("payload: could not be parsed under either dialect")
	ErrParseTimeout     = errors.New("payload: parse exceeded wall-clock timeout")
	ErrUnknownUnit      = errors.New("payload: unrecognized unit")
)

// ProcessingError is a per-sample failure collected rather than
// short-circuiting the rest of the payload. IndexInPayload
// is -1 when the failure isn't attributable to one array element.
type ProcessingError struct {
	Family         string
	Message        string
	IndexInPayload int
}

func (e ProcessingError) Error() string {
	return e.Family + ": " + e.Message
}

// DialectParseError carries both dialects' diagnostics plus the JSON
// path each one failed at, so a caller debugging a malformed payload
// doesn't have to guess which parser got closer.
type DialectParseError struct {
	DialectAErr  error
	DialectAPath string
	DialectBErr  error
	DialectBPath string
}

func (e *DialectParseError) Error() string {
	return "payload: dialect A failed at " + e.DialectAPath + " (" + e.DialectAErr.Error() +
		"); dialect B failed at " + e.DialectBPath + " (" + e.DialectBErr.Error() + ")"
}

func (e *DialectParseError) Unwrap() error { return ErrParseFailed }
