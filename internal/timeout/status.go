package timeout

import "fmt"

// Status describes how an ingestion request's processing concluded.
type Status struct {
	kind      statusKind
	reason    string
	processed int
	total     int
}

type statusKind int

const (
	StatusSuccess statusKind = iota
	StatusPartialSuccess
	StatusTimeout
	StatusBackgroundRecommended
)

// Success reports a request that fully completed inline.
func Success() Status { return Status{kind: StatusSuccess} }

// PartialSuccess reports a request that completed with some metrics
// rejected or skipped, named by reason.
func PartialSuccess(reason string) Status {
	return Status{kind: StatusPartialSuccess, reason: reason}
}

// Timeout reports a request that ran out of its processing budget
// after committing processed of total metrics.
func Timeout(processed, total int) Status {
	return Status{kind: StatusTimeout, processed: processed, total: total}
}

// BackgroundRecommended reports a request routed to background
// processing instead of running inline, named by reason.
func BackgroundRecommended(reason string) Status {
	return Status{kind: StatusBackgroundRecommended, reason: reason}
}

// Kind returns the status's discriminator.
func (s Status) Kind() statusKind { return s.kind }

// ShouldReturnAccepted reports whether the HTTP response for this
// status should report 202 Accepted rather than 200 OK.
func (s Status) ShouldReturnAccepted() bool {
	return s.kind == StatusPartialSuccess || s.kind == StatusTimeout
}

// Message renders a human-readable summary of the status.
func (s Status) Message() string {
	switch s.kind {
	case StatusSuccess:
		return "processing completed successfully"
	case StatusPartialSuccess:
		return fmt.Sprintf("partial processing completed: %s", s.reason)
	case StatusTimeout:
		return fmt.Sprintf("processing timed out, processed %d/%d metrics", s.processed, s.total)
	case StatusBackgroundRecommended:
		return fmt.Sprintf("background processing recommended: %s", s.reason)
	default:
		return "unknown processing status"
	}
}

// Processed returns the processed count for a StatusTimeout, and 0
// otherwise.
func (s Status) Processed() int { return s.processed }

// Total returns the total count for a StatusTimeout, and 0 otherwise.
func (s Status) Total() int { return s.total }
