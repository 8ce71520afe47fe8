package relayerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Category identifies where a failed outbound call went wrong.
type Category string

const (
	// UpstreamRejected: the request was sent and the upstream answered with a
	// non-2xx status.
	UpstreamRejected Category = "upstream_rejected"
	// UpstreamUnreachable: the request was sent but no response came back
	// (timeout, connection reset, DNS failure).
	UpstreamUnreachable Category = "upstream_unreachable"
	// LocalFault: the request could not even be constructed or dispatched.
	LocalFault Category = "local_fault"
)

// Failure records a failed outbound call with enough detail to classify it.
// StatusCode is non-zero only when the upstream produced a response; Sent
// marks whether the request left the process at all.
type Failure struct {
	Op         string // e.g. "token_exchange", "fhir.create"
	StatusCode int
	Body       []byte
	Sent       bool
	Err        error
}

func (f *Failure) Error() string {
	switch {
	case f.StatusCode != 0:
		return fmt.Sprintf("%s: upstream returned %d: %s", f.Op, f.StatusCode, f.Body)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Op, f.Err)
	default:
		return f.Op + ": request failed"
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// Classified is the caller-visible form of a failure: the HTTP status to
// report and the uniform {message, error} body.
type Classified struct {
	Category Category
	Status   int
	Message  string
	Detail   any
}

// JSON returns the uniform response body for this failure.
func (c Classified) JSON() map[string]any {
	return map[string]any{
		"message": c.Message,
		"error":   c.Detail,
	}
}

// Classify maps any error from an outbound call into one of the three
// categories. It is the single classification path for token acquisition and
// every relay operation; nothing reaches the caller unformatted.
func Classify(err error) Classified {
	var f *Failure
	if errors.As(err, &f) {
		if f.StatusCode != 0 {
			return Classified{
				Category: UpstreamRejected,
				Status:   f.StatusCode,
				Message:  "FHIR-Server Error",
				Detail:   rawDetail(f.Body),
			}
		}
		if f.Sent {
			return Classified{
				Category: UpstreamUnreachable,
				Status:   http.StatusInternalServerError,
				Message:  "No response received from FHIR service",
				Detail:   errDetail(f.Err),
			}
		}
	}
	return Classified{
		Category: LocalFault,
		Status:   http.StatusInternalServerError,
		Message:  "Error processing your request",
		Detail:   errDetail(err),
	}
}

// rawDetail preserves the upstream payload verbatim when it is valid JSON,
// falling back to a plain string.
func rawDetail(body []byte) any {
	if len(body) == 0 {
		return ""
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
