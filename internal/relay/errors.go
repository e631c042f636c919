package relay

import (
	"errors"
	"net/http"
)

// Kind is the closed set of failures a request can end with.
type Kind int

const (
	InvalidRequest Kind = iota + 1
	UpstreamError
	RelayError
	DependencyMissing
	ResolutionError
	StreamingError
	RateLimited
)

func (k Kind) String() string {
	switch k {
	case InvalidRequest:
		return "InvalidRequest"
	case UpstreamError:
		return "UpstreamError"
	case RelayError:
		return "RelayError"
	case DependencyMissing:
		return "DependencyMissing"
	case ResolutionError:
		return "ResolutionError"
	case StreamingError:
		return "StreamingError"
	case RateLimited:
		return "RateLimited"
	default:
		return "Unknown"
	}
}

// Status is the HTTP status a Kind is reported with.
func (k Kind) Status() int {
	switch k {
	case InvalidRequest, UpstreamError:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// writeRelayError writes err as {"error": msg}. Errors outside the Kind set are
// reported as 500.
func writeRelayError(w http.ResponseWriter, err error) {
	var re *Error
	if errors.As(err, &re) {
		writeError(w, re.Kind.Status(), re.Msg)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
