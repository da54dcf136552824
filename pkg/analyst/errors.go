package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
)

// Kind classifies a failed backend call
type Kind int

const (
	// KindUnknown is anything that could not be classified
	KindUnknown Kind = iota
	// KindServer means the backend answered with a non-success status
	KindServer
	// KindNetwork means no response was received
	KindNetwork
	// KindTimeout means the request exceeded its deadline
	KindTimeout
	// KindDecode means the backend answered but the body was not understood
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is returned by every Client call that fails
type Error struct {
	Op     string
	Kind   Kind
	Status int
	// Detail is the server-provided reason, if any
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindServer && e.Detail != "":
		return fmt.Sprintf("%s: server error %d: %s", e.Op, e.Status, e.Detail)
	case e.Kind == KindServer:
		return fmt.Sprintf("%s: server error %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// classifyTransport maps a transport-level failure (no HTTP status) to a Kind
func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}

	var urlErr *url.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &urlErr) {
		return KindNetwork
	}

	return KindUnknown
}

func newTransportError(op string, err error) *Error {
	return &Error{Op: op, Kind: classifyTransport(err), Err: err}
}

// newServerError extracts "detail" or "message" from an error body
func newServerError(op string, status int, body []byte) *Error {
	var eb errorBody
	detail := ""
	if err := json.Unmarshal(body, &eb); err == nil {
		switch d := eb.Detail.(type) {
		case string:
			detail = d
		case nil:
		default:
			// FastAPI validation errors carry a list of objects
			if b, err := json.Marshal(d); err == nil {
				detail = string(b)
			}
		}
		if detail == "" {
			detail = eb.Message
		}
	}

	return &Error{Op: op, Kind: KindServer, Status: status, Detail: detail}
}
