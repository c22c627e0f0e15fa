package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// UnknownProtocolError is returned when no factory is registered for a protocol.
type UnknownProtocolError struct {
	Protocol  string
	Available []string
}

func (e *UnknownProtocolError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown protocol %q: no protocol clients registered", e.Protocol)
	}
	return fmt.Sprintf("unknown protocol %q (available: %s)", e.Protocol, strings.Join(e.Available, ", "))
}

// ClientInitError wraps a failure to construct or initialise a protocol client.
type ClientInitError struct {
	Protocol string
	Err      error
}

func (e *ClientInitError) Error() string {
	return fmt.Sprintf("failed to initialise %s client: %v", e.Protocol, e.Err)
}

func (e *ClientInitError) Unwrap() error {
	return e.Err
}

// RequestShapeError reports a request that cannot be executed as built.
type RequestShapeError struct {
	Reason string
}

func (e *RequestShapeError) Error() string {
	return "malformed request: " + e.Reason
}

// UnsupportedMethodError reports a method the protocol client does not accept.
type UnsupportedMethodError struct {
	Protocol string
	Method   string
	Allowed  []string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("%s does not support method %q (allowed: %s)", e.Protocol, e.Method, strings.Join(e.Allowed, " "))
}

// TransportError wraps a network level failure. No response was produced.
type TransportError struct {
	Protocol string
	Method   string
	Target   string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s %s failed: %v", e.Protocol, e.Method, e.Target, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline expiry.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}
