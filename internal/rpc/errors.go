// Package rpc provides the JSON-RPC transport for the Copy cloud API:
// request envelopes, endpoint and header selection, authentication,
// retry with backoff, and the error taxonomy shared by every layer above it.
package rpc

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error produced by this module's transfer layers
// unwraps to exactly one of these; use errors.Is to classify.
var (
	// ErrIntegrity marks a local fingerprint or size mismatch detected
	// before anything was sent.
	ErrIntegrity = errors.New("rpc: integrity check failed")
	// ErrRemote marks a transport failure or an operation the remote
	// store reported as failed.
	ErrRemote = errors.New("rpc: remote failure")
	// ErrProtocol marks a response that could not be decoded.
	ErrProtocol = errors.New("rpc: protocol violation")
	// ErrNotFound marks a metadata lookup that matched nothing or more
	// than one object.
	ErrNotFound = errors.New("rpc: object not found")
	// ErrTypeMismatch marks a metadata lookup that resolved to the wrong
	// object type.
	ErrTypeMismatch = errors.New("rpc: object type mismatch")
)

// HTTP status sentinels carried as the cause of a RemoteError.
var (
	ErrUnauthorized = errors.New("rpc: unauthorized")
	ErrForbidden    = errors.New("rpc: forbidden")
	ErrThrottled    = errors.New("rpc: throttled")
	ErrServerError  = errors.New("rpc: server error")
)

// RemoteError reports a failed round trip: either the transport could not
// complete the call, or the remote answered with an error. Fingerprint is
// set when the failure concerns one specific part.
type RemoteError struct {
	Method      string
	StatusCode  int // HTTP status; 0 when the failure is in the JSON body or the network
	Code        int // JSON-RPC error code; 0 when not reported
	Message     string
	Fingerprint string
	Err         error // underlying cause, may be nil
}

func (e *RemoteError) Error() string {
	msg := "rpc: " + e.Method

	switch {
	case e.StatusCode != 0:
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	case e.Code != 0:
		msg += fmt.Sprintf(": code %d", e.Code)
	}

	if e.Fingerprint != "" {
		msg += ": part " + e.Fingerprint
	}

	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Err != nil && e.StatusCode == 0 {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *RemoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRemote}
	}

	return []error{ErrRemote, e.Err}
}

// Protocol violation reasons. They share one error type but stay distinct
// for diagnostics.
const (
	ReasonMalformedJSON   = "malformed json"
	ReasonMissingResult   = "missing result"
	ReasonErrorResponse   = "error response"
	ReasonMissingNUL      = "missing NUL separator"
	ReasonEmptyHeader     = "empty json header"
	ReasonEmptyPayload    = "empty binary payload"
	ReasonPartError       = "part error"
	ReasonSizeMismatch    = "size mismatch"
	ReasonUnexpectedParts = "unexpected part count"
)

// ProtocolError reports a response that violates the expected framing or
// shape. Detail carries the remote message or the measured values.
type ProtocolError struct {
	Method      string
	Reason      string
	Detail      string
	Fingerprint string
	Err         error // e.g. the json decode error, may be nil
}

func (e *ProtocolError) Error() string {
	msg := "rpc: " + e.Method + ": " + e.Reason

	if e.Fingerprint != "" {
		msg += ": part " + e.Fingerprint
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ProtocolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProtocol}
	}

	return []error{ErrProtocol, e.Err}
}

// IntegrityError reports data that does not match the fingerprint or size
// it is being sent under. It is raised before any network activity.
type IntegrityError struct {
	Fingerprint string
	Actual      string
	Size        uint64
	ActualSize  uint64
}

func (e *IntegrityError) Error() string {
	if e.Size != e.ActualSize {
		return fmt.Sprintf("rpc: part %s: size %d does not match data length %d",
			e.Fingerprint, e.Size, e.ActualSize)
	}

	return fmt.Sprintf("rpc: part %s: data fingerprints to %s", e.Fingerprint, e.Actual)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}

// classifyStatus maps an HTTP status code to a sentinel cause.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
