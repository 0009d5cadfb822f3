package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Remote method names.
const (
	MethodHasParts     = "has_object_parts_v2"
	MethodSendParts    = "send_object_parts_v2"
	MethodGetParts     = "get_object_parts_v2"
	MethodListObjects  = "list_objects"
	MethodUpdateObject = "update_objects"
)

// Endpoint paths relative to the API host.
const (
	endpointJSON   = "/jsonrpc"
	endpointBinary = "/jsonrpc_binary"
)

const (
	jsonRPCVersion = "2.0"

	// separator divides the JSON header from the raw part bytes in binary
	// request and response bodies.
	separator = 0x00
)

// Transport sends one encoded request for a named remote method and returns
// the raw response body. Implementations own retry and timeout policy.
type Transport interface {
	Call(ctx context.Context, method string, body []byte) ([]byte, error)
}

// request is the JSON-RPC request envelope. Field order is the wire order.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// response is the JSON-RPC response envelope.
type response struct {
	Result json.RawMessage `json:"result"`
	Error  *responseError  `json:"error"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// IsBinaryMethod reports whether method uses the binary part endpoint.
func IsBinaryMethod(method string) bool {
	switch method {
	case MethodHasParts, MethodSendParts, MethodGetParts:
		return true
	default:
		return false
	}
}

// Endpoint returns the endpoint path that serves method.
func Endpoint(method string) string {
	if IsBinaryMethod(method) {
		return endpointBinary
	}

	return endpointJSON
}

// EncodeRequest wraps params in a JSON-RPC envelope for method. Slashes and
// HTML characters are emitted unescaped.
func EncodeRequest(method string, params any) ([]byte, error) {
	if params == nil {
		params = struct{}{}
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(request{JSONRPC: jsonRPCVersion, ID: 0, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("rpc: encoding %s request: %w", method, err)
	}

	// Encoder.Encode terminates the value with a newline.
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// EncodeBinary builds a binary request body: header, one NUL byte, data.
func EncodeBinary(header, data []byte) []byte {
	body := make([]byte, 0, len(header)+1+len(data))
	body = append(body, header...)
	body = append(body, separator)

	return append(body, data...)
}

// SplitBinary splits a binary response body at the first NUL byte into the
// JSON header and the raw payload. ok is false when there is no NUL byte.
func SplitBinary(raw []byte) (header, payload []byte, ok bool) {
	idx := bytes.IndexByte(raw, separator)
	if idx < 0 {
		return raw, nil, false
	}

	return raw[:idx], raw[idx+1:], true
}

// DecodeResponse parses a JSON-RPC response for method into result. A
// top-level error object becomes a *RemoteError; anything undecodable
// becomes a *ProtocolError. result may be nil to only check for errors.
func DecodeResponse(method string, raw []byte, result any) error {
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return &ProtocolError{Method: method, Reason: ReasonMalformedJSON, Err: err}
	}

	if resp.Error != nil {
		return &RemoteError{Method: method, Code: resp.Error.Code, Message: resp.Error.Message}
	}

	if len(resp.Result) == 0 || bytes.Equal(resp.Result, []byte("null")) {
		return &ProtocolError{Method: method, Reason: ReasonMissingResult}
	}

	if result == nil {
		return nil
	}

	if err := json.Unmarshal(resp.Result, result); err != nil {
		return &ProtocolError{Method: method, Reason: ReasonMalformedJSON, Err: err}
	}

	return nil
}

// Invoke encodes params, sends them through t and decodes the result.
func Invoke(ctx context.Context, t Transport, method string, params, result any) error {
	body, err := EncodeRequest(method, params)
	if err != nil {
		return err
	}

	raw, err := t.Call(ctx, method, body)
	if err != nil {
		return err
	}

	return DecodeResponse(method, raw, result)
}
