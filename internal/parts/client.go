package parts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tonimelisma/copy-go/internal/rpc"
	"github.com/tonimelisma/copy-go/pkg/fingerprint"
)

// partRef is one entry of a part request.
type partRef struct {
	ShareID     ShareID `json:"share_id"`
	Fingerprint string  `json:"fingerprint"`
	Size        uint64  `json:"size"`
	Data        string  `json:"data,omitempty"`
}

type partsRequest struct {
	Parts []partRef `json:"parts"`
}

// partStatus is a per-part entry in a response. Message is set when the
// store reports a problem with this part.
type partStatus struct {
	Fingerprint string `json:"fingerprint"`
	Size        uint64 `json:"size"`
	Message     string `json:"message"`
}

type hasPartsResult struct {
	NeededParts []partStatus `json:"needed_parts"`
}

type sendPartsResult struct {
	HasFailedParts bool         `json:"has_failed_parts"`
	FailedParts    []partStatus `json:"failed_parts"`
}

type getPartsResult struct {
	Parts []partStatus `json:"parts"`
}

// Client talks to the part store through a Transport. Every method is one
// round trip; none of them retry. It holds no mutable state and is safe
// for concurrent use.
type Client struct {
	transport rpc.Transport
	logger    *slog.Logger
}

// NewClient creates a part store client on top of t.
func NewClient(t rpc.Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{transport: t, logger: logger}
}

// HasPart asks the store whether it needs the part identified by fp and
// size under share. needed is false when the store already holds it.
// A needed-part entry carrying a message means the check itself failed and
// is returned as a *rpc.ProtocolError.
func (c *Client) HasPart(ctx context.Context, fp string, size uint64, share ShareID) (bool, error) {
	req := partsRequest{Parts: []partRef{{ShareID: share, Fingerprint: fp, Size: size}}}

	var res hasPartsResult
	if err := rpc.Invoke(ctx, c.transport, rpc.MethodHasParts, req, &res); err != nil {
		return false, err
	}

	if len(res.NeededParts) == 0 {
		c.logger.Debug("part already stored",
			slog.String("fingerprint", fp),
			slog.Uint64("size", size),
			slog.String("share_id", share.String()),
		)

		return false, nil
	}

	if msg := res.NeededParts[0].Message; msg != "" {
		return false, &rpc.ProtocolError{
			Method:      rpc.MethodHasParts,
			Reason:      rpc.ReasonPartError,
			Detail:      msg,
			Fingerprint: fp,
		}
	}

	c.logger.Debug("part needed",
		slog.String("fingerprint", fp),
		slog.Uint64("size", size),
		slog.String("share_id", share.String()),
	)

	return true, nil
}

// SendPart uploads data as the part fp of length size under share. The data
// is verified against fp and size first; a mismatch is returned as a
// *rpc.IntegrityError without contacting the store.
func (c *Client) SendPart(ctx context.Context, fp string, size uint64, data []byte, share ShareID) error {
	if uint64(len(data)) != size {
		return &rpc.IntegrityError{Fingerprint: fp, Size: size, ActualSize: uint64(len(data))}
	}

	if actual := fingerprint.Sum(data); actual != fp {
		return &rpc.IntegrityError{Fingerprint: fp, Actual: actual, Size: size, ActualSize: size}
	}

	req := partsRequest{Parts: []partRef{{
		ShareID:     share,
		Fingerprint: fp,
		Size:        size,
		Data:        "BinaryData-0-" + strconv.FormatUint(size, 10),
	}}}

	header, err := rpc.EncodeRequest(rpc.MethodSendParts, req)
	if err != nil {
		return err
	}

	raw, err := c.transport.Call(ctx, rpc.MethodSendParts, rpc.EncodeBinary(header, data))
	if err != nil {
		return err
	}

	var res sendPartsResult
	if err := rpc.DecodeResponse(rpc.MethodSendParts, raw, &res); err != nil {
		return err
	}

	if res.HasFailedParts {
		rerr := &rpc.RemoteError{Method: rpc.MethodSendParts, Fingerprint: fp, Message: "part rejected"}
		if len(res.FailedParts) > 0 && res.FailedParts[0].Message != "" {
			rerr.Message = res.FailedParts[0].Message
		}

		return rerr
	}

	c.logger.Debug("part sent",
		slog.String("fingerprint", fp),
		slog.Uint64("size", size),
		slog.String("share_id", share.String()),
	)

	return nil
}

// GetPart fetches the bytes of part fp under share. The response is a JSON
// header, a NUL byte and the raw payload; every framing violation, an
// error in the header, an empty payload and a payload whose length is not
// size are returned as *rpc.ProtocolError.
func (c *Client) GetPart(ctx context.Context, fp string, size uint64, share ShareID) ([]byte, error) {
	req := partsRequest{Parts: []partRef{{ShareID: share, Fingerprint: fp, Size: size}}}

	body, err := rpc.EncodeRequest(rpc.MethodGetParts, req)
	if err != nil {
		return nil, err
	}

	raw, err := c.transport.Call(ctx, rpc.MethodGetParts, body)
	if err != nil {
		return nil, err
	}

	protoErr := func(reason, detail string) error {
		return &rpc.ProtocolError{Method: rpc.MethodGetParts, Reason: reason, Detail: detail, Fingerprint: fp}
	}

	header, payload, ok := rpc.SplitBinary(raw)
	if !ok {
		return nil, protoErr(rpc.ReasonMissingNUL, "")
	}

	if len(header) == 0 {
		return nil, protoErr(rpc.ReasonEmptyHeader, "")
	}

	var res getPartsResult
	if err := rpc.DecodeResponse(rpc.MethodGetParts, header, &res); err != nil {
		// An error in the part header means the part data is unusable.
		var rerr *rpc.RemoteError
		if errors.As(err, &rerr) {
			return nil, protoErr(rpc.ReasonErrorResponse, fmt.Sprintf("code %d: %s", rerr.Code, rerr.Message))
		}

		return nil, err
	}

	if len(res.Parts) == 0 {
		return nil, protoErr(rpc.ReasonUnexpectedParts, "response lists no parts")
	}

	if msg := res.Parts[0].Message; msg != "" {
		return nil, protoErr(rpc.ReasonPartError, msg)
	}

	if len(payload) == 0 {
		return nil, protoErr(rpc.ReasonEmptyPayload, "")
	}

	if uint64(len(payload)) != size {
		return nil, protoErr(rpc.ReasonSizeMismatch, fmt.Sprintf("got %d bytes, want %d", len(payload), size))
	}

	c.logger.Debug("part fetched",
		slog.String("fingerprint", fp),
		slog.Uint64("size", size),
		slog.String("share_id", share.String()),
	)

	return payload, nil
}
