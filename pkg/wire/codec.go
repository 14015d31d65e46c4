package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dhd-bridge/dhd-go/pkg/path"
)

// Decode errors.
var (
	ErrNotJSON        = errors.New("frame is not valid JSON")
	ErrMalformedFrame = errors.New("malformed frame")
)

// maxErrorData bounds the raw bytes kept in a DecodeError.
const maxErrorData = 256

// DecodeError reports a frame that could not be decoded.
// The connection stays usable; the frame is discarded.
type DecodeError struct {
	// Err is ErrNotJSON or ErrMalformedFrame, possibly wrapping a cause.
	Err error

	// Data is the start of the offending frame.
	Data []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newDecodeError(err error, data []byte) *DecodeError {
	if len(data) > maxErrorData {
		data = data[:maxErrorData]
	}
	return &DecodeError{Err: err, Data: append([]byte(nil), data...)}
}

// EncodeRequest validates and encodes a request.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return json.Marshal(req)
}

// Encode builds and encodes a request for method.
// For auth the second argument is the token.
func Encode(method Method, pathOrToken string, payload any) ([]byte, error) {
	req := &Request{Method: method, Payload: payload}
	if method == MethodAuth {
		req.Token = pathOrToken
	} else {
		req.Path = pathOrToken
	}
	return EncodeRequest(req)
}

// EncodeAuth encodes {"method":"auth","token":token}.
func EncodeAuth(token string) ([]byte, error) {
	return EncodeRequest(&Request{Method: MethodAuth, Token: token})
}

// EncodeGet encodes {"method":"get","path":p}.
func EncodeGet(p string) ([]byte, error) {
	return EncodeRequest(&Request{Method: MethodGet, Path: p})
}

// EncodeSet encodes {"method":"set","path":p,"payload":payload}.
func EncodeSet(p string, payload any) ([]byte, error) {
	return EncodeRequest(&Request{Method: MethodSet, Path: p, Payload: payload})
}

// EncodeSubscribe encodes {"method":"subscribe","path":p}.
func EncodeSubscribe(p string) ([]byte, error) {
	return EncodeRequest(&Request{Method: MethodSubscribe, Path: p})
}

// rawFrame is the permissive superset of every incoming shape.
type rawFrame struct {
	Method  *string         `json:"method"`
	Path    *string         `json:"path"`
	Payload json.RawMessage `json:"payload"`
	Success *bool           `json:"success"`
	Error   json.RawMessage `json:"error"`
}

// Decode parses and classifies one incoming frame.
func Decode(data []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, newDecodeError(ErrNotJSON, data)
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, newDecodeError(fmt.Errorf("%w: not a JSON object", ErrMalformedFrame), data)
	}

	var raw rawFrame
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, newDecodeError(fmt.Errorf("%w: %v", ErrMalformedFrame, err), data)
	}
	if raw.Method == nil {
		return nil, newDecodeError(fmt.Errorf("%w: missing method", ErrMalformedFrame), data)
	}

	payload, hasPayload, err := decodePayload(raw.Payload)
	if err != nil {
		return nil, newDecodeError(fmt.Errorf("%w: payload: %v", ErrMalformedFrame, err), data)
	}

	method := Method(*raw.Method)
	p := ""
	if raw.Path != nil {
		p = path.Normalize(*raw.Path)
	}
	failed := raw.Success != nil && !*raw.Success

	switch {
	case method == MethodGet && raw.Path != nil && p == LivenessPath:
		return &HeartbeatResponse{Success: !failed, Payload: payload}, nil

	case method == MethodUpdate:
		if !hasPayload {
			return &Unroutable{Method: method, Path: p, Reason: "update without payload"}, nil
		}
		return &Update{Path: p, Payload: payload}, nil

	case method == MethodGet || method == MethodSet:
		if failed {
			return &Failure{Method: method, Path: p, Error: errorText(raw.Error)}, nil
		}
		if raw.Path == nil {
			return &Unroutable{Method: method, Reason: "response without path"}, nil
		}
		return &Response{Method: method, Path: p, Payload: payload, HasPayload: hasPayload}, nil

	case method == MethodAuth:
		return &AuthAck{Success: !failed, Error: errorText(raw.Error)}, nil

	case method == MethodSubscribe:
		return &SubscribeAck{Path: p, Success: !failed, Error: errorText(raw.Error)}, nil

	default:
		return &Unroutable{Method: method, Path: p, Reason: "unknown method"}, nil
	}
}

func decodePayload(raw json.RawMessage) (any, bool, error) {
	if raw == nil {
		return nil, false, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// errorText renders the error member, which devices send as a string or as
// an object.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// DecodeRequest parses a client request, as seen by the device side.
// Paths are normalized. Unknown or device-only methods are rejected.
func DecodeRequest(data []byte) (*Request, error) {
	var raw struct {
		Method  string          `json:"method"`
		Token   string          `json:"token"`
		Path    string          `json:"path"`
		Payload json.RawMessage `json:"payload"`
	}
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, newDecodeError(ErrNotJSON, data)
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, newDecodeError(fmt.Errorf("%w: %v", ErrMalformedFrame, err), data)
	}

	payload, _, err := decodePayload(raw.Payload)
	if err != nil {
		return nil, newDecodeError(fmt.Errorf("%w: payload: %v", ErrMalformedFrame, err), data)
	}

	req := &Request{
		Method:  Method(raw.Method),
		Token:   raw.Token,
		Path:    path.Normalize(raw.Path),
		Payload: payload,
	}
	if err := req.Validate(); err != nil {
		return nil, newDecodeError(fmt.Errorf("%w: %v", ErrMalformedFrame, err), data)
	}
	return req, nil
}
