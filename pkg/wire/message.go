package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dhd-bridge/dhd-go/pkg/path"
)

// LivenessPath is queried periodically to detect connection health.
// Responses for it are consumed by the heartbeat and never routed.
const LivenessPath = "general/_uptime"

// Request errors.
var (
	ErrEmptyToken    = errors.New("auth requires a non-empty token")
	ErrEmptyPath     = errors.New("set requires a path")
	ErrInvalidMethod = errors.New("invalid request method")
)

// Request is an outgoing frame.
//
// JSON encoding depends on Method:
//
//	auth:      {"method":"auth","token":...}
//	get:       {"method":"get","path":...}
//	set:       {"method":"set","path":...,"payload":...}
//	subscribe: {"method":"subscribe","path":...}
type Request struct {
	Method  Method
	Token   string
	Path    string
	Payload any
}

// Validate checks that the request can be sent.
func (r *Request) Validate() error {
	if !r.Method.IsRequest() {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, string(r.Method))
	}
	switch r.Method {
	case MethodAuth:
		if r.Token == "" {
			return ErrEmptyToken
		}
	case MethodSet:
		if path.Normalize(r.Path) == "" {
			return ErrEmptyPath
		}
	}
	return nil
}

type authRequest struct {
	Method Method `json:"method"`
	Token  string `json:"token"`
}

type pathRequest struct {
	Method Method `json:"method"`
	Path   string `json:"path"`
}

type setRequest struct {
	Method  Method `json:"method"`
	Path    string `json:"path"`
	Payload any    `json:"payload"`
}

// MarshalJSON encodes the request in its method-specific shape.
// Paths are normalized.
func (r Request) MarshalJSON() ([]byte, error) {
	switch r.Method {
	case MethodAuth:
		return json.Marshal(authRequest{Method: r.Method, Token: r.Token})
	case MethodSet:
		return json.Marshal(setRequest{Method: r.Method, Path: path.Normalize(r.Path), Payload: r.Payload})
	default:
		return json.Marshal(pathRequest{Method: r.Method, Path: path.Normalize(r.Path)})
	}
}

// FrameKind classifies a decoded frame.
type FrameKind uint8

const (
	// KindUnroutable is a frame that matched no other class.
	KindUnroutable FrameKind = iota

	// KindAuthAck is the device's reply to auth.
	KindAuthAck

	// KindGetResponse is a successful direct get reply.
	KindGetResponse

	// KindSetResponse is a successful direct set reply.
	KindSetResponse

	// KindSubscribeAck is the device's reply to subscribe.
	KindSubscribeAck

	// KindUpdate is a pushed subtree of changed state.
	KindUpdate

	// KindHeartbeat is the reply to a liveness get.
	KindHeartbeat

	// KindFailure is a get/set reply carrying success=false.
	KindFailure
)

// String returns the kind name.
func (k FrameKind) String() string {
	switch k {
	case KindUnroutable:
		return "UNROUTABLE"
	case KindAuthAck:
		return "AUTH_ACK"
	case KindGetResponse:
		return "GET_RESPONSE"
	case KindSetResponse:
		return "SET_RESPONSE"
	case KindSubscribeAck:
		return "SUBSCRIBE_ACK"
	case KindUpdate:
		return "UPDATE"
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Frame is one classified incoming frame. The set of implementations is
// closed: *AuthAck, *Response, *Failure, *SubscribeAck, *Update,
// *HeartbeatResponse and *Unroutable.
type Frame interface {
	Kind() FrameKind
	isFrame()
}

// AuthAck is the reply to an auth request.
type AuthAck struct {
	Success bool
	Error   string
}

// Response is a successful direct reply to get or set.
type Response struct {
	Method Method

	// Path is the normalized path the reply is for.
	Path string

	// Payload is the value at Path. Only meaningful if HasPayload.
	Payload    any
	HasPayload bool
}

// Failure is a get or set reply with success=false.
type Failure struct {
	Method Method
	Path   string
	Error  string
}

// SubscribeAck is the reply to a subscribe request.
type SubscribeAck struct {
	Path    string
	Success bool
	Error   string
}

// Update is a push of changed device state. Payload is shaped like the
// device tree from its root; values for a path are found with path.Lookup.
type Update struct {
	// Path is informational; extraction always starts at the root.
	Path    string
	Payload any
}

// HeartbeatResponse is the reply to the periodic liveness get.
type HeartbeatResponse struct {
	Success bool
	Payload any
}

// Unroutable is a well-formed frame that matched no known class.
type Unroutable struct {
	Method Method
	Path   string
	Reason string
}

func (*AuthAck) Kind() FrameKind           { return KindAuthAck }
func (*Failure) Kind() FrameKind           { return KindFailure }
func (*SubscribeAck) Kind() FrameKind      { return KindSubscribeAck }
func (*Update) Kind() FrameKind            { return KindUpdate }
func (*HeartbeatResponse) Kind() FrameKind { return KindHeartbeat }
func (*Unroutable) Kind() FrameKind        { return KindUnroutable }

// Kind returns KindGetResponse or KindSetResponse.
func (r *Response) Kind() FrameKind {
	if r.Method == MethodSet {
		return KindSetResponse
	}
	return KindGetResponse
}

func (*AuthAck) isFrame()           {}
func (*Response) isFrame()          {}
func (*Failure) isFrame()           {}
func (*SubscribeAck) isFrame()      {}
func (*Update) isFrame()            {}
func (*HeartbeatResponse) isFrame() {}
func (*Unroutable) isFrame()        {}
