package wire

// Method is the discriminator carried by every frame.
type Method string

const (
	// MethodAuth authenticates the connection with a token.
	// Required before any other command when the device has tokens enabled.
	MethodAuth Method = "auth"

	// MethodGet queries a node or value once.
	MethodGet Method = "get"

	// MethodSet writes one or more values.
	MethodSet Method = "set"

	// MethodSubscribe registers for change pushes below a node.
	MethodSubscribe Method = "subscribe"

	// MethodUpdate is an unsolicited push of changed device state.
	// Direction: device to client only.
	MethodUpdate Method = "update"
)

// String returns the method name.
func (m Method) String() string {
	if m == "" {
		return "unknown"
	}
	return string(m)
}

// IsValid returns true for the methods of the control API.
func (m Method) IsValid() bool {
	switch m {
	case MethodAuth, MethodGet, MethodSet, MethodSubscribe, MethodUpdate:
		return true
	default:
		return false
	}
}

// IsRequest returns true for methods the client may send.
func (m Method) IsRequest() bool {
	return m.IsValid() && m != MethodUpdate
}

// ParseMethod converts a method name, returning false for unknown names.
func ParseMethod(s string) (Method, bool) {
	m := Method(s)
	return m, m.IsValid()
}
