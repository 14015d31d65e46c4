package action

// Event is a host surface event for one context.
type Event interface {
	EventContext() string
}

// WillAppear is sent when a widget becomes visible.
type WillAppear struct {
	Context  string
	Settings Settings
}

// WillDisappear is sent when a widget goes away.
type WillDisappear struct {
	Context string
}

// KeyUp is sent when a key is released.
type KeyUp struct {
	Context string
}

// DialRotate is sent when an encoder turns. Ticks is negative for
// counter-clockwise rotation.
type DialRotate struct {
	Context string
	Ticks   int
}

// DialPress is sent when an encoder is pushed.
type DialPress struct {
	Context string
}

// SettingsChanged carries new settings for a widget.
type SettingsChanged struct {
	Context  string
	Settings Settings
}

func (e WillAppear) EventContext() string      { return e.Context }
func (e WillDisappear) EventContext() string   { return e.Context }
func (e KeyUp) EventContext() string           { return e.Context }
func (e DialRotate) EventContext() string      { return e.Context }
func (e DialPress) EventContext() string       { return e.Context }
func (e SettingsChanged) EventContext() string { return e.Context }
