package log

// Logger receives protocol capture events.
// Implementations must be safe for concurrent use and must not block;
// the client calls Log while holding its lock.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. Its zero value is ready to use.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Func adapts a function to a Logger.
type Func func(Event)

// Log calls f.
func (f Func) Log(event Event) { f(event) }

var (
	_ Logger = NoopLogger{}
	_ Logger = Func(nil)
)
