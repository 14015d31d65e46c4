package surface

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/dhd-bridge/dhd-go/pkg/action"
)

// GridSize is the number of pad rows and columns.
const GridSize = 8

// Palette velocities for programmer mode.
const (
	ColorOff        uint8 = 0
	ColorDimGreen   uint8 = 19
	ColorGreen      uint8 = 21
	ColorDimYellow  uint8 = 97
	ColorYellow     uint8 = 13
	ColorBlue       uint8 = 45
	ColorDimBlue    uint8 = 43
	ColorUnassigned uint8 = 0
)

// ErrPortNotFound is returned when no MIDI port matches a name.
var ErrPortNotFound = errors.New("midi port not found")

// Binding binds a pad to an action context.
type Binding struct {
	Row     int
	Col     int
	Context string
}

// Pad is a grid position.
type Pad struct {
	Row, Col int
}

// DispatchFunc receives surface events.
type DispatchFunc func(action.Event) error

// Launchpad maps pad presses to action events and action state to pad
// colours.
type Launchpad struct {
	logger   *slog.Logger
	dispatch DispatchFunc

	byPad     map[Pad]string
	byContext map[string]Pad

	mu   sync.Mutex
	send func(gomidi.Message) error
	stop func()
}

var _ action.Renderer = (*Launchpad)(nil)

// New creates a Launchpad that writes with send. Input is fed through
// HandleMessage. A nil send discards output.
func New(send func(gomidi.Message) error, bindings []Binding, dispatch DispatchFunc, logger *slog.Logger) (*Launchpad, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if send == nil {
		send = func(gomidi.Message) error { return nil }
	}

	lp := &Launchpad{
		logger:    logger,
		dispatch:  dispatch,
		byPad:     make(map[Pad]string),
		byContext: make(map[string]Pad),
		send:      send,
	}
	for _, b := range bindings {
		if b.Row < 0 || b.Row >= GridSize || b.Col < 0 || b.Col >= GridSize {
			return nil, fmt.Errorf("pad (%d,%d) outside grid", b.Row, b.Col)
		}
		pad := Pad{Row: b.Row, Col: b.Col}
		lp.byPad[pad] = b.Context
		lp.byContext[b.Context] = pad
	}
	return lp, nil
}

// Open connects to MIDI ports and switches the device to programmer mode.
// out may be nil for an input-only surface.
func Open(in drivers.In, out drivers.Out, bindings []Binding, dispatch DispatchFunc, logger *slog.Logger) (*Launchpad, error) {
	var send func(gomidi.Message) error
	if out != nil {
		s, err := gomidi.SendTo(out)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		send = s
	}

	lp, err := New(send, bindings, dispatch, logger)
	if err != nil {
		return nil, err
	}
	if out != nil {
		lp.programmerMode()
	}

	if in != nil {
		stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, _ int32) {
			lp.HandleMessage(msg)
		})
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		lp.stop = stop
	}
	return lp, nil
}

// FindPorts returns the first input and output ports whose names contain
// the given substrings (case-insensitive). An empty output name skips the
// output.
func FindPorts(inName, outName string) (drivers.In, drivers.Out, error) {
	var in drivers.In
	for _, p := range gomidi.GetInPorts() {
		if containsFold(p.String(), inName) {
			in = p
			break
		}
	}
	if in == nil {
		return nil, nil, fmt.Errorf("%w: input %q", ErrPortNotFound, inName)
	}

	if outName == "" {
		return in, nil, nil
	}
	for _, p := range gomidi.GetOutPorts() {
		if containsFold(p.String(), outName) {
			return in, p, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: output %q", ErrPortNotFound, outName)
}

// HandleMessage processes one incoming MIDI message. Releasing a bound pad
// dispatches KeyUp for its context.
func (lp *Launchpad) HandleMessage(msg gomidi.Message) {
	var channel, key, velocity uint8

	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		if ctx, ok := lp.contextFor(key); ok {
			lp.logger.Debug("pad pressed", "context", ctx, "velocity", velocity)
		}
	case msg.GetNoteEnd(&channel, &key):
		ctx, ok := lp.contextFor(key)
		if !ok || lp.dispatch == nil {
			return
		}
		if err := lp.dispatch(action.KeyUp{Context: ctx}); err != nil {
			lp.logger.Warn("pad action failed", "context", ctx, "error", err)
		}
	}
}

// RenderButton lights the pad bound to context.
func (lp *Launchpad) RenderButton(context string, kind action.Kind, active bool) {
	color := ColorDimGreen
	switch {
	case kind == action.KindPFL && active:
		color = ColorYellow
	case kind == action.KindPFL:
		color = ColorDimYellow
	case active:
		color = ColorGreen
	}
	lp.light(context, color)
}

// RenderDial lights the pad bound to a dial context: bright when the value
// is non-zero.
func (lp *Launchpad) RenderDial(context string, value float64) {
	color := ColorDimBlue
	if value != 0 {
		color = ColorBlue
	}
	lp.light(context, color)
}

// Bound reports the pad bound to context.
func (lp *Launchpad) Bound(context string) (Pad, bool) {
	pad, ok := lp.byContext[context]
	return pad, ok
}

// Close turns all bound pads off and stops listening.
func (lp *Launchpad) Close() error {
	for ctx := range lp.byContext {
		lp.light(ctx, ColorOff)
	}
	if lp.stop != nil {
		lp.stop()
	}
	return nil
}

func (lp *Launchpad) contextFor(note uint8) (string, bool) {
	row, col := noteToRowCol(note)
	if row < 0 {
		return "", false
	}
	ctx, ok := lp.byPad[Pad{Row: row, Col: col}]
	return ctx, ok
}

func (lp *Launchpad) light(context string, color uint8) {
	pad, ok := lp.byContext[context]
	if !ok {
		return
	}
	lp.write(gomidi.NoteOn(0, rowColToNote(pad.Row, pad.Col), color))
}

func (lp *Launchpad) write(msg gomidi.Message) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if err := lp.send(msg); err != nil {
		lp.logger.Warn("midi write failed", "error", err)
	}
}

// programmerMode switches a Launchpad X to programmer layout.
func (lp *Launchpad) programmerMode() {
	lp.write(gomidi.SysEx([]byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F}))
}

func rowColToNote(row, col int) uint8 {
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	row = int(note/10) - 1
	col = int(note%10) - 1
	if row < 0 || row >= GridSize || col < 0 || col >= GridSize {
		return -1, -1
	}
	return row, col
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
