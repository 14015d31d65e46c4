package client

import (
	"fmt"

	"github.com/dhd-bridge/dhd-go/pkg/router"
)

// Event is a request from the UI layer, handled by Client.Handle.
type Event interface {
	isEvent()
}

// RegisterEvent adds interest of Handle in Path.
type RegisterEvent struct {
	Path   string
	Handle router.Handle
}

// UnregisterEvent removes interest of Handle in Path.
type UnregisterEvent struct {
	Path   string
	Handle router.Handle
}

// SetEvent writes Value to Path.
type SetEvent struct {
	Path  string
	Value any
}

// GetEvent requests the current value of Path.
type GetEvent struct {
	Path string
}

// CredentialsEvent carries new connection settings.
type CredentialsEvent struct {
	Address string
	Token   string
}

func (RegisterEvent) isEvent()    {}
func (UnregisterEvent) isEvent()  {}
func (SetEvent) isEvent()         {}
func (GetEvent) isEvent()         {}
func (CredentialsEvent) isEvent() {}

// Handle dispatches ev to the matching client operation.
func (c *Client) Handle(ev Event) error {
	switch e := ev.(type) {
	case RegisterEvent:
		return c.Register(e.Path, e.Handle)
	case UnregisterEvent:
		c.Unregister(e.Path, e.Handle)
		return nil
	case SetEvent:
		return c.RequestSet(e.Path, e.Value)
	case GetEvent:
		return c.RequestGet(e.Path)
	case CredentialsEvent:
		return c.UpdateCredentials(e.Address, e.Token)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}
