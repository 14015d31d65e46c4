package client

import (
	"github.com/dhd-bridge/dhd-go/pkg/connection"
	"github.com/dhd-bridge/dhd-go/pkg/log"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

func (c *Client) event(dir log.Direction, layer log.Layer, cat log.Category) log.Event {
	e := log.Event{
		Timestamp:     c.clock.Now(),
		ConnectionID:  c.conn.ConnectionID(),
		Direction:     dir,
		Layer:         layer,
		Category:      cat,
		DeviceAddress: c.conn.Address(),
	}
	if addr := c.conn.RemoteAddr(); addr != nil {
		e.RemoteAddr = addr.String()
	}
	return e
}

func (c *Client) captureRequest(req *wire.Request) {
	cat := log.CategoryMessage
	if req.Method == wire.MethodGet && req.Path == wire.LivenessPath {
		cat = log.CategoryHeartbeat
	}
	e := c.event(log.DirectionOut, log.LayerWire, cat)
	e.Message = &log.MessageEvent{
		Method:  req.Method.String(),
		Path:    req.Path,
		Payload: req.Payload,
	}
	c.capture.Log(e)
}

func (c *Client) captureFrame(frame wire.Frame, deliveries int) {
	cat := log.CategoryMessage
	msg := &log.MessageEvent{Kind: frame.Kind().String(), Deliveries: deliveries}

	switch f := frame.(type) {
	case *wire.Response:
		msg.Method, msg.Path, msg.Payload = f.Method.String(), f.Path, f.Payload
	case *wire.Update:
		msg.Method, msg.Path, msg.Payload = wire.MethodUpdate.String(), f.Path, f.Payload
	case *wire.Failure:
		ok := false
		msg.Method, msg.Path, msg.Success, msg.Error = f.Method.String(), f.Path, &ok, f.Error
	case *wire.HeartbeatResponse:
		cat = log.CategoryHeartbeat
		ok := f.Success
		msg.Method, msg.Path, msg.Payload, msg.Success = wire.MethodGet.String(), wire.LivenessPath, f.Payload, &ok
	case *wire.AuthAck:
		ok := f.Success
		msg.Method, msg.Success, msg.Error = wire.MethodAuth.String(), &ok, f.Error
	case *wire.SubscribeAck:
		ok := f.Success
		msg.Method, msg.Path, msg.Success, msg.Error = wire.MethodSubscribe.String(), f.Path, &ok, f.Error
	case *wire.Unroutable:
		msg.Method, msg.Path, msg.Error = f.Method.String(), f.Path, f.Reason
	}

	e := c.event(log.DirectionIn, log.LayerWire, cat)
	e.Message = msg
	c.capture.Log(e)
}

func (c *Client) captureUndecodable(data []byte, err error) {
	e := c.event(log.DirectionIn, log.LayerTransport, log.CategoryError)
	e.Frame = log.NewFrameEvent(data)
	c.capture.Log(e)

	c.captureError(log.LayerWire, err, "decode")
}

func (c *Client) captureError(layer log.Layer, err error, context string) {
	e := c.event(log.DirectionIn, layer, log.CategoryError)
	e.Error = &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: context}
	c.capture.Log(e)
}

func (c *Client) captureState(old, s connection.State) {
	e := c.event(log.DirectionIn, log.LayerClient, log.CategoryState)
	e.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityConnection,
		OldState: old.String(),
		NewState: s.String(),
	}
	c.capture.Log(e)
}

func (c *Client) captureEntry(p, state string) {
	e := c.event(log.DirectionOut, log.LayerClient, log.CategoryState)
	e.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntitySubscription,
		NewState: state,
		Reason:   p,
	}
	c.capture.Log(e)
}
