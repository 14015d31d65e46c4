// Package wire defines the JSON wire format of the device control API.
//
// The control API runs over a websocket at ws://<device>/api/ws. Every frame
// is one UTF-8 JSON object with a "method" discriminator.
//
// # Requests
//
// The client sends four request shapes:
//
//	{"method": "auth",      "token": "<token>"}
//	{"method": "get",       "path": "<path>"}
//	{"method": "set",       "path": "<path>", "payload": <value>}
//	{"method": "subscribe", "path": "<path>"}
//
// # Frames From The Device
//
// Incoming frames are parsed permissively and classified up front into a
// closed set of variants (see Frame). Classification order:
//
//  1. get on the liveness path       -> HeartbeatResponse
//  2. update                         -> Update (payload is a device subtree)
//  3. get/set with success != false  -> Response
//  4. get/set with success == false  -> Failure
//  5. auth / subscribe replies       -> AuthAck / SubscribeAck
//  6. anything else                  -> Unroutable
//
// Downstream code switches on the variant and never probes for fields.
// Decode failures are reported as *DecodeError and never close the connection.
package wire
