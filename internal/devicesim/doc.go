// Package devicesim simulates a mixing device's websocket control API.
//
// The simulator keeps an in-memory device tree and answers auth, get, set
// and subscribe requests on /api/ws the way a console does. Set requests
// change the tree and push update frames to every subscriber whose node
// overlaps the changed path.
//
// Tests use the control hooks to misbehave on purpose: DropAll severs every
// connection, Inject writes raw frames, SetSilent stops all replies so
// heartbeats go unanswered.
//
//	sim := devicesim.New(devicesim.Config{Token: "secret", Tree: seed})
//	srv := httptest.NewServer(sim)
//	defer srv.Close()
package devicesim
