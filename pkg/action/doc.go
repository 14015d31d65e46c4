// Package action implements the per-widget state holders of the control
// surface.
//
// Every widget on the surface is identified by a context string. The host
// surface reports lifecycle and input events for a context; Instances
// creates one action per context on WillAppear, forwards input to it and
// forgets it on WillDisappear.
//
// Actions are router handles: they register their path with the client,
// receive resolved values through Deliver and ask a Renderer to redraw.
//
// Two action types exist:
//
//   - Button toggles a boolean node. Its kind (on or pfl) is derived from
//     the path and selects the artwork.
//   - Dial drives a numeric node. Rotation adds step-sized increments
//     clamped to [min, max]; pressing resets to the default value.
//
// Actions never call the client while holding their own lock, since the
// client extracts values from actions while holding its lock.
package action
