// Package surface drives a Novation Launchpad as the control surface.
//
// Pads are bound to action contexts. Releasing a bound pad dispatches a
// KeyUp event for its context; redraw requests from the actions light the
// pad in a colour that reflects the action kind and state.
//
// The pad grid uses the Launchpad programmer-mode layout: row 0 is the
// bottom row (notes 11-18), row 7 the top row (notes 81-88).
package surface
