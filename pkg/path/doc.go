// Package path canonicalizes device data paths.
//
// A path addresses one node in the device's data tree, for example
// audio/mixers/0/faders/0/on. Paths arrive from configuration and from the
// device in several spellings ("/audio/mixers/0/", "audio//mixers/0"); every
// comparison in the client happens on the normalized form:
//
//   - runs of slashes collapse to one
//   - leading and trailing slashes are removed
//
// Two paths are equal iff their normalized forms are equal. Normalize is
// idempotent.
//
// # Tree Lookup
//
// Update pushes carry a snapshot of part of the device tree rather than a
// single value. Lookup descends such a tree along a path, treating each
// segment as an object key or, for arrays, as a decimal index.
package path
