// Package router delivers decoded frames to the subscribers they satisfy.
//
// For every frame the router asks each registered handle to extract its
// value. A handle that finds a value receives it exactly once; handles that
// find nothing are skipped. The standard extraction rule is:
//
//   - direct get/set responses match the handle's own path exactly
//   - update pushes carry a tree rooted at the device root; the value is
//     found by descending that tree along the handle's path
//
// Heartbeat replies, failures and frames that match no class never reach a
// handle.
package router
