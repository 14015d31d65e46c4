// Package fakes provides in-memory transport doubles for tests.
//
// Dialer hands out Conn values instead of opening sockets. A Conn records
// every frame sent on it and lets the test feed inbound frames with
// Deliver, which returns only after the reader has consumed the frame and
// come back for the next one. Tests can therefore observe the effects of
// an inbound frame without sleeping.
package fakes
