// Package log provides protocol capture for the control connection.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, client).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable trace of everything exchanged with the device.
//
// # Basic Usage
//
// The client accepts a Logger:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/dhd/bridge.dlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
//   - Transport: raw frame text in and out (FrameEvent)
//   - Wire: decoded frames with method, path and payload (MessageEvent)
//   - Client: connection state and path entries (StateChangeEvent)
//
// Heartbeat traffic is tagged with CategoryHeartbeat so it can be filtered
// out of busy captures. Errors at any layer use ErrorEventData.
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with the .dlog
// extension. The dhd-log tool views and summarizes them.
package log
