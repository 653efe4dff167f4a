// Package log provides structured protocol capture for the device host.
//
// This package defines the Logger interface and Event types for capturing
// events at multiple layers (transport, wire, host). It is separate from
// operational logging (slog): protocol capture is a complete
// machine-readable trace of remote I/O traffic, coordinator traffic and
// device tree state changes.
//
// # Basic Usage
//
//	// Development: mirror events to slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: append CBOR events to a file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/devhost/host.dlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(slogAdapter, fileLogger)
//
// # Event Types
//
//   - Transport: raw frame sizes (FrameEvent)
//   - Wire: decoded remote I/O and coordinator messages (MessageEvent)
//   - Host: device and connection state transitions (StateChangeEvent)
//
// Control messages and errors have dedicated event types.
package log
