// Package logging builds the daemon's loggers from configuration.
//
// Operational logs go through log/slog with a JSON or text handler.
// Protocol events (frames, messages, tree state changes) go to a
// pkg/log.Logger that can fan out to a CBOR capture file and to the
// operational log.
//
//	logging:
//	  level: "info"          # debug, info, warn, error
//	  format: "json"         # json, text
//	  output: "stderr"       # stdout, stderr
//	  protocol_file: ""      # CBOR capture path
//	  protocol_slog: false   # mirror protocol events at debug level
package logging
