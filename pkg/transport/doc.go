// Package transport carries length-prefixed CBOR frames over stream sockets.
//
// Both devhost channels use it: the remote I/O channel between clients and
// the host, and the stream flavour of the coordinator link.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│       TCP or unix socket       │
//	└────────────────────────────────┘
//
// Control messages (ping, pong, close) are answered by the server
// connection itself and never reach OnMessage.
package transport
