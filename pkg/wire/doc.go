// Package wire defines the CBOR wire format of the device host.
//
// Two protocols share the codec:
//   - Remote I/O: requests from clients to open devices (Open, Clone, Close,
//     Read, ReadAt, Write, WriteAt, Seek, Stat, Ioctl), responses from the
//     host, and events the host pushes when a device signals.
//   - Coordinator: enveloped notifications the host sends to the device
//     coordinator (AddDevice, RemoveDevice, BindDevice) and instructions the
//     coordinator sends back (Ack, AddDeviceReply, BindDriver).
//
// # CBOR Integer Keys
//
// All maps use integer keys. Key numbers are fixed per message type and
// documented on each struct.
//
// # Framing
//
// Messages are carried in 4-byte length-prefixed frames by pkg/transport.
// Control messages (ping, pong, close) use keys from 20 upward so a frame can
// be classified with PeekKind before it is fully decoded.
package wire
