// Package coordinator implements the host side of the coordinator link.
//
// Topology notifications (AddDevice, RemoveDevice, BindDevice) are queued
// without blocking, stamped with a sequence number and sent in commit order
// by a single sender goroutine. Every message stays queued until the
// coordinator acknowledges it; after a reconnect all unacknowledged messages
// are sent again, so delivery is at-least-once and ordered. Instructions
// from the coordinator (BindDriver, AddDeviceReply) are handed to an
// InstructionHandler.
//
// Two transports are provided: StreamTransport carries length-prefixed
// frames over a tcp or unix socket, MQTTTransport publishes the same
// envelopes through an MQTT broker with QoS 1.
package coordinator
