// Package rpc serves remote I/O on devices of a devhost tree.
//
// Each transport connection gets a Session holding a table of open handles.
// A handle is an IOState: a reference on one device plus the connection's
// byte offset and open flags. Requests name a handle and are dispatched to
// the device's callback table; device signals flow back as Event frames.
//
// Handle 0 is never assigned. Handle 1 of every session is opened on the
// server's root device when the connection is accepted, so a client can
// reach any device by opening paths relative to it.
//
// Holding a handle keeps its device from being destroyed, not from being
// removed. Once the device is removed, requests on the handle fail with
// StatusBadState and the session releases its reference.
package rpc
