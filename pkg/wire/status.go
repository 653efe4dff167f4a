package wire

// Status is a reply status code from the shared error-code space used by
// device callbacks, the remote I/O protocol and the coordinator protocol.
type Status uint8

const (
	// StatusOK indicates the operation completed successfully.
	StatusOK Status = 0

	// StatusInvalidArgs indicates a malformed argument (bad path, empty name).
	StatusInvalidArgs Status = 1

	// StatusNotFound indicates a lookup miss.
	StatusNotFound Status = 2

	// StatusAlreadyExists indicates a duplicate add.
	StatusAlreadyExists Status = 3

	// StatusBusy indicates the device has live children or is otherwise in use.
	StatusBusy Status = 4

	// StatusNoResources indicates an allocation limit was hit.
	StatusNoResources Status = 5

	// StatusPeerClosed indicates the other end of a channel is gone.
	StatusPeerClosed Status = 6

	// StatusBadState indicates the target device is dead or the handle closed.
	StatusBadState Status = 7

	// StatusNotSupported indicates the callback table does not implement the operation.
	StatusNotSupported Status = 8

	// StatusIO indicates a device-level I/O failure.
	StatusIO Status = 9

	// StatusBufferTooSmall indicates a result did not fit the caller's bound.
	StatusBufferTooSmall Status = 10

	// StatusInternal indicates an unexpected failure.
	StatusInternal Status = 11
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidArgs:
		return "INVALID_ARGS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusAlreadyExists:
		return "ALREADY_EXISTS"
	case StatusBusy:
		return "BUSY"
	case StatusNoResources:
		return "NO_RESOURCES"
	case StatusPeerClosed:
		return "PEER_CLOSED"
	case StatusBadState:
		return "BAD_STATE"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	case StatusIO:
		return "IO"
	case StatusBufferTooSmall:
		return "BUFFER_TOO_SMALL"
	case StatusInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusOK
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusOK
}
