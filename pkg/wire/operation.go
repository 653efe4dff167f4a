package wire

// Op is a remote I/O opcode. Opcodes map 1:1 to the device callback table.
type Op uint8

const (
	// OpOpen resolves a path relative to the handle's device and opens the
	// result as a new handle.
	OpOpen Op = 1

	// OpClone opens a new handle on the same device with the same flags.
	OpClone Op = 2

	// OpClose closes the handle.
	OpClose Op = 3

	// OpRead reads at the handle's offset and advances it.
	OpRead Op = 4

	// OpReadAt reads at an explicit offset; the handle's offset is untouched.
	OpReadAt Op = 5

	// OpWrite writes at the handle's offset and advances it.
	OpWrite Op = 6

	// OpWriteAt writes at an explicit offset.
	OpWriteAt Op = 7

	// OpSeek moves the handle's offset.
	OpSeek Op = 8

	// OpStat returns the device size.
	OpStat Op = 9

	// OpIoctl forwards a device-specific control operation.
	OpIoctl Op = 10
)

// String returns the opcode name.
func (o Op) String() string {
	switch o {
	case OpOpen:
		return "Open"
	case OpClone:
		return "Clone"
	case OpClose:
		return "Close"
	case OpRead:
		return "Read"
	case OpReadAt:
		return "ReadAt"
	case OpWrite:
		return "Write"
	case OpWriteAt:
		return "WriteAt"
	case OpSeek:
		return "Seek"
	case OpStat:
		return "Stat"
	case OpIoctl:
		return "Ioctl"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the opcode is known.
func (o Op) IsValid() bool {
	return o >= OpOpen && o <= OpIoctl
}

// Seek origins carried in Request.Arg for OpSeek.
const (
	SeekStart   uint32 = 0
	SeekCurrent uint32 = 1
	SeekEnd     uint32 = 2
)
