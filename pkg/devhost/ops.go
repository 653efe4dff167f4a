package devhost

import "context"

// Ops is the callback table a driver supplies for each device.
//
// Data-plane calls (Read, Write, Ioctl, GetSize) run without the tree lock
// and must synchronize device state themselves. Open, Close and Ioctl may run
// concurrently for different connections. OpenAt and Unbind run under the
// tree lock.
type Ops interface {
	// Open is called when a connection opens the device.
	Open(ctx context.Context, flags uint32) error

	// OpenAt resolves a path below the device that is not a child name.
	OpenAt(ctx context.Context, path string, flags uint32) (*Device, error)

	// Close is called when a connection to the device closes.
	Close(ctx context.Context, flags uint32) error

	// Read reads into buf at off. A return of (0, nil) means end of data.
	Read(ctx context.Context, buf []byte, off int64) (int, error)

	// Write writes buf at off.
	Write(ctx context.Context, buf []byte, off int64) (int, error)

	// GetSize returns the device's size in bytes, or 0 when unsized.
	GetSize() int64

	// Ioctl performs a device-specific operation, writing results into out.
	Ioctl(ctx context.Context, op uint32, in []byte, out []byte) (int, error)

	// Unbind asks the driver to tear down its binding. Errors are logged.
	Unbind(ctx context.Context, tx *Tx) error

	// Release is called once when the device is destroyed.
	Release()

	// GetProtocol returns a driver-specific protocol implementation.
	GetProtocol(id uint32) (any, error)
}

// DefaultOps is the default callback table. Drivers embed it and override
// what they support.
type DefaultOps struct{}

func (DefaultOps) Open(context.Context, uint32) error { return nil }

func (DefaultOps) OpenAt(context.Context, string, uint32) (*Device, error) {
	return nil, ErrNotSupported
}

func (DefaultOps) Close(context.Context, uint32) error { return nil }

func (DefaultOps) Read(context.Context, []byte, int64) (int, error) {
	return 0, ErrNotSupported
}

func (DefaultOps) Write(context.Context, []byte, int64) (int, error) {
	return 0, ErrNotSupported
}

func (DefaultOps) GetSize() int64 { return 0 }

func (DefaultOps) Ioctl(context.Context, uint32, []byte, []byte) (int, error) {
	return 0, ErrNotSupported
}

func (DefaultOps) Unbind(context.Context, *Tx) error { return nil }

func (DefaultOps) Release() {}

func (DefaultOps) GetProtocol(uint32) (any, error) { return nil, ErrNotSupported }

var _ Ops = DefaultOps{}
