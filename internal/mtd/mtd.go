package mtd

import "errors"

var (
	ErrNotFound   = errors.New("mtd device not found")
	ErrOutOfRange = errors.New("address out of range")
	ErrEraseAlign = errors.New("erase not aligned to erase block")
	ErrClosed     = errors.New("device closed")
)

// Device is the capability surface the flashing layer needs from a flash
// device: identity, geometry and the erase/program/read primitives.
// Offsets are relative to the device's own base; implementations that sit on
// top of a larger chip handle the physical offset themselves.
type Device interface {
	// Name returns the partition name the device was registered under.
	Name() string

	// Size returns the total size of the device in bytes.
	Size() int64

	// WriteSize returns the smallest programmable unit (page size) in bytes.
	WriteSize() int64

	// EraseSize returns the smallest erasable unit (block size) in bytes.
	// Always a multiple of WriteSize.
	EraseSize() int64

	// Erase erases the byte range [off, off+length). Both off and length
	// must be multiples of EraseSize and the range must lie inside the
	// device. Erasing zero bytes is a no-op.
	Erase(off, length int64) error

	// WriteAt programs len(p) bytes at off. The range must lie inside the
	// device.
	WriteAt(p []byte, off int64) (int, error)

	// ReadAt reads len(p) bytes at off.
	ReadAt(p []byte, off int64) (int, error)
}
