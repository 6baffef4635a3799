// Package fastboot implements the flashing backend behind the fastboot
// protocol's flash/erase/getvar commands for MTD-class (NAND/NOR) storage.
// Partitions are resolved by name against an mtd.Store; images are written
// either raw (with an aligned pre-erase) or through the sparse image driver.
package fastboot

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/flashboot/fastboot-mtd/internal/mtd"
	"github.com/flashboot/fastboot-mtd/internal/sparse"
)

var (
	ErrPartitionNotGiven = errors.New("partition not given")
	ErrPartitionNotFound = errors.New("partition not found")
	ErrEraseDevice       = errors.New("failed erasing mtd device")
	ErrEraseFailed       = errors.New("erase failed")
	ErrWriteFailed       = errors.New("write failed")
)

// Partition is the descriptor handed to protocol consumers. An MTD partition
// always reports a logical start of 0: the device handle hides whatever
// physical offset the region sits at.
type Partition struct {
	Name      string `json:"name"`
	Start     int64  `json:"start"`
	Size      int64  `json:"size"`
	BlockSize int64  `json:"block_size"`
}

// SetupFunc is a board-level hook run before a write or erase session.
type SetupFunc func() error

// Option configures a Backend.
type Option func(*Backend)

// WithWriteSetup installs a board hook run before every flash operation.
func WithWriteSetup(fn SetupFunc) Option {
	return func(b *Backend) { b.writeSetup = fn }
}

// WithEraseSetup installs a board hook run before every erase operation.
func WithEraseSetup(fn SetupFunc) Option {
	return func(b *Backend) { b.eraseSetup = fn }
}

// Backend executes flashing operations against a device store. Operations
// are synchronous and run to completion; callers serialize requests.
type Backend struct {
	store      *mtd.Store
	writeSetup SetupFunc
	eraseSetup SetupFunc
}

func noopSetup() error { return nil }

// New creates a flashing backend. Board hooks default to no-ops; a host
// environment substitutes its own via options.
//
// Example:
//
//	backend := fastboot.New(store,
//	    fastboot.WithWriteSetup(board.PinmuxForFlash),
//	)
func New(store *mtd.Store, opts ...Option) *Backend {
	b := &Backend{
		store:      store,
		writeSetup: noopSetup,
		eraseSetup: noopSetup,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// resolve looks a partition name up, probing the device store first. Some
// drivers only populate on a second probe pass, so a not-found lookup gets
// exactly one probe-and-retry before it is terminal.
func (b *Backend) resolve(name string) (*mtd.Handle, error) {
	if err := b.store.Probe(); err != nil {
		return nil, err
	}

	h, err := b.store.Open(name)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, mtd.ErrNotFound) {
		return nil, err
	}

	if err := b.store.Probe(); err != nil {
		return nil, err
	}
	return b.store.Open(name)
}

// GetPartInfo synthesizes the partition descriptor for a named region. The
// descriptor is derived per call; no device reference is held past return.
func (b *Backend) GetPartInfo(name string) (Partition, error) {
	if name == "" {
		return Partition{}, ErrPartitionNotGiven
	}

	h, err := b.resolve(name)
	if err != nil {
		log.Errorf("fastboot: partition %q not found: %v", name, err)
		return Partition{}, ErrPartitionNotFound
	}
	defer h.Release()

	// Sparse images are addressed in pages, so the descriptor reports the
	// write granularity rather than the erase block size.
	return Partition{
		Name:      h.Name(),
		Start:     0,
		Size:      h.Size(),
		BlockSize: h.WriteSize(),
	}, nil
}

// Partitions describes every partition the store currently knows about.
func (b *Backend) Partitions() ([]Partition, error) {
	if err := b.store.Probe(); err != nil {
		return nil, err
	}

	names := b.store.Names()
	parts := make([]Partition, 0, len(names))
	for _, name := range names {
		p, err := b.GetPartInfo(name)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}

// Erase erases the entire named partition.
func (b *Backend) Erase(name string) error {
	if err := b.eraseSetup(); err != nil {
		return fmt.Errorf("erase setup failed: %w", err)
	}

	h, err := b.resolve(name)
	if err != nil {
		log.Errorf("fastboot: partition %q not found: %v", name, err)
		return ErrPartitionNotFound
	}
	defer h.Release()

	log.Infof("erasing mtd partition %q (%#x bytes)", h.Name(), h.Size())

	if err := h.Erase(0, h.Size()); err != nil {
		log.Errorf("fastboot: erase of %q failed: %v", h.Name(), err)
		return fmt.Errorf("%w: %v", ErrEraseDevice, err)
	}
	return nil
}

// Flash writes an image to the named partition, auto-detecting the sparse
// format. The device reference is released on every path.
func (b *Backend) Flash(name string, image []byte) error {
	if err := b.writeSetup(); err != nil {
		return fmt.Errorf("flash setup failed: %w", err)
	}

	h, err := b.resolve(name)
	if err != nil {
		log.Errorf("fastboot: partition %q not found: %v", name, err)
		return ErrPartitionNotFound
	}
	defer h.Release()

	if sparse.IsSparseImage(image) {
		return b.flashSparse(h, name, image)
	}
	return b.flashRaw(h, name, image)
}

// flashSparse pushes a sparse image through the chunk driver. Addressing is
// in pages relative to the partition base; the handle encapsulates the
// physical offset.
func (b *Backend) flashSparse(h *mtd.Handle, name string, image []byte) error {
	log.Infof("flashing sparse image to %q", name)

	blksz := h.WriteSize()
	st := &sparse.Storage{
		BlockSize: blksz,
		Start:     0,
		Size:      h.Size() / blksz,
		Write: func(blk, blkcnt int64, data []byte) int64 {
			off := blk * blksz
			if _, err := h.WriteAt(data[:blkcnt*blksz], off); err != nil {
				log.Errorf("fastboot: mtd write error at offset %#x: %v", off, err)
				return 0
			}
			return blkcnt
		},
		// Bad-region avoidance is the device's job, so reserving space
		// never fails at this layer.
		Reserve: func(blk, blkcnt int64) int64 {
			return blkcnt
		},
	}

	if err := sparse.WriteImage(st, image, name); err != nil {
		log.Errorf("fastboot: sparse write to %q failed: %v", name, err)
		return err
	}
	return nil
}

// flashRaw erases an aligned prefix of the partition, then writes the
// contiguous payload at offset 0. A failed erase strictly prevents the
// write. The erase length is clamped to the partition size; the write
// itself is bounds checked by the device, so an oversized download fails
// with a write error instead of running past the region.
func (b *Backend) flashRaw(h *mtd.Handle, name string, image []byte) error {
	length := int64(len(image))
	log.Infof("flashing raw image to %q (%d bytes)", name, length)

	eraseLen := length
	if rem := eraseLen % h.EraseSize(); rem != 0 {
		eraseLen += h.EraseSize() - rem
	}
	if eraseLen > h.Size() {
		eraseLen = h.Size()
	}

	log.Debugf("fastboot: erasing %#x bytes before write", eraseLen)
	if err := h.Erase(0, eraseLen); err != nil {
		log.Errorf("fastboot: erase before write failed: %v", err)
		return fmt.Errorf("%w: %v", ErrEraseFailed, err)
	}

	n, err := h.WriteAt(image, 0)
	if err != nil {
		log.Errorf("fastboot: write to %q failed: %v", name, err)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	log.Infof("wrote %d bytes to %q", n, name)
	return nil
}
