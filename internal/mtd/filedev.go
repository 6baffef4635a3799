package mtd

import (
	"bytes"
	"fmt"
	"os"
)

// FileDevice emulates a NAND/NOR-class flash region on top of a plain file.
// Erase fills the range with 0xFF (the erased state); writes and reads are
// bounds checked against the region size. It is what the daemon and the
// tests run against when no real MTD hardware is present.
type FileDevice struct {
	name      string
	f         *os.File
	size      int64
	writeSize int64
	eraseSize int64
}

// FileDeviceConfig describes a file-backed flash region.
type FileDeviceConfig struct {
	Name      string
	Path      string
	Size      int64 // bytes, multiple of EraseSize
	WriteSize int64 // page size
	EraseSize int64 // block size, multiple of WriteSize

	// Create the backing file (pre-filled with 0xFF) if it doesn't exist
	Create bool
}

// OpenFileDevice opens or creates a file-backed device.
func OpenFileDevice(cfg FileDeviceConfig) (*FileDevice, error) {
	if cfg.WriteSize <= 0 || cfg.EraseSize < cfg.WriteSize || cfg.Size < cfg.EraseSize {
		return nil, fmt.Errorf("device %q: invalid geometry (write=%d erase=%d size=%d)",
			cfg.Name, cfg.WriteSize, cfg.EraseSize, cfg.Size)
	}
	if cfg.EraseSize%cfg.WriteSize != 0 || cfg.Size%cfg.EraseSize != 0 {
		return nil, fmt.Errorf("device %q: geometry not block aligned (write=%d erase=%d size=%d)",
			cfg.Name, cfg.WriteSize, cfg.EraseSize, cfg.Size)
	}

	_, err := os.Stat(cfg.Path)
	if os.IsNotExist(err) {
		if !cfg.Create {
			return nil, fmt.Errorf("device %q: backing file %s doesn't exist", cfg.Name, cfg.Path)
		}
		if err := createBackingFile(cfg.Path, cfg.Size); err != nil {
			return nil, fmt.Errorf("device %q: %w", cfg.Name, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("device %q: %w", cfg.Name, err)
	}

	f, err := os.OpenFile(cfg.Path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("device %q: failed to open backing file: %w", cfg.Name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("device %q: %w", cfg.Name, err)
	}
	if info.Size() != cfg.Size {
		f.Close()
		return nil, fmt.Errorf("device %q: backing file is %d bytes, expected %d",
			cfg.Name, info.Size(), cfg.Size)
	}

	return &FileDevice{
		name:      cfg.Name,
		f:         f,
		size:      cfg.Size,
		writeSize: cfg.WriteSize,
		eraseSize: cfg.EraseSize,
	}, nil
}

// createBackingFile writes a fully-erased image of the given size.
func createBackingFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create backing file: %w", err)
	}
	defer f.Close()

	blank := bytes.Repeat([]byte{0xFF}, 64*1024)
	for written := int64(0); written < size; {
		chunk := int64(len(blank))
		if size-written < chunk {
			chunk = size - written
		}
		n, err := f.Write(blank[:chunk])
		if err != nil {
			return fmt.Errorf("failed to fill backing file: %w", err)
		}
		written += int64(n)
	}
	return nil
}

func (d *FileDevice) Name() string     { return d.name }
func (d *FileDevice) Size() int64      { return d.size }
func (d *FileDevice) WriteSize() int64 { return d.writeSize }
func (d *FileDevice) EraseSize() int64 { return d.eraseSize }

// Erase fills [off, off+length) with 0xFF. Both bounds must be erase-block
// aligned; erasing zero bytes succeeds without touching the file.
func (d *FileDevice) Erase(off, length int64) error {
	if d.f == nil {
		return ErrClosed
	}
	if length == 0 {
		return nil
	}
	if off < 0 || length < 0 || off+length > d.size {
		return fmt.Errorf("erase [%#x, %#x): %w", off, off+length, ErrOutOfRange)
	}
	if off%d.eraseSize != 0 || length%d.eraseSize != 0 {
		return fmt.Errorf("erase [%#x, %#x): %w", off, off+length, ErrEraseAlign)
	}

	blank := bytes.Repeat([]byte{0xFF}, int(d.eraseSize))
	for pos := off; pos < off+length; pos += d.eraseSize {
		if _, err := d.f.WriteAt(blank, pos); err != nil {
			return fmt.Errorf("erase at %#x: %w", pos, err)
		}
	}
	return nil
}

// WriteAt programs len(p) bytes at off.
func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	if d.f == nil {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off+int64(len(p)) > d.size {
		return 0, fmt.Errorf("write [%#x, %#x): %w", off, off+int64(len(p)), ErrOutOfRange)
	}
	return d.f.WriteAt(p, off)
}

// ReadAt reads len(p) bytes at off.
func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	if d.f == nil {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > d.size {
		return 0, fmt.Errorf("read [%#x, %#x): %w", off, off+int64(len(p)), ErrOutOfRange)
	}
	return d.f.ReadAt(p, off)
}

// FileScan builds a ScanFunc over a set of file device configs. Backing
// files are opened on the first scan that sees them and reused afterwards,
// so repeated probes don't pile up file handles.
func FileScan(cfgs []FileDeviceConfig) ScanFunc {
	opened := make(map[string]Device)
	return func() ([]Device, error) {
		out := make([]Device, 0, len(cfgs))
		for _, cfg := range cfgs {
			if dev, ok := opened[cfg.Name]; ok {
				out = append(out, dev)
				continue
			}
			dev, err := OpenFileDevice(cfg)
			if err != nil {
				return nil, err
			}
			opened[cfg.Name] = dev
			out = append(out, dev)
		}
		return out, nil
	}
}

// Close releases the backing file. Safe to call multiple times.
func (d *FileDevice) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}
