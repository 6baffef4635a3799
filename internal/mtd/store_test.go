package mtd

import (
	"errors"
	"testing"
)

// memDevice is a minimal in-memory Device for registry tests
type memDevice struct {
	name string
}

func (d *memDevice) Name() string                          { return d.name }
func (d *memDevice) Size() int64                           { return 1 << 20 }
func (d *memDevice) WriteSize() int64                      { return 2048 }
func (d *memDevice) EraseSize() int64                      { return 128 * 1024 }
func (d *memDevice) Erase(off, length int64) error         { return nil }
func (d *memDevice) WriteAt(p []byte, off int64) (int, error) { return len(p), nil }
func (d *memDevice) ReadAt(p []byte, off int64) (int, error)  { return len(p), nil }

// TestProbeRegistersDevices tests that Probe registers everything the scan returns
func TestProbeRegistersDevices(t *testing.T) {
	store := NewStore(func() ([]Device, error) {
		return []Device{&memDevice{name: "boot"}, &memDevice{name: "rootfs"}}, nil
	})

	if err := store.Probe(); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	names := store.Names()
	if len(names) != 2 || names[0] != "boot" || names[1] != "rootfs" {
		t.Errorf("Expected [boot rootfs], got %v", names)
	}
}

// TestProbeIsIdempotent tests that repeated probes keep existing entries and refcounts
func TestProbeIsIdempotent(t *testing.T) {
	scans := 0
	store := NewStore(func() ([]Device, error) {
		scans++
		return []Device{&memDevice{name: "boot"}}, nil
	})

	if err := store.Probe(); err != nil {
		t.Fatalf("First probe failed: %v", err)
	}

	h, err := store.Open("boot")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// A second probe must not reset the reference count
	if err := store.Probe(); err != nil {
		t.Fatalf("Second probe failed: %v", err)
	}
	if store.OpenCount("boot") != 1 {
		t.Errorf("Expected 1 open reference after re-probe, got %d", store.OpenCount("boot"))
	}

	h.Release()
	if store.OpenCount("boot") != 0 {
		t.Errorf("Expected 0 open references after release, got %d", store.OpenCount("boot"))
	}

	if scans != 2 {
		t.Errorf("Expected 2 scan invocations, got %d", scans)
	}
}

// TestProbePicksUpLateDevices tests that a re-probe absorbs lazily-appearing devices
func TestProbePicksUpLateDevices(t *testing.T) {
	scans := 0
	store := NewStore(func() ([]Device, error) {
		scans++
		if scans < 2 {
			return nil, nil
		}
		return []Device{&memDevice{name: "late"}}, nil
	})

	if err := store.Probe(); err != nil {
		t.Fatalf("First probe failed: %v", err)
	}
	if _, err := store.Open("late"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before second probe, got %v", err)
	}

	if err := store.Probe(); err != nil {
		t.Fatalf("Second probe failed: %v", err)
	}
	h, err := store.Open("late")
	if err != nil {
		t.Fatalf("Open after second probe failed: %v", err)
	}
	h.Release()
}

// TestOpenUnknownName tests the not-found error
func TestOpenUnknownName(t *testing.T) {
	store := NewStore(func() ([]Device, error) { return nil, nil })

	_, err := store.Open("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if store.OpenCount("nope") != 0 {
		t.Errorf("Expected 0 references for unknown name, got %d", store.OpenCount("nope"))
	}
}

// TestProbeError tests that a failing scan surfaces the error
func TestProbeError(t *testing.T) {
	scanErr := errors.New("bus fault")
	store := NewStore(func() ([]Device, error) { return nil, scanErr })

	if err := store.Probe(); !errors.Is(err, scanErr) {
		t.Errorf("Expected wrapped scan error, got %v", err)
	}
}

// TestHandleReleaseIsIdempotent tests that double release doesn't underflow the count
func TestHandleReleaseIsIdempotent(t *testing.T) {
	store := NewStore(func() ([]Device, error) {
		return []Device{&memDevice{name: "boot"}}, nil
	})
	if err := store.Probe(); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	h1, err := store.Open("boot")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	h2, err := store.Open("boot")
	if err != nil {
		t.Fatalf("Second open failed: %v", err)
	}

	if store.OpenCount("boot") != 2 {
		t.Fatalf("Expected 2 references, got %d", store.OpenCount("boot"))
	}

	h1.Release()
	h1.Release() // second release must be inert
	if store.OpenCount("boot") != 1 {
		t.Errorf("Expected 1 reference after double release of one handle, got %d", store.OpenCount("boot"))
	}

	h2.Release()
	if store.OpenCount("boot") != 0 {
		t.Errorf("Expected 0 references, got %d", store.OpenCount("boot"))
	}
}
