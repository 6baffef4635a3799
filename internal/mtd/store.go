package mtd

import (
	"fmt"
	"sort"
	"sync"
)

// ScanFunc discovers flash devices. It is invoked by Store.Probe and may be
// called more than once; devices that were already registered under the same
// name are left untouched, so a scan function only has to return whatever it
// can currently see.
type ScanFunc func() ([]Device, error)

// Store is the registry the flashing layer resolves partition names against.
// Devices are reference counted: every successful Open must be paired with
// exactly one Handle.Release.
//
// Example usage:
//
//	store := mtd.NewStore(scan)
//	if err := store.Probe(); err != nil {
//	    return err
//	}
//	h, err := store.Open("kernel")
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
type Store struct {
	// sync so concurrent lookups won't step on the registry
	mu sync.Mutex

	scan    ScanFunc
	devices map[string]*entry
}

type entry struct {
	dev  Device
	refs int
}

// NewStore creates a device store backed by the given scan function.
func NewStore(scan ScanFunc) *Store {
	return &Store{
		scan:    scan,
		devices: make(map[string]*entry),
	}
}

// Probe runs device discovery and registers any devices not yet known.
// It is safe to call repeatedly: already-registered names keep their entry
// (and reference counts), so a second probe only picks up devices that
// appeared late. Some backends populate lazily on the first scan pass, which
// is why resolution retries a probe once before giving up.
func (s *Store) Probe() error {
	devs, err := s.scan()
	if err != nil {
		return fmt.Errorf("mtd probe: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dev := range devs {
		name := dev.Name()
		if _, ok := s.devices[name]; ok {
			continue
		}
		s.devices[name] = &entry{dev: dev}
	}

	return nil
}

// Open resolves a partition name to a handle, taking a reference against the
// device. The caller owns the release obligation.
func (s *Store) Open(name string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.devices[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}

	e.refs++
	return &Handle{Device: e.dev, store: s}, nil
}

// OpenCount reports the number of outstanding references on a device.
// Zero for unknown names.
func (s *Store) OpenCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.devices[name]
	if !ok {
		return 0
	}
	return e.refs
}

// Names returns the registered partition names, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.devices))
	for name := range s.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.devices[name]; ok && e.refs > 0 {
		e.refs--
	}
}

// Handle is a scoped acquisition of a device. It exposes the full Device
// surface and must be released exactly once; a second Release is inert.
type Handle struct {
	Device

	store    *Store
	released bool
}

// Release returns the reference taken by Open. Safe to call on every exit
// path, including after an earlier Release.
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	h.store.release(h.Name())
}
