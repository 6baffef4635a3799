// Package hexfile flattens Intel HEX firmware files into contiguous raw
// images suitable for the flashing backend. Gaps between data segments are
// filled with 0xFF, matching the erased state of the flash underneath.
package hexfile

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/marcinbor85/gohex"
)

var ErrNoData = errors.New("hex file contains no data")

// Load parses an Intel HEX stream and returns the flattened image together
// with the lowest address it starts at.
func Load(r io.Reader) ([]byte, uint32, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, 0, fmt.Errorf("parse intel hex: %w", err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, 0, ErrNoData
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Address < segments[j].Address
	})

	base := segments[0].Address
	end := base
	for _, seg := range segments {
		if segEnd := seg.Address + uint32(len(seg.Data)); segEnd > end {
			end = segEnd
		}
	}

	img := make([]byte, end-base)
	for i := range img {
		img[i] = 0xFF
	}
	for _, seg := range segments {
		copy(img[seg.Address-base:], seg.Data)
	}

	return img, base, nil
}
