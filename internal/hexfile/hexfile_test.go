package hexfile

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/marcinbor85/gohex"
)

func buildHex(t *testing.T, segments map[uint32][]byte) string {
	t.Helper()

	mem := gohex.NewMemory()
	for addr, data := range segments {
		if err := mem.AddBinary(addr, data); err != nil {
			t.Fatalf("AddBinary failed: %v", err)
		}
	}

	buf := &bytes.Buffer{}
	if err := mem.DumpIntelHex(buf, 16); err != nil {
		t.Fatalf("DumpIntelHex failed: %v", err)
	}
	return buf.String()
}

// TestLoadContiguous tests a single-segment image
func TestLoadContiguous(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	text := buildHex(t, map[uint32][]byte{0x1000: payload})

	img, base, err := Load(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if base != 0x1000 {
		t.Errorf("Expected base 0x1000, got %#x", base)
	}
	if !bytes.Equal(img, payload) {
		t.Errorf("Image mismatch: got % x", img)
	}
}

// TestLoadGapFill tests that holes between segments become 0xFF
func TestLoadGapFill(t *testing.T) {
	text := buildHex(t, map[uint32][]byte{
		0x0000: {0xAA, 0xBB},
		0x0010: {0xCC},
	})

	img, base, err := Load(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if base != 0 {
		t.Errorf("Expected base 0, got %#x", base)
	}
	if len(img) != 0x11 {
		t.Fatalf("Expected 17-byte image, got %d", len(img))
	}
	if img[0] != 0xAA || img[1] != 0xBB || img[0x10] != 0xCC {
		t.Errorf("Segment content mismatch: % x", img)
	}
	if !bytes.Equal(img[2:0x10], bytes.Repeat([]byte{0xFF}, 14)) {
		t.Errorf("Expected gap filled with 0xFF: % x", img[2:0x10])
	}
}

// TestLoadEmpty tests the no-data error
func TestLoadEmpty(t *testing.T) {
	// EOF record only
	if _, _, err := Load(strings.NewReader(":00000001FF\n")); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
}

// TestLoadGarbage tests the parse error path
func TestLoadGarbage(t *testing.T) {
	if _, _, err := Load(strings.NewReader("definitely not intel hex")); err == nil {
		t.Error("Expected parse error")
	}
}
