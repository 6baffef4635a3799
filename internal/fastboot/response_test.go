package fastboot

import (
	"errors"
	"fmt"
	"testing"
)

// TestResponseMapping tests outcome-to-wire-response mapping
func TestResponseMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "OKAY"},
		{"not given", ErrPartitionNotGiven, "FAILpartition not given"},
		{"not found", ErrPartitionNotFound, "FAILpartition not found"},
		{"erase device", ErrEraseDevice, "FAILfailed erasing mtd device"},
		{"pre-write erase", ErrEraseFailed, "FAILerase failed"},
		{"write", ErrWriteFailed, "FAILwrite failed"},
		{
			// wrapped errors keep the canonical protocol message
			"wrapped write failure",
			fmt.Errorf("%w: bit flip at 0x4000", ErrWriteFailed),
			"FAILwrite failed",
		},
		{
			// anything else carries its own text (sparse driver messages)
			"driver message",
			errors.New("flash write failure (system)"),
			"FAILflash write failure (system)",
		},
	}

	for _, tt := range tests {
		if got := Response(tt.err); got != tt.want {
			t.Errorf("%s: Response() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// TestOkayPayload tests the success response with a payload
func TestOkayPayload(t *testing.T) {
	if got := Okay("0x400000"); got != "OKAY0x400000" {
		t.Errorf("Okay() = %q", got)
	}
	if got := Fail("partition not found"); got != "FAILpartition not found" {
		t.Errorf("Fail() = %q", got)
	}
}
