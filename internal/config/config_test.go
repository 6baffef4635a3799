package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadMissingFile tests the default fallback
func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 5554 {
		t.Errorf("Expected default port 5554, got %d", cfg.Server.Port)
	}
	if len(cfg.Devices) == 0 {
		t.Error("Expected default devices")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config doesn't validate: %v", err)
	}
}

// TestSaveLoadRoundTrip tests config persistence
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "config.json")

	cfg := Default()
	cfg.Server.Port = 9000
	cfg.Devices = []DeviceConfig{
		{Name: "spl", Path: "/tmp/spl.img", SizeKB: 1024, WriteSize: 512, EraseSizeKB: 64, AutoCreate: true},
	}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", loaded.Server.Port)
	}
	if len(loaded.Devices) != 1 || loaded.Devices[0].Name != "spl" {
		t.Errorf("Devices didn't round trip: %+v", loaded.Devices)
	}
}

// TestLoadInvalidJSON tests the parse error path
func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected parse error")
	}
}

// TestValidate tests device geometry validation
func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		dev  DeviceConfig
		ok   bool
	}{
		{"valid", DeviceConfig{Name: "boot", Path: "/tmp/b.img", SizeKB: 4096, WriteSize: 2048, EraseSizeKB: 128}, true},
		{"empty name", DeviceConfig{Path: "/tmp/b.img", SizeKB: 4096, WriteSize: 2048, EraseSizeKB: 128}, false},
		{"empty path", DeviceConfig{Name: "boot", SizeKB: 4096, WriteSize: 2048, EraseSizeKB: 128}, false},
		{"zero page size", DeviceConfig{Name: "boot", Path: "/tmp/b.img", SizeKB: 4096, EraseSizeKB: 128}, false},
		{"erase not page aligned", DeviceConfig{Name: "boot", Path: "/tmp/b.img", SizeKB: 4096, WriteSize: 3000, EraseSizeKB: 128}, false},
		{"size not block aligned", DeviceConfig{Name: "boot", Path: "/tmp/b.img", SizeKB: 100, WriteSize: 2048, EraseSizeKB: 128}, false},
	}

	for _, tt := range tests {
		cfg := &Config{Devices: []DeviceConfig{tt.dev}}
		err := cfg.Validate()
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

// TestValidateDuplicateNames tests duplicate device rejection
func TestValidateDuplicateNames(t *testing.T) {
	cfg := &Config{Devices: []DeviceConfig{
		{Name: "boot", Path: "/tmp/a.img", SizeKB: 4096, WriteSize: 2048, EraseSizeKB: 128},
		{Name: "boot", Path: "/tmp/b.img", SizeKB: 4096, WriteSize: 2048, EraseSizeKB: 128},
	}}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected duplicate name error")
	}
}
