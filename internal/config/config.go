package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Flashing limits
	Flash FlashConfig `json:"flash"`

	// File-backed flash devices to register
	Devices []DeviceConfig `json:"devices"`

	// mDNS/Avahi configuration
	MDNS MDNSConfig `json:"mdns"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// Timeout settings in seconds
	ReadTimeout  int `json:"read_timeout"`
	WriteTimeout int `json:"write_timeout"`
	IdleTimeout  int `json:"idle_timeout"`

	// CORS settings
	CORS CORSConfig `json:"cors"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// FlashConfig contains image transfer limits
type FlashConfig struct {
	// Maximum accepted image size in MB
	MaxImageSizeMB int64 `json:"max_image_size_mb"`
}

// DeviceConfig describes one file-backed flash partition
type DeviceConfig struct {
	Name string `json:"name"`
	Path string `json:"path"`

	// Region size in KiB, must be a multiple of the erase block
	SizeKB int64 `json:"size_kb"`

	// Page size in bytes
	WriteSize int64 `json:"write_size"`

	// Erase block size in KiB
	EraseSizeKB int64 `json:"erase_size_kb"`

	// Create the backing file (fully erased) if it doesn't exist
	AutoCreate bool `json:"auto_create"`
}

// MDNSConfig contains mDNS/Avahi service discovery settings
type MDNSConfig struct {
	// Enable mDNS service advertisement
	Enabled bool `json:"enabled"`

	// Service name (e.g., "Fastboot MTD")
	ServiceName string `json:"service_name"`

	// Use DBus API (more reliable than command-line)
	UseDBus bool `json:"use_dbus"`

	// Additional TXT records (key=value pairs)
	TXTRecords []string `json:"txt_records"`
}

// Default returns the default configuration: two NAND-like regions with
// 2KiB pages and 128KiB erase blocks, served on the fastboot TCP port.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5554,
			ReadTimeout:  60,
			WriteTimeout: 30,
			IdleTimeout:  120,
			CORS: CORSConfig{
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: true,
			},
		},
		Flash: FlashConfig{
			MaxImageSizeMB: 256,
		},
		Devices: []DeviceConfig{
			{
				Name:        "boot",
				Path:        "/var/lib/fastboot-mtd/boot.img",
				SizeKB:      4 * 1024,
				WriteSize:   2048,
				EraseSizeKB: 128,
				AutoCreate:  true,
			},
			{
				Name:        "rootfs",
				Path:        "/var/lib/fastboot-mtd/rootfs.img",
				SizeKB:      32 * 1024,
				WriteSize:   2048,
				EraseSizeKB: 128,
				AutoCreate:  true,
			},
		},
		MDNS: MDNSConfig{
			Enabled:     false,
			ServiceName: "Fastboot MTD",
			UseDBus:     true,
			TXTRecords: []string{
				"path=/api",
				"version=1.0",
			},
		},
	}
}

// Load loads configuration from a JSON file
// If the file doesn't exist, it returns the default configuration
func Load(path string) (*Config, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON
	config := Default() // Start with defaults
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Save writes the configuration to a JSON file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks device geometry before any backing file is touched
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, d := range c.Devices {
		if d.Name == "" {
			return fmt.Errorf("device with empty name")
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate device name %q", d.Name)
		}
		seen[d.Name] = true

		if d.Path == "" {
			return fmt.Errorf("device %q: empty path", d.Name)
		}
		if d.WriteSize <= 0 || d.EraseSizeKB <= 0 || d.SizeKB <= 0 {
			return fmt.Errorf("device %q: sizes must be positive", d.Name)
		}
		eraseSize := d.EraseSizeKB * 1024
		if eraseSize%d.WriteSize != 0 {
			return fmt.Errorf("device %q: erase block %d not a multiple of page size %d",
				d.Name, eraseSize, d.WriteSize)
		}
		if (d.SizeKB*1024)%eraseSize != 0 {
			return fmt.Errorf("device %q: size %dKiB not a multiple of the erase block",
				d.Name, d.SizeKB)
		}
	}
	return nil
}
