package mdns

import (
	"fmt"
	"os/exec"
)

// ServiceType is the mDNS service type the flashing daemon advertises.
// Clients browse for it to find flashable targets on the LAN.
const ServiceType = "_fastboot-mtd._tcp"

// Service represents an Avahi service registration
type Service struct {
	Name       string   // Service name (e.g., "Fastboot MTD")
	Type       string   // Service type (e.g., "_fastboot-mtd._tcp")
	Port       int      // Port number
	Domain     string   // Domain (usually "local")
	Host       string   // Hostname (optional, uses system hostname if empty)
	TXTRecords []string // TXT records (key=value pairs)
}

// Publisher handles Avahi service publication through avahi-publish-service.
// Prefer DBusPublisher where the system bus is available.
type Publisher struct {
	cmd *exec.Cmd
}

// NewPublisher creates a new Avahi service publisher
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish registers a service with Avahi using avahi-publish-service
func (p *Publisher) Publish(service *Service) error {
	// Check if avahi-publish-service is available
	if _, err := exec.LookPath("avahi-publish-service"); err != nil {
		return fmt.Errorf("avahi-publish-service not found: %w (install avahi-utils)", err)
	}

	args := []string{
		service.Name,
		service.Type,
		fmt.Sprintf("%d", service.Port),
	}
	if len(service.TXTRecords) > 0 {
		args = append(args, service.TXTRecords...)
	}

	p.cmd = exec.Command("avahi-publish-service", args...)
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start avahi-publish-service: %w", err)
	}

	return nil
}

// Stop stops the service publication
func (p *Publisher) Stop() error {
	if p.cmd != nil && p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to stop service: %w", err)
		}
		// Wait for the process to exit
		_ = p.cmd.Wait()
	}
	return nil
}

// PublishFastboot is a convenience function to advertise a flashing daemon
func PublishFastboot(name string, port int, txtRecords ...string) (*Publisher, error) {
	service := &Service{
		Name:       name,
		Type:       ServiceType,
		Port:       port,
		TXTRecords: txtRecords,
	}

	publisher := NewPublisher()
	if err := publisher.Publish(service); err != nil {
		return nil, err
	}

	return publisher, nil
}

// IsAvahiAvailable checks if Avahi is available on the system
func IsAvahiAvailable() bool {
	_, err := exec.LookPath("avahi-publish-service")
	return err == nil
}
