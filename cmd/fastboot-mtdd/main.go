package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/flashboot/fastboot-mtd/internal/api"
	"github.com/flashboot/fastboot-mtd/internal/config"
	"github.com/flashboot/fastboot-mtd/internal/fastboot"
	"github.com/flashboot/fastboot-mtd/internal/mdns"
	"github.com/flashboot/fastboot-mtd/internal/mtd"
)

const defaultConfigPath = "/etc/fastboot-mtd/config.json"

func deviceConfigs(cfg *config.Config) []mtd.FileDeviceConfig {
	out := make([]mtd.FileDeviceConfig, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		out = append(out, mtd.FileDeviceConfig{
			Name:      d.Name,
			Path:      d.Path,
			Size:      d.SizeKB * 1024,
			WriteSize: d.WriteSize,
			EraseSize: d.EraseSizeKB * 1024,
			Create:    d.AutoCreate,
		})
	}
	return out
}

// advertise registers the daemon with Avahi so clients can browse for
// flashable targets. Returns a stop function (possibly a no-op).
func advertise(cfg *config.Config) func() {
	if !cfg.MDNS.Enabled {
		return func() {}
	}

	if cfg.MDNS.UseDBus && mdns.IsAvahiDBusAvailable() {
		pub, err := mdns.PublishFastbootDBus(cfg.MDNS.ServiceName, cfg.Server.Port, cfg.MDNS.TXTRecords...)
		if err != nil {
			log.Warnf("mDNS advertisement failed: %v", err)
			return func() {}
		}
		log.Infof("Advertising %q via Avahi DBus", cfg.MDNS.ServiceName)
		return func() { pub.Stop() }
	}

	if mdns.IsAvahiAvailable() {
		pub, err := mdns.PublishFastboot(cfg.MDNS.ServiceName, cfg.Server.Port, cfg.MDNS.TXTRecords...)
		if err != nil {
			log.Warnf("mDNS advertisement failed: %v", err)
			return func() {}
		}
		log.Infof("Advertising %q via avahi-publish-service", cfg.MDNS.ServiceName)
		return func() { pub.Stop() }
	}

	log.Warn("mDNS enabled but Avahi is not available")
	return func() {}
}

func main() {
	cfgPath := os.Getenv("FASTBOOT_MTD_CONFIG")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
		log.Infof("FASTBOOT_MTD_CONFIG not set, using default: %s", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Register the file-backed flash devices and probe them up front so a
	// broken backing file fails the daemon at startup, not mid-flash
	store := mtd.NewStore(mtd.FileScan(deviceConfigs(cfg)))
	if err := store.Probe(); err != nil {
		log.Fatalf("Failed to probe flash devices: %v", err)
	}
	log.Infof("Registered partitions: %v", store.Names())

	backend := fastboot.New(store)
	handler := api.New(backend, cfg.Flash.MaxImageSizeMB*1024*1024)

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORS.AllowedOrigins,
		AllowedMethods:   cfg.Server.CORS.AllowedMethods,
		AllowedHeaders:   cfg.Server.CORS.AllowedHeaders,
		AllowCredentials: cfg.Server.CORS.AllowCredentials,
	})

	// Setup routes
	r := mux.NewRouter()
	handler.Routes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      c.Handler(r),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	stopAdvertising := advertise(cfg)
	defer stopAdvertising()

	// Start server in goroutine
	go func() {
		log.Infof("Starting server at %s:%d", cfg.Server.Host, cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Panicf("Failed to start server: %s", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %s", err)
	}

	log.Info("Server exited")
}
