package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flashboot/fastboot-mtd/internal/config"
	"github.com/flashboot/fastboot-mtd/internal/fastboot"
	"github.com/flashboot/fastboot-mtd/internal/hexfile"
	"github.com/flashboot/fastboot-mtd/internal/mtd"
	"github.com/flashboot/fastboot-mtd/internal/sparse"
)

var (
	configPath  string
	imageFormat string
	verbose     bool
)

// newBackend builds a flashing backend over the devices named in the config
// file, the same way the daemon does.
func newBackend() (*fastboot.Backend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	devs := make([]mtd.FileDeviceConfig, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devs = append(devs, mtd.FileDeviceConfig{
			Name:      d.Name,
			Path:      d.Path,
			Size:      d.SizeKB * 1024,
			WriteSize: d.WriteSize,
			EraseSize: d.EraseSizeKB * 1024,
			Create:    d.AutoCreate,
		})
	}

	return fastboot.New(mtd.NewStore(mtd.FileScan(devs))), nil
}

// fail prints the protocol failure response for err and exits.
func fail(err error) {
	fmt.Println(fastboot.Response(err))
	os.Exit(1)
}

func partitionsCmd(cmd *cobra.Command, args []string) {
	backend, err := newBackend()
	if err != nil {
		fail(err)
	}

	parts, err := backend.Partitions()
	if err != nil {
		fail(err)
	}

	for _, p := range parts {
		fmt.Printf("%-16s size=%#x block_size=%d\n", p.Name, p.Size, p.BlockSize)
	}
}

func infoCmd(cmd *cobra.Command, args []string) {
	backend, err := newBackend()
	if err != nil {
		fail(err)
	}

	p, err := backend.GetPartInfo(args[0])
	if err != nil {
		fail(err)
	}

	fmt.Printf("name:       %s\n", p.Name)
	fmt.Printf("start:      %#x\n", p.Start)
	fmt.Printf("size:       %#x (%d bytes)\n", p.Size, p.Size)
	fmt.Printf("block size: %d\n", p.BlockSize)
	fmt.Println(fastboot.Okay(""))
}

func eraseCmd(cmd *cobra.Command, args []string) {
	backend, err := newBackend()
	if err != nil {
		fail(err)
	}

	if err := backend.Erase(args[0]); err != nil {
		fail(err)
	}
	fmt.Println(fastboot.Okay(""))
}

// loadImage reads the image file and applies the requested format handling.
// Intel HEX files are flattened to a raw image first; the backend takes care
// of sparse detection on its own.
func loadImage(path string) ([]byte, error) {
	if imageFormat == "hex" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		img, base, err := hexfile.Load(f)
		if err != nil {
			return nil, err
		}
		if base != 0 {
			log.Warnf("hex image starts at %#x, flashing at partition offset 0", base)
		}
		return img, nil
	}

	img, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch imageFormat {
	case "auto":
	case "raw":
		// The backend auto-detects the sparse header, so a verbatim write of
		// a sparse file is not possible without corrupting the device.
		if sparse.IsSparseImage(img) {
			return nil, fmt.Errorf("refusing to write a sparse image with --format raw")
		}
	case "sparse":
		if !sparse.IsSparseImage(img) {
			return nil, fmt.Errorf("%s is not an android sparse image", path)
		}
	default:
		return nil, fmt.Errorf("unknown image format %q", imageFormat)
	}
	return img, nil
}

func flashCmd(cmd *cobra.Command, args []string) {
	backend, err := newBackend()
	if err != nil {
		fail(err)
	}

	img, err := loadImage(args[1])
	if err != nil {
		fail(err)
	}

	if err := backend.Flash(args[0], img); err != nil {
		fail(err)
	}
	fmt.Println(fastboot.Okay(""))
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "mtdflash",
		Short: "Flash, erase and inspect MTD partitions",
		Long: "mtdflash drives the same flashing backend as the daemon from the\n" +
			"command line. Partitions come from the config file; images may be raw,\n" +
			"android sparse, or intel hex.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.WarnLevel)
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		"/etc/fastboot-mtd/config.json", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "partitions",
		Short: "List known partitions",
		Run:   partitionsCmd,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "info <partition>",
		Short: "Show a partition descriptor",
		Args:  cobra.ExactArgs(1),
		Run:   infoCmd,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "erase <partition>",
		Short: "Erase an entire partition",
		Args:  cobra.ExactArgs(1),
		Run:   eraseCmd,
	})

	flash := &cobra.Command{
		Use:   "flash <partition> <image>",
		Short: "Write an image to a partition",
		Args:  cobra.ExactArgs(2),
		Run:   flashCmd,
	}
	flash.Flags().StringVarP(&imageFormat, "format", "f", "auto",
		"image format: auto, raw, sparse or hex")
	rootCmd.AddCommand(flash)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
