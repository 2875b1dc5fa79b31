// Package machine loads per-architecture emulator invocation profiles. A
// profile lives in <profiles dir>/<arch>/config.json next to any disk image
// it references.
package machine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DiskToken marks where in DiskArgs the per-run disk copy path goes.
const DiskToken = "{disk}"

type Profile struct {
	QemuBinary string   `json:"qemu"`
	Args       []string `json:"args"`
	// KernelFlag is how the image is handed to the emulator, "-kernel" by default.
	KernelFlag string `json:"kernel_flag"`
	// MemoryMB is the guest RAM handed to the emulator, separate from the
	// memory limit put on the emulator process itself.
	MemoryMB int `json:"memory_mb"`
	// DiskImage optionally names a pristine disk image, relative to the
	// profile directory. Runs get their own copy since the guest writes to it.
	DiskImage string `json:"disk_image"`
	// DiskArgs are appended with DiskToken replaced by the run's disk copy.
	DiskArgs []string `json:"disk_args"`
}

func NewProfileFromFile(path string) (*Profile, error) {
	file, err := os.Open(filepath.Join(path, "config.json"))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := new(Profile)
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}
	if cfg.DiskImage != "" {
		cfg.DiskImage = filepath.Join(path, cfg.DiskImage)
	}
	return cfg, nil
}

// Command assembles the emulator argv for booting imagePath. diskPath is the
// run's disk copy, empty when the profile has no disk image.
func (p *Profile) Command(imagePath, diskPath string) []string {
	args := make([]string, 0, len(p.Args)+len(p.DiskArgs)+5)
	args = append(args, p.QemuBinary)
	args = append(args, p.Args...)
	if p.MemoryMB > 0 {
		args = append(args, "-m", strconv.Itoa(p.MemoryMB))
	}
	flag := p.KernelFlag
	if flag == "" {
		flag = "-kernel"
	}
	args = append(args, flag, imagePath)
	if diskPath != "" {
		for _, arg := range p.DiskArgs {
			args = append(args, strings.ReplaceAll(arg, DiskToken, diskPath))
		}
	}
	return args
}
