package proc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cutekitek/kernel-annotator/internal/repository/dto"
	"github.com/cutekitek/kernel-annotator/internal/runner/machine"
)

func writeProfile(t *testing.T, root, arch string, profile *machine.Profile) {
	t.Helper()
	dir := filepath.Join(root, arch)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(profile)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestRunner(t *testing.T, root string) *ProcRunner {
	t.Helper()
	r, err := NewProcRunner(ProcRunnerConfig{ProfilesPath: root, MaxMachines: 2})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestBootCapturesSerial(t *testing.T) {
	root := t.TempDir()
	// the fake emulator sees the kernel flag as $0 and the image as $1
	writeProfile(t, root, "sh", &machine.Profile{
		QemuBinary: "sh",
		Args:       []string{"-c", `echo "booting $1"`},
	})
	r := newTestRunner(t, root)

	res, err := r.Boot(&dto.BootRequest{ImagePath: "/images/kernel.bin", Arch: "sh", Timeout: 10 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != dto.BootStatusFinished {
		t.Fatalf("unexpected status %d: %s", res.Status, res.Error)
	}
	if res.SerialOutput != "booting /images/kernel.bin\n" {
		t.Fatalf("unexpected serial output %q", res.SerialOutput)
	}
	if res.ExecutionTime <= 0 {
		t.Fatal("execution time not measured")
	}
}

func TestBootTimeout(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "sh", &machine.Profile{
		QemuBinary: "sh",
		Args:       []string{"-c", "sleep 5"},
	})
	r := newTestRunner(t, root)

	res, err := r.Boot(&dto.BootRequest{ImagePath: "kernel.bin", Arch: "sh", Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != dto.BootStatusTimeout {
		t.Fatalf("unexpected status %d", res.Status)
	}
}

func TestBootOutputOverflow(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "sh", &machine.Profile{
		QemuBinary: "sh",
		Args:       []string{"-c", "while :; do echo spam; done"},
	})
	r := newTestRunner(t, root)

	res, err := r.Boot(&dto.BootRequest{ImagePath: "kernel.bin", Arch: "sh", Timeout: 10 * time.Second, MaxOutputSize: 4096})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != dto.BootStatusOutputOverflow {
		t.Fatalf("unexpected status %d", res.Status)
	}
}

func TestBootProcessFailure(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "sh", &machine.Profile{
		QemuBinary: "sh",
		Args:       []string{"-c", "echo no bios found >&2; exit 1"},
	})
	r := newTestRunner(t, root)

	res, err := r.Boot(&dto.BootRequest{ImagePath: "kernel.bin", Arch: "sh", Timeout: 10 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != dto.BootStatusBootError {
		t.Fatalf("unexpected status %d", res.Status)
	}
	if !strings.Contains(res.Error, "no bios found") {
		t.Fatalf("stderr not captured: %q", res.Error)
	}
}

func TestBootUnknownArch(t *testing.T) {
	root := t.TempDir()
	r := newTestRunner(t, root)

	_, err := r.Boot(&dto.BootRequest{ImagePath: "kernel.bin", Arch: "mips"})
	if err == nil {
		t.Fatal("expected error for unknown architecture")
	}
	if !strings.Contains(err.Error(), "architecture not supported") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestBootStagesDiskImage(t *testing.T) {
	root := t.TempDir()
	// with disk args appended the disk copy path lands in $3
	writeProfile(t, root, "sh", &machine.Profile{
		QemuBinary: "sh",
		Args:       []string{"-c", `cat "$3"`},
		DiskImage:  "disk.img",
		DiskArgs:   []string{"-drive", machine.DiskToken},
	})
	if err := os.WriteFile(filepath.Join(root, "sh", "disk.img"), []byte("pristine\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newTestRunner(t, root)

	res, err := r.Boot(&dto.BootRequest{ImagePath: "kernel.bin", Arch: "sh", Timeout: 10 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != dto.BootStatusFinished {
		t.Fatalf("unexpected status %d: %s", res.Status, res.Error)
	}
	if res.SerialOutput != "pristine\n" {
		t.Fatalf("disk image not staged: %q", res.SerialOutput)
	}
}
