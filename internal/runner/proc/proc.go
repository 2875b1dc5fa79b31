package proc

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cutekitek/kernel-annotator/internal/repository/dto"
	"github.com/cutekitek/kernel-annotator/internal/runner"
	"github.com/cutekitek/kernel-annotator/internal/runner/machine"
	"github.com/cutekitek/kernel-annotator/pkg/files"
	"github.com/cutekitek/kernel-annotator/pkg/shell"
	"github.com/pkg/errors"
)

type ProcRunnerConfig struct {
	ProfilesPath string
	MaxMachines  int
}

type ProcRunner struct {
	cfg   ProcRunnerConfig
	slots chan struct{}
}

// NewProcRunner creates a runner that boots kernel images in plain emulator
// processes without a sandbox. Memory limits are not enforced here, only the
// guest RAM from the machine profile applies.
func NewProcRunner(cfg ProcRunnerConfig) (*ProcRunner, error) {
	if cfg.MaxMachines <= 0 {
		cfg.MaxMachines = 1
	}
	slots := make(chan struct{}, cfg.MaxMachines)
	for i := 0; i < cfg.MaxMachines; i++ {
		slots <- struct{}{}
	}
	return &ProcRunner{cfg: cfg, slots: slots}, nil
}

// Init probes every machine profile's emulator binary so a missing emulator
// shows up at startup instead of on the first job.
func (r *ProcRunner) Init() error {
	entries, err := os.ReadDir(r.cfg.ProfilesPath)
	if err != nil {
		return errors.Wrap(err, "failed to read machine profiles")
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		profile, err := machine.NewProfileFromFile(filepath.Join(r.cfg.ProfilesPath, entry.Name()))
		if err != nil {
			return errors.Wrapf(err, "failed to load machine profile %s", entry.Name())
		}
		version, err := shell.NewCommand(context.Background(), profile.QemuBinary, "--version").RunAndCollectStdout()
		if err != nil {
			return errors.Wrapf(err, "emulator for %s is not available", entry.Name())
		}
		slog.Info("machine profile ready", "arch", entry.Name(), "emulator", firstLine(version))
	}
	return nil
}

func (r *ProcRunner) Boot(req *dto.BootRequest) (*dto.BootResult, error) {
	profile, err := r.getProfile(req.Arch)
	if err != nil {
		return nil, err
	}

	// wait for a free machine slot
	<-r.slots
	defer func() {
		r.slots <- struct{}{}
	}()

	workdir, err := os.MkdirTemp("", "machine-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create machine workdir")
	}
	defer os.RemoveAll(workdir)

	diskPath := ""
	if profile.DiskImage != "" {
		diskPath = filepath.Join(workdir, "disk.img")
		if err := files.CopyFile(profile.DiskImage, diskPath); err != nil {
			return nil, errors.Wrap(err, "failed to stage disk image")
		}
	}

	ctx := context.Background()
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	argv := profile.Command(req.ImagePath, diskPath)
	cmd := shell.NewCommand(ctx, argv[0], argv[1:]...)
	cmd.Cmd.Dir = workdir

	started := time.Now()
	stdout, stderr, err := cmd.RunBounded(req.MaxOutputSize)
	result := &dto.BootResult{
		Status:        dto.BootStatusFinished,
		SerialOutput:  stdout,
		ExecutionTime: time.Since(started),
	}
	if err == nil {
		return result, nil
	}

	switch {
	case errors.Is(err, shell.ErrOutputOverflow):
		result.Status = dto.BootStatusOutputOverflow
	case ctx.Err() == context.DeadlineExceeded:
		result.Status = dto.BootStatusTimeout
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, errors.Wrap(err, "failed to run machine")
		}
		result.Status = dto.BootStatusBootError
		result.Error = strings.TrimSpace(stderr)
		if result.Error == "" {
			result.Error = exitErr.String()
		}
	}
	return result, nil
}

func (r *ProcRunner) getProfile(arch string) (*machine.Profile, error) {
	profile, err := machine.NewProfileFromFile(filepath.Join(r.cfg.ProfilesPath, arch))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("architecture not supported")
		}
		return nil, err
	}
	return profile, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var _ runner.Runner = (*ProcRunner)(nil)
