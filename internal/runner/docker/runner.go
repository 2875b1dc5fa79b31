package docker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cutekitek/kernel-annotator/internal/repository/dto"
	"github.com/cutekitek/kernel-annotator/internal/runner"
	"github.com/cutekitek/kernel-annotator/internal/runner/machine"
	"github.com/cutekitek/kernel-annotator/pkg/files"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
)

// containerWorkDir is the bind mount inside the machine container holding the
// staged kernel and disk images.
const containerWorkDir = "/machine"

type DockerRunnerConfig struct {
	ProfilesPath string
	// Image must have the profiles' qemu binaries installed.
	Image       string
	MaxMachines int
}

type DockerRunner struct {
	cli   *client.Client
	cfg   DockerRunnerConfig
	slots chan struct{}
}

// NewDockerRunner creates a runner that boots kernel images inside docker
// containers, for hosts where the emulators live in an image rather than on
// the host itself.
func NewDockerRunner(cfg DockerRunnerConfig) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create docker client")
	}
	cli.NegotiateAPIVersion(context.Background())

	if cfg.MaxMachines <= 0 {
		cfg.MaxMachines = 1
	}
	slots := make(chan struct{}, cfg.MaxMachines)
	for i := 0; i < cfg.MaxMachines; i++ {
		slots <- struct{}{}
	}
	return &DockerRunner{cli: cli, cfg: cfg, slots: slots}, nil
}

func (d *DockerRunner) Boot(req *dto.BootRequest) (*dto.BootResult, error) {
	profile, err := d.getProfile(req.Arch)
	if err != nil {
		return nil, err
	}

	// wait for a free machine slot
	<-d.slots
	defer func() {
		d.slots <- struct{}{}
	}()

	workdir, err := os.MkdirTemp("", "machine-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create machine workdir")
	}
	defer os.RemoveAll(workdir)

	if err := files.CopyFile(req.ImagePath, filepath.Join(workdir, "kernel.bin")); err != nil {
		return nil, errors.Wrap(err, "failed to stage kernel image")
	}
	diskPath := ""
	if profile.DiskImage != "" {
		if err := files.CopyFile(profile.DiskImage, filepath.Join(workdir, "disk.img")); err != nil {
			return nil, errors.Wrap(err, "failed to stage disk image")
		}
		diskPath = containerWorkDir + "/disk.img"
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	containerConfig := &container.Config{
		Image:      d.cfg.Image,
		Cmd:        profile.Command(containerWorkDir+"/kernel.bin", diskPath),
		WorkingDir: containerWorkDir,
	}
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Binds: []string{
			fmt.Sprintf("%s:%s:rw", workdir, containerWorkDir),
		},
	}
	if req.MemoryLimit > 0 {
		hostConfig.Resources = container.Resources{Memory: req.MemoryLimit}
	}

	created, err := d.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create machine container")
	}
	defer d.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})

	started := time.Now()
	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, errors.Wrap(err, "failed to start machine container")
	}

	result := &dto.BootResult{Status: dto.BootStatusFinished}
	var exitCode int64

	statusCh, errCh := d.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case werr := <-errCh:
		if werr != nil {
			if ctx.Err() != nil {
				result.Status = dto.BootStatusTimeout
			} else {
				return nil, errors.Wrap(werr, "failed to wait for machine container")
			}
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		result.Status = dto.BootStatusTimeout
	}
	result.ExecutionTime = time.Since(started)

	stdout, stderr, overflowed, err := d.collectLogs(created.ID, req.MaxOutputSize)
	if err != nil {
		return nil, err
	}
	result.SerialOutput = stdout

	switch {
	case overflowed:
		result.Status = dto.BootStatusOutputOverflow
	case result.Status == dto.BootStatusFinished && exitCode != 0:
		// docker reports an oom kill as a plain SIGKILL exit
		if exitCode == 137 && req.MemoryLimit > 0 {
			result.Status = dto.BootStatusOutOfMemory
		} else {
			result.Status = dto.BootStatusBootError
			result.Error = strings.TrimSpace(stderr)
			if result.Error == "" {
				result.Error = fmt.Sprintf("machine exited with status %d", exitCode)
			}
		}
	}
	return result, nil
}

func (d *DockerRunner) getProfile(arch string) (*machine.Profile, error) {
	profile, err := machine.NewProfileFromFile(filepath.Join(d.cfg.ProfilesPath, arch))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("architecture not supported")
		}
		return nil, err
	}
	return profile, nil
}

// collectLogs demuxes the container log stream into serial output and stderr,
// stopping once either side exceeds maxOutput.
func (d *DockerRunner) collectLogs(id string, maxOutput int64) (string, string, bool, error) {
	out, err := d.cli.ContainerLogs(context.Background(), id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", false, errors.Wrap(err, "failed to read serial output")
	}
	defer out.Close()

	stdout := newCappedWriter(maxOutput)
	stderr := newCappedWriter(maxOutput)
	if _, err := stdcopy.StdCopy(stdout, stderr, out); err != nil && !errors.Is(err, errOutputCapped) {
		return "", "", false, errors.Wrap(err, "failed to demux serial output")
	}
	return stdout.String(), stderr.String(), stdout.capped || stderr.capped, nil
}

var errOutputCapped = errors.New("output is too big")

// cappedWriter stops the log copy once max bytes were written. A max of zero
// means unbounded.
type cappedWriter struct {
	buf    bytes.Buffer
	max    int64
	capped bool
}

func newCappedWriter(max int64) *cappedWriter {
	return &cappedWriter{max: max}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	if w.max <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.max - int64(w.buf.Len())
	if int64(len(p)) >= remaining {
		w.buf.Write(p[:remaining])
		w.capped = true
		return int(remaining), errOutputCapped
	}
	return w.buf.Write(p)
}

func (w *cappedWriter) String() string {
	return w.buf.String()
}

var _ runner.Runner = (*DockerRunner)(nil)
