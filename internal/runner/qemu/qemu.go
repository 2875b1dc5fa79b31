package qemu

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/criyle/go-sandbox/container"
	"github.com/criyle/go-sandbox/pkg/cgroup"
	"github.com/criyle/go-sandbox/pkg/mount"
	"github.com/criyle/go-sandbox/pkg/rlimit"
	"github.com/criyle/go-sandbox/runner"
	"github.com/cutekitek/kernel-annotator/internal/repository/dto"
	"github.com/cutekitek/kernel-annotator/internal/runner/machine"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Paths inside the container working mount where images are staged.
const (
	containerKernelPath = "/w/kernel.bin"
	containerDiskPath   = "/w/disk.img"
)

var rootCG cgroup.Cgroup

func init() {
	// must run before anything else: the container package re-execs this
	// binary as the in-container init process
	container.Init()
}

type QemuRunnerConfig struct {
	ProfilesPath       string
	ContainersPoolSize int
}

type machineEnv struct {
	container.Environment
	WorkDir string
}

type QemuRunner struct {
	Config     QemuRunnerConfig
	containers chan *machineEnv
}

type containerRunner struct {
	container.Environment
	container.ExecveParam
}

func (r *containerRunner) Run(c context.Context) runner.Result {
	return r.Execve(c, r.ExecveParam)
}

func NewQemuRunner(cfg QemuRunnerConfig) (*QemuRunner, error) {
	return &QemuRunner{
		Config:     cfg,
		containers: make(chan *machineEnv, cfg.ContainersPoolSize),
	}, nil
}

// Init sets up the root cgroup and the container pool. Requires root.
func (r *QemuRunner) Init() error {
	t := cgroup.DetectType()
	if t == cgroup.TypeV2 {
		cgroup.EnableV2Nesting()
	}

	ct, err := cgroup.GetAvailableController()
	if err != nil {
		return errors.Wrap(err, "cgroup.GetAvailableController")
	}
	rootCG, err = cgroup.New("annotator", ct)
	if err != nil {
		return errors.Wrap(err, "cgroup.New")
	}

	return r.prepareContainers()
}

func (r *QemuRunner) Close() {
	closed := 0
	for closed < r.Config.ContainersPoolSize {
		c := <-r.containers
		c.Destroy()
		os.RemoveAll(c.WorkDir)
		closed++
	}
}

func (r *QemuRunner) Boot(req *dto.BootRequest) (*dto.BootResult, error) {
	profile, err := r.getProfile(req.Arch)
	if err != nil {
		return nil, err
	}

	cont := <-r.containers
	cont.Reset()
	defer func() {
		r.containers <- cont
	}()

	if err := r.initFiles(req, cont, profile); err != nil {
		return nil, errors.Wrap(err, "failed to stage images")
	}

	if err := cont.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping container: %w", err)
	}

	diskPath := ""
	if profile.DiskImage != "" {
		diskPath = containerDiskPath
	}

	res, err := r.ExecuteInSandbox(RunParams{
		ContainerEnv:  cont,
		Args:          profile.Command(containerKernelPath, diskPath),
		Timeout:       req.Timeout,
		MemoryLimit:   req.MemoryLimit,
		MaxOutputSize: req.MaxOutputSize,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to run machine")
	}

	return toBootResult(res), nil
}

func (r *QemuRunner) getProfile(arch string) (*machine.Profile, error) {
	profile, err := machine.NewProfileFromFile(filepath.Join(r.Config.ProfilesPath, arch))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("architecture not supported")
		}
		return nil, err
	}
	return profile, nil
}

// initFiles copies the kernel image and, when the profile has one, a fresh
// disk copy into the container working mount. The guest writes to the disk,
// so it never runs on the pristine image.
func (r *QemuRunner) initFiles(req *dto.BootRequest, env container.Environment, profile *machine.Profile) error {
	if err := copyIntoContainer(env, req.ImagePath, containerKernelPath); err != nil {
		return errors.Wrap(err, "failed to stage kernel image")
	}
	if profile.DiskImage != "" {
		if err := copyIntoContainer(env, profile.DiskImage, containerDiskPath); err != nil {
			return errors.Wrap(err, "failed to stage disk image")
		}
	}
	return nil
}

func copyIntoContainer(env container.Environment, src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer source.Close()

	files, err := env.Open([]container.OpenCmd{
		{Path: dst, Flag: os.O_WRONLY | os.O_CREATE | os.O_TRUNC, Perm: 0777},
	})
	if err != nil {
		return fmt.Errorf("failed to open %s in container: %w", dst, err)
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	if _, err := io.Copy(files[0], source); err != nil {
		return fmt.Errorf("failed to copy into container: %w", err)
	}
	return nil
}

func toBootResult(res *executionResult) *dto.BootResult {
	result := &dto.BootResult{
		Status:        dto.BootStatusFinished,
		SerialOutput:  string(res.Output),
		ExecutionTime: res.Time,
		MemoryUsage:   int64(res.Memory),
	}

	switch res.Status {
	case runner.StatusNormal:
	case runner.StatusMemoryLimitExceeded:
		result.Status = dto.BootStatusOutOfMemory
	case runner.StatusTimeLimitExceeded:
		result.Status = dto.BootStatusTimeout
	case runner.StatusOutputLimitExceeded:
		result.Status = dto.BootStatusOutputOverflow
	default:
		result.Status = dto.BootStatusBootError
		result.Error = strings.TrimSpace(string(res.Error))
	}

	if result.Status == dto.BootStatusFinished && res.ExitStatus != 0 {
		result.Status = dto.BootStatusBootError
		result.Error = strings.TrimSpace(string(res.Error))
	}
	return result
}

type RunParams struct {
	ContainerEnv  container.Environment
	Args          []string
	Timeout       time.Duration
	MemoryLimit   int64
	MaxOutputSize int64
}

type executionResult struct {
	Status     runner.Status
	ExitStatus int
	Time       time.Duration
	Memory     runner.Size
	Error      []byte
	Output     []byte
}

func (r *QemuRunner) ExecuteInSandbox(params RunParams) (*executionResult, error) {
	cg, err := rootCG.Random("machine")
	if err != nil {
		return nil, fmt.Errorf("cgroup.Random: %w", err)
	}
	defer cg.Destroy()

	if params.MemoryLimit > 0 {
		_ = cg.SetMemoryLimit(uint64(runner.Size(params.MemoryLimit)))
	}

	cgDir, err := cg.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open cg fd: %w", err)
	}
	defer cgDir.Close()

	ctx := context.Background()
	var cancel context.CancelFunc
	if params.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	stdinR, stdinW, _ := os.Pipe()
	stdoutR, stdoutW, _ := os.Pipe()
	stderrR, stderrW, _ := os.Pipe()

	stdout := bytes.NewBuffer(nil)
	stderr := bytes.NewBuffer(nil)
	wg := &sync.WaitGroup{}
	wg.Add(2)
	syncFunc := func(pid int) error {
		if err := cg.AddProc(pid); err != nil {
			return err
		}
		go pipeReader(wg, ctx, cancel, stdoutR, stdout, params.MaxOutputSize)
		go pipeReader(wg, ctx, cancel, stderrR, stderr, params.MaxOutputSize)
		return nil
	}

	rlims := rlimit.RLimits{
		Stack:    128 * 1024 * 1024,
		OpenFile: 2048,
	}
	if params.Timeout > 0 {
		rlims.CPU = uint64(params.Timeout.Seconds()) + 1
		rlims.CPUHard = uint64(params.Timeout.Seconds()) + 2
	}
	if params.MemoryLimit > 0 {
		rlims.Data = uint64(params.MemoryLimit)
	}

	rs := containerRunner{
		Environment: params.ContainerEnv,
		ExecveParam: container.ExecveParam{
			Args:     params.Args,
			Env:      []string{"PATH=/usr/local/bin:/usr/bin:/bin", "QEMU_AUDIO_DRV=none"},
			Files:    []uintptr{stdinR.Fd(), stdoutW.Fd(), stderrW.Fd()},
			RLimits:  rlims.PrepareRLimit(),
			SyncFunc: syncFunc,
			CgroupFD: cgDir.Fd(),
		},
	}

	res := rs.Run(ctx)
	stdinR.Close()
	stdinW.Close()
	stdoutW.Close()
	stderrW.Close()
	wg.Wait()
	stdoutR.Close()
	stderrR.Close()

	execRes := &executionResult{
		Status:     res.Status,
		ExitStatus: res.ExitStatus,
		Time:       res.Time,
		Memory:     res.Memory,
		Output:     stdout.Bytes(),
		Error:      stderr.Bytes(),
	}

	if cpu, err := cg.CPUUsage(); err == nil {
		execRes.Time = time.Duration(cpu)
	}
	if mem, err := cg.MemoryMaxUsage(); err == nil {
		execRes.Memory = runner.Size(mem)
	}

	// a guest hung in wfi burns no cpu, so the wall clock deadline is what
	// actually fires for it
	if ctx.Err() == context.DeadlineExceeded && execRes.Status != runner.StatusNormal {
		execRes.Status = runner.StatusTimeLimitExceeded
	}
	if params.MaxOutputSize > 0 && (int64(stdout.Len()) >= params.MaxOutputSize || int64(stderr.Len()) >= params.MaxOutputSize) {
		execRes.Status = runner.StatusOutputLimitExceeded
	}

	slog.Debug("machine finished", "status", execRes.Status, "exitStatus", execRes.ExitStatus, "memory", execRes.Memory, "time", execRes.Time, "serialBytes", stdout.Len(), "stderr", execRes.Error)

	return execRes, nil
}

func pipeReader(wg *sync.WaitGroup, ctx context.Context, cancelF context.CancelFunc, pipe *os.File, out io.Writer, maxSize int64) {
	var copied int64
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			n, err := io.CopyN(out, pipe, 1024)
			copied += n
			if maxSize > 0 && copied >= maxSize {
				cancelF()
				return
			}
			if err != nil {
				return
			}
		}
	}
}

func (r *QemuRunner) PrepareContainer(workdir string) (container.Environment, error) {
	mounts := mount.NewBuilder().
		WithBind("/bin", "bin", true).
		WithBind("/lib", "lib", true).
		WithBind("/lib64", "lib64", true).
		WithBind("/usr", "usr", true).
		WithBind("/etc/ld.so.cache", "/etc/ld.so.cache", true).
		WithProc().
		WithBind("/dev/null", "dev/null", false).
		WithBind("/dev/urandom", "dev/urandom", false).
		WithTmpfs("tmp", "size=128m,nr_inodes=4k").
		// holds the kernel image plus a writable disk copy
		WithTmpfs("w", "size=512m,nr_inodes=4k").
		FilterNotExist()

	cloneFlag := unix.CLONE_NEWIPC | unix.CLONE_NEWNET | unix.CLONE_NEWNS | unix.CLONE_NEWPID | unix.CLONE_NEWUSER | unix.CLONE_NEWUTS

	b := container.Builder{
		Root:          workdir,
		WorkDir:       "/w",
		Mounts:        mounts.Mounts,
		Stderr:        os.Stderr,
		CredGenerator: newCredGen(),
		CloneFlags:    uintptr(cloneFlag),
	}
	return b.Build()
}

func (r *QemuRunner) prepareContainers() error {
	for i := 0; i < r.Config.ContainersPoolSize; i++ {
		workDir, err := os.MkdirTemp("", "annotator-container-")
		if err != nil {
			return errors.Wrap(err, "failed to create temp dir")
		}
		c, err := r.PrepareContainer(workDir)
		if err != nil {
			return errors.Wrap(err, "failed to create container")
		}
		r.containers <- &machineEnv{
			Environment: c,
			WorkDir:     workDir,
		}
	}
	return nil
}

type credGen struct {
	cur uint32
}

func newCredGen() *credGen {
	return &credGen{cur: 10000}
}

func (c *credGen) Get() syscall.Credential {
	n := atomic.AddUint32(&c.cur, 1)
	return syscall.Credential{
		Uid: n,
		Gid: n,
	}
}
