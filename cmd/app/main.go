package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cutekitek/kernel-annotator/internal/config"
	"github.com/cutekitek/kernel-annotator/internal/files"
	"github.com/cutekitek/kernel-annotator/internal/rabbitmq"
	"github.com/cutekitek/kernel-annotator/internal/runner"
	"github.com/cutekitek/kernel-annotator/internal/runner/docker"
	"github.com/cutekitek/kernel-annotator/internal/runner/proc"
	"github.com/cutekitek/kernel-annotator/internal/runner/qemu"
)

func panicErr(err error) {
	if err != nil {
		panic(err)
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		slog.SetLogLoggerLevel(slog.LevelDebug)
	case "info":
		slog.SetLogLoggerLevel(slog.LevelInfo)
	case "warn":
		slog.SetLogLoggerLevel(slog.LevelWarn)
	case "error":
		slog.SetLogLoggerLevel(slog.LevelError)
	default:
		slog.SetLogLoggerLevel(slog.LevelWarn)
	}
}

func newRunner(cfg *config.Config) (runner.Runner, func()) {
	switch cfg.RunnerBackend {
	case "proc":
		r, err := proc.NewProcRunner(proc.ProcRunnerConfig{
			ProfilesPath: cfg.MachinesPath,
			MaxMachines:  cfg.MachinesPoolSize,
		})
		panicErr(err)
		panicErr(r.Init())
		return r, func() {}
	case "docker":
		r, err := docker.NewDockerRunner(docker.DockerRunnerConfig{
			ProfilesPath: cfg.MachinesPath,
			Image:        cfg.DockerImage,
			MaxMachines:  cfg.MachinesPoolSize,
		})
		panicErr(err)
		return r, func() {}
	default:
		r, err := qemu.NewQemuRunner(qemu.QemuRunnerConfig{
			ProfilesPath:       cfg.MachinesPath,
			ContainersPoolSize: cfg.MachinesPoolSize,
		})
		panicErr(err)
		panicErr(r.Init())
		return r, r.Close
	}
}

func main() {
	cfg, err := config.NewConfig()
	panicErr(err)
	setLogLevel(cfg.LogLevel)

	machineRunner, closeRunner := newRunner(cfg)

	fileStorage := files.NewFileStorage(files.Config{
		Url:      cfg.MinIOHost,
		Login:    cfg.MinIOLogin,
		Password: cfg.MinIOPassword,
		Bucket:   cfg.MinIOBucket,
	})
	listener, err := rabbitmq.NewRabbitMQHandler(rabbitmq.RabbitMqHandlerConfig{
		Login:            cfg.RabbitMQUser,
		Password:         cfg.RabbitMQPassword,
		Host:             cfg.RabbitMQHost,
		Port:             cfg.RabbitMQPort,
		WorkersCount:     cfg.WorkersCount,
		DefaultTimeout:   cfg.DefaultBootTimeout,
		DefaultMaxOutput: cfg.DefaultMaxOutput,
	}, machineRunner, fileStorage)
	panicErr(err)
	panicErr(listener.Start())
	slog.Info("app started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	listener.Close()
	closeRunner()
}
