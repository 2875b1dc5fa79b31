package config

import (
	"os"
	"runtime"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	MinIOHost        string `env:"MINIO_HOST" env-default:"127.0.0.1:9000"`
	MinIOLogin       string `env:"MINIO_LOGIN" env-required:"true"`
	MinIOPassword    string `env:"MINIO_PASSWORD" env-required:"true"`
	MinIOBucket      string `env:"MINIO_BUCKET" env-default:"kernels"`
	RabbitMQHost     string `env:"RABBIT_HOST" env-default:"127.0.0.1"`
	RabbitMQPort     int    `env:"RABBIT_PORT" env-default:"5672"`
	RabbitMQUser     string `env:"RABBIT_USER" env-required:"true"`
	RabbitMQPassword string `env:"RABBIT_PASSWORD" env-required:"true"`
	WorkersCount     int    `env:"WORKERS_COUNT" env-default:"0"`
	MachinesPath     string `env:"MACHINES_PATH" env-default:"machines"`
	// MachinesPoolSize caps how many emulators run at once.
	MachinesPoolSize int `env:"MACHINES_POOL_SIZE" env-default:"2"`
	// RunnerBackend picks how emulators are launched: qemu (sandboxed,
	// needs root), proc (plain processes) or docker.
	RunnerBackend string `env:"RUNNER_BACKEND" env-default:"qemu"`
	DockerImage   string `env:"DOCKER_IMAGE" env-default:"annotator-machines:latest"`
	LogLevel      string `env:"LOG_LEVEL" env-default:"info"`
	// Boot limits applied to requests that carry none.
	DefaultBootTimeout int64 `env:"DEFAULT_BOOT_TIMEOUT" env-default:"60000"`
	DefaultMaxOutput   int64 `env:"DEFAULT_MAX_OUTPUT_SIZE" env-default:"4194304"`
}

func NewConfig() (*Config, error) {
	cfg := &Config{}

	err := cleanenv.ReadConfig(".env", cfg)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.WorkersCount <= 0 {
		cfg.WorkersCount = runtime.NumCPU()
	}

	return cfg, nil
}
