package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cutekitek/kernel-annotator/internal/annotator"
	"github.com/cutekitek/kernel-annotator/internal/mappers"
	"github.com/cutekitek/kernel-annotator/internal/repository/dto"
	"github.com/cutekitek/kernel-annotator/internal/repository/models"
	"github.com/cutekitek/kernel-annotator/internal/runner"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	reqQueue  = "annotate-req"
	respQueue = "annotate-resp"

	fetchTimeout       = 2 * time.Minute
	defaultBootTimeout = 60 * time.Second
	defaultMaxOutput   = 4 * 1024 * 1024
)

// ArtifactStorage is where kernel images come from.
type ArtifactStorage interface {
	FetchFile(ctx context.Context, filename, dst string) error
}

type RabbitMqHandlerConfig struct {
	Login        string
	Password     string
	Host         string
	Port         int
	WorkersCount int
	// Boot limits for requests that carry none, in milliseconds and bytes.
	DefaultTimeout   int64
	DefaultMaxOutput int64
}

type RabbitMQHandler struct {
	cfg          RabbitMqHandlerConfig
	runner       runner.Runner
	storage      ArtifactStorage
	conn         *amqp.Connection
	consumerChan *amqp.Channel
	producerChan *amqp.Channel
	tasksChan    chan models.AnnotationRequest
	listenerDone chan struct{}
	wg           *sync.WaitGroup
	closed       bool
}

func NewRabbitMQHandler(cfg RabbitMqHandlerConfig, runner runner.Runner, storage ArtifactStorage) (*RabbitMQHandler, error) {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultBootTimeout.Milliseconds()
	}
	if cfg.DefaultMaxOutput <= 0 {
		cfg.DefaultMaxOutput = defaultMaxOutput
	}
	return &RabbitMQHandler{
		cfg:       cfg,
		runner:    runner,
		storage:   storage,
		tasksChan: make(chan models.AnnotationRequest),
		wg:        &sync.WaitGroup{},
	}, nil
}

func (r *RabbitMQHandler) Start() error {
	if err := r.setup(); err != nil {
		return err
	}
	for i := 0; i < r.cfg.WorkersCount; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return nil
}

// Close stops consuming, waits for in-flight jobs and tears the connection
// down.
func (r *RabbitMQHandler) Close() {
	r.closed = true
	if r.conn != nil {
		r.conn.Close()
	}
	if r.listenerDone != nil {
		<-r.listenerDone
	}
	close(r.tasksChan)
	r.wg.Wait()
}

func (r *RabbitMQHandler) setup() error {
	if err := r.connect(); err != nil {
		return err
	}
	if err := r.startConsumer(); err != nil {
		return errors.Wrap(err, "failed to start consumer")
	}
	if err := r.startProducer(); err != nil {
		return errors.Wrap(err, "failed to start producer")
	}
	return nil
}

func (r *RabbitMQHandler) startConsumer() error {
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	queue, err := channel.QueueDeclare(reqQueue, false, false, false, false, nil)
	if err != nil {
		return err
	}
	del, err := channel.Consume(queue.Name, "", true, false, false, false, nil)
	if err != nil {
		return err
	}

	r.consumerChan = channel
	r.listenerDone = make(chan struct{})
	go r.listener(del, r.listenerDone)
	return nil
}

func (r *RabbitMQHandler) startProducer() error {
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	if _, err := channel.QueueDeclare(respQueue, false, false, false, false, nil); err != nil {
		return err
	}
	r.producerChan = channel
	return nil
}

func (r *RabbitMQHandler) connect() error {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d", r.cfg.Login, r.cfg.Password, r.cfg.Host, r.cfg.Port)
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	r.conn = conn
	errChan := make(chan *amqp.Error)
	conn.NotifyClose(errChan)
	go func() {
		connErr := <-errChan
		if r.closed {
			return
		}
		slog.Error("rabbitmq connection lost", "error", connErr)

		for {
			time.Sleep(time.Second * 15)
			err := r.setup()
			if err == nil {
				return
			}
			slog.Error("rabbitmq reconnect failed", "error", err)
		}
	}()
	return nil
}

func (r *RabbitMQHandler) listener(taskChan <-chan amqp.Delivery, done chan struct{}) {
	defer close(done)
	for data := range taskChan {
		var task models.AnnotationRequest
		if err := json.Unmarshal(data.Body, &task); err != nil {
			slog.Error("invalid task message", "message", string(data.Body), "error", err)
			continue
		}
		r.tasksChan <- task
	}
}

func (r *RabbitMQHandler) worker() {
	defer r.wg.Done()

	for task := range r.tasksChan {
		runId := uuid.NewString()
		r.send(r.annotate(&task, runId))
	}
}

// annotate runs one grading job: fetch the kernel image, boot it and score
// the captured serial output with the pass pipeline.
func (r *RabbitMQHandler) annotate(task *models.AnnotationRequest, runId string) *models.AnnotationReport {
	log := slog.With("run_id", runId, "task_id", task.Id, "arch", task.Arch)

	workdir, err := os.MkdirTemp("", "annotator-job-")
	if err != nil {
		log.Error("failed to create job dir", "error", err)
		return mappers.InternalErrorReport(task, runId, "failed to prepare job")
	}
	defer os.RemoveAll(workdir)

	imagePath := filepath.Join(workdir, "kernel.bin")
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	if err := r.storage.FetchFile(ctx, task.ImageKey, imagePath); err != nil {
		log.Error("failed to fetch kernel image", "key", task.ImageKey, "error", err)
		return mappers.InternalErrorReport(task, runId, "failed to fetch kernel image")
	}

	result, err := r.runner.Boot(r.bootRequest(task, imagePath))
	if err != nil {
		log.Error("boot failed", "error", err)
		return mappers.InternalErrorReport(task, runId, "failed to boot kernel image")
	}

	results := annotator.NewResultSet()
	pipeline := annotator.NewPipeline(
		annotator.NewCaseReportPass(results),
		annotator.NewMarkerPass(results),
		annotator.NewBootPass(results, task.BootBanner),
	)
	pipeline.Run(annotator.CollectArtifacts(result.SerialOutput))

	log.Info("annotation finished", "status", result.Status, "cases", results.Len(), "total", results.Total(), "time", result.ExecutionTime)
	return mappers.BootResultToReport(task, runId, result, results)
}

func (r *RabbitMQHandler) bootRequest(task *models.AnnotationRequest, imagePath string) *dto.BootRequest {
	req := &dto.BootRequest{
		ImagePath:     imagePath,
		Arch:          task.Arch,
		Timeout:       time.Duration(task.Timeout) * time.Millisecond,
		MemoryLimit:   task.MemoryLimit,
		MaxOutputSize: task.MaxOutputSize,
	}
	if req.Timeout <= 0 {
		req.Timeout = time.Duration(r.cfg.DefaultTimeout) * time.Millisecond
	}
	if req.MaxOutputSize <= 0 {
		req.MaxOutputSize = r.cfg.DefaultMaxOutput
	}
	return req
}

func (r *RabbitMQHandler) send(data *models.AnnotationReport) {
	if !r.closed {
		body, _ := json.Marshal(data)
		err := r.producerChan.PublishWithContext(context.Background(), "", respQueue, false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
		if err != nil {
			slog.Error("failed to send report to queue", "error", err)
		}
	}
}
