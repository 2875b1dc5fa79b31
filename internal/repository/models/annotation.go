package models

type AnnotationStatus int8

const (
	AnnotationStatusComplete AnnotationStatus = iota
	AnnotationStatusBootFailed
	AnnotationStatusTimeout
	AnnotationStatusOutOfMemory
	AnnotationStatusOutputOverflow
	AnnotationStatusInternalError
)

// AnnotationRequest is one grading job taken from the request queue.
type AnnotationRequest struct {
	Id int64 `json:"id"`
	// ImageKey is the object name of the kernel image in the artifact bucket.
	ImageKey string `json:"image_key"`
	Arch     string `json:"arch"`
	// milliseconds
	Timeout int64 `json:"timeout"`
	// bytes, for the whole emulator process
	MemoryLimit int64 `json:"memory_limit"`
	// bytes of captured serial output
	MaxOutputSize int64 `json:"max_output_size"`
	// BootBanner, when set, is the harness banner line the boot pass looks for.
	BootBanner string `json:"boot_banner,omitempty"`
}

// AnnotationReport is the bot's answer for one request.
type AnnotationReport struct {
	Id            int64            `json:"id"`
	RunId         string           `json:"run_id"`
	Status        AnnotationStatus `json:"status"`
	Cases         []CaseScore      `json:"cases"`
	Total         float64          `json:"total"`
	ExecutionTime int64            `json:"execution_time"`
	MemoryUsage   int64            `json:"memory_usage"`
	Error         string           `json:"error,omitempty"`
}
