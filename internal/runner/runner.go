package runner

import "github.com/cutekitek/kernel-annotator/internal/repository/dto"

type Runner interface {
	// Syncronosly boots a kernel image and captures its serial output. If
	// there are no free machine slots waits for other boots to finish.
	Boot(*dto.BootRequest) (*dto.BootResult, error)
}
