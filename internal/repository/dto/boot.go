package dto

import (
	"time"
)

type BootStatus int8

const (
	BootStatusFinished BootStatus = iota
	BootStatusBootError
	BootStatusTimeout
	BootStatusOutOfMemory
	BootStatusOutputOverflow
	BootStatusInternalError
)

// BootRequest describes one kernel boot under the emulator.
type BootRequest struct {
	// ImagePath points at the staged kernel image on the local filesystem.
	ImagePath string
	Arch      string
	Timeout   time.Duration
	// In bytes. Bounds the emulator process, not the guest RAM.
	MemoryLimit int64
	// In bytes. Caps how much serial output is captured before the run is cut off.
	MaxOutputSize int64
}

// BootResult is the captured outcome of one boot. SerialOutput is kept even
// for failed runs so the passes can still score whatever the kernel managed
// to print.
type BootResult struct {
	Status BootStatus
	// SerialOutput is the raw serial console text, truncated at the output cap.
	SerialOutput  string
	Error         string
	ExecutionTime time.Duration
	MemoryUsage   int64
}
