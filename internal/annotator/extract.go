package annotator

import (
	"strings"
)

const (
	reportBeginMarker = "!TEST RESULT BEGIN!"
	reportEndMarker   = "!TEST RESULT END!"
)

// ExtractReport pulls the case report payload out of the serial console
// lines. The harness prints the report between marker lines; everything
// between the first begin marker and the next end marker is the payload.
// Returns nil when either marker is missing or the report is empty.
func ExtractReport(lines []string) []byte {
	begin := -1
	for i, line := range lines {
		if strings.Contains(line, reportBeginMarker) {
			begin = i + 1
			break
		}
	}
	if begin < 0 {
		return nil
	}
	for i := begin; i < len(lines); i++ {
		if strings.Contains(lines[i], reportEndMarker) {
			report := strings.TrimSpace(strings.Join(lines[begin:i], "\n"))
			if report == "" {
				return nil
			}
			return []byte(report)
		}
	}
	// Begin marker without an end marker: the run was cut off mid-report.
	return nil
}

// CollectArtifacts splits raw serial output into artifacts for the pipeline.
// Serial consoles emit \r\n; the carriage returns are stripped so passes can
// match on clean lines.
func CollectArtifacts(serial string) *RunArtifacts {
	lines := strings.Split(serial, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return &RunArtifacts{
		Report:      ExtractReport(lines),
		SerialLines: lines,
	}
}
