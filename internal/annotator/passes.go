package annotator

import (
	"strings"
)

const (
	passMarker = "TEST PASS:"
	failMarker = "TEST FAIL:"
)

// MarkerPass scores harnesses that report over plain serial lines instead of
// a JSON report: "TEST PASS: <name>" scores 1, "TEST FAIL: <name>" scores 0,
// in line order. Lines without a name after the marker are skipped.
type MarkerPass struct {
	NopPass
	results ResultSink
}

func NewMarkerPass(results ResultSink) *MarkerPass {
	return &MarkerPass{results: results}
}

func (p *MarkerPass) Name() string {
	return "line-markers"
}

func (p *MarkerPass) AnalyzeLines(lines []string) {
	for _, line := range lines {
		if idx := strings.Index(line, passMarker); idx != -1 {
			if name := strings.TrimSpace(line[idx+len(passMarker):]); name != "" {
				p.results.AddResult(name, 1)
			}
			continue
		}
		if idx := strings.Index(line, failMarker); idx != -1 {
			if name := strings.TrimSpace(line[idx+len(failMarker):]); name != "" {
				p.results.AddResult(name, 0)
			}
		}
	}
}

// BootPass records a single result telling whether the run ever reached the
// harness banner. With no banner configured the pass records nothing.
type BootPass struct {
	NopPass
	results ResultSink
	banner  string
}

func NewBootPass(results ResultSink, banner string) *BootPass {
	return &BootPass{results: results, banner: banner}
}

func (p *BootPass) Name() string {
	return "boot"
}

func (p *BootPass) AnalyzeLines(lines []string) {
	if p.banner == "" {
		return
	}
	for _, line := range lines {
		if strings.Contains(line, p.banner) {
			p.results.AddResult("boot", 1)
			return
		}
	}
	p.results.AddResult("boot", 0)
}
