package annotator

import (
	"reflect"
	"testing"
)

type tracingPass struct {
	name  string
	trace *[]string
}

func (p *tracingPass) Name() string { return p.name }

func (p *tracingPass) AnalyzeReport(payload []byte) {
	*p.trace = append(*p.trace, p.name+":report")
}

func (p *tracingPass) AnalyzeLines(lines []string) {
	*p.trace = append(*p.trace, p.name+":lines")
}

func TestPipeline_RunsPassesInRegistrationOrder(t *testing.T) {
	var trace []string
	pipeline := NewPipeline(
		&tracingPass{name: "first", trace: &trace},
		&tracingPass{name: "second", trace: &trace},
	)

	pipeline.Run(&RunArtifacts{Report: []byte("[]"), SerialLines: []string{"x"}})

	want := []string{"first:report", "first:lines", "second:report", "second:lines"}
	if !reflect.DeepEqual(trace, want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
}

func TestPipeline_NilArtifacts(t *testing.T) {
	var trace []string
	pipeline := NewPipeline(&tracingPass{name: "only", trace: &trace})

	pipeline.Run(nil)

	if len(trace) != 0 {
		t.Fatalf("trace = %v, want empty", trace)
	}
}

// End to end over a realistic serial capture: the JSON report scores the
// syscall suites, the markers score ad-hoc checks, and the boot pass confirms
// the banner.
func TestPipeline_AnnotatesSerialCapture(t *testing.T) {
	serial := "OpenSBI v1.2\r\n" +
		"[kernel] harness ready\r\n" +
		"TEST PASS: console\r\n" +
		"!TEST RESULT BEGIN!\r\n" +
		"[{\"name\":\"getpid\",\"passed\":1.0},{\"name\":\"mmap\",\"passed\":0.5}]\r\n" +
		"!TEST RESULT END!\r\n" +
		"TEST FAIL: shutdown\r\n"

	results := NewResultSet()
	pipeline := NewPipeline(
		NewCaseReportPass(results),
		NewMarkerPass(results),
		NewBootPass(results, "harness ready"),
	)
	pipeline.Run(CollectArtifacts(serial))

	want := []CaseResult{
		{Name: "getpid", Score: 1.0},
		{Name: "mmap", Score: 0.5},
		{Name: "console", Score: 1},
		{Name: "shutdown", Score: 0},
		{Name: "boot", Score: 1},
	}
	if got := results.Results(); !reflect.DeepEqual(got, want) {
		t.Fatalf("results = %v, want %v", got, want)
	}
	if total := results.Total(); total != 3.5 {
		t.Fatalf("Total() = %v, want 3.5", total)
	}
}
