// Package annotator scores a finished kernel run. A run's captured output is
// fed through a pipeline of passes; each pass records the test cases it can
// recognize into a shared result set.
package annotator

// Pass is a named unit of analysis over one run's captured output. A pass
// gets both artifacts on every run and is free to ignore either.
type Pass interface {
	Name() string
	// AnalyzeReport consumes the case report captured from the run. A nil
	// payload means no report was found.
	AnalyzeReport(payload []byte)
	// AnalyzeLines consumes the raw serial console lines of the run.
	AnalyzeLines(lines []string)
}

// NopPass has empty implementations of both analyze hooks. Passes that only
// care about one kind of input embed it instead of stubbing the other hook
// themselves.
type NopPass struct{}

func (NopPass) AnalyzeReport([]byte) {}

func (NopPass) AnalyzeLines([]string) {}

// RunArtifacts is everything the runner captured from one finished run.
type RunArtifacts struct {
	// Report is the raw case report payload, nil when none was captured.
	Report []byte
	// SerialLines is the serial console output split into lines.
	SerialLines []string
}

// Pipeline feeds every registered pass, in registration order, with a run's
// artifacts. Synchronous; a pass runs to completion before the next starts.
type Pipeline struct {
	passes []Pass
}

func NewPipeline(passes ...Pass) *Pipeline {
	return &Pipeline{passes: passes}
}

func (p *Pipeline) Run(artifacts *RunArtifacts) {
	if artifacts == nil {
		return
	}
	for _, pass := range p.passes {
		pass.AnalyzeReport(artifacts.Report)
		pass.AnalyzeLines(artifacts.SerialLines)
	}
}
