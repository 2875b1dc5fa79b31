package annotator

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// caseRecord mirrors one element of the harness case report. Fields are
// pointers so a missing key can be told apart from a zero value.
type caseRecord struct {
	Name  *string  `json:"name"`
	Score *float64 `json:"passed"`
}

// ParseCaseReport decodes a harness case report: a JSON array of objects,
// each carrying a string "name" and a numeric "passed" score. The whole
// payload is rejected on the first malformed element; there is never a
// partial result.
func ParseCaseReport(payload []byte) ([]CaseResult, error) {
	var records []caseRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, errors.Wrap(err, "malformed case report")
	}
	if records == nil {
		// The payload was the JSON literal null.
		return nil, errors.New("case report is null")
	}
	cases := make([]CaseResult, 0, len(records))
	for i, rec := range records {
		if rec.Name == nil {
			return nil, errors.Errorf("case %d: missing name", i)
		}
		if rec.Score == nil {
			return nil, errors.Errorf("case %d: missing passed score", i)
		}
		cases = append(cases, CaseResult{Name: *rec.Name, Score: *rec.Score})
	}
	return cases, nil
}

// CaseReportPass records every test case from the harness case report into
// the shared result sink.
type CaseReportPass struct {
	NopPass
	results ResultSink
}

func NewCaseReportPass(results ResultSink) *CaseReportPass {
	return &CaseReportPass{results: results}
}

func (p *CaseReportPass) Name() string {
	return "case-report"
}

// AnalyzeReport appends one result per reported case, in report order. An
// absent report is a no-op. A malformed report is dropped whole: nothing is
// recorded and no error escapes. Harnesses produce garbage on the serial
// console all the time; a report that doesn't parse scores nothing rather
// than failing the annotation run.
func (p *CaseReportPass) AnalyzeReport(payload []byte) {
	if len(payload) == 0 {
		return
	}
	cases, err := ParseCaseReport(payload)
	if err != nil {
		return
	}
	for _, c := range cases {
		p.results.AddResult(c.Name, c.Score)
	}
}
