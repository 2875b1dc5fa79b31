package annotator

import (
	"reflect"
	"testing"
)

type recordingSink struct {
	calls []CaseResult
}

func (s *recordingSink) AddResult(name string, score float64) {
	s.calls = append(s.calls, CaseResult{Name: name, Score: score})
}

func TestCaseReportPass_AnalyzeReport(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []CaseResult
	}{
		{
			name:    "two cases in order",
			payload: []byte(`[{"name":"t1","passed":0.5},{"name":"t2","passed":1.0}]`),
			want:    []CaseResult{{Name: "t1", Score: 0.5}, {Name: "t2", Score: 1.0}},
		},
		{
			name:    "absent payload",
			payload: nil,
			want:    nil,
		},
		{
			name:    "empty payload",
			payload: []byte{},
			want:    nil,
		},
		{
			name:    "not json",
			payload: []byte("not json"),
			want:    nil,
		},
		{
			name:    "json object",
			payload: []byte(`{}`),
			want:    nil,
		},
		{
			name:    "json string",
			payload: []byte(`"text"`),
			want:    nil,
		},
		{
			name:    "json null",
			payload: []byte(`null`),
			want:    nil,
		},
		{
			name:    "empty array",
			payload: []byte(`[]`),
			want:    nil,
		},
		{
			name:    "name of wrong type",
			payload: []byte(`[{"name":1}]`),
			want:    nil,
		},
		{
			name:    "score of wrong type",
			payload: []byte(`[{"name":"t1","passed":"yes"}]`),
			want:    nil,
		},
		{
			name:    "missing score",
			payload: []byte(`[{"name":"t1"}]`),
			want:    nil,
		},
		{
			name:    "missing name",
			payload: []byte(`[{"passed":1.0}]`),
			want:    nil,
		},
		{
			name:    "no partial application",
			payload: []byte(`[{"name":"t1","passed":1.0},{"name":"t2"}]`),
			want:    nil,
		},
		{
			name:    "array of scalars",
			payload: []byte(`[1,2]`),
			want:    nil,
		},
		{
			name:    "trailing garbage",
			payload: []byte(`[] tail`),
			want:    nil,
		},
		{
			name:    "duplicates kept as-is",
			payload: []byte(`[{"name":"t1","passed":1},{"name":"t1","passed":0}]`),
			want:    []CaseResult{{Name: "t1", Score: 1}, {Name: "t1", Score: 0}},
		},
		{
			name:    "integer score",
			payload: []byte(`[{"name":"t1","passed":1}]`),
			want:    []CaseResult{{Name: "t1", Score: 1}},
		},
		{
			name:    "negative score accepted",
			payload: []byte(`[{"name":"t1","passed":-2.5}]`),
			want:    []CaseResult{{Name: "t1", Score: -2.5}},
		},
		{
			name:    "extra fields ignored",
			payload: []byte(`[{"name":"t1","passed":0.25,"time_ms":7}]`),
			want:    []CaseResult{{Name: "t1", Score: 0.25}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			pass := NewCaseReportPass(sink)
			pass.AnalyzeReport(tt.payload)
			if !reflect.DeepEqual(sink.calls, tt.want) {
				t.Fatalf("recorded %v, want %v", sink.calls, tt.want)
			}
		})
	}
}

func TestCaseReportPass_AnalyzeLinesIsNoop(t *testing.T) {
	sink := &recordingSink{}
	pass := NewCaseReportPass(sink)
	pass.AnalyzeLines([]string{`[{"name":"t1","passed":1.0}]`, "TEST PASS: t2"})
	if len(sink.calls) != 0 {
		t.Fatalf("lines hook recorded %v, want nothing", sink.calls)
	}
}

func TestParseCaseReport(t *testing.T) {
	cases, err := ParseCaseReport([]byte(`[{"name":"getpid","passed":1.0},{"name":"mmap","passed":0.5}]`))
	if err != nil {
		t.Fatalf("ParseCaseReport failed: %v", err)
	}
	want := []CaseResult{{Name: "getpid", Score: 1.0}, {Name: "mmap", Score: 0.5}}
	if !reflect.DeepEqual(cases, want) {
		t.Fatalf("parsed %v, want %v", cases, want)
	}
}

func TestParseCaseReport_EmptyArray(t *testing.T) {
	cases, err := ParseCaseReport([]byte(`[]`))
	if err != nil {
		t.Fatalf("ParseCaseReport failed: %v", err)
	}
	if len(cases) != 0 {
		t.Fatalf("parsed %v, want no cases", cases)
	}
}

func TestParseCaseReport_Failures(t *testing.T) {
	payloads := map[string]string{
		"null literal":  `null`,
		"broken json":   `[{`,
		"wrong shape":   `{"name":"t1","passed":1.0}`,
		"missing field": `[{"name":"t1"}]`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseCaseReport([]byte(payload)); err == nil {
				t.Fatalf("expected an error for %q", payload)
			}
		})
	}
}
