package annotator

import (
	"reflect"
	"testing"
)

func TestExtractReport(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{
			name: "report between markers",
			lines: []string{
				"[kernel] scheduler online",
				"!TEST RESULT BEGIN!",
				`[{"name":"t1","passed":1.0}]`,
				"!TEST RESULT END!",
				"[kernel] power off",
			},
			want: `[{"name":"t1","passed":1.0}]`,
		},
		{
			name: "markers inside noisy lines",
			lines: []string{
				"[ 3.141] serial: !TEST RESULT BEGIN!",
				`[{"name":"t1","passed":0.5},`,
				`{"name":"t2","passed":1.0}]`,
				"[ 3.150] serial: !TEST RESULT END!",
			},
			want: "[{\"name\":\"t1\",\"passed\":0.5},\n{\"name\":\"t2\",\"passed\":1.0}]",
		},
		{
			name:  "no begin marker",
			lines: []string{`[{"name":"t1","passed":1.0}]`, "!TEST RESULT END!"},
			want:  "",
		},
		{
			name:  "unterminated report",
			lines: []string{"!TEST RESULT BEGIN!", `[{"name":"t1",`},
			want:  "",
		},
		{
			name:  "empty report",
			lines: []string{"!TEST RESULT BEGIN!", "!TEST RESULT END!"},
			want:  "",
		},
		{
			name:  "nothing at all",
			lines: []string{"[kernel] panicked at src/main.rs"},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractReport(tt.lines)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("ExtractReport = %q, want nil", got)
				}
				return
			}
			if string(got) != tt.want {
				t.Fatalf("ExtractReport = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCollectArtifacts(t *testing.T) {
	serial := "boot ok\r\n!TEST RESULT BEGIN!\r\n[{\"name\":\"t1\",\"passed\":1.0}]\r\n!TEST RESULT END!\r\nTEST PASS: shutdown\r\n"

	artifacts := CollectArtifacts(serial)

	wantLines := []string{
		"boot ok",
		"!TEST RESULT BEGIN!",
		`[{"name":"t1","passed":1.0}]`,
		"!TEST RESULT END!",
		"TEST PASS: shutdown",
		"",
	}
	if !reflect.DeepEqual(artifacts.SerialLines, wantLines) {
		t.Fatalf("SerialLines = %q, want %q", artifacts.SerialLines, wantLines)
	}
	if string(artifacts.Report) != `[{"name":"t1","passed":1.0}]` {
		t.Fatalf("Report = %q", artifacts.Report)
	}
}

func TestCollectArtifacts_NoReport(t *testing.T) {
	artifacts := CollectArtifacts("just noise\nno markers here\n")
	if artifacts.Report != nil {
		t.Fatalf("Report = %q, want nil", artifacts.Report)
	}
}
