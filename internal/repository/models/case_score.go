package models

// CaseScore is one scored test case in the published report. Cases keep the
// order the passes recorded them in; names are not unique.
type CaseScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}
