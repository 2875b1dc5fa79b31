package annotator

import (
	"sync"
)

// CaseResult is one scored test case reported by a run.
type CaseResult struct {
	Name  string
	Score float64
}

// ResultSink consumes scored test cases. Passes only ever append; they never
// read back what other passes recorded.
type ResultSink interface {
	AddResult(name string, score float64)
}

// ResultSet collects the results of every pass over one run. It keeps cases
// in the order they were recorded and accepts duplicates as-is. The set owns
// its own locking, so it can be handed to callers running on different
// goroutines.
type ResultSet struct {
	mu      sync.Mutex
	results []CaseResult
}

func NewResultSet() *ResultSet {
	return &ResultSet{}
}

func (s *ResultSet) AddResult(name string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, CaseResult{Name: name, Score: score})
}

// Results returns a snapshot copy in record order.
func (s *ResultSet) Results() []CaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CaseResult, len(s.results))
	copy(out, s.results)
	return out
}

func (s *ResultSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// Total is the plain sum of all recorded scores.
func (s *ResultSet) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, r := range s.results {
		total += r.Score
	}
	return total
}
