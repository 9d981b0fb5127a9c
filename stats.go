package imagecurate

import "sync"

// CleaningStats is an immutable snapshot of run counters.
// Total == Passed + sum(Rejected) always holds.
type CleaningStats struct {
	Total         int            `json:"total"`
	Passed        int            `json:"passed"`
	Rejected      map[Reason]int `json:"rejected"`
	WriteFailures int            `json:"writeFailures"`
}

// RejectedTotal sums the per-reason reject counts.
func (s CleaningStats) RejectedTotal() int {
	n := 0
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// PassRate returns Passed/Total, or 0 for an empty run.
func (s CleaningStats) PassRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total)
}

// StatsAggregator accumulates outcome counters. Updates are atomic per asset.
type StatsAggregator struct {
	mu            sync.Mutex
	total         int
	passed        int
	rejected      map[Reason]int
	writeFailures int
}

// NewStatsAggregator returns an aggregator with every reason at zero.
func NewStatsAggregator() *StatsAggregator {
	rejected := make(map[Reason]int, len(AllReasons))
	for _, r := range AllReasons {
		rejected[r] = 0
	}
	return &StatsAggregator{rejected: rejected}
}

// Record counts one placed asset.
func (a *StatsAggregator) Record(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if o.Status == StatusPassed {
		a.passed++
	} else {
		a.rejected[o.Reason]++
	}
	if o.WriteError != "" {
		a.writeFailures++
	}
}

// Snapshot returns a copy of the current counters.
func (a *StatsAggregator) Snapshot() CleaningStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	rejected := make(map[Reason]int, len(a.rejected))
	for r, c := range a.rejected {
		rejected[r] = c
	}
	return CleaningStats{
		Total:         a.total,
		Passed:        a.passed,
		Rejected:      rejected,
		WriteFailures: a.writeFailures,
	}
}
