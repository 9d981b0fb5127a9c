package imagecurate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"
)

// ReportConfig records the settings a run was made with.
type ReportConfig struct {
	Rules               Rules         `json:"rules"`
	SimilarityThreshold int           `json:"hashSimilarityThreshold"`
	Granularity         int           `json:"granularity"`
	IndexStrategy       IndexStrategy `json:"indexStrategy"`
}

// Report is the structured end-of-run record of the clean stage.
type Report struct {
	RunID     string        `json:"runId"`
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
	Stats     CleaningStats `json:"stats"`
	Config    ReportConfig  `json:"config"`
	Cancelled bool          `json:"cancelled,omitempty"`
	Outcomes  []Outcome     `json:"outcomes,omitempty"`
}

// WriteReport writes r as indented JSON to path on fs.
func WriteReport(fs afero.Fs, path string, r *Report) error {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(fs afero.Fs, path string) (*Report, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
