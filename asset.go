package imagecurate

import (
	"path"
	"strings"
)

// Reason names why an asset was rejected. The empty Reason means pass.
type Reason string

const (
	ReasonTooSmall       Reason = "tooSmall"
	ReasonBadAspectRatio Reason = "badAspectRatio"
	ReasonTooSmallFile   Reason = "tooSmallFile"
	ReasonTooLargeFile   Reason = "tooLargeFile"
	ReasonDuplicate      Reason = "duplicate"
	ReasonCorrupted      Reason = "corrupted"
)

// AllReasons lists every rejection reason in report order.
var AllReasons = []Reason{
	ReasonTooSmall,
	ReasonBadAspectRatio,
	ReasonTooSmallFile,
	ReasonTooLargeFile,
	ReasonDuplicate,
	ReasonCorrupted,
}

// Status is the lifecycle state of an ImageAsset.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPassed   Status = "passed"
	StatusRejected Status = "rejected"
)

// imageExtensions are the candidate file extensions (lower case).
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// IsImageName reports whether name carries a candidate image extension.
func IsImageName(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ImageAsset is the in-memory record of one candidate during a run.
type ImageAsset struct {
	Name        string // base name inside the source partition
	Path        string // full path on the source filesystem
	ID          int64  // external record id parsed from Name
	HasID       bool
	Facts       Facts
	Status      Status
	Reason      Reason
	Fingerprint Fingerprint // empty when unavailable
	Provenance  *Provenance
}

// StatusLabel renders the status as "passed", "pending" or "rejected:<reason>".
func (a *ImageAsset) StatusLabel() string {
	if a.Status == StatusRejected {
		return string(StatusRejected) + ":" + string(a.Reason)
	}
	return string(a.Status)
}

// Outcome is emitted once per asset after the Router has placed it.
type Outcome struct {
	Name        string      `json:"name"`
	ID          *int64      `json:"id,omitempty"`
	Status      Status      `json:"status"`
	Reason      Reason      `json:"reason,omitempty"`
	DuplicateOf string      `json:"duplicate_of,omitempty"`
	Distance    int         `json:"distance,omitempty"`
	Fingerprint Fingerprint `json:"fingerprint,omitempty"`
	Location    string      `json:"location,omitempty"`
	WriteError  string      `json:"write_error,omitempty"`
	Provenance  *Provenance `json:"provenance,omitempty"`
}
