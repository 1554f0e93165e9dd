package models

import "time"

// FileMetadata describes a Markdown file in the output vault.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link is a wikilink edge from a converted document to a link name.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// ReviewStatus is the verdict on a converted document.
type ReviewStatus string

const (
	StatusPending ReviewStatus = "pending"
	StatusGood    ReviewStatus = "good"
	StatusBad     ReviewStatus = "bad"
	StatusManual  ReviewStatus = "manual"
)

// ReviewStatuses lists every status.
var ReviewStatuses = []ReviewStatus{StatusPending, StatusGood, StatusBad, StatusManual}

// Valid reports whether s is a known status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case StatusPending, StatusGood, StatusBad, StatusManual:
		return true
	}
	return false
}
