// Package reports implements pothole report intake and administration:
// anyone can file or browse reports, while resolving and deleting them sit
// behind the auth core's session middleware.
package reports

import (
	"time"
)

// Severity buckets for a pothole report.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// PotholeReport is a citizen-filed road damage report.
type PotholeReport struct {
	ID          string    `json:"id"`
	ImageURL    string    `json:"image_url"`
	Location    string    `json:"location"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	Resolved    bool      `json:"resolved"`
	ReportedAt  time.Time `json:"reported_at"`
}

// CreateReportRequest is the public intake payload. Location and
// description are free text from untrusted users and get sanitized before
// storage.
type CreateReportRequest struct {
	ImageURL    string `json:"image_url"`
	Location    string `json:"location"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}
