package models

import (
	"strings"
	"time"

	"phishguard/internal/docstore"
)

const ReportsCollection = "reports"

// Report statuses.
const (
	ReportPending  = "pending"
	ReportReviewed = "reviewed"
)

// NormalizeReportStatus maps a stored status onto ReportPending or
// ReportReviewed. Anything unrecognized is still pending.
func NormalizeReportStatus(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), ReportReviewed) {
		return ReportReviewed
	}
	return ReportPending
}

// ReportCategories are the scam types offered on the report form.
var ReportCategories = []string{
	"Phishing",
	"Fake Tech Support",
	"Financial Scam",
	"Romance Scam",
	"Job Scam",
	"Investment Scam",
	"Shopping Scam",
	"Other",
}

// Report is a user-submitted scam report.
type Report struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	ReporterEmail string    `json:"reporterEmail,omitempty"`
	Category      string    `json:"scamType"`
	Description   string    `json:"description"`
	EvidenceURL   string    `json:"proofUrl,omitempty"`
	OwnerID       string    `json:"uid"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ToDocument renders a new report; createdAt is assigned by the store.
func (r Report) ToDocument() map[string]any {
	var proof any
	if r.EvidenceURL != "" {
		proof = r.EvidenceURL
	}
	return map[string]any{
		"url":           r.URL,
		"scamType":      r.Category,
		"description":   r.Description,
		"reporterEmail": r.ReporterEmail,
		"proofUrl":      proof,
		"uid":           r.OwnerID,
		"createdAt":     docstore.ServerTimestamp,
		"status":        r.Status,
	}
}

// ReportFromDocument normalizes a remote report document.
func ReportFromDocument(doc docstore.Document) Report {
	d := doc.Data
	return Report{
		ID:            doc.ID,
		URL:           stringField(d, "url", ""),
		ReporterEmail: stringField(d, "reporterEmail", ""),
		Category:      stringField(d, "scamType", "Unknown"),
		Description:   stringField(d, "description", ""),
		EvidenceURL:   stringField(d, "proofUrl", ""),
		OwnerID:       stringField(d, "uid", ""),
		Status:        NormalizeReportStatus(stringField(d, "status", ReportPending)),
		CreatedAt:     timeField(d, "createdAt", doc.CreatedAt),
	}
}
