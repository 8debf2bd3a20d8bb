package models

import (
	"strings"
	"time"

	"phishguard/internal/docstore"
)

// ScanKind is the kind of artifact that was scanned.
type ScanKind string

const (
	ScanLink  ScanKind = "link"
	ScanEmail ScanKind = "email"
	ScanDoc   ScanKind = "doc"
)

// Valid reports whether k is one of the persisted scan kinds.
func (k ScanKind) Valid() bool {
	return k == ScanLink || k == ScanEmail || k == ScanDoc
}

// Collection is the per-user remote collection name, under users/{id}/.
func (k ScanKind) Collection() string {
	switch k {
	case ScanEmail:
		return "email_scans"
	case ScanDoc:
		return "doc_scans"
	default:
		return "scans"
	}
}

// subjectField is the document field holding the scanned artifact.
func (k ScanKind) subjectField() string {
	switch k {
	case ScanEmail:
		return "text_content"
	case ScanDoc:
		return "filename"
	default:
		return "url"
	}
}

// Prediction is the verdict of a scan. Fake is shown as "Suspicious".
type Prediction string

const (
	Legit Prediction = "Legit"
	Fake  Prediction = "Fake"
)

// ThreatLevel is only reported for link scans.
type ThreatLevel string

const (
	ThreatLow     ThreatLevel = "Low"
	ThreatMedium  ThreatLevel = "Medium"
	ThreatHigh    ThreatLevel = "High"
	ThreatUnknown ThreatLevel = "Unknown"
)

// NormalizeThreatLevel maps a level of any case onto the known levels.
// Unrecognized levels are ThreatUnknown.
func NormalizeThreatLevel(s string) ThreatLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ThreatLow
	case "medium":
		return ThreatMedium
	case "high":
		return ThreatHigh
	}
	return ThreatUnknown
}

// ScanRecord is one entry of a scan history.
type ScanRecord struct {
	ID            string      `json:"id"`
	Kind          ScanKind    `json:"kind"`
	Subject       string      `json:"subject"` // url, email text or file name
	SenderDomain  string      `json:"sender_domain,omitempty"`
	Prediction    Prediction  `json:"prediction"`
	Confidence    float64     `json:"confidence"` // 0..1
	ThreatLevel   ThreatLevel `json:"threat_level,omitempty"`
	ExtractedText string      `json:"extracted_text,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	UserID        string      `json:"user_id"`
}

// Percent is the confidence on the 0..100 scale shown to users.
func (r ScanRecord) Percent() float64 {
	return r.Confidence * 100
}

// ToDocument renders the record in the remote field layout. The timestamp is
// left to the store clock.
func (r ScanRecord) ToDocument() map[string]any {
	data := map[string]any{
		r.Kind.subjectField(): r.Subject,
		"prediction":          string(r.Prediction),
		"confidence":          r.Confidence,
		"timestamp":           docstore.ServerTimestamp,
		"user_id":             r.UserID,
	}
	switch r.Kind {
	case ScanLink:
		data["threat_level"] = string(r.ThreatLevel)
	case ScanEmail:
		data["sender_domain"] = r.SenderDomain
	case ScanDoc:
		data["extracted_text"] = r.ExtractedText
	}
	return data
}

// ScanFromDocument normalizes a remote scan document of the given kind.
func ScanFromDocument(kind ScanKind, doc docstore.Document) ScanRecord {
	d := doc.Data
	r := ScanRecord{
		ID:            doc.ID,
		Kind:          kind,
		Subject:       stringField(d, kind.subjectField(), ""),
		SenderDomain:  stringField(d, "sender_domain", ""),
		Prediction:    NormalizePrediction(stringField(d, "prediction", string(Legit))),
		Confidence:    floatField(d, "confidence", 0),
		ExtractedText: stringField(d, "extracted_text", ""),
		Timestamp:     timeField(d, "timestamp", doc.CreatedAt),
		UserID:        stringField(d, "user_id", ""),
	}
	if kind == ScanLink {
		r.ThreatLevel = NormalizeThreatLevel(stringField(d, "threat_level", string(ThreatLow)))
	}
	return r
}

// NormalizePrediction maps classifier labels onto Legit and Fake. Anything
// that is not explicitly safe counts as Fake.
func NormalizePrediction(label string) Prediction {
	switch label {
	case "Legit", "Safe":
		return Legit
	}
	return Fake
}
