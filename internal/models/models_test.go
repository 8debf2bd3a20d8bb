package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phishguard/internal/docstore"
)

func TestScanFromDocumentDefaults(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := docstore.Document{ID: "s1", CreatedAt: created, Data: map[string]any{
		"url":        "http://example.com",
		"confidence": "high", // wrong type
	}}

	r := ScanFromDocument(ScanLink, doc)
	assert.Equal(t, "s1", r.ID)
	assert.Equal(t, "http://example.com", r.Subject)
	assert.Equal(t, Legit, r.Prediction)
	assert.Equal(t, 0.0, r.Confidence)
	assert.Equal(t, ThreatLow, r.ThreatLevel)
	assert.Equal(t, created, r.Timestamp)
}

func TestScanRecordDocumentLayout(t *testing.T) {
	r := ScanRecord{Kind: ScanEmail, Subject: "win a prize", SenderDomain: "x.tk", Prediction: Fake, Confidence: 0.9, UserID: "u1"}
	data := r.ToDocument()
	assert.Equal(t, "win a prize", data["text_content"])
	assert.Equal(t, "x.tk", data["sender_domain"])
	assert.Equal(t, docstore.ServerTimestamp, data["timestamp"])
	assert.NotContains(t, data, "threat_level")

	back := ScanFromDocument(ScanEmail, docstore.Document{ID: "e1", Data: data})
	assert.Equal(t, "win a prize", back.Subject)
	assert.Equal(t, Fake, back.Prediction)
	assert.InDelta(t, 90.0, back.Percent(), 1e-9)
}

func TestScanKindCollections(t *testing.T) {
	assert.Equal(t, "scans", ScanLink.Collection())
	assert.Equal(t, "email_scans", ScanEmail.Collection())
	assert.Equal(t, "doc_scans", ScanDoc.Collection())
	assert.False(t, ScanKind("qr").Valid())
}

func TestNormalizePrediction(t *testing.T) {
	assert.Equal(t, Legit, NormalizePrediction("Safe"))
	assert.Equal(t, Legit, NormalizePrediction("Legit"))
	assert.Equal(t, Fake, NormalizePrediction("Phishing"))
	assert.Equal(t, Fake, NormalizePrediction(""))
}

func TestReportFromDocumentDefaults(t *testing.T) {
	r := ReportFromDocument(docstore.Document{ID: "r1", Data: map[string]any{
		"url":       "http://bad.tk",
		"createdAt": docstore.FormatTime(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
		"proofUrl":  nil,
	}})
	assert.Equal(t, ReportPending, r.Status)
	assert.Equal(t, "Unknown", r.Category)
	assert.Empty(t, r.EvidenceURL)
	assert.Equal(t, 2, r.CreatedAt.Day())
}

func TestNormalizeThreatLevel(t *testing.T) {
	assert.Equal(t, ThreatLow, NormalizeThreatLevel("low"))
	assert.Equal(t, ThreatMedium, NormalizeThreatLevel(" Medium "))
	assert.Equal(t, ThreatHigh, NormalizeThreatLevel("HIGH"))
	assert.Equal(t, ThreatUnknown, NormalizeThreatLevel("critical"))
	assert.Equal(t, ThreatUnknown, NormalizeThreatLevel(""))

	r := ScanFromDocument(ScanLink, docstore.Document{ID: "s1", Data: map[string]any{"threat_level": "severe"}})
	assert.Equal(t, ThreatUnknown, r.ThreatLevel)
}

func TestReportStatus(t *testing.T) {
	assert.Equal(t, ReportReviewed, NormalizeReportStatus("Reviewed"))
	assert.Equal(t, ReportPending, NormalizeReportStatus("pending"))
	assert.Equal(t, ReportPending, NormalizeReportStatus("archived"))

	r := ReportFromDocument(docstore.Document{ID: "r1", Data: map[string]any{"status": "reviewed"}})
	assert.Equal(t, ReportReviewed, r.Status)
}

func TestQuestionFromDocument(t *testing.T) {
	doc := docstore.Document{ID: "q1", Data: map[string]any{
		"content":  "Is this link safe?",
		"student":  map[string]any{"id": "u1", "name": "Sam"},
		"priority": "critical",
		"status":   "archived",
		"likes":    3.0,
		"tags":     []any{"phishing", 7},
		"answer": map[string]any{
			"content":    "No.",
			"answeredBy": map[string]any{"id": "rev"},
		},
	}}

	q := QuestionFromDocument(doc)
	assert.Equal(t, PriorityMedium, q.Priority)
	assert.Equal(t, StatusUnanswered, q.Status)
	assert.Equal(t, 3, q.Likes)
	assert.Equal(t, 0, q.Views)
	assert.Equal(t, []string{"phishing"}, q.Tags)
	assert.Equal(t, "general", q.Category)
	assert.Equal(t, "Sam", q.Student.Name)
	require.NotNil(t, q.Answer)
	assert.Equal(t, "rev", q.Answer.AnsweredBy.ID)
}

func TestNewPersonAvatar(t *testing.T) {
	p := NewPerson("u1", "", "", "Team Lead", "059669")
	assert.Equal(t, "Team Lead", p.Name)
	assert.Equal(t, "https://ui-avatars.com/api/?name=Team%20Lead&background=059669&color=fff", p.Avatar)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, 1, LevelFor(0))
	assert.Equal(t, 1, LevelFor(499))
	assert.Equal(t, 2, LevelFor(500))
	assert.Equal(t, 3, LevelFor(1010))
}
