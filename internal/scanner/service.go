// Package scanner runs link, email, document and QR scans against the
// inference API and records the results in the caller's history.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"phishguard/internal/identity"
	"phishguard/internal/inference"
	"phishguard/internal/localstore"
	"phishguard/internal/metrics"
	"phishguard/internal/models"
	"phishguard/internal/realtime"
)

var (
	ErrEmptyInput      = errors.New("input is empty")
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// User-facing notes attached to degraded results.
const (
	NoteLinkFallback = "The link analysis backend is currently unavailable. Using basic analysis instead."
	NoteScanFailed   = "Unable to analyze the input. Please try again later."
	NoteNoText       = "No text could be extracted from this document."
	NoteDocFailed    = "Error: Unable to process document. Please try again or check your internet connection."
)

var (
	documentExtensions = []string{".pdf", ".docx"}
	imageExtensions    = []string{".png", ".jpg", ".jpeg"}
)

// Inference is the classification backend.
type Inference interface {
	ScanLink(ctx context.Context, url string) (inference.LinkResult, error)
	ScanEmail(ctx context.Context, text, senderDomain string) (inference.Verdict, error)
	ScanDocument(ctx context.Context, filename string, r io.Reader) (inference.Verdict, error)
	ScanQR(ctx context.Context, filename string, r io.Reader) (inference.QRResult, error)
}

// Scan is the outcome shown to the user. Degraded is set when the verdict
// did not come from the API; Note then explains why.
type Scan struct {
	Record   models.ScanRecord `json:"record"`
	Degraded bool              `json:"degraded"`
	Note     string            `json:"note,omitempty"`
	History  realtime.Result   `json:"history"`
	// Recent is the updated URL-only list, set for unsigned link scans.
	Recent []string `json:"recent,omitempty"`
}

// Service performs scans.
type Service struct {
	api       Inference
	heuristic *inference.Heuristic
	history   *realtime.History
	logger    *zap.Logger
}

// NewService creates a scanner. A nil heuristic uses the default one.
func NewService(api Inference, heuristic *inference.Heuristic, history *realtime.History, logger *zap.Logger) *Service {
	if heuristic == nil {
		heuristic = inference.NewHeuristic(nil)
	}
	return &Service{api: api, heuristic: heuristic, history: history, logger: logger}
}

// ScanLink classifies url, falling back to the offline heuristic when the
// API fails.
func (s *Service) ScanLink(ctx context.Context, local localstore.Store, id identity.Identity, url string) (Scan, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Scan{}, fmt.Errorf("link: %w", ErrEmptyInput)
	}

	var scan Scan
	res, err := s.api.ScanLink(ctx, url)
	if err != nil {
		s.logger.Warn("Link API failed, using basic analysis", zap.String("url", url), zap.Error(err))
		res = s.heuristic.AnalyzeLink(url)
		scan.Degraded = true
		scan.Note = NoteLinkFallback
	}

	scan.Record = models.ScanRecord{
		Kind:        models.ScanLink,
		Subject:     url,
		Prediction:  res.Prediction,
		Confidence:  res.Confidence,
		ThreatLevel: res.ThreatLevel,
	}
	s.record(ctx, local, id, &scan)

	if !id.Authenticated {
		recent, err := s.history.RememberLegacy(local, url)
		if err != nil {
			s.logger.Error("Failed to update recent links", zap.Error(err))
		}
		scan.Recent = recent
	}
	return scan, nil
}

// ScanEmail classifies an email body. API failures give a fail-closed
// verdict.
func (s *Service) ScanEmail(ctx context.Context, local localstore.Store, id identity.Identity, text, senderDomain string) (Scan, error) {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(senderDomain) == "" {
		return Scan{}, fmt.Errorf("email: %w", ErrEmptyInput)
	}
	senderDomain = strings.TrimSpace(senderDomain)

	scan := Scan{Record: models.ScanRecord{Kind: models.ScanEmail, Subject: text, SenderDomain: senderDomain}}
	v, err := s.api.ScanEmail(ctx, text, senderDomain)
	if err != nil {
		s.logger.Warn("Email API failed", zap.String("sender_domain", senderDomain), zap.Error(err))
		failClosed(&scan, NoteScanFailed)
	} else {
		scan.Record.Prediction = v.Prediction
		scan.Record.Confidence = v.Confidence
	}
	s.record(ctx, local, id, &scan)
	return scan, nil
}

// ScanDocument classifies a PDF or DOCX file.
func (s *Service) ScanDocument(ctx context.Context, local localstore.Store, id identity.Identity, filename string, r io.Reader) (Scan, error) {
	if err := checkExtension(filename, documentExtensions); err != nil {
		return Scan{}, err
	}

	scan := Scan{Record: models.ScanRecord{Kind: models.ScanDoc, Subject: filepath.Base(filename)}}
	v, err := s.api.ScanDocument(ctx, scan.Record.Subject, r)
	if err != nil {
		s.logger.Warn("Document API failed", zap.String("filename", filename), zap.Error(err))
		failClosed(&scan, NoteDocFailed)
		scan.Record.ExtractedText = NoteDocFailed
	} else {
		scan.Record.Prediction = v.Prediction
		scan.Record.Confidence = v.Confidence
		scan.Record.ExtractedText = v.ExtractedText
		if scan.Record.ExtractedText == "" {
			scan.Record.ExtractedText = NoteNoText
		}
	}
	s.record(ctx, local, id, &scan)
	return scan, nil
}

// ScanQR decodes a QR image. QR scans are not kept in any history.
func (s *Service) ScanQR(ctx context.Context, filename string, r io.Reader) (inference.QRResult, error) {
	if err := checkExtension(filename, imageExtensions); err != nil {
		return inference.QRResult{}, err
	}
	res, err := s.api.ScanQR(ctx, filepath.Base(filename), r)
	if err != nil {
		return inference.QRResult{}, fmt.Errorf("qr scan: %w", err)
	}
	metrics.ScansTotal.WithLabelValues("qr", string(res.Prediction)).Inc()
	return res, nil
}

func (s *Service) record(ctx context.Context, local localstore.Store, id identity.Identity, scan *Scan) {
	kind := string(scan.Record.Kind)
	metrics.ScansTotal.WithLabelValues(kind, string(scan.Record.Prediction)).Inc()
	if scan.Degraded {
		metrics.ScansDegradedTotal.WithLabelValues(kind).Inc()
	}

	scan.History = s.history.Submit(ctx, local, id, scan.Record)
	scan.Record = scan.History.Record
	if scan.History.Outcome == realtime.Lost {
		s.logger.Error("Scan result was not saved", zap.String("kind", kind), zap.Error(scan.History.Err))
	}
}

func failClosed(scan *Scan, note string) {
	scan.Record.Prediction = models.Fake
	scan.Record.Confidence = 0
	scan.Degraded = true
	scan.Note = note
}

func checkExtension(filename string, allowed []string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("file: %w", ErrEmptyInput)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return fmt.Errorf("%w %q, expected one of %s", ErrUnsupportedFile, ext, strings.Join(allowed, ", "))
}
