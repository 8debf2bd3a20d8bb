// Package reports accepts scam reports and serves the reviewer dashboard.
package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"phishguard/internal/docstore"
	"phishguard/internal/identity"
	"phishguard/internal/metrics"
	"phishguard/internal/models"
	"phishguard/internal/validation"
)

const (
	MinDescriptionLength = 10
	MaxDescriptionLength = 1000
)

var ErrUnauthenticated = errors.New("sign in to submit a report")

// ValidationError maps form fields to messages.
type ValidationError map[string]string

func (v ValidationError) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + v[f]
	}
	return "invalid report: " + strings.Join(parts, "; ")
}

// Input is the report form. Fields are validated after trimming.
type Input struct {
	URL           string `json:"url" validate:"required,abs_url"`
	ReporterEmail string `json:"email" validate:"omitempty,loose_email"`
	Category      string `json:"scamType" validate:"required"`
	Description   string `json:"description" validate:"required,min=10,max=1000"`
	EvidenceURL   string `json:"proofUrl" validate:"omitempty,abs_url"`
}

var fieldMessages = map[string]string{
	"url.required":         "URL is required",
	"url.abs_url":          "Please enter a valid URL",
	"scamType.required":    "Please select a scam type",
	"description.required": "Description is required",
	"description.min":      fmt.Sprintf("Description must be at least %d characters", MinDescriptionLength),
	"description.max":      fmt.Sprintf("Description must be at most %d characters", MaxDescriptionLength),
	"email.loose_email":    "Please enter a valid email address",
	"proofUrl.abs_url":     "Please enter a valid URL",
}

// Normalized returns the form with surrounding whitespace removed.
func (in Input) Normalized() Input {
	return Input{
		URL:           strings.TrimSpace(in.URL),
		ReporterEmail: strings.TrimSpace(in.ReporterEmail),
		Category:      strings.TrimSpace(in.Category),
		Description:   strings.TrimSpace(in.Description),
		EvidenceURL:   strings.TrimSpace(in.EvidenceURL),
	}
}

// Validate checks the trimmed form and returns a ValidationError listing
// every bad field.
func (in Input) Validate() error {
	err := validation.Struct(in.Normalized())
	if err == nil {
		return nil
	}
	if msgs := validation.Messages(err, fieldMessages); len(msgs) > 0 {
		return ValidationError(msgs)
	}
	return err
}

// Notifier is told about every stored report.
type Notifier interface {
	ReportSubmitted(ctx context.Context, r models.Report) error
}

// Service stores reports.
type Service struct {
	store    docstore.Store
	notifier Notifier
	logger   *zap.Logger
}

func NewService(store docstore.Store, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{store: store, notifier: notifier, logger: logger}
}

// Submit validates and stores a report as pending. Store failures are
// returned as is; there is no local fallback for reports.
func (s *Service) Submit(ctx context.Context, id identity.Identity, in Input) (models.Report, error) {
	if !id.Authenticated {
		return models.Report{}, ErrUnauthenticated
	}
	if err := in.Validate(); err != nil {
		return models.Report{}, err
	}
	in = in.Normalized()

	r := models.Report{
		URL:           in.URL,
		ReporterEmail: in.ReporterEmail,
		Category:      in.Category,
		Description:   in.Description,
		EvidenceURL:   in.EvidenceURL,
		OwnerID:       id.ID,
		Status:        models.ReportPending,
	}
	if r.ReporterEmail == "" {
		r.ReporterEmail = id.Email
	}

	docID, err := s.store.Add(ctx, models.ReportsCollection, r.ToDocument())
	if err != nil {
		s.logger.Error("Failed to store report", zap.String("uid", id.ID), zap.Error(err))
		return models.Report{}, fmt.Errorf("failed to store report: %w", err)
	}
	r.ID = docID
	if doc, err := s.store.Get(ctx, models.ReportsCollection, docID); err == nil {
		r = models.ReportFromDocument(doc)
	}

	metrics.ReportsTotal.Inc()
	s.logger.Info("Report submitted", zap.String("id", r.ID), zap.String("scam_type", r.Category), zap.String("uid", id.ID))

	if s.notifier != nil {
		if err := s.notifier.ReportSubmitted(ctx, r); err != nil {
			s.logger.Warn("Failed to notify reviewers about report", zap.String("id", r.ID), zap.Error(err))
		}
	}
	return r, nil
}

// Query is the dashboard's newest-first listing of all reports.
func Query() docstore.Query {
	return docstore.Query{Collection: models.ReportsCollection, OrderBy: "createdAt", Direction: docstore.Descending}
}
