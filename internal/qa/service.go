// Package qa is the community question board: learners ask, the reviewer
// answers, and the asker or reviewer resolves.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"phishguard/internal/docstore"
	"phishguard/internal/identity"
	"phishguard/internal/metrics"
	"phishguard/internal/models"
	"phishguard/internal/validation"
)

var (
	ErrUnauthenticated  = errors.New("sign in to use the board")
	ErrForbidden        = errors.New("not allowed")
	ErrEmptyContent     = errors.New("content is empty")
	ErrInvalidPriority  = errors.New("invalid priority")
	ErrQuestionNotFound = errors.New("question not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrAlreadyAnswered  = errors.New("question is already answered")
	ErrNotAnswered      = errors.New("question has no answer yet")
)

// Avatar colors of generated author pictures.
const (
	studentColor  = "0891b2"
	reviewerColor = "059669"
)

// Notifier is told about new questions.
type Notifier interface {
	QuestionAsked(ctx context.Context, q models.Question) error
}

// AskInput is a new question.
type AskInput struct {
	Content  string `json:"content" validate:"required"`
	Category string `json:"category"`
	Priority string `json:"priority" validate:"oneof=low medium high urgent"`
}

// normalized trims the input, lowercases the priority and fills in the
// defaults for priority and category.
func (in AskInput) normalized() AskInput {
	out := AskInput{
		Content:  strings.TrimSpace(in.Content),
		Category: strings.TrimSpace(in.Category),
		Priority: strings.ToLower(strings.TrimSpace(in.Priority)),
	}
	if out.Priority == "" {
		out.Priority = models.PriorityMedium
	}
	if out.Category == "" || out.Category == "all" {
		out.Category = "general"
	}
	return out
}

func (in AskInput) validate() error {
	err := validation.Struct(in)
	if err == nil {
		return nil
	}
	fields := validation.Fields(err)
	if _, ok := fields["content"]; ok {
		return ErrEmptyContent
	}
	if _, ok := fields["priority"]; ok {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, in.Priority)
	}
	return err
}

// Service owns question writes. Status transitions are serialized within
// the process.
type Service struct {
	store      docstore.Store
	reviewerID string
	notifier   Notifier
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewService creates a board whose answers may only come from reviewerID.
// An empty reviewerID means nobody can answer.
func NewService(store docstore.Store, reviewerID string, notifier Notifier, logger *zap.Logger) *Service {
	if reviewerID == "" {
		logger.Warn("No Q&A reviewer configured (qa.reviewer_id); questions cannot be answered")
	}
	return &Service{store: store, reviewerID: reviewerID, notifier: notifier, logger: logger}
}

// IsReviewer reports whether id is the configured reviewer.
func (s *Service) IsReviewer(id identity.Identity) bool {
	return id.Authenticated && s.reviewerID != "" && id.ID == s.reviewerID
}

// Ask stores a new unanswered question. Its priority never changes later.
func (s *Service) Ask(ctx context.Context, id identity.Identity, in AskInput) (models.Question, error) {
	if !id.Authenticated {
		return models.Question{}, ErrUnauthenticated
	}
	in = in.normalized()
	if err := in.validate(); err != nil {
		return models.Question{}, err
	}

	q := models.Question{
		Content:  in.Content,
		Student:  models.NewPerson(id.ID, id.DisplayName, id.Email, "Student", studentColor),
		Category: in.Category,
		Priority: in.Priority,
		Status:   models.StatusUnanswered,
		Tags:     []string{in.Category},
	}
	docID, err := s.store.Add(ctx, models.QuestionsCollection, q.ToDocument())
	if err != nil {
		return models.Question{}, fmt.Errorf("failed to store question: %w", err)
	}
	metrics.QuestionsTotal.WithLabelValues("ask").Inc()

	q, err = s.get(ctx, docID)
	if err != nil {
		return models.Question{}, err
	}
	if s.notifier != nil {
		if err := s.notifier.QuestionAsked(ctx, q); err != nil {
			s.logger.Warn("Failed to notify reviewers about question", zap.String("id", q.ID), zap.Error(err))
		}
	}
	return q, nil
}

// Answer sets the answer of an unanswered question. Only the reviewer may
// answer; anyone else gets ErrForbidden and nothing is written.
func (s *Service) Answer(ctx context.Context, id identity.Identity, questionID, content string) (models.Question, error) {
	if !s.IsReviewer(id) {
		s.logger.Warn("Rejected answer from non-reviewer", zap.String("uid", id.ID), zap.String("question_id", questionID))
		return models.Question{}, ErrForbidden
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Question{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.get(ctx, questionID)
	if err != nil {
		return models.Question{}, err
	}
	if q.Status != models.StatusUnanswered {
		return models.Question{}, ErrAlreadyAnswered
	}

	answer := models.Answer{
		Content:    content,
		AnsweredBy: models.NewPerson(id.ID, id.DisplayName, id.Email, "Team Lead", reviewerColor),
	}
	err = s.store.Update(ctx, models.QuestionsCollection, questionID, map[string]any{
		"status": string(models.StatusAnswered),
		"answer": answer.ToMap(),
	})
	if err != nil {
		return models.Question{}, fmt.Errorf("failed to store answer: %w", err)
	}
	metrics.QuestionsTotal.WithLabelValues("answer").Inc()
	s.logger.Info("Question answered", zap.String("question_id", questionID))
	return s.get(ctx, questionID)
}

// Resolve closes an answered question. The asker and the reviewer may
// resolve.
func (s *Service) Resolve(ctx context.Context, id identity.Identity, questionID string) (models.Question, error) {
	if !id.Authenticated {
		return models.Question{}, ErrUnauthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.get(ctx, questionID)
	if err != nil {
		return models.Question{}, err
	}
	if !s.IsReviewer(id) && q.Student.ID != id.ID {
		return models.Question{}, ErrForbidden
	}
	switch q.Status {
	case models.StatusUnanswered:
		return models.Question{}, ErrNotAnswered
	case models.StatusResolved:
		return q, nil
	}

	if err := s.store.Update(ctx, models.QuestionsCollection, questionID, map[string]any{
		"status": string(models.StatusResolved),
	}); err != nil {
		return models.Question{}, fmt.Errorf("failed to resolve question: %w", err)
	}
	metrics.QuestionsTotal.WithLabelValues("resolve").Inc()
	return s.get(ctx, questionID)
}

// Like adds one like.
func (s *Service) Like(ctx context.Context, questionID string) error {
	return s.increment(ctx, questionID, "likes")
}

// View adds one view.
func (s *Service) View(ctx context.Context, questionID string) error {
	return s.increment(ctx, questionID, "views")
}

func (s *Service) increment(ctx context.Context, questionID, field string) error {
	err := s.store.Update(ctx, models.QuestionsCollection, questionID, map[string]any{field: docstore.Increment(1)})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrQuestionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", field, err)
	}
	metrics.QuestionsTotal.WithLabelValues(field).Inc()
	return nil
}

// Get returns one question.
func (s *Service) Get(ctx context.Context, questionID string) (models.Question, error) {
	return s.get(ctx, questionID)
}

func (s *Service) get(ctx context.Context, questionID string) (models.Question, error) {
	doc, err := s.store.Get(ctx, models.QuestionsCollection, questionID)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.Question{}, ErrQuestionNotFound
	}
	if err != nil {
		return models.Question{}, fmt.Errorf("failed to load question: %w", err)
	}
	return models.QuestionFromDocument(doc), nil
}

// Query is the newest-first listing of all questions.
func Query() docstore.Query {
	return docstore.Query{Collection: models.QuestionsCollection, OrderBy: "timestamp", Direction: docstore.Descending}
}

// Stats counts questions per status.
type Stats struct {
	Total      int `json:"total"`
	Unanswered int `json:"unanswered"`
	Answered   int `json:"answered"`
	Resolved   int `json:"resolved"`
}

func ComputeStats(questions []models.Question) Stats {
	st := Stats{Total: len(questions)}
	for _, q := range questions {
		switch q.Status {
		case models.StatusUnanswered:
			st.Unanswered++
		case models.StatusAnswered:
			st.Answered++
		case models.StatusResolved:
			st.Resolved++
		}
	}
	return st
}

// FilterQuestions keeps questions whose content, asker name or tags contain
// search and whose status matches. An empty or "all" status matches all.
func FilterQuestions(questions []models.Question, search, status string) []models.Question {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]models.Question, 0, len(questions))
	for _, q := range questions {
		if status != "" && status != "all" && string(q.Status) != status {
			continue
		}
		if search != "" && !questionMatches(q, search) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func questionMatches(q models.Question, search string) bool {
	if strings.Contains(strings.ToLower(q.Content), search) || strings.Contains(strings.ToLower(q.Student.Name), search) {
		return true
	}
	for _, t := range q.Tags {
		if strings.Contains(strings.ToLower(t), search) {
			return true
		}
	}
	return false
}
