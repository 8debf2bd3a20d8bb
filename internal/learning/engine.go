package learning

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"phishguard/internal/localstore"
	"phishguard/internal/metrics"
	"phishguard/internal/models"
)

// Badges.
const (
	BadgeFirstSteps     = "First Steps"
	BadgeQuickLearner   = "Quick Learner"
	BadgeSecurityExpert = "Security Expert"
	BadgePhishingHunter = "Phishing Hunter"
)

// quickLearnerLessons is the completion count that earns Quick Learner.
const quickLearnerLessons = 3

var ErrUnknownLesson = errors.New("unknown lesson")

// Completion is the outcome of CompleteLesson.
type Completion struct {
	Progress models.LearnerProgress `json:"progress"`
	// Earned is zero when the lesson had already been completed.
	Earned  int      `json:"earned"`
	Awarded []string `json:"awarded"`
}

// Engine reads and updates the progress stored under one device.
type Engine struct {
	store  localstore.Store
	logger *zap.Logger
}

func NewEngine(store localstore.Store, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Load returns the stored progress. Missing or corrupt state loads as the
// zero state.
func (e *Engine) Load() (models.LearnerProgress, error) {
	raw, ok, err := e.store.Get(localstore.KeyProgress)
	if err != nil {
		return models.LearnerProgress{}, fmt.Errorf("failed to read progress: %w", err)
	}
	if !ok {
		return models.NewLearnerProgress(), nil
	}
	return e.decode(raw), nil
}

// CompleteLesson records lessonID. Completing a lesson twice changes
// nothing.
func (e *Engine) CompleteLesson(lessonID string) (Completion, error) {
	lesson, ok := LessonByID(lessonID)
	if !ok {
		return Completion{}, fmt.Errorf("%w: %q", ErrUnknownLesson, lessonID)
	}

	var c Completion
	err := e.store.Update(localstore.KeyProgress, func(current []byte, ok bool) ([]byte, error) {
		p := models.NewLearnerProgress()
		if ok {
			p = e.decode(current)
		}
		c = complete(p, lesson)
		return json.Marshal(c.Progress)
	})
	if err != nil {
		return Completion{}, fmt.Errorf("failed to save progress: %w", err)
	}

	if c.Earned > 0 {
		metrics.LessonsCompletedTotal.Inc()
		e.logger.Info("Lesson completed",
			zap.String("lesson", lessonID),
			zap.Int("earned", c.Earned),
			zap.Int("points", c.Progress.Points),
			zap.Strings("awarded", c.Awarded))
	}
	return c, nil
}

// Reset stores the zero state.
func (e *Engine) Reset() (models.LearnerProgress, error) {
	p := models.NewLearnerProgress()
	raw, err := json.Marshal(p)
	if err != nil {
		return models.LearnerProgress{}, err
	}
	if err := e.store.Put(localstore.KeyProgress, raw); err != nil {
		return models.LearnerProgress{}, fmt.Errorf("failed to reset progress: %w", err)
	}
	return p, nil
}

func (e *Engine) decode(raw []byte) models.LearnerProgress {
	var p models.LearnerProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		e.logger.Warn("Corrupt learner progress, starting over", zap.Error(err))
		return models.NewLearnerProgress()
	}
	if p.CompletedLessons == nil {
		p.CompletedLessons = []string{}
	}
	if p.Badges == nil {
		p.Badges = []string{}
	}
	p.Level = models.LevelFor(p.Points)
	return p
}

// complete applies lesson to p. Badge rules run in a fixed order and each
// badge is added at most once.
func complete(p models.LearnerProgress, lesson Lesson) Completion {
	if p.Completed(lesson.ID) {
		return Completion{Progress: p, Awarded: []string{}}
	}

	done := len(p.CompletedLessons)
	p.Points += lesson.Points
	p.Level = models.LevelFor(p.Points)
	p.CompletedLessons = append(p.CompletedLessons, lesson.ID)
	p.Streak++

	awarded := []string{}
	award := func(badge string, earned bool) {
		if earned && !p.HasBadge(badge) {
			p.Badges = append(p.Badges, badge)
			awarded = append(awarded, badge)
		}
	}
	award(BadgeFirstSteps, done == 0)
	award(BadgeQuickLearner, done+1 == quickLearnerLessons)
	award(BadgeSecurityExpert, p.Points >= models.PointsPerLevel)
	award(BadgePhishingHunter, lesson.Category == CategoryPhishing)

	return Completion{Progress: p, Earned: lesson.Points, Awarded: awarded}
}
