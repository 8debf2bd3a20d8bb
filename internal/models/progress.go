package models

// PointsPerLevel is the number of points between levels.
const PointsPerLevel = 500

// LearnerProgress is the learning hub state kept per device.
type LearnerProgress struct {
	Points           int      `json:"points"`
	Level            int      `json:"level"`
	CompletedLessons []string `json:"completedLessons"`
	Badges           []string `json:"badges"`
	Streak           int      `json:"streak"`
}

// NewLearnerProgress returns the zero state.
func NewLearnerProgress() LearnerProgress {
	return LearnerProgress{
		Level:            1,
		CompletedLessons: []string{},
		Badges:           []string{},
	}
}

// LevelFor derives the level from a point total.
func LevelFor(points int) int {
	return points/PointsPerLevel + 1
}

// Completed reports whether lesson id was completed.
func (p LearnerProgress) Completed(id string) bool {
	for _, l := range p.CompletedLessons {
		if l == id {
			return true
		}
	}
	return false
}

// HasBadge reports whether badge was earned.
func (p LearnerProgress) HasBadge(badge string) bool {
	for _, b := range p.Badges {
		if b == badge {
			return true
		}
	}
	return false
}
