// Package learning awards points and badges for completed awareness
// lessons. Progress is kept per device only.
package learning

// Lesson categories.
const (
	CategoryPhishing = "phishing"
	CategoryMalware  = "malware"
	CategorySocial   = "social"
	CategoryMobile   = "mobile"
	CategoryGeneral  = "general"
)

// Lesson is an entry of the fixed catalog.
type Lesson struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Difficulty  string `json:"difficulty"`
	Points      int    `json:"points"`
	Duration    string `json:"duration"`
}

var catalog = []Lesson{
	{
		ID:          "phish-basics",
		Title:       "Phishing Fundamentals",
		Description: "Learn the basics of identifying phishing attempts and protect yourself from common scams.",
		Category:    CategoryPhishing,
		Difficulty:  "beginner",
		Points:      100,
		Duration:    "15 min",
	},
	{
		ID:          "email-safety",
		Title:       "Email Security Mastery",
		Description: "Analyze email headers and recognize advanced email threats.",
		Category:    CategoryPhishing,
		Difficulty:  "intermediate",
		Points:      150,
		Duration:    "20 min",
	},
	{
		ID:          "mobile-security",
		Title:       "Mobile Security Essentials",
		Description: "Understand the mobile threat landscape and secure your phone.",
		Category:    CategoryMobile,
		Difficulty:  "beginner",
		Points:      125,
		Duration:    "18 min",
	},
	{
		ID:          "social-engineering",
		Title:       "Social Engineering Defense",
		Description: "Spot manipulation tactics used by attackers to gain trust and access.",
		Category:    CategorySocial,
		Difficulty:  "intermediate",
		Points:      175,
		Duration:    "30 min",
	},
	{
		ID:          "malware-detection",
		Title:       "Malware Recognition",
		Description: "Identify different types of malware and learn prevention strategies.",
		Category:    CategoryMalware,
		Difficulty:  "advanced",
		Points:      250,
		Duration:    "35 min",
	},
	{
		ID:          "password-security",
		Title:       "Password Security & Management",
		Description: "Create strong passwords and learn secure password management practices.",
		Category:    CategoryGeneral,
		Difficulty:  "beginner",
		Points:      110,
		Duration:    "16 min",
	},
}

// Lessons returns the catalog filtered by category and difficulty. Empty or
// "all" matches everything.
func Lessons(category, difficulty string) []Lesson {
	out := make([]Lesson, 0, len(catalog))
	for _, l := range catalog {
		if category != "" && category != "all" && l.Category != category {
			continue
		}
		if difficulty != "" && difficulty != "all" && l.Difficulty != difficulty {
			continue
		}
		out = append(out, l)
	}
	return out
}

// LessonByID looks up a lesson.
func LessonByID(id string) (Lesson, bool) {
	for _, l := range catalog {
		if l.ID == id {
			return l, true
		}
	}
	return Lesson{}, false
}
