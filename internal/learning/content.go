package learning

import (
	"errors"
	"fmt"
)

var (
	ErrNoQuiz        = errors.New("lesson has no quiz")
	ErrInvalidAnswer = errors.New("answer is not one of the options")
)

// Page is one page of a lesson viewer.
type Page struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	KeyPoints []string `json:"keyPoints"`
	Quiz      *Quiz    `json:"quiz,omitempty"`
}

// Quiz is the knowledge check on a lesson's last page. The correct option
// is never sent with the lesson.
type Quiz struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  int      `json:"-"`
}

// QuizResult is the outcome of CheckAnswer.
type QuizResult struct {
	Correct       bool `json:"correct"`
	CorrectAnswer int  `json:"correctAnswer"`
}

// LessonDetail is a lesson with its pages.
type LessonDetail struct {
	Lesson
	Pages []Page `json:"pages"`
}

var pages = map[string][]Page{
	"phish-basics": {
		{
			Title:   "What is Phishing?",
			Content: "Phishing is a cybercrime where attackers impersonate legitimate organizations to steal sensitive information like passwords, credit card numbers, or personal data. These attacks typically come through email, text messages, or fake websites that look authentic.",
			KeyPoints: []string{
				"Phishing attacks target personal and financial information",
				"Attackers impersonate trusted organizations",
				"Common targets include banks, social media, and email providers",
				"Always verify suspicious communications independently",
			},
		},
		{
			Title:   "Identifying Phishing Attempts",
			Content: "Learn to recognize common signs of phishing attempts. Look for urgent language, spelling errors, suspicious links, and requests for sensitive information. Legitimate organizations rarely ask for passwords or personal data via email.",
			KeyPoints: []string{
				"Check sender email addresses carefully",
				"Look for spelling and grammar mistakes",
				"Hover over links to see real destinations",
				"Be suspicious of urgent or threatening language",
			},
			Quiz: &Quiz{
				Question: "Which of these is a common sign of a phishing email?",
				Options: []string{
					"Perfect grammar and spelling",
					"Urgent requests for personal information",
					"Links that match the sender domain",
					"Personalized greeting with your name",
				},
				Correct: 1,
			},
		},
	},
	"email-safety": {
		{
			Title:   "Email Header Analysis",
			Content: "Understanding email headers is crucial for identifying spoofed emails. Learn to examine sender information, routing details, and authentication records to verify email authenticity.",
			KeyPoints: []string{
				`Check the "From" field for exact domain matches`,
				"Examine routing information for suspicious paths",
				"Look for SPF, DKIM, and DMARC authentication",
				"Be wary of emails from external domains",
			},
		},
		{
			Title:   "Advanced Email Threats",
			Content: "Modern email threats include spear phishing, business email compromise, and sophisticated social engineering. These attacks are highly targeted and use personal information to appear legitimate.",
			KeyPoints: []string{
				"Spear phishing targets specific individuals",
				"BEC attacks impersonate executives or vendors",
				"Attackers research targets on social media",
				"Always verify requests through separate channels",
			},
			Quiz: &Quiz{
				Question: "What is the main characteristic of spear phishing?",
				Options: []string{
					"It uses generic messages sent to many people",
					"It targets specific individuals with personalized content",
					"It only comes through text messages",
					"It always contains malware attachments",
				},
				Correct: 1,
			},
		},
	},
	"mobile-security": {
		{
			Title:   "Mobile Threat Landscape",
			Content: "Mobile devices face unique security challenges including malicious apps, SMS phishing, unsecured WiFi, and device theft. Understanding these threats is the first step to protection.",
			KeyPoints: []string{
				"Download apps only from official stores",
				"Keep your operating system updated",
				"Use strong authentication methods",
				"Be cautious on public WiFi networks",
			},
		},
		{
			Title:   "Mobile Security Best Practices",
			Content: "Implement security measures like app permissions review, regular updates, secure messaging, and remote wipe capabilities to protect your mobile device and data.",
			KeyPoints: []string{
				"Review app permissions regularly",
				"Enable automatic security updates",
				"Use encrypted messaging apps",
				"Set up remote wipe for lost devices",
			},
			Quiz: &Quiz{
				Question: "What should you check before downloading a mobile app?",
				Options: []string{
					"Only the app icon design",
					"App permissions and developer reputation",
					"The number of downloads only",
					"The app size",
				},
				Correct: 1,
			},
		},
	},
	"social-engineering": {
		{
			Title:   "Psychology of Social Engineering",
			Content: "Social engineers exploit human psychology using techniques like authority, urgency, fear, and trust. They manipulate emotions to bypass logical thinking and security procedures.",
			KeyPoints: []string{
				"Attackers use authority figures to intimidate",
				"Urgency creates pressure to act quickly",
				"Fear of consequences overrides caution",
				"Trust is built through familiarity and helpfulness",
			},
		},
		{
			Title:   "Defending Against Manipulation",
			Content: "Develop defensive strategies against social engineering by establishing verification procedures, taking time to think, and maintaining healthy skepticism of unsolicited requests.",
			KeyPoints: []string{
				"Always verify requests through known channels",
				"Take time to think before acting",
				"Question unsolicited offers or requests",
				"Trust your instincts when something feels wrong",
			},
			Quiz: &Quiz{
				Question: "What is the best defense against social engineering?",
				Options: []string{
					"Installing antivirus software",
					"Verification through independent channels",
					"Using strong passwords",
					"Avoiding all phone calls",
				},
				Correct: 1,
			},
		},
	},
	"malware-detection": {
		{
			Title:   "Types of Malware",
			Content: "Malware comes in many forms including viruses, trojans, ransomware, spyware, and adware. Each type has different characteristics and methods of infection. Understanding these differences is crucial for effective protection.",
			KeyPoints: []string{
				"Viruses replicate and spread to other files",
				"Trojans disguise themselves as legitimate software",
				"Ransomware encrypts files and demands payment",
				"Spyware secretly monitors user activities",
			},
		},
		{
			Title:   "Malware Prevention and Detection",
			Content: "Effective malware protection requires multiple layers including antivirus software, regular updates, safe browsing habits, and backup strategies. Learn to recognize suspicious behavior and respond appropriately.",
			KeyPoints: []string{
				"Keep antivirus software updated and active",
				"Avoid downloading from untrusted sources",
				"Regular system and data backups",
				"Monitor system performance for unusual activity",
			},
			Quiz: &Quiz{
				Question: "Which type of malware encrypts your files and demands payment?",
				Options:  []string{"Virus", "Trojan", "Ransomware", "Spyware"},
				Correct:  2,
			},
		},
	},
	"password-security": {
		{
			Title:   "Password Fundamentals",
			Content: "Strong passwords are your first line of defense against unauthorized access. Learn the principles of creating secure passwords that are both strong and memorable while avoiding common pitfalls.",
			KeyPoints: []string{
				"Use at least 12 characters with mixed case, numbers, and symbols",
				"Avoid personal information and common words",
				"Use unique passwords for each account",
				"Consider passphrases for better memorability",
			},
		},
		{
			Title:   "Password Managers and 2FA",
			Content: "Password managers help you generate and store unique passwords securely. Two-factor authentication adds an extra layer of security that significantly reduces the risk of account compromise.",
			KeyPoints: []string{
				"Password managers generate and store unique passwords",
				"Enable 2FA wherever possible",
				"Use authenticator apps over SMS when available",
				"Keep backup codes in a secure location",
			},
			Quiz: &Quiz{
				Question: "What is the recommended minimum length for a secure password?",
				Options:  []string{"6 characters", "8 characters", "12 characters", "16 characters"},
				Correct:  2,
			},
		},
	},
}

// Detail returns a lesson with its pages.
func Detail(id string) (LessonDetail, error) {
	lesson, ok := LessonByID(id)
	if !ok {
		return LessonDetail{}, fmt.Errorf("%w: %q", ErrUnknownLesson, id)
	}
	return LessonDetail{Lesson: lesson, Pages: pages[id]}, nil
}

// quizOf returns the quiz of the lesson's last page.
func quizOf(id string) (*Quiz, error) {
	d, err := Detail(id)
	if err != nil {
		return nil, err
	}
	if len(d.Pages) == 0 || d.Pages[len(d.Pages)-1].Quiz == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoQuiz, id)
	}
	return d.Pages[len(d.Pages)-1].Quiz, nil
}

// CheckAnswer grades answer, a zero-based option index. Grading does not
// change progress; completion stays a separate step.
func CheckAnswer(id string, answer int) (QuizResult, error) {
	q, err := quizOf(id)
	if err != nil {
		return QuizResult{}, err
	}
	if answer < 0 || answer >= len(q.Options) {
		return QuizResult{}, fmt.Errorf("%w: %d", ErrInvalidAnswer, answer)
	}
	return QuizResult{Correct: answer == q.Correct, CorrectAnswer: q.Correct}, nil
}
