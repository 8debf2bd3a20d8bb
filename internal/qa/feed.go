package qa

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"phishguard/internal/docstore"
	"phishguard/internal/identity"
	"phishguard/internal/models"
	"phishguard/internal/realtime"
)

// Message kinds and sender roles of a thread.
const (
	KindQuestion = "question"
	KindAnswer   = "answer"
	KindReply    = "reply"

	RoleStudent  = "student"
	RoleTeamLead = "team_lead"
)

// Message is one node of a discussion thread.
type Message struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Sender    models.Person `json:"sender"`
	Role      string        `json:"role"`
	Kind      string        `json:"type"`
	Category  string        `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Likes     int           `json:"likes"`
	Resolved  bool          `json:"isResolved"`
	Replies   []Message     `json:"replies"`
}

// Feed is a live view of the board plus replies that exist only in this
// feed. Replies, and likes on replies and answers, are shown immediately and
// never stored.
type Feed struct {
	view *realtime.View[models.Question]
	now  func() time.Time

	mu      sync.Mutex
	seq     int
	replies map[string][]Message // parent id -> replies in order
	likes   map[string]int       // answer or reply id -> likes
}

// OpenFeed subscribes to all questions, newest first.
func OpenFeed(ctx context.Context, store docstore.Store) (*Feed, error) {
	view, err := realtime.Subscribe(ctx, store, Query(), models.QuestionFromDocument, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to questions: %w", err)
	}
	return &Feed{view: view, now: time.Now, replies: map[string][]Message{}, likes: map[string]int{}}, nil
}

// Questions returns the current snapshot.
func (f *Feed) Questions() []models.Question {
	return f.view.Items()
}

// Ready is closed after the first snapshot.
func (f *Feed) Ready() <-chan struct{} {
	return f.view.Ready()
}

func (f *Feed) Close() {
	f.view.Close()
}

// Reply appends a local reply under parentID, which may be a question, an
// answer or another reply.
func (f *Feed) Reply(parentID string, id identity.Identity, content string) (Message, error) {
	if !id.Authenticated {
		return Message{}, ErrUnauthenticated
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, ErrEmptyContent
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists(parentID) {
		return Message{}, ErrQuestionNotFound
	}

	f.seq++
	now := f.now()
	reply := Message{
		ID:        fmt.Sprintf("%s-reply-%d-%d", parentID, now.UnixMilli(), f.seq),
		Content:   content,
		Sender:    models.NewPerson(id.ID, id.DisplayName, id.Email, "Student", studentColor),
		Role:      RoleStudent,
		Kind:      KindReply,
		Category:  "general",
		Timestamp: now,
		Replies:   []Message{},
	}
	f.replies[parentID] = append(f.replies[parentID], reply)
	return reply, nil
}

// LikeReply likes an answer or a local reply and returns its new count.
// Question likes are stored and go through Service.Like instead.
func (f *Feed) LikeReply(messageID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.isAnswer(messageID) && !f.isReply(messageID) {
		return 0, ErrMessageNotFound
	}
	f.likes[messageID]++
	return f.likes[messageID], nil
}

func (f *Feed) isAnswer(id string) bool {
	for _, q := range f.view.Items() {
		if q.Answer != nil && answerID(q.ID) == id {
			return true
		}
	}
	return false
}

func (f *Feed) isReply(id string) bool {
	for _, rs := range f.replies {
		for _, r := range rs {
			if r.ID == id {
				return true
			}
		}
	}
	return false
}

// exists reports whether id names a question, an answer or a local reply.
// Callers hold f.mu.
func (f *Feed) exists(id string) bool {
	for _, q := range f.view.Items() {
		if q.ID == id {
			return true
		}
	}
	return f.isAnswer(id) || f.isReply(id)
}

// Threads renders every question with its answer and local replies nested
// beneath. An empty or "all" category matches everything; search matches
// question content and asker name.
func (f *Feed) Threads(category, search string) []Message {
	search = strings.ToLower(strings.TrimSpace(search))

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Message
	for _, q := range f.view.Items() {
		if category != "" && category != "all" && q.Category != category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(q.Content), search) &&
			!strings.Contains(strings.ToLower(q.Student.Name), search) {
			continue
		}
		out = append(out, f.thread(q))
	}
	if out == nil {
		out = []Message{}
	}
	return out
}

func (f *Feed) thread(q models.Question) Message {
	msg := Message{
		ID:        q.ID,
		Content:   q.Content,
		Sender:    q.Student,
		Role:      RoleStudent,
		Kind:      KindQuestion,
		Category:  q.Category,
		Timestamp: q.Timestamp,
		Likes:     q.Likes,
		Resolved:  q.Status == models.StatusAnswered || q.Status == models.StatusResolved,
		Replies:   []Message{},
	}
	if q.Answer != nil {
		msg.Replies = append(msg.Replies, f.withReplies(Message{
			ID:        answerID(q.ID),
			Content:   q.Answer.Content,
			Sender:    q.Answer.AnsweredBy,
			Role:      RoleTeamLead,
			Kind:      KindAnswer,
			Category:  q.Category,
			Timestamp: q.Answer.Timestamp,
			Replies:   []Message{},
		}))
	}
	return f.withReplies(msg)
}

func (f *Feed) withReplies(msg Message) Message {
	if msg.Kind != KindQuestion {
		msg.Likes = f.likes[msg.ID]
	}
	for _, r := range f.replies[msg.ID] {
		msg.Replies = append(msg.Replies, f.withReplies(r))
	}
	return msg
}

func answerID(questionID string) string {
	return questionID + "-answer"
}
