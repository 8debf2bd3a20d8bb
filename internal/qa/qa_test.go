package qa

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phishguard/internal/docstore"
	"phishguard/internal/identity"
	"phishguard/internal/models"
)

const reviewerID = "lead-1"

var (
	asker    = identity.Identity{ID: "student-1", Email: "kim@example.com", Authenticated: true}
	other    = identity.Identity{ID: "student-2", Authenticated: true}
	reviewer = identity.Identity{ID: reviewerID, DisplayName: "Alex Lead", Authenticated: true}
)

type countingNotifier struct {
	mu    sync.Mutex
	asked []models.Question
}

func (n *countingNotifier) QuestionAsked(_ context.Context, q models.Question) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.asked = append(n.asked, q)
	return nil
}

func newService(t *testing.T) (*Service, *docstore.Memory, *countingNotifier) {
	t.Helper()
	store := docstore.NewMemory()
	t.Cleanup(func() { store.Close() })
	n := &countingNotifier{}
	return NewService(store, reviewerID, n, zap.NewNop()), store, n
}

func TestAsk(t *testing.T) {
	ctx := context.Background()
	s, _, n := newService(t)

	q, err := s.Ask(ctx, asker, AskInput{Content: "  Is this email from my bank real? ", Category: "all"})
	require.NoError(t, err)
	assert.Equal(t, "Is this email from my bank real?", q.Content)
	assert.Equal(t, "general", q.Category)
	assert.Equal(t, []string{"general"}, q.Tags)
	assert.Equal(t, models.PriorityMedium, q.Priority)
	assert.Equal(t, models.StatusUnanswered, q.Status)
	assert.Equal(t, "Student", q.Student.Name)
	assert.Equal(t, asker.ID, q.Student.ID)
	assert.Zero(t, q.Likes)
	assert.Len(t, n.asked, 1)

	_, err = s.Ask(ctx, identity.Unauthenticated(), AskInput{Content: "hi"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = s.Ask(ctx, asker, AskInput{Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyContent)
	_, err = s.Ask(ctx, asker, AskInput{Content: "hi", Priority: "critical"})
	assert.ErrorIs(t, err, ErrInvalidPriority)

	q, err = s.Ask(ctx, asker, AskInput{Content: "hi", Priority: "URGENT", Category: "phishing"})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityUrgent, q.Priority)
	assert.Equal(t, "phishing", q.Category)
}

func TestAskInputValidation(t *testing.T) {
	tests := []struct {
		name  string
		input AskInput
		want  error
	}{
		{"trimmed and defaulted", AskInput{Content: " hi "}, nil},
		{"mixed case priority", AskInput{Content: "hi", Priority: " High "}, nil},
		{"blank content", AskInput{Content: "\t\n", Priority: "low"}, ErrEmptyContent},
		{"unknown priority", AskInput{Content: "hi", Priority: "asap"}, ErrInvalidPriority},
		{"blank content wins", AskInput{Content: " ", Priority: "asap"}, ErrEmptyContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.normalized().validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAnswerOnlyByReviewer(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService(t)
	q, err := s.Ask(ctx, asker, AskInput{Content: "Question?"})
	require.NoError(t, err)

	for _, id := range []identity.Identity{asker, other, identity.Unauthenticated()} {
		_, err := s.Answer(ctx, id, q.ID, "sneaky answer")
		assert.ErrorIs(t, err, ErrForbidden)
	}
	got, err := s.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnanswered, got.Status)
	assert.Nil(t, got.Answer)

	answered, err := s.Answer(ctx, reviewer, q.ID, "It is a phishing attempt.")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnswered, answered.Status)
	require.NotNil(t, answered.Answer)
	assert.Equal(t, "Alex Lead", answered.Answer.AnsweredBy.Name)
	assert.False(t, answered.Answer.Timestamp.IsZero())
	assert.Equal(t, models.PriorityMedium, answered.Priority)

	_, err = s.Answer(ctx, reviewer, q.ID, "second answer")
	assert.ErrorIs(t, err, ErrAlreadyAnswered)

	_, err = s.Answer(ctx, reviewer, "missing", "answer")
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestNoReviewerConfigured(t *testing.T) {
	store := docstore.NewMemory()
	defer store.Close()
	s := NewService(store, "", nil, zap.NewNop())
	assert.False(t, s.IsReviewer(identity.Identity{ID: "", Authenticated: true}))
}

func TestConcurrentAnswersSetOnce(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService(t)
	q, err := s.Ask(ctx, asker, AskInput{Content: "Question?"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Answer(ctx, reviewer, q.ID, "answer"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService(t)
	q, err := s.Ask(ctx, asker, AskInput{Content: "Question?"})
	require.NoError(t, err)

	_, err = s.Resolve(ctx, asker, q.ID)
	assert.ErrorIs(t, err, ErrNotAnswered)

	_, err = s.Answer(ctx, reviewer, q.ID, "answer")
	require.NoError(t, err)

	_, err = s.Resolve(ctx, other, q.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	resolved, err := s.Resolve(ctx, asker, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, resolved.Status)

	again, err := s.Resolve(ctx, reviewer, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, again.Status)

	_, err = s.Answer(ctx, reviewer, q.ID, "late")
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
}

func TestLikeAndView(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService(t)
	q, err := s.Ask(ctx, asker, AskInput{Content: "Question?"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Like(ctx, q.ID))
		}()
	}
	wg.Wait()
	require.NoError(t, s.View(ctx, q.ID))

	got, err := s.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Likes)
	assert.Equal(t, 1, got.Views)

	assert.ErrorIs(t, s.Like(ctx, "missing"), ErrQuestionNotFound)
}

func TestStatsAndFilter(t *testing.T) {
	questions := []models.Question{
		{ID: "1", Content: "Fake invoice", Status: models.StatusUnanswered, Tags: []string{"email"}, Student: models.Person{Name: "Kim"}},
		{ID: "2", Content: "SMS link", Status: models.StatusAnswered, Tags: []string{"mobile"}, Student: models.Person{Name: "Lee"}},
		{ID: "3", Content: "Password reuse", Status: models.StatusResolved, Tags: []string{"general"}, Student: models.Person{Name: "kimberly"}},
	}

	assert.Equal(t, Stats{Total: 3, Unanswered: 1, Answered: 1, Resolved: 1}, ComputeStats(questions))
	assert.Len(t, FilterQuestions(questions, "kim", "all"), 2)
	assert.Len(t, FilterQuestions(questions, "MOBILE", ""), 1)
	assert.Len(t, FilterQuestions(questions, "kim", "resolved"), 1)
	assert.Empty(t, FilterQuestions(questions, "nothing", ""))
}

func TestFeedThreads(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newService(t)

	feed, err := OpenFeed(ctx, store)
	require.NoError(t, err)
	defer feed.Close()
	<-feed.Ready()

	q, err := s.Ask(ctx, asker, AskInput{Content: "Is this QR code safe?", Category: "mobile"})
	require.NoError(t, err)
	_, err = s.Answer(ctx, reviewer, q.ID, "Do not scan it.")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		qs := feed.Questions()
		return len(qs) == 1 && qs[0].Answer != nil
	}, time.Second, 5*time.Millisecond)

	_, err = feed.Reply("nope", other, "hello")
	assert.ErrorIs(t, err, ErrQuestionNotFound)
	_, err = feed.Reply(q.ID, identity.Unauthenticated(), "hello")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	r1, err := feed.Reply(q.ID, other, "Same here")
	require.NoError(t, err)
	_, err = feed.Reply(q.ID+"-answer", asker, "Thanks!")
	require.NoError(t, err)
	_, err = feed.Reply(r1.ID, asker, "Nested")
	require.NoError(t, err)

	threads := feed.Threads("all", "")
	require.Len(t, threads, 1)
	th := threads[0]
	assert.True(t, th.Resolved)
	require.Len(t, th.Replies, 2)
	assert.Equal(t, KindAnswer, th.Replies[0].Kind)
	assert.Equal(t, RoleTeamLead, th.Replies[0].Role)
	require.Len(t, th.Replies[0].Replies, 1)
	assert.Equal(t, "Thanks!", th.Replies[0].Replies[0].Content)
	assert.Equal(t, "Same here", th.Replies[1].Content)
	require.Len(t, th.Replies[1].Replies, 1)
	assert.Equal(t, "Nested", th.Replies[1].Replies[0].Content)

	assert.Empty(t, feed.Threads("phishing", ""))
	assert.Len(t, feed.Threads("mobile", "qr code"), 1)

	n, err := feed.LikeReply(r1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = feed.LikeReply(r1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = feed.LikeReply(q.ID + "-answer")
	require.NoError(t, err)
	_, err = feed.LikeReply(q.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, err = feed.LikeReply("nope")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	th = feed.Threads("all", "")[0]
	assert.Equal(t, 1, th.Replies[0].Likes)
	assert.Equal(t, 2, th.Replies[1].Likes)
	assert.Zero(t, th.Replies[1].Replies[0].Likes)
	assert.Zero(t, th.Likes)

	// Replies are never written to the store.
	docs, err := store.List(ctx, Query())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
