package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phishguard/internal/models"
)

type sentMessage struct {
	chatID string
	text   string
}

// telegramServer fakes the Bot API methods the notifier uses.
func telegramServer(t *testing.T) (*Bot, func() []sentMessage) {
	t.Helper()
	var mu sync.Mutex
	var sent []sentMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"PhishGuard","username":"phishguard_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			sent = append(sent, sentMessage{chatID: r.FormValue("chat_id"), text: r.FormValue("text")})
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"group"}}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		}
	}))
	t.Cleanup(srv.Close)

	api, err := tgbotapi.NewBotAPIWithClient("token", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	return newBot(api, 42, zap.NewNop()), func() []sentMessage {
		mu.Lock()
		defer mu.Unlock()
		return append([]sentMessage(nil), sent...)
	}
}

func TestDisabledBotIsNoop(t *testing.T) {
	b, err := NewBot(false, "token", 1, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = NewBot(true, "", 1, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, b)

	assert.NoError(t, b.ReportSubmitted(context.Background(), models.Report{}))
	assert.NoError(t, b.QuestionAsked(context.Background(), models.Question{}))
	assert.NoError(t, b.Start(context.Background()))
}

func TestReportSubmitted(t *testing.T) {
	b, sent := telegramServer(t)

	err := b.ReportSubmitted(context.Background(), models.Report{
		ID:          "r1",
		URL:         "http://login-bank.tk",
		Category:    "Phishing",
		Description: strings.Repeat("a", 200),
		EvidenceURL: "https://imgur.example/proof.png",
	})
	require.NoError(t, err)

	msgs := sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "42", msgs[0].chatID)
	assert.Contains(t, msgs[0].text, "http://login-bank.tk")
	assert.Contains(t, msgs[0].text, "Reporter: -")
	assert.Contains(t, msgs[0].text, strings.Repeat("a", previewLength)+"...")
	assert.Contains(t, msgs[0].text, "proof.png")
}

func TestQuestionAsked(t *testing.T) {
	b, sent := telegramServer(t)

	q := models.Question{ID: "q1", Content: "Is this SMS real?", Priority: models.PriorityUrgent, Category: "general",
		Student: models.Person{Name: "Anonymous Student"}}
	require.NoError(t, b.QuestionAsked(context.Background(), q))

	msgs := sent()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "urgent priority")
	assert.Contains(t, msgs[0].text, "Is this SMS real?")
}

func TestNotifyHonorsContext(t *testing.T) {
	b, sent := telegramServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, b.ReportSubmitted(ctx, models.Report{ID: "r1"}), context.Canceled)
	assert.Empty(t, sent())
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	long := strings.Repeat("ж", previewLength+1)
	assert.Equal(t, strings.Repeat("ж", previewLength)+"...", preview(long))
}
