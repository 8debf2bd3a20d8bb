package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phishguard/internal/blocklist"
	"phishguard/internal/docstore"
	"phishguard/internal/identity"
	"phishguard/internal/inference"
	"phishguard/internal/learning"
	"phishguard/internal/localstore"
	"phishguard/internal/models"
	"phishguard/internal/qa"
	"phishguard/internal/realtime"
	"phishguard/internal/reports"
	"phishguard/internal/scanner"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeInference struct {
	linkDown bool
}

func (f fakeInference) ScanLink(_ context.Context, _ string) (inference.LinkResult, error) {
	if f.linkDown {
		return inference.LinkResult{}, inference.ErrUnavailable
	}
	return inference.LinkResult{Prediction: models.Legit, Confidence: 0.9, ThreatLevel: models.ThreatLow}, nil
}

func (f fakeInference) ScanEmail(_ context.Context, _, _ string) (inference.Verdict, error) {
	return inference.Verdict{Prediction: models.Fake, Confidence: 0.7}, nil
}

func (f fakeInference) ScanDocument(_ context.Context, _ string, r io.Reader) (inference.Verdict, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return inference.Verdict{}, err
	}
	return inference.Verdict{Prediction: models.Legit, Confidence: 0.8, ExtractedText: string(b)}, nil
}

func (f fakeInference) ScanQR(_ context.Context, _ string, _ io.Reader) (inference.QRResult, error) {
	return inference.QRResult{}, inference.ErrNoQRCode
}

type fixture struct {
	handler  http.Handler
	store    *docstore.Memory
	accounts *identity.Service
	reviewer *identity.Token
}

func newFixture(t *testing.T, api fakeInference) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zap.NewNop()
	store := docstore.NewMemory()
	local, err := localstore.OpenSQLite(filepath.Join(t.TempDir(), "local.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	accounts := identity.NewService(store, "test-secret", logger)
	reviewer, err := accounts.Register(ctx, "lead@phishguard.test", "secret123", "Team Lead")
	require.NoError(t, err)

	history := realtime.NewHistory(store, logger)
	scans := scanner.NewService(api, inference.NewHeuristic(func() float64 { return 0.5 }), history, logger)

	dashboard, err := reports.OpenDashboard(ctx, store)
	require.NoError(t, err)
	t.Cleanup(dashboard.Close)
	feed, err := qa.OpenFeed(ctx, store)
	require.NoError(t, err)
	t.Cleanup(feed.Close)

	_, err = store.Add(ctx, blocklist.LinksCollection, map[string]any{"url": "evil.example"})
	require.NoError(t, err)
	blockLog := logrus.New()
	blockLog.SetOutput(io.Discard)
	cache := blocklist.NewCache(blocklist.NewDocstoreSource(store), blockLog)
	require.NoError(t, cache.Refresh(ctx))

	srv := NewServer(Deps{
		Store:     store,
		Local:     local,
		Tokens:    accounts,
		Accounts:  accounts,
		Scanner:   scans,
		History:   history,
		Reports:   reports.NewService(store, nil, logger),
		Dashboard: dashboard,
		Questions: qa.NewService(store, reviewer.Identity.ID, nil, logger),
		Feed:      feed,
		Blocklist: cache,
	}, logger)

	return &fixture{handler: srv.Handler(), store: store, accounts: accounts, reviewer: reviewer}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) register(t *testing.T, email string) identity.Token {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": email, "password": "secret123", "displayName": "Student"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tok identity.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
	return tok
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestPingAndMetrics(t *testing.T) {
	f := newFixture(t, fakeInference{})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/ping", "", nil).Code)

	w := f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "phishguard_")
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture(t, fakeInference{})

	tok := f.register(t, "ana@phishguard.test")
	assert.True(t, tok.Identity.Authenticated)

	w := f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "ana@phishguard.test", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "bob@phishguard.test", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ana@phishguard.test", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ana@phishguard.test", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[identity.Token](t, w)

	me := decode[identity.Identity](t, f.do(t, http.MethodGet, "/api/auth/me", login.Token, nil))
	assert.Equal(t, tok.Identity.ID, me.ID)

	anon := decode[identity.Token](t, f.do(t, http.MethodPost, "/api/auth/anonymous", "", nil))
	assert.True(t, anon.Identity.Anonymous)

	me = decode[identity.Identity](t, f.do(t, http.MethodGet, "/api/auth/me", "", nil))
	assert.Equal(t, identity.AnonymousID, me.ID)
	assert.False(t, me.Authenticated)
}

func TestScanLinkFallsBackAndKeepsLocalHistory(t *testing.T) {
	f := newFixture(t, fakeInference{linkDown: true})

	w := f.do(t, http.MethodPost, "/api/scan/link", "", gin.H{"url": "https://prize.example.tk"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scan := decode[scanner.Scan](t, w)
	assert.True(t, scan.Degraded)
	assert.Equal(t, scanner.NoteLinkFallback, scan.Note)
	assert.Equal(t, models.Fake, scan.Record.Prediction)
	assert.Equal(t, realtime.Local, scan.History.Outcome)
	assert.Equal(t, []string{"https://prize.example.tk"}, scan.Recent)

	hist := decode[struct {
		Items []models.ScanRecord `json:"items"`
	}](t, f.do(t, http.MethodGet, "/api/scans/link/history", "", nil))
	require.Len(t, hist.Items, 1)
	assert.Equal(t, "https://prize.example.tk", hist.Items[0].Subject)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/scans/link/history", "", nil).Code)
	hist = decode[struct {
		Items []models.ScanRecord `json:"items"`
	}](t, f.do(t, http.MethodGet, "/api/scans/link/history", "", nil))
	assert.Empty(t, hist.Items)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/scans/qr/history", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/scan/link", "", gin.H{"url": "  "}).Code)
}

func TestScanEmailSignedInWritesRemote(t *testing.T) {
	f := newFixture(t, fakeInference{})
	tok := f.register(t, "ana@phishguard.test")

	w := f.do(t, http.MethodPost, "/api/scan/email", tok.Token, gin.H{"text": "Verify your account now", "senderDomain": "bank.example"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scan := decode[scanner.Scan](t, w)
	assert.Equal(t, realtime.Remote, scan.History.Outcome)

	docs, err := f.store.List(context.Background(), realtime.RemoteQuery(tok.Identity, models.ScanEmail))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploads(t *testing.T) {
	f := newFixture(t, fakeInference{})

	post := func(path, filename, content string) *httptest.ResponseRecorder {
		body, contentType := multipartUpload(t, filename, content)
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)
		return w
	}

	w := post("/api/scan/doc", "invoice.pdf", "pay now")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scan := decode[scanner.Scan](t, w)
	assert.Equal(t, "invoice.pdf", scan.Record.Subject)
	assert.Equal(t, "pay now", scan.Record.ExtractedText)

	assert.Equal(t, http.StatusBadRequest, post("/api/scan/doc", "notes.txt", "x").Code)

	w = post("/api/scan/qr", "code.png", "not a qr")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "No QR code detected")

	w = f.do(t, http.MethodPost, "/api/scan/doc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReports(t *testing.T) {
	f := newFixture(t, fakeInference{})
	tok := f.register(t, "ana@phishguard.test")

	form := gin.H{
		"url":         "https://login-paypa1.example",
		"scamType":    "phishing",
		"description": "Fake PayPal login page asking for card details",
	}
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/reports", "", form).Code)

	w := f.do(t, http.MethodPost, "/api/reports", tok.Token, gin.H{"url": "nope", "description": "short"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	invalid := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, w)
	assert.Contains(t, invalid.Fields, "url")
	assert.Contains(t, invalid.Fields, "scamType")
	assert.Contains(t, invalid.Fields, "description")

	w = f.do(t, http.MethodPost, "/api/reports", tok.Token, form)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	report := decode[models.Report](t, w)
	assert.Equal(t, models.ReportPending, report.Status)
	assert.Equal(t, "ana@phishguard.test", report.ReporterEmail)

	require.Eventually(t, func() bool {
		list := decode[struct {
			Total int `json:"total"`
		}](t, f.do(t, http.MethodGet, "/api/reports?q=paypal", "", nil))
		return list.Total == 1
	}, 2*time.Second, 10*time.Millisecond)

	list := decode[struct {
		Total int `json:"total"`
	}](t, f.do(t, http.MethodGet, "/api/reports?category=smishing", "", nil))
	assert.Zero(t, list.Total)

	analytics := decode[reports.Analytics](t, f.do(t, http.MethodGet, "/api/reports/analytics", "", nil))
	assert.Equal(t, 1, analytics.Total)
	assert.Equal(t, "phishing", analytics.TopCategory)
	assert.Equal(t, 1, analytics.Pending)

	w = f.do(t, http.MethodGet, "/api/reports/export.csv", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(w.Body.String(), "ID,URL,Reporter Email"))
	assert.Contains(t, w.Body.String(), "https://login-paypa1.example")
}

func TestReportCategories(t *testing.T) {
	f := newFixture(t, fakeInference{})
	w := f.do(t, http.MethodGet, "/api/reports/categories", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Categories []string `json:"categories"`
	}](t, w)
	assert.Equal(t, models.ReportCategories, body.Categories)
	assert.Contains(t, body.Categories, "Phishing")
}

func TestQuestionBoard(t *testing.T) {
	f := newFixture(t, fakeInference{})
	student := f.register(t, "ana@phishguard.test")
	lead := f.reviewer.Token

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/questions", "", gin.H{"content": "Hi"}).Code)

	w := f.do(t, http.MethodPost, "/api/questions", student.Token, gin.H{"content": "Is this SMS a scam?", "category": "all", "priority": "high"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	q := decode[models.Question](t, w)
	assert.Equal(t, "general", q.Category)
	assert.Equal(t, models.StatusUnanswered, q.Status)

	base := "/api/questions/" + q.ID
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, base+"/answer", student.Token, gin.H{"content": "Sure"}).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, base+"/resolve", student.Token, nil).Code)

	w = f.do(t, http.MethodPost, base+"/answer", lead, gin.H{"content": "Yes, never click the link."})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.StatusAnswered, decode[models.Question](t, w).Status)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, base+"/answer", lead, gin.H{"content": "Again"}).Code)

	w = f.do(t, http.MethodPost, base+"/resolve", student.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusResolved, decode[models.Question](t, w).Status)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, base+"/like", "", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, base+"/view", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/questions/missing/like", "", nil).Code)

	got := decode[models.Question](t, f.do(t, http.MethodGet, base, "", nil))
	assert.Equal(t, 1, got.Likes)
	assert.Equal(t, 1, got.Views)

	require.Eventually(t, func() bool {
		list := decode[struct {
			Stats qa.Stats `json:"stats"`
		}](t, f.do(t, http.MethodGet, "/api/questions", "", nil))
		return list.Stats.Resolved == 1
	}, 2*time.Second, 10*time.Millisecond)

	w = f.do(t, http.MethodPost, base+"-answer/replies", student.Token, gin.H{"content": "Thanks!"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reply := decode[qa.Message](t, w)

	w = f.do(t, http.MethodPost, "/api/replies/"+reply.ID+"/like", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"id":"`+reply.ID+`","likes":1}`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/replies/nope/like", "", nil).Code)

	threads := decode[struct {
		Threads []qa.Message `json:"threads"`
	}](t, f.do(t, http.MethodGet, "/api/questions/threads", "", nil))
	require.Len(t, threads.Threads, 1)
	require.Len(t, threads.Threads[0].Replies, 1)
	answer := threads.Threads[0].Replies[0]
	assert.Equal(t, qa.KindAnswer, answer.Kind)
	require.Len(t, answer.Replies, 1)
	assert.Equal(t, "Thanks!", answer.Replies[0].Content)
	assert.Equal(t, 1, answer.Replies[0].Likes)
}

func TestLearningProgressPerDevice(t *testing.T) {
	f := newFixture(t, fakeInference{})

	w := f.do(t, http.MethodPost, "/api/progress/lessons/phish-basics/complete", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"earned":100`)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/progress/lessons/cooking-101/complete", "", nil).Code)

	p := decode[models.LearnerProgress](t, f.do(t, http.MethodGet, "/api/progress", "", nil))
	assert.Equal(t, 100, p.Points)

	req := httptest.NewRequest(http.MethodGet, "/api/progress", nil)
	req.Header.Set("X-Device-ID", "tablet")
	other := httptest.NewRecorder()
	f.handler.ServeHTTP(other, req)
	assert.Zero(t, decode[models.LearnerProgress](t, other).Points)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/progress", "", nil).Code)
	p = decode[models.LearnerProgress](t, f.do(t, http.MethodGet, "/api/progress", "", nil))
	assert.Zero(t, p.Points)

	lessons := decode[struct {
		Lessons []json.RawMessage `json:"lessons"`
	}](t, f.do(t, http.MethodGet, "/api/lessons", "", nil))
	assert.Len(t, lessons.Lessons, 6)
}

func TestLessonPagesAndQuiz(t *testing.T) {
	f := newFixture(t, fakeInference{})

	w := f.do(t, http.MethodGet, "/api/lessons/phish-basics", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	lesson := decode[learning.LessonDetail](t, w)
	assert.Equal(t, "Phishing Fundamentals", lesson.Title)
	require.Len(t, lesson.Pages, 2)
	assert.Equal(t, "What is Phishing?", lesson.Pages[0].Title)
	require.NotNil(t, lesson.Pages[1].Quiz)
	assert.NotContains(t, w.Body.String(), "orrect")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/lessons/cooking-101", "", nil).Code)

	w = f.do(t, http.MethodPost, "/api/lessons/phish-basics/quiz", "", gin.H{"answer": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"correct":true,"correctAnswer":1}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/lessons/phish-basics/quiz", "", gin.H{"answer": 0})
	assert.JSONEq(t, `{"correct":false,"correctAnswer":1}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/lessons/phish-basics/quiz", "", gin.H{"answer": 9}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/lessons/phish-basics/quiz", "", gin.H{}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/lessons/cooking-101/quiz", "", gin.H{"answer": 0}).Code)

	// Answering does not complete the lesson.
	assert.Zero(t, decode[models.LearnerProgress](t, f.do(t, http.MethodGet, "/api/progress", "", nil)).Points)
}

func TestBlocklistCheck(t *testing.T) {
	f := newFixture(t, fakeInference{})

	w := f.do(t, http.MethodGet, "/api/blocklist/check?url=https://EVIL.example/login", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cancel":true,"host":"evil.example","state":"loaded"}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/blocklist/check?url=https://good.example", "", nil)
	assert.Contains(t, w.Body.String(), `"cancel":false`)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/blocklist/check", "", nil).Code)
	assert.JSONEq(t, `{"state":"loaded","hosts":1}`, f.do(t, http.MethodGet, "/api/blocklist/status", "", nil).Body.String())
}

func TestReportStream(t *testing.T) {
	f := newFixture(t, fakeInference{})
	tok := f.register(t, "ana@phishguard.test")

	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/reports/stream", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	type message struct {
		Type  string          `json:"type"`
		Items []models.Report `json:"items"`
	}
	var first message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first.Type)
	assert.Empty(t, first.Items)

	w := f.do(t, http.MethodPost, "/api/reports", tok.Token, gin.H{
		"url":         "https://login-paypa1.example",
		"scamType":    "phishing",
		"description": "Fake PayPal login page asking for card details",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	for {
		var next message
		require.NoError(t, conn.ReadJSON(&next))
		if len(next.Items) == 1 {
			assert.Equal(t, "https://login-paypa1.example", next.Items[0].URL)
			return
		}
	}
}

func TestScanStreamRequiresIdentity(t *testing.T) {
	f := newFixture(t, fakeInference{})
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/scans/link/stream", "", nil).Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := NewServer(Deps{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
