package blocklist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phishguard/internal/docstore"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type stubSource struct {
	mu      sync.Mutex
	entries []string
	err     error
	calls   int
	block   chan struct{}
}

func (s *stubSource) Fetch(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	s.calls++
	entries, err, block := s.entries, s.err, s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	return entries, err
}

func (s *stubSource) set(entries []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries, s.err = entries, err
}

func TestEvaluateBeforeLoad(t *testing.T) {
	c := NewCache(&stubSource{}, quietLogger())
	assert.Equal(t, Unloaded, c.State())
	assert.False(t, c.Evaluate("https://anything.example/path").Cancel)
}

func TestRefreshAndEvaluate(t *testing.T) {
	src := &stubSource{entries: []string{"Evil.TK", "https://phish.example/login", "  spaced.ml  "}}
	c := NewCache(src, quietLogger())
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, Loaded, c.State())

	cases := []struct {
		url    string
		cancel bool
	}{
		{"https://evil.tk/login", true},
		{"http://EVIL.tk:8080/", true},
		{"https://phish.example/", true},
		{"https://spaced.ml", true},
		{"https://sub.evil.tk/", false},
		{"https://good.example/", false},
		{"::not a url", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.url, func(t *testing.T) {
			assert.Equal(t, tc.cancel, c.Evaluate(tc.url).Cancel)
		})
	}
	assert.Equal(t, []string{"evil.tk", "phish.example", "spaced.ml"}, c.Hosts())
}

func TestRefreshFailureKeepsPreviousSet(t *testing.T) {
	src := &stubSource{entries: []string{"evil.tk"}}
	c := NewCache(src, quietLogger())
	require.NoError(t, c.Refresh(context.Background()))

	src.set(nil, errors.New("network down"))
	err := c.Refresh(context.Background())
	assert.Error(t, err)
	assert.True(t, c.Evaluate("http://evil.tk").Cancel)
	assert.Equal(t, Loaded, c.State())
}

func TestRefreshReplacesWholesale(t *testing.T) {
	src := &stubSource{entries: []string{"a.tk", "b.tk"}}
	c := NewCache(src, quietLogger())
	require.NoError(t, c.Refresh(context.Background()))

	src.set([]string{"c.tk"}, nil)
	require.NoError(t, c.Refresh(context.Background()))
	assert.False(t, c.Evaluate("http://a.tk").Cancel)
	assert.True(t, c.Evaluate("http://c.tk").Cancel)
}

func TestOldSetAnswersDuringRefresh(t *testing.T) {
	src := &stubSource{entries: []string{"evil.tk"}}
	c := NewCache(src, quietLogger())
	require.NoError(t, c.Refresh(context.Background()))

	block := make(chan struct{})
	src.mu.Lock()
	src.block = block
	src.entries = []string{"other.tk"}
	src.mu.Unlock()

	done := make(chan error)
	go func() { done <- c.Refresh(context.Background()) }()

	require.Eventually(t, func() bool { return c.State() == Refreshing }, time.Second, time.Millisecond)
	assert.True(t, c.Evaluate("http://evil.tk").Cancel)

	close(block)
	require.NoError(t, <-done)
	assert.False(t, c.Evaluate("http://evil.tk").Cancel)
	assert.True(t, c.Evaluate("http://other.tk").Cancel)
}

func TestFirstRefreshStaysUnloaded(t *testing.T) {
	block := make(chan struct{})
	src := &stubSource{entries: []string{"evil.tk"}, block: block}
	c := NewCache(src, quietLogger())

	done := make(chan error)
	go func() { done <- c.Refresh(context.Background()) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, Unloaded, c.State())
	assert.Equal(t, "unloaded", c.State().String())

	close(block)
	require.NoError(t, <-done)
	assert.Equal(t, Loaded, c.State())
}

func TestFailedFirstRefreshStaysUnloaded(t *testing.T) {
	src := &stubSource{err: errors.New("offline")}
	c := NewCache(src, quietLogger())
	require.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, Unloaded, c.State())
}

func firestoreServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Query().Get("pageToken")]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
}

func TestFirestoreSourcePaging(t *testing.T) {
	srv := firestoreServer(t, map[string]string{
		"": `{"documents":[
			{"fields":{"url":{"stringValue":"evil.tk"}}},
			{"fields":{"note":{"stringValue":"no url"}}},
			{"fields":{"url":{"integerValue":"5"}}}
		],"nextPageToken":"p2"}`,
		"p2": `{"documents":[{"fields":{"url":{"stringValue":"phish.ml"}}}]}`,
	})
	defer srv.Close()

	entries, err := NewFirestoreSource(srv.URL, time.Second).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"evil.tk", "phish.ml"}, entries)
}

func TestFirestoreSourceMalformed(t *testing.T) {
	srv := firestoreServer(t, map[string]string{"": `{}`})
	defer srv.Close()

	_, err := NewFirestoreSource(srv.URL, time.Second).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrMalformedList)
}

func TestFirestoreSourceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFirestoreSource(srv.URL, time.Second).Fetch(context.Background())
	assert.Error(t, err)
}

func TestDocstoreSource(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	defer store.Close()
	_, err := store.Add(ctx, LinksCollection, map[string]any{"url": "evil.tk"})
	require.NoError(t, err)
	_, err = store.Add(ctx, LinksCollection, map[string]any{"url": 42})
	require.NoError(t, err)

	entries, err := NewDocstoreSource(store).Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"evil.tk"}, entries)
}

func TestRefresherRunsOnTimer(t *testing.T) {
	var calls atomic.Int32
	src := sourceFunc(func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"evil.tk"}, nil
	})
	c := NewCache(src, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() { done <- NewRefresher(c, 10*time.Millisecond, quietLogger()).Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, c.Evaluate("http://evil.tk").Cancel)

	cancel()
	assert.NoError(t, <-done)
}

type sourceFunc func(ctx context.Context) ([]string, error)

func (f sourceFunc) Fetch(ctx context.Context) ([]string, error) { return f(ctx) }
