package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/extract/extracttest"
	"github.com/poiesic/docingest/retry"
	"github.com/poiesic/docingest/storage"
	badgerstore "github.com/poiesic/docingest/storage/badger"
	"github.com/stretchr/testify/require"
)

// testConfig keeps every delay in the millisecond range.
func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Downloaders = 3
	cfg.ExtractorPoolSize = 2
	cfg.WorkQueueSize = 4
	cfg.ResultQueueSize = 4
	cfg.PageSize = 3
	cfg.PollInterval = 2 * time.Millisecond
	cfg.BatchSize = 5
	cfg.DownloadTimeout = 5 * time.Second
	cfg.DownloadPolicy = retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		CoolDown:    5 * time.Millisecond,
		IsCoolDown:  isThrottled,
	}
	cfg.EmbedPolicy = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	cfg.CommitPolicy = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	cfg.OutputDir = t.TempDir()
	cfg.ReportInterval = 1
	return cfg
}

func newStore(t *testing.T) storage.JobStore {
	t.Helper()
	store, err := badgerstore.NewMemoryJobStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// docServer serves canned responses by path and counts requests.
type docServer struct {
	*httptest.Server
	mu     sync.Mutex
	hits   map[string]int
	agents []string
	routes map[string]http.HandlerFunc
}

func newDocServer(t *testing.T) *docServer {
	t.Helper()
	s := &docServer{
		hits:   make(map[string]int),
		routes: make(map[string]http.HandlerFunc),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.agents = append(s.agents, r.UserAgent())
		route, ok := s.routes[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		route(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// pdf registers path to serve a one-page document with text.
func (s *docServer) pdf(path, text string) string {
	doc := extracttest.PDF(text)
	s.mu.Lock()
	s.routes[path] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(doc)
	}
	s.mu.Unlock()
	return s.URL + path
}

func (s *docServer) status(path string, code int) string {
	s.mu.Lock()
	s.routes[path] = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
	s.mu.Unlock()
	return s.URL + path
}

func (s *docServer) route(path string, h http.HandlerFunc) string {
	s.mu.Lock()
	s.routes[path] = h
	s.mu.Unlock()
	return s.URL + path
}

func (s *docServer) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *docServer) userAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.agents...)
}

// goodDocs registers n documents long enough to be embedded.
func (s *docServer) goodDocs(n int) []core.Source {
	sources := make([]core.Source, n)
	for i := range sources {
		text := fmt.Sprintf("document %03d %s", i, extracttest.Text(80))
		sources[i] = core.Source{URL: s.pdf(fmt.Sprintf("/doc/%03d.pdf", i), text), Code: fmt.Sprintf("%06d", i)}
	}
	return sources
}

func hydrate(t *testing.T, store storage.JobStore, sources []core.Source) {
	t.Helper()
	n, err := store.Hydrate(context.Background(), sources)
	require.NoError(t, err)
	require.Equal(t, len(sources), n)
}

func counts(t *testing.T, store storage.JobStore) core.StatusCounts {
	t.Helper()
	c, err := store.StatusCounts(context.Background())
	require.NoError(t, err)
	return c
}

func jobsByURL(t *testing.T, store storage.JobStore, n int) map[string]*core.Job {
	t.Helper()
	out := make(map[string]*core.Job, n)
	for id := 1; id <= n; id++ {
		job, err := store.GetJob(context.Background(), core.ID(id))
		require.NoError(t, err)
		out[job.URL] = job
	}
	return out
}
