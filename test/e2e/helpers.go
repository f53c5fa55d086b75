package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyperengineering/deep/internal/access"
	"github.com/hyperengineering/deep/internal/api"
	"github.com/hyperengineering/deep/internal/lock"
	"github.com/hyperengineering/deep/internal/membership"
	"github.com/hyperengineering/deep/internal/metrics"
	"github.com/hyperengineering/deep/internal/pipeline"
	"github.com/hyperengineering/deep/internal/project"
	"github.com/hyperengineering/deep/internal/store"
	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget/builtin"
	"github.com/hyperengineering/deep/internal/worker"
)

const testSecret = "e2e-secret"

// stack is a fully wired service: SQLite store, SQL locks, a running job
// queue and the HTTP router behind a real listener.
type stack struct {
	t      *testing.T
	store  *store.SQLiteStore
	server *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "deep.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		t.Fatalf("metrics.New() error = %v", err)
	}

	widgets := builtin.Registry()
	p := pipeline.New(db, widgets, m)
	resolver := access.NewResolver(db)

	runner := worker.NewRunner(lock.NewSQL(db), time.Minute, m)
	queue := worker.NewQueue(runner, 16, 2, m)
	queue.Register(worker.NewLeadExtraction(db))
	queue.Register(worker.NewFrameworkSync(p, db))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(ctx)
	}()

	h := api.NewHandler(db, widgets,
		project.NewService(db, resolver, p, queue),
		membership.NewService(db, resolver, m),
		"e2e")
	srv := httptest.NewServer(api.NewRouter(h, api.RouterConfig{
		JWTSecret: testSecret,
		Metrics:   m,
		Gatherer:  registry,
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
		wg.Wait()
		db.Close()
	})

	return &stack{t: t, store: db, server: srv}
}

func (s *stack) user(name string) string {
	s.t.Helper()
	u := &types.User{Username: name}
	if err := s.store.CreateUser(context.Background(), u); err != nil {
		s.t.Fatalf("CreateUser() error = %v", err)
	}
	return u.ID
}

// call sends a JSON request acting as userID and decodes the response into out.
func (s *stack) call(method, path, userID string, body any, wantStatus int, out any) {
	s.t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	if err != nil {
		s.t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := api.IssueToken(testSecret, userID, time.Hour)
		if err != nil {
			s.t.Fatalf("IssueToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.server.Client().Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		s.t.Fatalf("%s %s status = %d, want %d; body: %s", method, path, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			s.t.Fatalf("decode %s %s: %v; body: %s", method, path, err, data)
		}
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
