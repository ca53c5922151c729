package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"viola-joke/internal/models"
	"viola-joke/internal/moderation"
	"viola-joke/internal/ratelimit"
	"viola-joke/internal/service"
	"viola-joke/internal/slug"
	"viola-joke/internal/store"
	"viola-joke/internal/visitor"
)

const testSecret = "letmein"

type testServer struct {
	handler http.Handler
	store   *store.FileStore
}

func newTestServer(t *testing.T, submitLimit int) *testServer {
	t.Helper()

	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), "jokes.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	svc := service.New(fs,
		ratelimit.New(submitLimit, time.Hour),
		moderation.NewGate(testSecret),
		service.WithVisitors(visitor.NewMemoryStore(), 1),
		service.WithAds(true, []string{"top", "bottom"}),
	)

	return &testServer{
		handler: NewRouter(NewHandlers(svc), zerolog.Nop(), ""),
		store:   fs,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) approved(t *testing.T, content string, tags ...string) models.Joke {
	t.Helper()
	ctx := context.Background()

	j, err := s.store.Append(ctx, models.Joke{Content: content, Tags: tags})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.store.Approve(ctx, j.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	j.Approved = true
	return *j
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 5)

	rec := s.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestSubmitFlow(t *testing.T) {
	s := newTestServer(t, 5)

	rec := s.do(t, http.MethodPost, "/api/submit", map[string]any{
		"content": "What is the range of a viola? About thirty yards with a good arm.",
		"tags":    []string{"Range"},
	}, map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get(RemainingHeader); got != "4" {
		t.Errorf("%s = %q, want 4", RemainingHeader, got)
	}

	body := decode[map[string]any](t, rec)
	if body["success"] != true || body["id"] == "" {
		t.Errorf("body = %v", body)
	}

	// Pending jokes are invisible to the public.
	rec = s.do(t, http.MethodGet, "/api/random", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("random before approval status = %d, want 404", rec.Code)
	}

	auth := map[string]string{moderation.SecretHeader: testSecret}
	rec = s.do(t, http.MethodGet, "/api/admin/submissions", nil, auth)
	pending := decode[[]jokePayload](t, rec)
	if len(pending) != 1 || pending[0].ID != body["id"] || pending[0].Author != models.AnonymousAuthor {
		t.Fatalf("submissions = %+v", pending)
	}

	rec = s.do(t, http.MethodPost, "/api/admin/approve", map[string]string{"jokeId": pending[0].ID},
		map[string]string{"Authorization": "Bearer " + testSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodGet, "/api/jokes/"+pending[0].Slug, nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("joke by slug status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/tags/range", nil, nil)
	if got := decode[[]jokePayload](t, rec); len(got) != 1 {
		t.Errorf("by tag = %+v", got)
	}

	rec = s.do(t, http.MethodPost, "/api/admin/delete", map[string]string{"jokeId": pending[0].ID}, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/jokes/"+pending[0].Slug, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("joke after delete status = %d, want 404", rec.Code)
	}
}

func TestSubmitErrors(t *testing.T) {
	s := newTestServer(t, 3)
	headers := map[string]string{"X-Real-IP": "198.51.100.7"}

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantMsg    string
	}{
		{"malformed json", "{not json", http.StatusBadRequest, "Invalid submission"},
		{"honeypot", map[string]any{"content": "A perfectly fine viola joke", "honeypot": "x"}, http.StatusBadRequest, "Invalid submission"},
		{"too short", map[string]any{"content": "too short"}, http.StatusBadRequest, "Joke must be between 10 and 500 characters"},
		{"rate limited", map[string]any{"content": "A perfectly fine viola joke"}, http.StatusTooManyRequests, "Too many submissions. Please try again later."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/submit", tt.body, headers)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			env := decode[map[string]any](t, rec)
			if env["message"] != tt.wantMsg {
				t.Errorf("message = %v, want %q", env["message"], tt.wantMsg)
			}
			if env["request_id"] == nil || env["status"] != float64(tt.wantStatus) {
				t.Errorf("envelope = %v", env)
			}
		})
	}
}

func TestAdminUnauthorizedIsUniform(t *testing.T) {
	s := newTestServer(t, 5)

	cases := []map[string]string{
		nil,
		{moderation.SecretHeader: "wrong"},
		{"Authorization": "Basic " + testSecret},
		{"Authorization": "Bearer"},
	}

	var first string
	for i, headers := range cases {
		rec := s.do(t, http.MethodGet, "/api/admin/submissions", nil, headers)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("case %d status = %d, want 401", i, rec.Code)
		}
		env := decode[map[string]any](t, rec)
		msg, _ := env["message"].(string)
		if i == 0 {
			first = msg
		} else if msg != first {
			t.Errorf("case %d message = %q, want %q", i, msg, first)
		}
	}

	rec := s.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "nope"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("login status = %d, want 401", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": testSecret}, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("login status = %d, want 200", rec.Code)
	}
}

func TestListAndSearch(t *testing.T) {
	s := newTestServer(t, 5)
	for _, c := range []string{
		"Viola joke one is here",
		"Viola joke two is here",
		"Cello joke three is here",
	} {
		s.approved(t, c)
	}

	rec := s.do(t, http.MethodGet, "/api/jokes?page=2&pageSize=10", nil, nil)
	page := decode[map[string]any](t, rec)
	if jokes := page["jokes"].([]any); len(jokes) != 0 || page["total"] != float64(3) {
		t.Errorf("page 2 = %v", page)
	}

	rec = s.do(t, http.MethodGet, "/api/jokes?page=abc", nil, nil)
	page = decode[map[string]any](t, rec)
	if page["page"] != float64(1) || page["pageSize"] != float64(10) {
		t.Errorf("defaults = %v", page)
	}

	rec = s.do(t, http.MethodGet, "/api/search?q=VIOLA", nil, nil)
	if got := decode[[]jokePayload](t, rec); len(got) != 2 {
		t.Errorf("search = %+v", got)
	}

	rec = s.do(t, http.MethodGet, "/api/search?q=v", nil, nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("short search body = %s, want []", rec.Body)
	}
}

func TestJokeBySlugTolerantOfPrefix(t *testing.T) {
	s := newTestServer(t, 5)
	j := s.approved(t, "Slug test viola joke")

	for _, path := range []string{slug.Encode(j), "anything-" + j.ID, j.ID} {
		rec := s.do(t, http.MethodGet, "/api/jokes/"+path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", path, rec.Code)
		}
	}
}

func TestVisitorsAndPaywall(t *testing.T) {
	s := newTestServer(t, 5)
	j := s.approved(t, "The paywalled viola joke")

	rec := s.do(t, http.MethodPost, "/api/visitors", nil, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create visitor status = %d", rec.Code)
	}
	profile := decode[map[string]any](t, rec)
	id := profile["id"].(string)
	vh := map[string]string{VisitorHeader: id}

	rec = s.do(t, http.MethodGet, "/api/random", nil, vh)
	if rec.Code != http.StatusOK || rec.Header().Get(QuotaHeader) != "0" {
		t.Fatalf("first random status = %d quota = %q", rec.Code, rec.Header().Get(QuotaHeader))
	}
	rec = s.do(t, http.MethodGet, "/api/random", nil, vh)
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("second random status = %d, want 402", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/admin/premium", map[string]any{"visitorId": id, "premium": true},
		map[string]string{moderation.SecretHeader: testSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("premium status = %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/random", nil, vh)
	if rec.Code != http.StatusOK {
		t.Errorf("premium random status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/favorites", map[string]string{"jokeId": j.ID}, vh)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("add favorite status = %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/favorites", nil, vh)
	if got := decode[[]jokePayload](t, rec); len(got) != 1 || got[0].ID != j.ID {
		t.Errorf("favorites = %+v", got)
	}
	rec = s.do(t, http.MethodDelete, "/api/favorites/"+j.ID, nil, vh)
	if rec.Code != http.StatusNoContent {
		t.Errorf("remove favorite status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/visitors/me", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("me without header status = %d, want 400", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/visitors/me", nil, map[string]string{VisitorHeader: "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("me unknown status = %d, want 404", rec.Code)
	}
}

func TestFeedSitemapAndAds(t *testing.T) {
	s := newTestServer(t, 5)
	s.approved(t, "Feed-worthy viola joke", "feed")

	for _, path := range []string{"/feed.xml", "/sitemap.xml"} {
		rec := s.do(t, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
			t.Errorf("%s content type = %q", path, ct)
		}
		if cc := rec.Header().Get("Cache-Control"); cc != feedCacheControl {
			t.Errorf("%s cache control = %q", path, cc)
		}
	}

	rec := s.do(t, http.MethodGet, "/api/ads", nil, nil)
	if got := decode[[]map[string]string](t, rec); len(got) != 2 || got[0]["position"] != "top" {
		t.Errorf("ads = %v", got)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": " 1.1.1.1 , 2.2.2.2", "X-Real-IP": "3.3.3.3"}, "4.4.4.4:80", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "4.4.4.4:80", "3.3.3.3"},
		{"remote addr", nil, "4.4.4.4:80", "4.4.4.4"},
		{"nothing", nil, "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/submit", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientKey(req); got != tt.want {
				t.Errorf("ClientKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
