package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"viola-joke/internal/models"
	"viola-joke/internal/moderation"
	"viola-joke/internal/slug"
)

const feedCacheControl = "public, s-maxage=3600, stale-while-revalidate=86400"

type jokePayload struct {
	ID        string     `json:"id"`
	Slug      string     `json:"slug"`
	Content   string     `json:"content"`
	Author    string     `json:"author"`
	Tags      []string   `json:"tags"`
	Approved  bool       `json:"approved"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func buildJokePayload(j models.Joke) jokePayload {
	tags := j.Tags
	if tags == nil {
		tags = []string{}
	}
	return jokePayload{
		ID:        j.ID,
		Slug:      slug.Encode(j),
		Content:   j.Content,
		Author:    j.DisplayAuthor(),
		Tags:      tags,
		Approved:  j.Approved,
		CreatedAt: j.CreatedAt,
	}
}

func buildJokePayloads(jokes []models.Joke) []jokePayload {
	out := make([]jokePayload, 0, len(jokes))
	for _, j := range jokes {
		out = append(out, buildJokePayload(j))
	}
	return out
}

// decodeBody reads a JSON body into dst, capping its size.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) random(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	joke, quota, err := h.svc.Random(ctx, strings.TrimSpace(r.Header.Get(VisitorHeader)))
	if quota != nil {
		w.Header().Set(QuotaHeader, strconv.Itoa(quota.Remaining))
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildJokePayload(*joke))
}

func (h *Handlers) listJokes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	page, _ := strconv.Atoi(strings.TrimSpace(query.Get("page")))
	pageSize, _ := strconv.Atoi(strings.TrimSpace(query.Get("pageSize")))

	result, err := h.svc.List(ctx, page, pageSize)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jokes":      buildJokePayloads(result.Jokes),
		"total":      result.Total,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalPages": result.TotalPages,
	})
}

func (h *Handlers) jokeBySlug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	joke, err := h.svc.JokeBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildJokePayload(*joke))
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jokes, err := h.svc.Search(ctx, r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildJokePayloads(jokes))
}

func (h *Handlers) tags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tags, err := h.svc.Tags(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, tags)
}

func (h *Handlers) byTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jokes, err := h.svc.ByTag(ctx, chi.URLParam(r, "tag"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildJokePayloads(jokes))
}

// submit passes the raw decoded body through so shape errors are judged by
// the validator after the rate limit, like any other bad submission.
func (h *Handlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload any
	if err := decodeBody(w, r, &payload); err != nil {
		payload = nil
	}

	result, err := h.svc.Submit(ctx, payload, ClientKey(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	w.Header().Set(RemainingHeader, strconv.Itoa(result.Remaining))
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Joke submitted for review",
		"id":      result.Joke.ID,
	})
}

func (h *Handlers) ads(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Ads())
}

func (h *Handlers) feed(w http.ResponseWriter, r *http.Request) {
	h.writeXML(w, r, h.svc.Feed)
}

func (h *Handlers) sitemap(w http.ResponseWriter, r *http.Request) {
	h.writeXML(w, r, h.svc.Sitemap)
}

func (h *Handlers) writeXML(w http.ResponseWriter, r *http.Request, render func(ctx context.Context) ([]byte, error)) {
	ctx := r.Context()

	body, err := render(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", feedCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type loginRequest struct {
	Password string `json:"password"`
}

func (h *Handlers) adminLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, newError("invalid_request", "Invalid request body", http.StatusBadRequest))
		return
	}

	if err := h.svc.AdminLogin(ctx, req.Password); err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) adminSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jokes, err := h.svc.AdminListUnapproved(ctx, moderation.CredentialFromRequest(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildJokePayloads(jokes))
}

type jokeIDRequest struct {
	JokeID string `json:"jokeId"`
}

func (h *Handlers) adminApprove(w http.ResponseWriter, r *http.Request) {
	h.adminMutate(w, r, h.svc.AdminApprove)
}

func (h *Handlers) adminDelete(w http.ResponseWriter, r *http.Request) {
	h.adminMutate(w, r, h.svc.AdminDelete)
}

// adminMutate checks the credential before looking at the body so a bad
// secret is reported the same way whatever was sent.
func (h *Handlers) adminMutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, credential, id string) error) {
	ctx := r.Context()
	credential := moderation.CredentialFromRequest(r)

	var req jokeIDRequest
	if err := decodeBody(w, r, &req); err != nil {
		req.JokeID = ""
	}

	if err := op(ctx, credential, req.JokeID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type premiumRequest struct {
	VisitorID string `json:"visitorId"`
	Premium   bool   `json:"premium"`
}

func (h *Handlers) adminPremium(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	credential := moderation.CredentialFromRequest(r)

	var req premiumRequest
	if err := decodeBody(w, r, &req); err != nil {
		req = premiumRequest{}
	}

	if err := h.svc.AdminSetPremium(ctx, credential, req.VisitorID, req.Premium); err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) createVisitor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	profile, err := h.svc.CreateVisitor(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, profile)
}

// visitorID returns the caller's visitor id or writes a 400.
func visitorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(VisitorHeader))
	if id == "" {
		writeError(r.Context(), w, newError("invalid_request", "visitor id is required", http.StatusBadRequest))
		return "", false
	}
	return id, true
}

func (h *Handlers) currentVisitor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := visitorID(w, r)
	if !ok {
		return
	}

	profile, err := h.svc.Visitor(ctx, id)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handlers) listFavorites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := visitorID(w, r)
	if !ok {
		return
	}

	jokes, err := h.svc.Favorites(ctx, id)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildJokePayloads(jokes))
}

func (h *Handlers) addFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := visitorID(w, r)
	if !ok {
		return
	}

	var req jokeIDRequest
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.JokeID) == "" {
		writeError(ctx, w, newError("invalid_request", "Joke ID is required", http.StatusBadRequest))
		return
	}

	if err := h.svc.AddFavorite(ctx, id, strings.TrimSpace(req.JokeID)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) removeFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := visitorID(w, r)
	if !ok {
		return
	}

	if err := h.svc.RemoveFavorite(ctx, id, chi.URLParam(r, "jokeID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
