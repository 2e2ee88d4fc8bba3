//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/matching"
	"github.com/ashureev/geek-intake/internal/store"
	"github.com/ashureev/geek-intake/internal/tools"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("x", "bad"), http.StatusBadRequest},
		{domain.NewNotFoundError("geek", "g1"), http.StatusNotFound},
		{domain.ConflictError{Field: "conversation_id", Message: "exists"}, http.StatusConflict},
		{domain.ExtractionError{Reason: "invalid record"}, http.StatusUnprocessableEntity},
		{domain.ReasoningFault{Op: "chat", Err: errors.New("boom")}, http.StatusBadGateway},
		{domain.StorageFault{Op: "query", Err: errors.New("locked")}, http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)

	WriteError(w, r, domain.StorageFault{Op: "query", Err: errors.New("disk I/O error at /var/db")})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "/var/db")
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	for _, tt := range []struct {
		name   string
		err    error
		code   int
		status string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"degraded", errors.New("unreachable"), http.StatusServiceUnavailable, "degraded"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHealthHandler(fakePinger{err: tt.err}, 0).RegisterHealth(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body["status"])
		})
	}
}

func newTestServer(t *testing.T) (*store.SQLiteStore, http.Handler) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.UpsertCategory(ctx, &domain.Category{ID: "cat-laptops", Title: "Laptops", Slug: "laptops", SubCategories: []string{"sub-screen"}}))
	require.NoError(t, s.UpsertSubcategory(ctx, &domain.Subcategory{ID: "sub-screen", Title: "Screen Repair", Slug: "screen-repair", ParentCategory: "cat-laptops"}))
	for _, p := range []*domain.Provider{
		{
			ProviderBase: domain.ProviderBase{
				ID: "g-pune", PrimarySkill: "cat-laptops", Type: domain.ProviderIndividual,
				ModeOfService: domain.ModeAll, YOE: 6, BrandsServiced: []string{"Dell"},
				Address: &domain.Address{City: "Pune", State: "Maharashtra"},
			},
			Individual: &domain.IndividualProfile{},
		},
		{
			ProviderBase: domain.ProviderBase{
				ID: "g-corp", PrimarySkill: "cat-laptops", Type: domain.ProviderCorporate,
				ModeOfService: domain.ModeOnline, YOE: 2,
				Address: &domain.Address{City: "Delhi", State: "Delhi"},
			},
			Corporate: &domain.CorporateProfile{CompanyName: "FixIt", IsVerified: true},
		},
	} {
		require.NoError(t, s.UpsertProvider(ctx, p))
	}
	require.NoError(t, s.UpsertUser(ctx, &domain.User{ID: "u1", Address: &domain.Address{City: "Pune"}}))
	require.NoError(t, s.AppendMessage(ctx, "u1", "c1", domain.NewChatMessage(domain.SenderUser, "my laptop screen flickers")))

	h := NewHandler(s, tools.NewCatalog(s, 0, nil), matching.NewEngine(s, nil), 5)
	r := chi.NewRouter()
	h.RegisterGeekRoutes(r)
	h.RegisterSeekerRoutes(r)
	h.RegisterChatRoutes(r, nil)
	h.RegisterIssueRoutes(r)
	return s, r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestGeekRoutes(t *testing.T) {
	_, h := newTestServer(t)

	t.Run("all", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/geek_query/get_all_geeks", "")
		require.Equal(t, http.StatusOK, w.Code)
		var body struct{ Geeks []domain.Provider }
		decode(t, w, &body)
		assert.Len(t, body.Geeks, 2)
	})

	t.Run("filters", func(t *testing.T) {
		for _, tt := range []struct {
			query string
			want  []string
		}{
			{"type=Corporate", []string{"g-corp"}},
			{"min_yoe=5", []string{"g-pune"}},
			{"brand=Dell", []string{"g-pune"}},
			{"mode_of_service=online", []string{"g-corp"}},
			{"is_verified=true", []string{"g-corp"}},
			{"limit=1&skip=1", []string{"g-corp"}},
		} {
			w := do(t, h, http.MethodGet, "/geek_query/get_geeks?"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code, tt.query)
			var body struct{ Geeks []domain.Provider }
			decode(t, w, &body)
			got := make([]string, 0, len(body.Geeks))
			for _, g := range body.Geeks {
				got = append(got, g.ID)
			}
			assert.Equal(t, tt.want, got, tt.query)
		}
	})

	t.Run("bad filter", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/geek_query/get_geeks?min_yoe=lots&type=Robot", "")
		require.Equal(t, http.StatusBadRequest, w.Code)
		var body struct {
			Fields []domain.FieldError `json:"fields"`
		}
		decode(t, w, &body)
		assert.Len(t, body.Fields, 2)
	})

	t.Run("one", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/geek_query/get_geek/g-pune", "")
		require.Equal(t, http.StatusOK, w.Code)
		var body struct{ Geek domain.Provider }
		decode(t, w, &body)
		assert.Equal(t, "g-pune", body.Geek.ID)

		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/geek_query/get_geek/nobody", "").Code)
	})

	t.Run("catalog", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/geek_query/get_service_categories", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"laptops"`)

		w = do(t, h, http.MethodGet, "/geek_query/get_subcategories_from_slug/laptops", "")
		require.Equal(t, http.StatusOK, w.Code)
		var titles []string
		decode(t, w, &titles)
		assert.Equal(t, []string{"Screen Repair"}, titles)
	})
}

func TestGeeksFromIssue(t *testing.T) {
	_, h := newTestServer(t)

	t.Run("matched", func(t *testing.T) {
		body := `{"user_id":"u1","modeOfService":"all","category_details":{"category":"Laptops"}}`
		w := do(t, h, http.MethodPost, "/geek_query/get_geeks_from_user_issue?page=1&page_size=1", body)
		require.Equal(t, http.StatusOK, w.Code)

		var res domain.MatchResult
		decode(t, w, &res)
		assert.Equal(t, 1, res.Total)
		assert.Equal(t, 1, res.Pages)
		require.Len(t, res.Geeks, 1)
		assert.Equal(t, "g-pune", res.Geeks[0].ID)
	})

	t.Run("none", func(t *testing.T) {
		body := `{"modeOfService":"Offline","location":"Chennai","category_details":{"category":"Laptops"}}`
		w := do(t, h, http.MethodPost, "/geek_query/get_geeks_from_user_issue", body)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "No matching geeks found for user issue")
	})

	t.Run("bad paging", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/geek_query/get_geeks_from_user_issue?page_size=0", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = do(t, h, http.MethodPost, "/geek_query/get_geeks_from_user_issue?page=x", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/geek_query/get_geeks_from_user_issue", `{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSeekerRoutes(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/seeker_query/get_all_seekers", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all struct{ Seekers []domain.User }
	decode(t, w, &all)
	require.Len(t, all.Seekers, 1)

	w = do(t, h, http.MethodGet, "/seeker_query/get_seeker/u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var one struct{ Seeker domain.User }
	decode(t, w, &one)
	assert.Equal(t, "u1", one.Seeker.ID)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/seeker_query/get_seeker/u2", "").Code)
}

func TestChatRoutes(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/chat/chat_history/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var convs []domain.Conversation
	decode(t, w, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, "my laptop screen flickers", convs[0].ChatMessages[0].Message)

	w = do(t, h, http.MethodGet, "/chat/chat_history/missing", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/chat/conversation/u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summaries []domain.ConversationSummary
	decode(t, w, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, "c1", summaries[0].ConversationID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/chat/conversation/bad%20id", "").Code)

	w = do(t, h, http.MethodDelete, "/chat/delete/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Conversation with id c1 deleted successfully")

	w = do(t, h, http.MethodDelete, "/chat/delete/c1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueRoutes(t *testing.T) {
	_, h := newTestServer(t)

	issue := domain.IssueRecord{
		UserID:          "u1",
		ConversationID:  "c1",
		ModeOfService:   "carry-in",
		Summary:         "Laptop screen flickers after a drop.",
		CategoryDetails: domain.CategoryDetails{Category: "Laptops"},
	}
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(issue))

	w := do(t, h, http.MethodPost, "/issues/", buf.String())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created domain.IssueRecord
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.ModeCarryIn, created.ModeOfService)
	assert.Equal(t, domain.IssueOpen, created.Status)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/issues/", buf.String()).Code)

	w = do(t, h, http.MethodGet, "/issues/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/issues/user/u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.IssueRecord
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	w = do(t, h, http.MethodPost, "/issues/", `{"user_id":"u1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "summary")
}
