package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"variantree/internal/config"
	"variantree/internal/domain"
	models "variantree/internal/domain/models/branching"
	branchingSvc "variantree/internal/domain/services/branching"
	"variantree/internal/repository/pebblestore"
	"variantree/internal/service/branching"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	store, err := pebblestore.OpenInMemory(logger)
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	services := branching.SetupServices(store, *config.DefaultBranching(), prometheus.NewRegistry(), logger)
	h := NewBranchingHandler(services.Retry, services.Query, services.Message, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestRetryFlow(t *testing.T) {
	srv := newTestServer(t)

	var u1, a1 models.Message
	if code := doJSON(t, "POST", srv.URL+"/api/threads/t1/messages",
		map[string]string{"role": "user", "content": "hello"}, &u1); code != http.StatusCreated {
		t.Fatalf("append user status = %d", code)
	}
	if code := doJSON(t, "POST", srv.URL+"/api/threads/t1/messages",
		map[string]interface{}{"role": "assistant", "content": "hi", "parent_message_id": u1.ID}, &a1); code != http.StatusCreated {
		t.Fatalf("append assistant status = %d", code)
	}

	// Bodyless retry regenerates
	var first branchingSvc.RetryResult
	if code := doJSON(t, "POST", srv.URL+"/api/messages/"+a1.ID+"/retry", nil, &first); code != http.StatusCreated {
		t.Fatalf("retry status = %d", code)
	}
	if !first.Forked || first.BranchPoint != u1.ID || first.Variant.Sequence() != 1 {
		t.Errorf("retry result = %+v", first)
	}

	var second branchingSvc.RetryResult
	doJSON(t, "POST", srv.URL+"/api/messages/"+first.Variant.ID+"/retry", map[string]string{"content": "edited"}, &second)
	if second.ConversationBranchID != first.ConversationBranchID || second.RootID != a1.ID {
		t.Errorf("second retry = %+v", second)
	}
	if second.Variant.Content != "edited" {
		t.Errorf("edit content = %q", second.Variant.Content)
	}

	var variants struct {
		RootID   string           `json:"root_id"`
		Messages []models.Message `json:"messages"`
		Total    int              `json:"total"`
		Position int              `json:"position"`
	}
	if code := doJSON(t, "GET", srv.URL+"/api/messages/"+first.Variant.ID+"/variants", nil, &variants); code != http.StatusOK {
		t.Fatalf("variants status = %d", code)
	}
	if variants.RootID != a1.ID || variants.Total != 3 || variants.Position != 2 {
		t.Errorf("variants = root %s total %d position %d", variants.RootID, variants.Total, variants.Position)
	}

	var root models.Message
	doJSON(t, "GET", srv.URL+"/api/messages/"+second.Variant.ID+"/root", nil, &root)
	if root.ID != a1.ID {
		t.Errorf("root = %s, want %s", root.ID, a1.ID)
	}

	var branches struct {
		Branches []string `json:"branches"`
	}
	doJSON(t, "GET", srv.URL+"/api/threads/t1/branches", nil, &branches)
	if len(branches.Branches) != 2 || branches.Branches[0] != models.MainBranch {
		t.Errorf("branches = %v", branches.Branches)
	}

	var branchMessages []models.Message
	doJSON(t, "GET", srv.URL+"/api/branches/"+first.ConversationBranchID+"/messages", nil, &branchMessages)
	if len(branchMessages) != 2 {
		t.Errorf("branch messages = %d, want 2", len(branchMessages))
	}

	var completed models.Message
	code := doJSON(t, "PATCH", srv.URL+"/api/messages/"+first.Variant.ID+"/content", map[string]string{"content": "answer"}, &completed)
	if code != http.StatusOK || completed.Status != models.StatusComplete || completed.Content != "answer" {
		t.Errorf("complete = %d %+v", code, completed)
	}
}

func TestRetry_BranchLimitResponse(t *testing.T) {
	srv := newTestServer(t)

	var root models.Message
	doJSON(t, "POST", srv.URL+"/api/threads/t1/messages", map[string]string{"role": "assistant", "content": "a"}, &root)

	for i := 0; i < config.HardMaxVariantsPerRoot; i++ {
		if code := doJSON(t, "POST", srv.URL+"/api/messages/"+root.ID+"/retry", nil, nil); code != http.StatusCreated {
			t.Fatalf("retry %d status = %d", i+1, code)
		}
	}

	var problem map[string]interface{}
	code := doJSON(t, "POST", srv.URL+"/api/messages/"+root.ID+"/retry", nil, &problem)
	if code != http.StatusConflict {
		t.Fatalf("10th retry status = %d, want 409", code)
	}
	if problem["code"] != "branch_limit_exceeded" {
		t.Errorf("code = %v", problem["code"])
	}
	if problem["max_versions"] != float64(10) || problem["max_variants"] != float64(9) {
		t.Errorf("limits = %v/%v", problem["max_variants"], problem["max_versions"])
	}
	if detail, _ := problem["detail"].(string); !strings.Contains(detail, "At most 10 versions") {
		t.Errorf("detail = %q", detail)
	}
}

func TestErrorResponses(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown message", "GET", "/api/messages/ghost", "", http.StatusNotFound},
		{"retry unknown", "POST", "/api/messages/ghost/retry", "", http.StatusNotFound},
		{"malformed body", "POST", "/api/messages/ghost/retry", "{", http.StatusBadRequest},
		{"unknown field", "POST", "/api/threads/t1/messages", `{"role":"user","colour":"red"}`, http.StatusBadRequest},
		{"bad role", "POST", "/api/threads/t1/messages", `{"role":"system"}`, http.StatusBadRequest},
		{"content patch without content", "PATCH", "/api/messages/ghost/content", `{}`, http.StatusBadRequest},
		{"id too long", "GET", "/api/messages/" + strings.Repeat("x", config.MaxIDLength+1), "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("content type = %q", ct)
			}
		})
	}
}

func TestHandleError(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantHeader string
	}{
		{"transient", fmt.Errorf("allocate: %w", domain.ErrTransient), http.StatusServiceUnavailable, "1"},
		{"data integrity", fmt.Errorf("cycle: %w", domain.ErrDataIntegrity), http.StatusInternalServerError, ""},
		{"conflict", &domain.ConflictError{Message: "exists"}, http.StatusConflict, ""},
		{"wrapped typed validation", fmt.Errorf("create message: %w", &domain.ValidationError{Message: "bad role"}), http.StatusBadRequest, ""},
		{"wrapped typed not found", fmt.Errorf("lookup: %w", &domain.NotFoundError{Message: "message m1 not found"}), http.StatusNotFound, ""},
		{"sentinel not found", fmt.Errorf("root r1: %w", domain.ErrNotFound), http.StatusNotFound, ""},
		{"storage failure", context.DeadlineExceeded, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleError(rec, httptest.NewRequest("GET", "/", nil), logger, tt.err)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.wantHeader {
				t.Errorf("Retry-After = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}
