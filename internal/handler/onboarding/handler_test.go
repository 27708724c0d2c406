package onboarding

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wutongtree/backend/internal/model/user"
	authService "github.com/wutongtree/backend/internal/service/auth"
	onboardingService "github.com/wutongtree/backend/internal/service/onboarding"
	"github.com/wutongtree/backend/internal/store/kv"
)

func setupRouter(t *testing.T) (*chi.Mux, *authService.Service) {
	t.Helper()
	store, err := kv.Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	authSvc := authService.NewService(store)
	r := chi.NewRouter()
	New(onboardingService.NewService(nil, authSvc)).RegisterRoutes(r)
	return r, authSvc
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestInterviewFlow(t *testing.T) {
	r, authSvc := setupRouter(t)

	if resp := do(r, http.MethodPost, "/onboarding/interview/answer", `{"text":"Sam"}`); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 before start, got %d", resp.Code)
	}

	resp := do(r, http.MethodPost, "/onboarding/interview", "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	if resp := do(r, http.MethodPost, "/onboarding/interview/answer", `{"text":"  "}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty answer, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, "/onboarding/interview/finish", ""); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 before completion, got %d", resp.Code)
	}

	answers := []string{"Sam", "28", "music and travel", "Deep talks", "A new job", "Jazz piano"}
	for _, answer := range answers {
		body, _ := json.Marshal(map[string]string{"text": answer})
		resp = do(r, http.MethodPost, "/onboarding/interview/answer", string(body))
		if resp.Code != http.StatusOK {
			t.Fatalf("answer %q: expected 200, got %d: %s", answer, resp.Code, resp.Body.String())
		}
	}

	resp = do(r, http.MethodGet, "/onboarding/interview", "")
	var snap onboardingService.Snapshot
	if err := json.Unmarshal(resp.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !snap.Complete || len(snap.Messages) != 1+2*len(answers) {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if resp := do(r, http.MethodPost, "/onboarding/interview/finish", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user, got %d", resp.Code)
	}

	if _, err := authSvc.SignIn("apple"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	resp = do(r, http.MethodPost, "/onboarding/interview/finish", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var u user.User
	if err := json.Unmarshal(resp.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Name != "Sam" || !u.OnboardingCompleted || len(u.Interests) != 2 {
		t.Fatalf("unexpected user: %+v", u)
	}
}
