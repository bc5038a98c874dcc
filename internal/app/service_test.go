package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"inkwell/api/internal/ai"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/config"
	"inkwell/api/internal/email"
	"inkwell/api/internal/export"
	"inkwell/api/internal/search"
	"inkwell/api/internal/security"
	"inkwell/api/internal/session"
	"inkwell/api/internal/sharetoken"
	"inkwell/api/internal/store"
	"inkwell/api/internal/versions"
	"inkwell/api/internal/workspace"

	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct-horse-battery"

// flakyStore wraps a real store and fails document updates or pings on demand.
type flakyStore struct {
	store.Store
	mu         sync.Mutex
	failUpdate bool
	pingErr    error
}

func (f *flakyStore) UpdateDocument(ctx context.Context, userID, id string, patch store.DocumentPatch) (store.Document, error) {
	f.mu.Lock()
	fail := f.failUpdate
	f.mu.Unlock()
	if fail {
		return store.Document{}, errors.New("database unavailable")
	}
	return f.Store.UpdateDocument(ctx, userID, id, patch)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	f.mu.Lock()
	err := f.pingErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Ping(ctx)
}

func (f *flakyStore) setFailUpdate(fail bool) {
	f.mu.Lock()
	f.failUpdate = fail
	f.mu.Unlock()
}

func (f *flakyStore) setPingErr(err error) {
	f.mu.Lock()
	f.pingErr = err
	f.mu.Unlock()
}

type testHarness struct {
	t        *testing.T
	store    *flakyStore
	accounts *authpw.Service
	service  *Service
	handler  http.Handler
}

type testSession struct {
	Token  string
	CSRF   string
	UserID string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	gormStore, err := store.OpenSQLite(filepath.Join(t.TempDir(), "inkwell.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = gormStore.Close() })
	st := &flakyStore{Store: gormStore}

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"test-model","choices":[{"message":{"role":"assistant","content":"Polished text"}}],"usage":{"total_tokens":12}}`))
	}))
	t.Cleanup(provider.Close)

	logger, _ := test.NewNullLogger()
	accounts := authpw.NewService(st).WithCost(bcrypt.MinCost)
	engine := security.NewEngine(
		session.NewMemoryStore(),
		security.NewMemoryLimiter(15*time.Minute, 1000),
		accounts,
		security.Config{},
		security.WithEventSink(st),
		security.WithLogger(logger),
	)
	t.Cleanup(engine.Close)

	searchService := search.NewService(nil, search.NewStoreSearcher(st))
	workspaces := workspace.NewManager(workspace.Deps{
		Store:            st,
		Indexer:          searchService,
		AutosaveInterval: 20 * time.Millisecond,
		Logger:           logger,
	})
	t.Cleanup(func() { workspaces.CloseAll(context.Background()) })

	svc := New(Deps{
		Config: config.Config{
			CORSOrigin:  "http://localhost:5173",
			ShareSecret: "share-secret",
			ShareTTL:    time.Hour,
		},
		Store:      st,
		Security:   engine,
		Accounts:   accounts,
		Workspaces: workspaces,
		Search:     searchService,
		Export:     export.NewService(st),
		AI:         ai.NewService(ai.Config{BaseURL: provider.URL, APIKey: "test-key", Model: "test-model", Timeout: 5 * time.Second}, st),
		Email:      email.NewService(email.Config{}),
		Logger:     logger,
	})
	server := NewHTTPServer(svc, "http://localhost:5173")
	server.log = logger

	return &testHarness{
		t:        t,
		store:    st,
		accounts: accounts,
		service:  svc,
		handler:  server.Handler(),
	}
}

func (h *testHarness) do(method, path string, body any, sess *testSession) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if sess != nil {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
		if sess.CSRF != "" {
			req.Header.Set(CSRFHeader, sess.CSRF)
		}
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

// signUp registers an editor through the API and logs in.
func (h *testHarness) signUp(emailAddr string) testSession {
	h.t.Helper()
	rr := h.do(http.MethodPost, "/api/auth/signup", map[string]any{
		"email":       emailAddr,
		"password":    testPassword,
		"displayName": "Avery",
	}, nil)
	expectStatus(h.t, rr, http.StatusCreated)
	return h.login(emailAddr)
}

func (h *testHarness) login(emailAddr string) testSession {
	h.t.Helper()
	rr := h.do(http.MethodPost, "/api/auth/login", map[string]any{
		"email":    emailAddr,
		"password": testPassword,
	}, nil)
	expectStatus(h.t, rr, http.StatusOK)
	var result security.AuthResult
	decodeInto(h.t, rr, &result)
	if result.SessionID == "" || result.CSRFToken == "" {
		h.t.Fatalf("expected session and csrf token, got %+v", result)
	}
	return testSession{Token: result.SessionID, CSRF: result.CSRFToken, UserID: result.UserID}
}

func (h *testHarness) createDocument(sess *testSession) workspace.View {
	h.t.Helper()
	rr := h.do(http.MethodPost, "/api/documents", nil, sess)
	expectStatus(h.t, rr, http.StatusCreated)
	var view workspace.View
	decodeInto(h.t, rr, &view)
	return view
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Code string `json:"code"`
	}
	decodeInto(t, rr, &payload)
	return payload.Code
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHumanDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{in: 30 * time.Minute, want: "30 minutes"},
		{in: 5 * time.Hour, want: "5 hours"},
		{in: 7 * 24 * time.Hour, want: "7 days"},
	}
	for _, tc := range cases {
		if got := humanDuration(tc.in); got != tc.want {
			t.Errorf("humanDuration(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMapErrorRestorePending(t *testing.T) {
	err := &versions.RestorePendingError{
		Backup: store.Version{VersionNumber: 4},
		Target: store.Version{VersionNumber: 2},
		Err:    errors.New("write failed"),
	}
	status, code, _, details := mapError(err)
	if status != http.StatusBadGateway || code != "RESTORE_PENDING" {
		t.Fatalf("unexpected mapping %d %s", status, code)
	}
	payload, _ := details.(map[string]any)
	if payload["backupVersion"] != 4 || payload["targetVersion"] != 2 {
		t.Fatalf("unexpected details %#v", details)
	}
}

func TestMapErrorFallsBackToServerError(t *testing.T) {
	status, code, _, _ := mapError(errors.New("boom"))
	if status != http.StatusInternalServerError || code != "SERVER_ERROR" {
		t.Fatalf("unexpected mapping %d %s", status, code)
	}
}

func TestSharedDocumentRejectsExpiredAndTamperedTokens(t *testing.T) {
	h := newTestHarness(t)
	sess := h.signUp("owner@example.com")
	view := h.createDocument(&sess)

	issuedAt := time.Now().Add(-2 * time.Hour)
	token, _, err := sharetoken.Issue([]byte("share-secret"), view.Document.ID, sess.UserID, time.Hour, issuedAt)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	_, err = h.service.SharedDocument(context.Background(), token)
	if !errors.Is(err, sharetoken.ErrExpiredToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
	if status, _, _, _ := mapError(err); status != http.StatusGone {
		t.Fatalf("expected 410 for expired link, got %d", status)
	}

	fresh, _, err := sharetoken.Issue([]byte("other-secret"), view.Document.ID, sess.UserID, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	_, err = h.service.SharedDocument(context.Background(), fresh)
	if !errors.Is(err, sharetoken.ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestSharedDocumentRequiresOriginalOwner(t *testing.T) {
	h := newTestHarness(t)
	sess := h.signUp("owner@example.com")
	view := h.createDocument(&sess)

	token, _, err := sharetoken.Issue([]byte("share-secret"), view.Document.ID, "someone-else", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := h.service.SharedDocument(context.Background(), token); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for foreign owner, got %v", err)
	}
}

func TestSignUpSanitizesDisplayName(t *testing.T) {
	h := newTestHarness(t)
	user, err := h.service.SignUp(context.Background(), "writer@example.com", testPassword, "<script>alert(1)</script>Avery")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if strings.Contains(user.DisplayName, "script") || user.DisplayName != "Avery" {
		t.Fatalf("expected sanitized display name, got %q", user.DisplayName)
	}
}
