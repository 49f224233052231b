package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"yamdb/internal/model"
	"yamdb/internal/pkg/confirmcode"
	"yamdb/internal/pkg/metrics"
	"yamdb/internal/pkg/throttle"
	"yamdb/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

type mockUserStore struct {
	findOrCreateFunc   func(ctx context.Context, username, email string) (*model.User, bool, error)
	findByUsernameFunc func(ctx context.Context, username string) (*model.User, error)
	touchCalls         int
}

func (m *mockUserStore) FindOrCreate(ctx context.Context, username, email string) (*model.User, bool, error) {
	return m.findOrCreateFunc(ctx, username, email)
}

func (m *mockUserStore) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return m.findByUsernameFunc(ctx, username)
}

func (m *mockUserStore) TouchLastLogin(ctx context.Context, user *model.User, at time.Time) error {
	m.touchCalls++
	user.LastLogin = &at
	return nil
}

type mockNotifier struct {
	sendFunc  func(ctx context.Context, toEmail, code string) error
	sentTo    string
	sentCode  string
	sendCalls int
}

func (m *mockNotifier) SendConfirmationCode(ctx context.Context, toEmail, code string) error {
	m.sendCalls++
	m.sentTo = toEmail
	m.sentCode = code
	if m.sendFunc != nil {
		return m.sendFunc(ctx, toEmail, code)
	}
	return nil
}

func newTestHandler(store UserStore, mailer *mockNotifier) *Handler {
	metrics.InitMetrics()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codes := confirmcode.New("test-code-secret", 15*time.Minute)
	tokens := token.NewIssuer("test-jwt-secret", time.Hour)
	// nil redis 客户端时节流放行
	th := throttle.New(nil, time.Minute)
	return NewHandler(store, codes, tokens, mailer, th, logger)
}

func newSignUpRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/signup", h.SignUp)
	return r
}

func newTokenRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/token", h.Token)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSignUp_Normal(t *testing.T) {
	store := &mockUserStore{
		findOrCreateFunc: func(ctx context.Context, username, email string) (*model.User, bool, error) {
			return &model.User{ID: 1, Username: username, Email: email, Role: model.RoleUser}, true, nil
		},
	}
	mailer := &mockNotifier{}
	h := newTestHandler(store, mailer)
	r := newSignUpRouter(h)

	w := postJSON(t, r, "/signup", map[string]string{
		"username": "reader",
		"email":    "reader@example.com",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if mailer.sendCalls != 1 {
		t.Fatalf("expected confirmation code to be sent once, got %d", mailer.sendCalls)
	}
	if mailer.sentTo != "reader@example.com" {
		t.Fatalf("unexpected recipient %q", mailer.sentTo)
	}
	if mailer.sentCode == "" {
		t.Fatalf("expected non-empty confirmation code")
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["username"] != "reader" || resp["email"] != "reader@example.com" {
		t.Fatalf("unexpected response body: %v", resp)
	}
}

func TestSignUp_ReservedUsername(t *testing.T) {
	store := &mockUserStore{
		findOrCreateFunc: func(ctx context.Context, username, email string) (*model.User, bool, error) {
			t.Fatalf("store must not be touched for invalid username")
			return nil, false, nil
		},
	}
	mailer := &mockNotifier{}
	h := newTestHandler(store, mailer)
	r := newSignUpRouter(h)

	for _, username := range []string{"me", "ME", "Me"} {
		w := postJSON(t, r, "/signup", map[string]string{
			"username": username,
			"email":    "me@example.com",
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("username %q: expected 400, got %d", username, w.Code)
		}
	}
	if mailer.sendCalls != 0 {
		t.Fatalf("no code should be sent, got %d sends", mailer.sendCalls)
	}
}

func TestSignUp_InvalidUsernameChars(t *testing.T) {
	store := &mockUserStore{
		findOrCreateFunc: func(ctx context.Context, username, email string) (*model.User, bool, error) {
			t.Fatalf("store must not be touched for invalid username")
			return nil, false, nil
		},
	}
	h := newTestHandler(store, &mockNotifier{})
	r := newSignUpRouter(h)

	w := postJSON(t, r, "/signup", map[string]string{
		"username": "bad name!",
		"email":    "bad@example.com",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSignUp_Conflict(t *testing.T) {
	store := &mockUserStore{
		findOrCreateFunc: func(ctx context.Context, username, email string) (*model.User, bool, error) {
			return nil, false, ErrConflict
		},
	}
	mailer := &mockNotifier{}
	h := newTestHandler(store, mailer)
	r := newSignUpRouter(h)

	w := postJSON(t, r, "/signup", map[string]string{
		"username": "taken",
		"email":    "other@example.com",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if mailer.sendCalls != 0 {
		t.Fatalf("no code should be sent on conflict")
	}
}

func TestSignUp_Idempotent(t *testing.T) {
	existing := &model.User{ID: 7, Username: "repeat", Email: "repeat@example.com", Role: model.RoleUser}
	store := &mockUserStore{
		findOrCreateFunc: func(ctx context.Context, username, email string) (*model.User, bool, error) {
			return existing, false, nil
		},
	}
	mailer := &mockNotifier{}
	h := newTestHandler(store, mailer)
	r := newSignUpRouter(h)

	w := postJSON(t, r, "/signup", map[string]string{
		"username": "repeat",
		"email":    "repeat@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("repeat signup expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if mailer.sendCalls != 1 {
		t.Fatalf("expected code resend for existing user")
	}
}

func TestSignUp_DeliveryFailed(t *testing.T) {
	store := &mockUserStore{
		findOrCreateFunc: func(ctx context.Context, username, email string) (*model.User, bool, error) {
			return &model.User{ID: 2, Username: username, Email: email, Role: model.RoleUser}, true, nil
		},
	}
	mailer := &mockNotifier{
		sendFunc: func(ctx context.Context, toEmail, code string) error {
			return context.DeadlineExceeded
		},
	}
	h := newTestHandler(store, mailer)
	r := newSignUpRouter(h)

	w := postJSON(t, r, "/signup", map[string]string{
		"username": "unlucky",
		"email":    "unlucky@example.com",
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when delivery fails, got %d", w.Code)
	}
}

func TestToken_UnknownUser(t *testing.T) {
	store := &mockUserStore{
		findByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
			return nil, ErrNotFound
		},
	}
	h := newTestHandler(store, &mockNotifier{})
	r := newTokenRouter(h)

	w := postJSON(t, r, "/token", map[string]string{
		"username":          "ghost",
		"confirmation_code": "whatever",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestToken_WrongCode(t *testing.T) {
	user := &model.User{ID: 3, Username: "reader", Email: "reader@example.com", Role: model.RoleUser}
	store := &mockUserStore{
		findByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
			return user, nil
		},
	}
	h := newTestHandler(store, &mockNotifier{})
	r := newTokenRouter(h)

	w := postJSON(t, r, "/token", map[string]string{
		"username":          "reader",
		"confirmation_code": "AAAABBBBCCCC",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["message"] != "Неверный код подтверждения" {
		t.Fatalf("unexpected message %q", resp["message"])
	}
	if store.touchCalls != 0 {
		t.Fatalf("last login must not change on rejected code")
	}
}

func TestToken_Exchange(t *testing.T) {
	user := &model.User{ID: 4, Username: "reader", Email: "reader@example.com", Role: model.RoleUser}
	store := &mockUserStore{
		findByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
			return user, nil
		},
	}
	h := newTestHandler(store, &mockNotifier{})
	r := newTokenRouter(h)

	code := h.codes.Issue(user, time.Now())
	w := postJSON(t, r, "/token", map[string]string{
		"username":          "reader",
		"confirmation_code": code,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected non-empty token")
	}
	userID, claims, err := h.tokens.Parse(resp.Token)
	if err != nil {
		t.Fatalf("issued token must parse: %v", err)
	}
	if userID != 4 || claims.Role != model.RoleUser {
		t.Fatalf("unexpected claims: id=%d role=%s", userID, claims.Role)
	}
	if store.touchCalls != 1 {
		t.Fatalf("expected last login to be touched once, got %d", store.touchCalls)
	}
}

func TestToken_CodeUsedTwice(t *testing.T) {
	user := &model.User{ID: 5, Username: "reader", Email: "reader@example.com", Role: model.RoleUser}
	store := &mockUserStore{
		findByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
			return user, nil
		},
	}
	h := newTestHandler(store, &mockNotifier{})
	r := newTokenRouter(h)

	code := h.codes.Issue(user, time.Now())
	first := postJSON(t, r, "/token", map[string]string{
		"username":          "reader",
		"confirmation_code": code,
	})
	if first.Code != http.StatusOK {
		t.Fatalf("first exchange expected 200, got %d", first.Code)
	}

	// TouchLastLogin 改变了派生输入，旧码随之失效
	second := postJSON(t, r, "/token", map[string]string{
		"username":          "reader",
		"confirmation_code": code,
	})
	if second.Code != http.StatusBadRequest {
		t.Fatalf("reused code expected 400, got %d", second.Code)
	}
}
