package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tradesim/internal/admin"
	"tradesim/internal/auth"
	"tradesim/internal/events"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuth struct {
	users   map[string]string
	blocked map[string]bool
}

func (f fakeAuth) ParseToken(token string) (string, error) {
	id, ok := f.users[token]
	if !ok {
		return "", auth.ErrInvalidToken
	}
	return id, nil
}

func (f fakeAuth) Active(_ context.Context, userID string) error {
	if f.blocked[userID] {
		return auth.ErrBlocked
	}
	return nil
}

func newFakeAuth() fakeAuth {
	return fakeAuth{
		users:   map[string]string{"tok-a": "user-a", "tok-b": "user-b", "tok-blocked": "user-x"},
		blocked: map[string]bool{"user-x": true},
	}
}

func echoUser(w http.ResponseWriter, r *http.Request, userID string) {
	_, _ = w.Write([]byte(userID))
}

func TestWithAuth(t *testing.T) {
	h := WithAuth(newFakeAuth())(withUser(echoUser))

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		body   string
	}{
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: "tok-a"}) }, http.StatusOK, "user-a"},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok-b") }, http.StatusOK, "user-b"},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, ""},
		{"blocked", func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok-blocked") }, http.StatusForbidden, ""},
		{"query not accepted", func(r *http.Request) { r.URL.RawQuery = "token=tok-a" }, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 2, rl.Prune(3*time.Minute))
	assert.Equal(t, 0, rl.Len())
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))
	req := httptest.NewRequest(http.MethodGet, "/v1/market/quotes", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req.RemoteAddr = "10.0.0.1:6666"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestCORS(t *testing.T) {
	h := CORS("https://app.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/orders", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestFilters(t *testing.T) {
	f := userFilter("user-a")
	assert.True(t, f(events.Event{Type: events.TypeQuote}))
	assert.True(t, f(events.Event{Type: events.TypeOrder, UserID: "user-a"}))
	assert.False(t, f(events.Event{Type: events.TypeOrder, UserID: "user-b"}))
	assert.False(t, f(events.Event{Type: events.TypeLoan}))

	funder := adminFilter(admin.Principal{Role: admin.RoleAdmin, Rights: map[string]bool{admin.RightFunding: true}})
	assert.True(t, funder(events.Event{Type: events.TypeDeposit, UserID: "user-a"}))
	assert.True(t, funder(events.Event{Type: events.TypeWithdrawal}))
	assert.False(t, funder(events.Event{Type: events.TypeOrder}))
	assert.False(t, funder(events.Event{Type: events.TypeQuote}))

	owner := adminFilter(admin.Principal{Role: admin.RoleOwner})
	assert.True(t, owner(events.Event{Type: events.TypeLoan}))
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var evt events.Event
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func TestUserStream(t *testing.T) {
	bus := events.NewBus()
	srv := httptest.NewServer(NewWSHandler(bus, newFakeAuth(), zap.NewNop(), "*"))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=tok-a", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	bus.Publish(events.Event{Type: events.TypeOrder, UserID: "user-b", Data: "theirs"})
	bus.Publish(events.Event{Type: events.TypeOrder, UserID: "user-a", Data: "mine"})
	bus.Publish(events.Event{Type: events.TypeQuote, Data: "EURUSD"})

	first := readEvent(t, conn)
	assert.Equal(t, "mine", first.Data)
	second := readEvent(t, conn)
	assert.Equal(t, events.TypeQuote, second.Type)
}

func TestAdminStreamRequiresToken(t *testing.T) {
	tokens := admin.NewTokens("tradesim", []byte("secret"), time.Hour)
	h := NewAdminWSHandler(events.NewBus(), tokens, nil, zap.NewNop(), "*")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSPAHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	h := spaHandler(dir)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Contains(t, rec.Body.String(), "console.log")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/123", nil))
	assert.Contains(t, rec.Body.String(), "app")
}

func TestAuthErrorsMapToStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	h := WithAuth(fakeAuth{users: map[string]string{"t": "u"}, blocked: map[string]bool{}})(withUser(echoUser))
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer t")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	rec = httptest.NewRecorder()
	WithAuth(errAuth{})(withUser(echoUser)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body["error"])
}

type errAuth struct{}

func (errAuth) ParseToken(string) (string, error)    { return "u", nil }
func (errAuth) Active(context.Context, string) error { return errors.New("db down") }
