package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/config"
	"github.com/mydasteran/portal/internal/datasvc"
	"github.com/mydasteran/portal/internal/db"
	"github.com/mydasteran/portal/internal/member"
	"github.com/mydasteran/portal/internal/metrics"
	"github.com/mydasteran/portal/internal/migrations"
	"github.com/mydasteran/portal/internal/otp"
	"github.com/mydasteran/portal/internal/pricing"
	"github.com/mydasteran/portal/internal/production"
	"github.com/mydasteran/portal/internal/seed"
)

const (
	testPhone = "6281234567890"
	testCode  = "123456"
)

var testNow = time.Date(2024, time.May, 15, 3, 0, 0, 0, time.UTC)

type testEnv struct {
	srv     *server
	handler http.Handler
	data    datasvc.Service
}

// newTestServer wires the real router over a migrated and seeded sqlite file.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "server-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, migrations.Up(database, "../../migrations"))
	_, err = seed.Run(database, seed.Config{Name: "Siti", Phone: testPhone, Now: testNow})
	require.NoError(t, err)

	clock := func() time.Time { return testNow }
	data := datasvc.NewSQLStore(database)
	members := member.NewService(data, production.NewStoreClient(data), member.WithClock(clock))
	codes := otp.NewLocalService(data, otp.LogSender{Log: zap.NewNop()}, 5*time.Minute,
		otp.WithClock(clock),
		otp.WithCodeSource(func() (string, error) { return testCode, nil }),
	)
	sessions := newSessionManager("test-secret", time.Hour, false)
	sessions.now = clock

	cfg := config.Config{CalculatorStrategy: pricing.StrategyCategory, WhatsAppNumber: "6282234707911"}
	srv, err := newServer(cfg, zap.NewNop(), members, codes, sessions, pricing.DefaultRateBook(), metrics.New())
	require.NoError(t, err)

	return &testEnv{srv: srv, handler: srv.routes(), data: data}
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func (e *testEnv) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookies...)
}

// login runs the passcode flow for the seeded member and returns the session cookie.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()

	rec := e.postForm("/member/login/otp", url.Values{"phone": {"0812-3456-7890"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	handle := otp.Handle(testPhone)
	require.Contains(t, rec.Body.String(), handle)

	rec = e.postForm("/member/login/verify", url.Values{"handle": {handle}, "code": {testCode}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.Equal(t, "/member/dashboard", rec.Header().Get("Location"))

	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatalf("expected %s cookie after verify", sessionCookieName)
	return nil
}

func TestParseTemplatesCoversEveryPage(t *testing.T) {
	env := newTestServer(t)

	for _, page := range []string{
		"home.html", "kalkulator.html", "login.html", "dashboard.html", "history.html",
		"order_detail.html", "preorders.html", "preorder_detail.html", "profile.html",
	} {
		if _, ok := env.srv.pages[page]; !ok {
			t.Fatalf("template %s was not parsed", page)
		}
	}
	if _, ok := env.srv.pages["layout.html"]; ok {
		t.Fatalf("layout must not be registered as a page")
	}
}

func TestHomeListsCategoriesAndContactLink(t *testing.T) {
	env := newTestServer(t)

	rec := env.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, want := range []string{"Daster Pendek", "Dress Panjang", "Gamis", "https://wa.me/6282234707911?text="} {
		require.Contains(t, body, want)
	}
}

func TestBusinessInquiryRedirectsToWhatsApp(t *testing.T) {
	env := newTestServer(t)

	rec := env.postForm("/b2b", url.Values{"name": {"Butik Sari"}, "message": {"Mau produksi 300 gamis"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "https://wa.me/6282234707911?text="), loc)
	require.Contains(t, loc, "Butik%20Sari")

	rec = env.postForm("/b2b", url.Values{"name": {"  "}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Nama dan pesan wajib diisi.")
}

func TestHealthzAndStatic(t *testing.T) {
	env := newTestServer(t)

	rec := env.get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = env.get("/static/site.css")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "--brand")
}

func TestMetricsEndpointCountsRoutes(t *testing.T) {
	env := newTestServer(t)

	env.get("/api/estimate?quantity=50&category=gamis")
	rec := env.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `portal_cost_estimates_total{strategy="category"} 1`)
	require.Contains(t, body, `route="/api/estimate"`)
}
