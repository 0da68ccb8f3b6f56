package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mailkite/mailkite/internal/config"
	"github.com/mailkite/mailkite/internal/db"
	"github.com/mailkite/mailkite/internal/dispatch"
	"github.com/mailkite/mailkite/internal/mailer"
	"github.com/mailkite/mailkite/internal/metrics"
	"github.com/mailkite/mailkite/internal/models"
	"github.com/mailkite/mailkite/internal/repository"
	"github.com/mailkite/mailkite/internal/secrets"
	"github.com/mailkite/mailkite/internal/uploads"
)

type stubSession struct {
	mu     sync.Mutex
	sends  []string
	failTo string
}

func (s *stubSession) Send(ctx context.Context, msg *mailer.Message) error {
	s.mu.Lock()
	s.sends = append(s.sends, msg.To)
	s.mu.Unlock()
	if s.failTo != "" && msg.To == s.failTo {
		return fmt.Errorf("550 mailbox unavailable")
	}
	return nil
}

func (s *stubSession) Close() error { return nil }

type stubDialer struct {
	session *stubSession
}

func (d *stubDialer) Dial(ctx context.Context, senderEmail, password string) (mailer.Session, error) {
	return d.session, nil
}

type testServer struct {
	handler http.Handler
	session *stubSession
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	database, err := db.New(filepath.Join(dir, "app.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("migrations failed: %v", err)
	}

	store, err := uploads.NewStore(filepath.Join(dir, "uploads.db"))
	if err != nil {
		t.Fatalf("failed to open upload store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	key, _ := hex.DecodeString(strings.Repeat("ab", 32))
	box, err := secrets.NewBox(key)
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}

	cfg := &config.Config{}
	cfg.Auth.SessionTTL = time.Hour
	cfg.Uploads.MaxAge = 24 * time.Hour

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repository.NewUserRepository(database.DB)
	templates := repository.NewTemplateRepository(database.DB)
	campaigns := repository.NewCampaignRepository(database.DB)
	configs := repository.NewEmailConfigRepository(database.DB)

	session := &stubSession{}
	dispatcher := dispatch.New(campaigns, configs, box, &stubDialer{session: session}, nil, logger, 2)

	srv := NewServer(cfg, logger, users, templates, campaigns, configs, store, box,
		mailer.NewDialer(cfg.SMTP, logger), dispatcher, metrics.New())

	return &testServer{handler: srv.Router(), session: session}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		Name: "Owner", Email: "owner@example.com", Password: "long-enough-password",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email: "owner@example.com", Password: "long-enough-password",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	t.Fatal("login response has no session cookie")
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[HealthResponse](t, rec); got.Status != "ok" {
		t.Errorf("status = %q", got.Status)
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	// Duplicate registration
	rec := ts.do(t, http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		Name: "Other", Email: "owner@example.com", Password: "another-password",
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register = %d", rec.Code)
	}

	// Wrong password
	rec = ts.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email: "owner@example.com", Password: "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login = %d", rec.Code)
	}

	// Protected route without a session
	rec = ts.do(t, http.MethodGet, "/api/v1/templates", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated access = %d", rec.Code)
	}

	// With a session
	rec = ts.do(t, http.MethodGet, "/api/v1/templates", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated access = %d", rec.Code)
	}

	// Logout invalidates the session
	rec = ts.do(t, http.MethodPost, "/api/v1/auth/logout", nil, cookie)
	if rec.Code != http.StatusNoContent {
		t.Errorf("logout = %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/api/v1/templates", nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("access after logout = %d", rec.Code)
	}
}

func TestTemplateHandlers(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/templates", TemplateRequest{
		Name:     "welcome",
		Category: "onboarding",
		Subject:  "Hi {{name}}",
		Body:     "Welcome to {{company}}, {{name}}!",
	}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[TemplateResponse](t, rec)
	if len(created.Variables) != 2 || created.Variables[0] != "name" || created.Variables[1] != "company" {
		t.Errorf("variables = %v", created.Variables)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/"+created.ID, nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/category/onboarding", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Errorf("category list = %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/api/v1/templates/category/empty", nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty category = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPut, "/api/v1/templates/"+created.ID, TemplateRequest{
		Subject: "Hello {{name}}",
	}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d", rec.Code)
	}
	updated := decode[TemplateResponse](t, rec)
	if updated.Subject != "Hello {{name}}" {
		t.Errorf("subject = %q", updated.Subject)
	}
	if updated.Name != "welcome" {
		t.Errorf("unset fields must be kept: name = %q", updated.Name)
	}

	rec = ts.do(t, http.MethodDelete, "/api/v1/templates/"+created.ID, nil, cookie)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/api/v1/templates/"+created.ID, nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestCampaignFlow(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	// Campaign for an unconfigured sender is rejected
	rec := ts.do(t, http.MethodPost, "/api/v1/campaigns", CampaignRequest{
		SenderEmail: "owner@example.com",
		Subject:     "Hi {{name}}",
		Body:        "<p>Hello {{name}}</p>",
		Recipients:  []models.Recipient{{Name: "Ann", Email: "ann@example.com"}},
	}, cookie)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("campaign without sender config = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/config/email", EmailConfigRequest{
		SenderEmail: "owner@example.com",
		AppPassword: "app-password",
	}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("add config = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns", CampaignRequest{
		SenderEmail: "owner@example.com",
		Subject:     "Hi {{name}}",
		Body:        "<p>Hello {{name}}</p>",
		Recipients: []models.Recipient{
			{Name: "Ann", Email: "ann@example.com"},
			{Name: "Bad", Email: "bad@example.com"},
		},
	}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create campaign = %d: %s", rec.Code, rec.Body.String())
	}
	campaign := decode[models.Campaign](t, rec)
	if campaign.Status != models.CampaignStatusCreated || campaign.Stats.Total != 2 {
		t.Errorf("campaign = %+v", campaign)
	}

	ts.session.failTo = "bad@example.com"
	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns/"+campaign.ID+"/send", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("send = %d: %s", rec.Code, rec.Body.String())
	}
	sent := decode[SendResponse](t, rec)
	if sent.Message != "Emailing process completed. 1 sent, 1 failed" {
		t.Errorf("message = %q", sent.Message)
	}
	if sent.Summary.Total != 2 || sent.Summary.Sent != 1 || sent.Summary.Failed != 1 {
		t.Errorf("summary = %+v", sent.Summary)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/campaigns/"+campaign.ID, nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("get campaign = %d", rec.Code)
	}
	got := decode[models.Campaign](t, rec)
	if got.Status != models.CampaignStatusFailed {
		t.Errorf("status = %q", got.Status)
	}
	for _, r := range got.Recipients {
		want := models.RecipientStatusSent
		if r.Email == "bad@example.com" {
			want = models.RecipientStatusFailed
		}
		if r.Status != want {
			t.Errorf("recipient %s status = %q, want %q", r.Email, r.Status, want)
		}
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/campaigns", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	list := decode[CampaignListResponse](t, rec)
	if list.Total != 1 {
		t.Errorf("total = %d", list.Total)
	}
}

func TestCampaignSendNotFound(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/campaigns/no-such-id/send", nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("send missing campaign = %d", rec.Code)
	}
}

func TestUploadFlow(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	csv := "name,email,company\nAnn,ann@example.com,Acme\nBob,bob@example.com,Initech\n"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "recipients.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(csv)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload = %d: %s", rec.Code, rec.Body.String())
	}
	up := decode[UploadResponse](t, rec)
	if up.TotalRows != 2 || len(up.Fields) != 3 {
		t.Errorf("upload = %+v", up)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/validate", ValidateRequest{
		Subject:  "Hi {{name}}",
		Body:     "From {{company}} to {{missing}}",
		UploadID: up.ID,
	}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate = %d", rec.Code)
	}
	v := decode[uploads.Validation](t, rec)
	if v.IsValid {
		t.Error("expected invalid: {{missing}} has no column")
	}
	if len(v.MissingVariables) != 1 || v.MissingVariables[0] != "missing" {
		t.Errorf("missing = %v", v.MissingVariables)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/config/email", EmailConfigRequest{
		SenderEmail: "owner@example.com",
		AppPassword: "app-password",
	}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("add config = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns", CampaignRequest{
		SenderEmail: "owner@example.com",
		Subject:     "Hi {{name}}",
		Body:        "<p>From {{company}}</p>",
		UploadID:    up.ID,
	}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("campaign from upload = %d: %s", rec.Code, rec.Body.String())
	}
	campaign := decode[models.Campaign](t, rec)
	if campaign.Stats.Total != 2 {
		t.Errorf("campaign total = %d", campaign.Stats.Total)
	}

	// The upload is consumed on campaign creation
	rec = ts.do(t, http.MethodGet, "/api/v1/uploads/"+up.ID+"/preview", nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("preview after consume = %d", rec.Code)
	}
}
