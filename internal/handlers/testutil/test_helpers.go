package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/api"
	"github.com/charlesng35/stomanager/internal/app"
	iauth "github.com/charlesng35/stomanager/internal/auth"
	sharedtestutil "github.com/charlesng35/stomanager/internal/database/testutil"
	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/internal/services"
	"github.com/charlesng35/stomanager/pkg/crypto"
	"github.com/charlesng35/stomanager/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Config   *app.Config
	Notifier *Notifier
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithDefaultApprover routes every signup without an explicit approver to email.
func WithDefaultApprover(email string) EnvOption {
	return func(cfg *app.Config) {
		cfg.Auth.Signup.DefaultApproverEmail = email
	}
}

// WithRateLimit enables the unauthenticated endpoint limiter.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.RateLimit.Requests = requests
		cfg.RateLimit.Window = window
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	cfg := &app.Config{
		App: app.AppSettings{Name: "STO Manager", BaseURL: "https://sto.example.com"},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: jwtSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
		},
		Upload: app.UploadConfig{MaxSizeBytes: 10 << 20, BatchSize: 100},
		Setup: app.SetupConfig{DefaultAdmin: app.DefaultAdminConfig{
			Email:    "admin@sto.example.com",
			Name:     "Default Administrator",
			Password: "bootstrap-password",
		}},
		Monitoring: app.MonitoringConfig{Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"}},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)

	notifier := &Notifier{}
	router, err := api.NewRouter(db, jwtSvc, cfg, sessionSvc, api.WithNotifier(notifier))
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Config:   cfg,
		Notifier: notifier,
	}
}

// CreateAccount inserts an active account with the given role and returns the record.
func (e *Env) CreateAccount(email, password string, role models.Role) *models.Account {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	account := &models.Account{
		Email:        email,
		Name:         "Test " + string(role),
		PasswordHash: hashed,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(e.T, e.DB.Create(account).Error)
	return account
}

// TokenPair mirrors the handler login response payload.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// AccountPayload captures the account fields returned from auth endpoints.
type AccountPayload struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Tokens TokenPair      `json:"tokens"`
	User   AccountPayload `json:"user"`
}

// Login authenticates with email and password and returns the issued token pair.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	require.Greater(e.T, result.Tokens.ExpiresIn, 0)
	require.Equal(e.T, email, result.User.Email)

	return result
}

// APIResponse represents both API envelopes: success carries data/message/meta and
// failure carries error/code/details.
type APIResponse struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Meta    *response.Meta  `json:"meta"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

// DecodeResponse parses the API envelope from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.do(req, token)
}

// Upload posts content as the multipart field "file". An empty fileName sends a form
// without the file field.
func (e *Env) Upload(path, fileName, contentType string, content []byte, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + fileName + `"`}
		if contentType != "" {
			header["Content-Type"] = []string{contentType}
		}
		part, err := mw.CreatePart(header)
		require.NoError(e.T, err)
		_, err = part.Write(content)
		require.NoError(e.T, err)
	} else {
		require.NoError(e.T, mw.WriteField("note", "no file"))
	}
	require.NoError(e.T, mw.Close())

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	require.NoError(e.T, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(req, token)
}

func (e *Env) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// SentOTP is a verification code captured by Notifier.
type SentOTP struct {
	Email string
	Code  string
}

// SentApproval is an approval request captured by Notifier.
type SentApproval struct {
	Approver string
	Email    string
	Link     string
}

// Notifier records outbound notifications in place of SMTP.
type Notifier struct {
	mu        sync.Mutex
	OTPs      []SentOTP
	Approvals []SentApproval
	Welcomes  []string
	Tests     []string
	Fail      bool
}

var _ services.Notifier = (*Notifier)(nil)

func (n *Notifier) result() services.Result {
	if n.Fail {
		return services.Result{Success: false, Error: "smtp unavailable"}
	}
	return services.Result{Success: true, MessageID: "<test@sto.example.com>"}
}

func (n *Notifier) SendOTP(_ context.Context, email, _ string, code string, _ models.OTPPurpose) services.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.OTPs = append(n.OTPs, SentOTP{Email: email, Code: code})
	return n.result()
}

func (n *Notifier) SendApprovalRequest(_ context.Context, approverEmail, accountEmail, _ string, link string) services.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Approvals = append(n.Approvals, SentApproval{Approver: approverEmail, Email: accountEmail, Link: link})
	return n.result()
}

func (n *Notifier) SendWelcome(_ context.Context, email, _ string) services.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Welcomes = append(n.Welcomes, email)
	return n.result()
}

func (n *Notifier) SendTest(_ context.Context, to string) services.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Tests = append(n.Tests, to)
	return n.result()
}

func (n *Notifier) CheckHealth(context.Context) services.Health {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return services.Health{Healthy: false, Config: map[string]any{"enabled": true}, Error: "connection refused"}
	}
	return services.Health{Healthy: true, Config: map[string]any{"enabled": true}}
}

// LastOTP returns the most recent code sent to email.
func (n *Notifier) LastOTP(t *testing.T, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.OTPs) - 1; i >= 0; i-- {
		if n.OTPs[i].Email == email {
			return n.OTPs[i].Code
		}
	}
	t.Fatalf("no OTP sent to %s", email)
	return ""
}

// SetFail toggles delivery failures.
func (n *Notifier) SetFail(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Fail = fail
}
