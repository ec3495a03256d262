package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/stomanager/internal/handlers/testutil"
)

func TestEmailTestEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)
	token, _ := superUserToken(t, env)

	w := env.Request(http.MethodPost, "/api/email/test", map[string]string{"to": "ops@example.com"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "Email sent successfully", resp.Message)
	var data map[string]string
	testutil.DecodeInto(t, resp.Data, &data)
	require.Equal(t, "test", data["type"])
	require.Equal(t, "<test@sto.example.com>", data["messageId"])
	require.Equal(t, []string{"ops@example.com"}, env.Notifier.Tests)

	w = env.Request(http.MethodPost, "/api/email/test", map[string]string{"type": "approval"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, env.Notifier.Approvals, 1)
	require.Equal(t, "https://sto.example.com/api/auth/approve?token=test-token", env.Notifier.Approvals[0].Link)

	w = env.Request(http.MethodPost, "/api/email/test", map[string]string{"type": "otp", "otpCode": "424242"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "424242", env.Notifier.LastOTP(t, "test@example.com"))

	w = env.Request(http.MethodPost, "/api/email/test", map[string]string{}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "VALIDATION_ERROR", testutil.DecodeResponse(t, w).Code)

	w = env.Request(http.MethodPost, "/api/email/test", map[string]string{"type": "newsletter"}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_TYPE", testutil.DecodeResponse(t, w).Code)

	env.Notifier.SetFail(true)
	w = env.Request(http.MethodPost, "/api/email/test", map[string]string{"to": "ops@example.com"}, token)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	resp = testutil.DecodeResponse(t, w)
	require.Equal(t, "EMAIL_SEND_FAILED", resp.Code)
	require.Equal(t, "Failed to send email: smtp unavailable", resp.Error)
}

func TestEmailHealthEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)
	token, _ := superUserToken(t, env)

	w := env.Request(http.MethodGet, "/api/email/health", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &data)
	require.Equal(t, "healthy", data["status"])
	require.NotEmpty(t, data["timestamp"])

	env.Notifier.SetFail(true)
	w = env.Request(http.MethodGet, "/api/email/health", nil, token)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "EMAIL_SERVICE_UNHEALTHY", resp.Code)
	require.Equal(t, "Email service is unhealthy: connection refused", resp.Error)
}
