package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/stomanager/internal/handlers/testutil"
	"github.com/charlesng35/stomanager/internal/models"
)

func TestDefaultAdminSetup(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/setup/default-admin", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "Default admin user not found", resp.Message)

	w = env.Request(http.MethodPost, "/api/setup/default-admin", nil, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp = testutil.DecodeResponse(t, w)
	require.Equal(t, "Default admin user created successfully", resp.Message)
	var payload map[string]any
	testutil.DecodeInto(t, resp.Data, &payload)
	require.Equal(t, "admin@sto.example.com", payload["email"])
	require.Equal(t, string(models.RoleSuperUser), payload["role"])
	require.Equal(t, true, payload["created"])

	w = env.Request(http.MethodPost, "/api/setup/default-admin", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Default admin user already exists", testutil.DecodeResponse(t, w).Message)

	w = env.Request(http.MethodGet, "/api/setup/default-admin", nil, "")
	require.Equal(t, "Default admin user found", testutil.DecodeResponse(t, w).Message)

	env.Login("admin@sto.example.com", "bootstrap-password")
}

func TestDefaultAdminSetupRejectsNonElevatedCaller(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateAccount("clerk@example.com", "clerk-password", models.RoleAdminUser)
	token := env.Login("clerk@example.com", "clerk-password").Tokens.AccessToken

	w := env.Request(http.MethodPost, "/api/setup/default-admin", nil, token)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var count int64
	require.NoError(t, env.DB.Model(&models.Account{}).Where("email = ?", "admin@sto.example.com").Count(&count).Error)
	require.Zero(t, count)
}

func TestHealthEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Status   string `json:"status"`
		Database string `json:"database"`
		Checks   []struct {
			Component string `json:"component"`
			Status    string `json:"status"`
		} `json:"checks"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &data)
	require.Equal(t, "ok", data.Status)
	require.Equal(t, "up", data.Database)
	require.Len(t, data.Checks, 1)
	require.Equal(t, "database", data.Checks[0].Component)

	sqlDB, err := env.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w = env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &data)
	require.Equal(t, "down", data.Status)
	require.Equal(t, "down", data.Database)
}
