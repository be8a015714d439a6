package users

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/Sahil123-FNO/plubming-backend/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, svc *Service, as *auth.Identity) http.Handler {
	t.Helper()
	h := NewHandler(svc, validation.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	if as != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(auth.WithIdentity(req.Context(), *as)))
			})
		})
	}
	r.Route("/api/auth", h.AuthRoutes)
	r.Route("/api/users", h.Routes)
	r.Route("/api/admin", h.AdminRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerSignupVerifyLogin(t *testing.T) {
	svc, repo, _ := newTestService(t)
	router := newTestRouter(t, svc, nil)

	rec := do(t, router, http.MethodPost, "/api/auth/signup", `{"name":"Asha","email":"asha@example.com","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "verificationToken")
	assert.NotContains(t, rec.Body.String(), "password\"")

	rec = do(t, router, http.MethodPost, "/api/auth/signup", `{"name":"Asha","email":"asha@example.com","password":"`+testPassword+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/auth/login", `{"email":"asha@example.com","password":"`+testPassword+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unverified")

	stored, err := repo.GetByEmail(context.Background(), "asha@example.com")
	require.NoError(t, err)
	rec = do(t, router, http.MethodGet, "/api/auth/verify/"+stored.VerificationToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/auth/verify/"+stored.VerificationToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/auth/login", `{"email":"asha@example.com","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, stored.ID, res.User.ID)
}

func TestHandlerSignupValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(t, svc, nil)

	cases := map[string]string{
		"missing name":   `{"email":"a@example.com","password":"secret1"}`,
		"bad email":      `{"name":"A","email":"nope","password":"secret1"}`,
		"short password": `{"name":"A","email":"a@example.com","password":"abc"}`,
		"bad phone":      `{"name":"A","email":"a@example.com","password":"secret1","phone":"12"}`,
		"unknown field":  `{"name":"A","email":"a@example.com","password":"secret1","role":"admin"}`,
	}
	for name, body := range cases {
		rec := do(t, router, http.MethodPost, "/api/auth/signup", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestHandlerInactiveLoginForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)
	user := verified(t, svc, "asha@example.com")
	_, err := svc.ToggleStatus(context.Background(), user.ID)
	require.NoError(t, err)

	rec := do(t, newTestRouter(t, svc, nil), http.MethodPost, "/api/auth/login", `{"email":"asha@example.com","password":"`+testPassword+`"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerForgotAndReset(t *testing.T) {
	svc, repo, _ := newTestService(t)
	verified(t, svc, "asha@example.com")
	router := newTestRouter(t, svc, nil)

	rec := do(t, router, http.MethodPost, "/api/auth/forgotPassword", `{"email":"nobody@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/auth/forgotPassword", `{"email":"asha@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := repo.GetByEmail(context.Background(), "asha@example.com")
	require.NoError(t, err)

	rec = do(t, router, http.MethodPost, "/api/auth/resetPassword", `{"email":"asha@example.com","token":"short","newPassword":"new-pass-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/auth/resetPassword",
		`{"email":"asha@example.com","token":"`+stored.ForgotPasswordToken+`","newPassword":"new-pass-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandlerSelfService(t *testing.T) {
	svc, _, _ := newTestService(t)
	user := verified(t, svc, "asha@example.com")
	router := newTestRouter(t, svc, &auth.Identity{UserID: user.ID, Role: auth.RoleUser})

	rec := do(t, router, http.MethodPut, "/api/users/change-password", `{"currentPassword":"wrong","newPassword":"new-pass-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/users/change-password", `{"currentPassword":"`+testPassword+`","newPassword":"new-pass-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPut, "/api/users/update-profile", `{"name":"Asha K"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Asha K", got.Name)
}

func TestHandlerAdminUsers(t *testing.T) {
	svc, _, _ := newTestService(t)
	admin := verified(t, svc, "admin@example.com")
	user := signup(t, svc, "asha@example.com")
	router := newTestRouter(t, svc, &auth.Identity{UserID: admin.ID, Role: auth.RoleAdmin})

	rec := do(t, router, http.MethodGet, "/api/admin/users?search=asha&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Items      []User `json:"items"`
		Pagination struct {
			TotalItems int64 `json:"totalItems"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.Pagination.TotalItems)

	rec = do(t, router, http.MethodGet, "/api/admin/users?sortBy=password:asc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/admin/users/"+user.ID, `{"role":"root"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPatch, "/api/admin/users/"+user.ID+"/toggle-status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/admin/users/"+admin.ID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/admin/users/"+user.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodDelete, "/api/admin/users/"+user.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
