package users

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "s3cret-pass"

func newTestService(t *testing.T) (*Service, *memRepo, *recordingMailer) {
	t.Helper()
	repo := newMemRepo()
	mailer := &recordingMailer{}
	tokens := &auth.Manager{Secret: []byte("test-secret"), AccessTTL: time.Hour, Issuer: "plumbing-test"}
	svc := NewService(repo, tokens, mailer, "http://localhost:8080/", time.UTC)
	return svc, repo, mailer
}

func signup(t *testing.T, svc *Service, email string) User {
	t.Helper()
	user, err := svc.Signup(context.Background(), SignupRequest{Name: "Asha", Email: email, Password: testPassword})
	require.NoError(t, err)
	return user
}

func verified(t *testing.T, svc *Service, email string) User {
	t.Helper()
	user := signup(t, svc, email)
	user, err := svc.Verify(context.Background(), user.VerificationToken)
	require.NoError(t, err)
	return user
}

func TestSignupStoresUnverifiedUser(t *testing.T) {
	svc, repo, _ := newTestService(t)

	user := signup(t, svc, "  Asha@Example.com ")
	assert.Equal(t, "asha@example.com", user.Email)
	assert.Equal(t, auth.RoleUser, user.Role)
	assert.False(t, user.IsVerified)
	assert.True(t, user.IsActive)
	assert.Len(t, user.VerificationToken, 64)
	assert.NotEqual(t, testPassword, user.PasswordHash)

	stored, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.VerificationToken, stored.VerificationToken)

	_, err = svc.Signup(context.Background(), SignupRequest{Name: "Other", Email: "ASHA@example.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSendVerificationBuildsLink(t *testing.T) {
	svc, _, mailer := newTestService(t)
	user := signup(t, svc, "asha@example.com")

	_, err := svc.SendVerification(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/auth/verify/"+user.VerificationToken, mailer.last().value)
}

func TestVerifyConsumesToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := signup(t, svc, "asha@example.com")

	got, err := svc.Verify(ctx, user.VerificationToken)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.Empty(t, got.VerificationToken)

	_, err = svc.Verify(ctx, user.VerificationToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginRules(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	pending := signup(t, svc, "pending@example.com")

	_, err := svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginRequest{Email: pending.Email, Password: testPassword})
	assert.ErrorIs(t, err, ErrNotVerified)

	user := verified(t, svc, "asha@example.com")
	_, err = svc.Login(ctx, LoginRequest{Email: user.Email, Password: "wrong-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := svc.Login(ctx, LoginRequest{Email: "ASHA@example.com", Password: testPassword})
	require.NoError(t, err)
	claims, err := svc.tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, auth.RoleUser, claims.Role)

	_, err = svc.ToggleStatus(ctx, user.ID)
	require.NoError(t, err)
	_, err = svc.Login(ctx, LoginRequest{Email: user.Email, Password: testPassword})
	assert.ErrorIs(t, err, ErrInactive)
}

func TestResendVerificationRotatesToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := signup(t, svc, "asha@example.com")

	rotated, err := svc.ResendVerification(ctx, user.Email)
	require.NoError(t, err)
	assert.NotEqual(t, user.VerificationToken, rotated.VerificationToken)

	_, err = svc.Verify(ctx, user.VerificationToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Verify(ctx, rotated.VerificationToken)
	require.NoError(t, err)

	_, err = svc.ResendVerification(ctx, user.Email)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	_, err = svc.ResendVerification(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUnknownEmail)
}

func TestResetPasswordRequiresStoredToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := verified(t, svc, "asha@example.com")

	_, err := svc.ForgotPassword(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUnknownEmail)

	err = svc.ResetPassword(ctx, ResetPasswordRequest{Email: user.Email, Token: strings.Repeat("a", 64), NewPassword: "new-pass-1"})
	assert.ErrorIs(t, err, ErrInvalidToken, "no token issued yet")

	issued, err := svc.ForgotPassword(ctx, user.Email)
	require.NoError(t, err)
	require.Len(t, issued.ForgotPasswordToken, 64)

	err = svc.ResetPassword(ctx, ResetPasswordRequest{Email: user.Email, Token: strings.Repeat("b", 64), NewPassword: "new-pass-1"})
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, svc.ResetPassword(ctx, ResetPasswordRequest{Email: user.Email, Token: issued.ForgotPasswordToken, NewPassword: "new-pass-1"}))

	_, err = svc.Login(ctx, LoginRequest{Email: user.Email, Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginRequest{Email: user.Email, Password: "new-pass-1"})
	require.NoError(t, err)

	err = svc.ResetPassword(ctx, ResetPasswordRequest{Email: user.Email, Token: issued.ForgotPasswordToken, NewPassword: "new-pass-2"})
	assert.ErrorIs(t, err, ErrInvalidToken, "token is single use")
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := verified(t, svc, "asha@example.com")

	err := svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "new-pass-1"})
	assert.ErrorIs(t, err, ErrWrongPassword)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: testPassword, NewPassword: "new-pass-1"}))
	_, err = svc.Login(ctx, LoginRequest{Email: user.Email, Password: "new-pass-1"})
	require.NoError(t, err)
}

func TestUpdateProfileEmailUniqueness(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := verified(t, svc, "asha@example.com")
	signup(t, svc, "ravi@example.com")

	_, err := svc.UpdateProfile(ctx, user.ID, UpdateProfileRequest{Email: "Ravi@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	got, err := svc.UpdateProfile(ctx, user.ID, UpdateProfileRequest{Name: "Asha K", Email: "asha@example.com", Phone: "+919876543210"})
	require.NoError(t, err)
	assert.Equal(t, "Asha K", got.Name)
	assert.Equal(t, "+919876543210", got.Phone)
	assert.True(t, got.IsVerified)
}

func TestAdminOperations(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := signup(t, svc, "asha@example.com")
	signup(t, svc, "ravi@example.com")

	yes := true
	got, err := svc.AdminUpdate(ctx, user.ID, AdminUpdateRequest{Role: auth.RoleAdmin, IsVerified: &yes})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, got.Role)
	assert.True(t, got.IsVerified)

	items, total, err := svc.List(ctx, ListQuery{Search: "ravi", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "ravi@example.com", items[0].Email)

	toggled, err := svc.ToggleStatus(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	require.NoError(t, svc.Delete(ctx, user.ID))
	assert.ErrorIs(t, svc.Delete(ctx, user.ID), ErrNotFound)
	_, err = svc.AdminUpdate(ctx, user.ID, AdminUpdateRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestContact(t *testing.T) {
	svc, _, _ := newTestService(t)
	user := signup(t, svc, "asha@example.com")

	email, name, err := svc.Contact(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", email)
	assert.Equal(t, "Asha", name)
}
