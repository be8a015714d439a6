package users

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnknownEmail       = errors.New("email not registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("please verify your email first")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrInactive           = errors.New("account is deactivated")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWrongPassword      = errors.New("current password is incorrect")
)

const tokenBytes = 32

type Mailer interface {
	SendVerificationEmail(ctx context.Context, toEmail, toName, verifyURL string) (string, error)
	SendPasswordReset(ctx context.Context, toEmail, toName, token string) (string, error)
}

type Service struct {
	repo          Repository
	tokens        *auth.Manager
	mailer        Mailer
	publicBaseURL string
	location      *time.Location
	now           func() time.Time
}

func NewService(repo Repository, tokens *auth.Manager, mailer Mailer, publicBaseURL string, location *time.Location) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		repo:          repo,
		tokens:        tokens,
		mailer:        mailer,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		location:      location,
		now:           time.Now,
	}
}

// NewToken returns 32 random bytes hex-encoded.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup stores an unverified user carrying a fresh verification token.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (User, error) {
	email := normalizeEmail(req.Email)
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return User{}, err
	}
	token, err := NewToken()
	if err != nil {
		return User{}, err
	}

	now := s.now().In(s.location)
	user := User{
		ID:                primitive.NewObjectID().Hex(),
		Email:             email,
		PasswordHash:      hash,
		Name:              strings.TrimSpace(req.Name),
		Phone:             strings.TrimSpace(req.Phone),
		Role:              auth.RoleUser,
		VerificationToken: token,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Service) VerifyURL(token string) string {
	return s.publicBaseURL + "/api/auth/verify/" + token
}

// SendVerification emails the user's current verification link.
func (s *Service) SendVerification(ctx context.Context, user User) (string, error) {
	if s.mailer == nil {
		return "", nil
	}
	return s.mailer.SendVerificationEmail(ctx, user.Email, user.Name, s.VerifyURL(user.VerificationToken))
}

// SendPasswordReset emails the user's current reset token.
func (s *Service) SendPasswordReset(ctx context.Context, user User) (string, error) {
	if s.mailer == nil {
		return "", nil
	}
	return s.mailer.SendPasswordReset(ctx, user.Email, user.Name, user.ForgotPasswordToken)
}

func (s *Service) Verify(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrInvalidToken
	}
	user, err := s.repo.GetByVerificationToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidToken
	}
	if err != nil {
		return User{}, err
	}
	return s.repo.Update(ctx, user.ID, bson.M{
		"$set":   bson.M{"isVerified": true, "updatedAt": s.now().In(s.location)},
		"$unset": bson.M{"verificationToken": ""},
	})
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, ErrNotFound) {
		return LoginResponse{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResponse{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, req.Password); err != nil {
		return LoginResponse{}, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return LoginResponse{}, ErrNotVerified
	}
	if !user.IsActive {
		return LoginResponse{}, ErrInactive
	}

	token, err := s.tokens.NewAccessToken(user.ID, user.Role)
	if err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{Token: token, User: user}, nil
}

// ResendVerification rotates the verification token of an unverified user.
func (s *Service) ResendVerification(ctx context.Context, email string) (User, error) {
	user, err := s.byEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if user.IsVerified {
		return User{}, ErrAlreadyVerified
	}
	token, err := NewToken()
	if err != nil {
		return User{}, err
	}
	return s.repo.Update(ctx, user.ID, bson.M{"$set": bson.M{
		"verificationToken": token,
		"updatedAt":         s.now().In(s.location),
	}})
}

// ForgotPassword stores a fresh reset token for the user.
func (s *Service) ForgotPassword(ctx context.Context, email string) (User, error) {
	user, err := s.byEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	token, err := NewToken()
	if err != nil {
		return User{}, err
	}
	return s.repo.Update(ctx, user.ID, bson.M{"$set": bson.M{
		"forgotPasswordToken": token,
		"updatedAt":           s.now().In(s.location),
	}})
}

// ResetPassword accepts the new password only with the stored reset token, which it consumes.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	user, err := s.byEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if user.ForgotPasswordToken == "" ||
		subtle.ConstantTimeCompare([]byte(user.ForgotPasswordToken), []byte(strings.TrimSpace(req.Token))) != 1 {
		return ErrInvalidToken
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	_, err = s.repo.Update(ctx, user.ID, bson.M{
		"$set":   bson.M{"password": hash, "updatedAt": s.now().In(s.location)},
		"$unset": bson.M{"forgotPasswordToken": ""},
	})
	return err
}

func (s *Service) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(user.PasswordHash, req.CurrentPassword); err != nil {
		return ErrWrongPassword
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	_, err = s.repo.Update(ctx, user.ID, bson.M{"$set": bson.M{"password": hash, "updatedAt": s.now().In(s.location)}})
	return err
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (User, error) {
	set := bson.M{"updatedAt": s.now().In(s.location)}
	if name := strings.TrimSpace(req.Name); name != "" {
		set["name"] = name
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		set["phone"] = phone
	}
	if req.Email != "" {
		email, err := s.claimEmail(ctx, userID, req.Email)
		if err != nil {
			return User{}, err
		}
		set["email"] = email
	}
	return s.repo.Update(ctx, userID, bson.M{"$set": set})
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.GetByID(ctx, strings.TrimSpace(id))
}

// Contact returns where to reach a user.
func (s *Service) Contact(ctx context.Context, userID string) (string, string, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return user.Email, user.Name, nil
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]User, int64, error) {
	q.Search = strings.TrimSpace(q.Search)
	if q.SortField == "" {
		q.SortField = "createdAt"
		q.SortDesc = true
	}
	items, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, q.Search)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) AdminUpdate(ctx context.Context, id string, req AdminUpdateRequest) (User, error) {
	id = strings.TrimSpace(id)
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return User{}, err
	}
	set := bson.M{"updatedAt": s.now().In(s.location)}
	if name := strings.TrimSpace(req.Name); name != "" {
		set["name"] = name
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		set["phone"] = phone
	}
	if req.Role != "" {
		set["role"] = req.Role
	}
	if req.IsActive != nil {
		set["isActive"] = *req.IsActive
	}
	if req.IsVerified != nil {
		set["isVerified"] = *req.IsVerified
	}
	if req.Email != "" {
		email, err := s.claimEmail(ctx, id, req.Email)
		if err != nil {
			return User{}, err
		}
		set["email"] = email
	}
	return s.repo.Update(ctx, id, bson.M{"$set": set})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ToggleStatus(ctx context.Context, id string) (User, error) {
	user, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return User{}, err
	}
	return s.repo.Update(ctx, user.ID, bson.M{"$set": bson.M{
		"isActive":  !user.IsActive,
		"updatedAt": s.now().In(s.location),
	}})
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.CountAll(ctx)
}

func (s *Service) byEmail(ctx context.Context, email string) (User, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrUnknownEmail
	}
	return user, err
}

// claimEmail normalizes email and checks no other user holds it.
func (s *Service) claimEmail(ctx context.Context, userID, email string) (string, error) {
	email = normalizeEmail(email)
	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil && existing.ID != userID {
		return "", ErrEmailTaken
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	return email, nil
}
