package users

import (
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
)

type User struct {
	ID                  string    `bson:"_id,omitempty" json:"id"`
	Email               string    `bson:"email" json:"email"`
	PasswordHash        string    `bson:"password" json:"-"`
	Name                string    `bson:"name" json:"name"`
	Phone               string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Role                string    `bson:"role" json:"role"`
	IsVerified          bool      `bson:"isVerified" json:"isVerified"`
	VerificationToken   string    `bson:"verificationToken,omitempty" json:"-"`
	ForgotPasswordToken string    `bson:"forgotPasswordToken,omitempty" json:"-"`
	IsActive            bool      `bson:"isActive" json:"isActive"`
	CreatedAt           time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (u User) Identity() auth.Identity {
	return auth.Identity{UserID: u.ID, Role: u.Role}
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Token       string `json:"token" validate:"required,hexadecimal,len=64"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
}

type UpdateProfileRequest struct {
	Name  string `json:"name" validate:"omitempty,max=100"`
	Email string `json:"email" validate:"omitempty,email,max=254"`
	Phone string `json:"phone" validate:"omitempty,phone"`
}

type AdminUpdateRequest struct {
	Name       string `json:"name" validate:"omitempty,max=100"`
	Email      string `json:"email" validate:"omitempty,email,max=254"`
	Phone      string `json:"phone" validate:"omitempty,phone"`
	Role       string `json:"role" validate:"omitempty,oneof=user admin"`
	IsActive   *bool  `json:"isActive"`
	IsVerified *bool  `json:"isVerified"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type ListQuery struct {
	Search    string
	Limit     int64
	Offset    int64
	SortField string
	SortDesc  bool
}
