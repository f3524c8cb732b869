package dto

import (
	"time"

	"agencecom/internal/entity"
)

type RegisterRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Message string          `json:"message"`
	User    AccountResponse `json:"user"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// AccountResponse is the outward projection of an account. No credential or
// token field is ever part of it.
type AccountResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Admin     bool      `json:"admin"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

func AccountResponseFromEntity(user *entity.User) AccountResponse {
	return AccountResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		Admin:     user.Admin,
		Verified:  user.Verified,
		CreatedAt: user.CreatedAt,
	}
}

func AccountResponsesFromEntities(users []entity.User) []AccountResponse {
	responses := make([]AccountResponse, 0, len(users))
	for i := range users {
		responses = append(responses, AccountResponseFromEntity(&users[i]))
	}
	return responses
}
