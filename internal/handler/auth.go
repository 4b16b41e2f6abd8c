package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/pkg/response"
)

// AccountService registers users and issues access tokens.
type AccountService interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error)
}

type AuthHandler struct {
	accounts  AccountService
	validator *validator.Validate
}

func NewAuthHandler(accounts AccountService) *AuthHandler {
	return &AuthHandler{
		accounts:  accounts,
		validator: newValidator(),
	}
}

// Register handles POST /user/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeAndValidate(r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Created(w, "Registration successful.", response.Payload{"newUser": user})
}

// Login handles POST /user/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeAndValidate(r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Success(w, "Login Successful", response.Payload{"token": res.Token, "role": res.Role})
}
