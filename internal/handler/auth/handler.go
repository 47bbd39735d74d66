package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/hirestream/backend/internal/middleware"
	"github.com/zhouzirui/hirestream/backend/internal/observability"
	authService "github.com/zhouzirui/hirestream/backend/internal/service/auth"
	"github.com/zhouzirui/hirestream/backend/internal/storage/users"
	"github.com/zhouzirui/hirestream/backend/pkg/utils"
)

// Accounts is the subset of the auth service the handler calls.
type Accounts interface {
	Register(ctx context.Context, name, email, password string) (users.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	Verify(token string) (authService.Claims, error)
}

// Handler 账号注册与登录的HTTP处理器
type Handler struct {
	accounts Accounts
}

// New 创建账号处理器
func New(accounts Accounts) *Handler {
	return &Handler{accounts: accounts}
}

// RegisterRoutes 注册账号相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.With(middleware.BearerAuth(h.accounts)).Get("/me", h.handleMe)
	})
}

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondText(w, http.StatusBadRequest, "Missing credentials")
		return
	}

	_, err := h.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	switch {
	case err == nil:
		utils.RespondText(w, http.StatusOK, "Successfully Registered")
	case errors.Is(err, authService.ErrMissingCredentials):
		utils.RespondText(w, http.StatusBadRequest, "Missing credentials")
	case errors.Is(err, authService.ErrUserExists):
		utils.RespondText(w, http.StatusBadRequest, "User Already Registered")
	default:
		observability.LoggerFromContext(r.Context()).Error("register failed", "error", err)
		utils.RespondText(w, http.StatusInternalServerError, "Error during registration")
	}
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondText(w, http.StatusBadRequest, "Missing credentials")
		return
	}

	token, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, loginResponse{Token: token})
	case errors.Is(err, authService.ErrMissingCredentials):
		utils.RespondText(w, http.StatusBadRequest, "Missing credentials")
	case errors.Is(err, authService.ErrInvalidCredentials):
		utils.RespondText(w, http.StatusUnauthorized, "Authentication failed")
	default:
		observability.LoggerFromContext(r.Context()).Error("login failed", "error", err)
		utils.RespondText(w, http.StatusInternalServerError, "Error during login")
	}
}

type meResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// handleMe 返回当前令牌对应的账号
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	utils.RespondJSON(w, http.StatusOK, meResponse{UserID: claims.UserID, Email: claims.Email})
}
