package handlers

import (
	"net/http"
	"time"

	"github.com/diewo77/smart-invoices/auth"
	"github.com/diewo77/smart-invoices/httpx"
	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/diewo77/smart-invoices/internal/services"
)

type AuthHandler struct {
	users  *services.UserService
	tokens *auth.Manager
}

func NewAuthHandler(users *services.UserService, tokens *auth.Manager) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

type session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badJSON(w, err)
		return
	}
	user, err := h.users.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondSession(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badJSON(w, err)
		return
	}
	user, err := h.users.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondSession(w, r, http.StatusOK, user)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, ok := ownerID(w, r)
	if !ok {
		return
	}
	user, err := h.users.Get(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *AuthHandler) respondSession(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	token, exp, err := h.tokens.Issue(user.ID, user.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, status, session{Token: token, ExpiresAt: exp.UTC(), User: user})
}
