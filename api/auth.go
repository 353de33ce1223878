package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/garnizeh/recruit/internal/apperr"
	"github.com/garnizeh/recruit/pkg/models"
	"github.com/garnizeh/recruit/pkg/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	users         repository.UserRepo
	jwtSecret     string
	tokenDuration time.Duration
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(users repository.UserRepo, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret, tokenDuration: tokenDuration}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// IssueToken signs a token carrying the user's id and role.
func IssueToken(secret string, d time.Duration, u *models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": u.ID,
		"role":    string(u.Role),
		"email":   u.Email,
		"iat":     now.Unix(),
		"exp":     now.Add(d).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, r, apperr.Validation("name, email and password are required"))
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, r, apperr.Validation("invalid email address"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, apperr.Internal("hash password", err))
		return
	}

	ctx := r.Context()
	u := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        strings.TrimSpace(req.Phone),
		Role:         models.RoleUser,
		PasswordHash: string(hash),
	}
	id, err := h.users.CreateUser(ctx, u)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			writeError(w, r, apperr.Conflict("an account with this email already exists", err))
			return
		}
		writeError(w, r, apperr.Internal("create user", err))
		return
	}
	u.ID = id

	tokenStr, err := IssueToken(h.jwtSecret, h.tokenDuration, u)
	if err != nil {
		writeError(w, r, apperr.Internal("sign token", err))
		return
	}

	logger.Info("user registered", "user_id", id)
	writeData(w, http.StatusCreated, authResponse{Token: tokenStr, User: u}, "")
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, r, apperr.Validation("email and password are required"))
		return
	}

	u, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, apperr.Internal("load user", err))
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, r, apperr.Unauthenticated("Credentials not found"))
		return
	}

	tokenStr, err := IssueToken(h.jwtSecret, h.tokenDuration, u)
	if err != nil {
		writeError(w, r, apperr.Internal("sign token", err))
		return
	}

	writeData(w, http.StatusOK, authResponse{Token: tokenStr, User: u}, "")
}

// Me returns the account behind the bearer token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.GetUserByID(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, apperr.Internal("load user", err))
		return
	}
	if u == nil {
		writeError(w, r, apperr.Unauthenticated("account no longer exists"))
		return
	}
	writeData(w, http.StatusOK, u, "")
}

func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	// For stateless JWT, signout is client-side (just delete token)
	writeMessage(w, http.StatusOK, "signed out")
}
