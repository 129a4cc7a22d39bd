package auth

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/httpx"
)

// Handler exposes login and current-principal endpoints.
type Handler struct {
	resolver *Resolver
	logger   *zap.SugaredLogger
}

func NewHandler(resolver *Resolver, logger *zap.SugaredLogger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

// LoginRequest login payload. Email wins when both handles are sent.
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.By(func(value interface{}) error {
			if s, _ := value.(string); s == "" && r.Username == "" {
				return errors.New("email or username is required")
			}
			return nil
		})),
		validation.Field(&r.Password, validation.Required),
	)
}

// TokenResponse is the body of a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, h.logger, apperr.FromValidation(err))
		return
	}
	handle := req.Email
	if handle == "" {
		handle = req.Username
	}
	tok, u, err := h.resolver.Authenticate(r.Context(), handle, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "handle", handle, "err", err)
		httpx.WriteError(w, h.logger, err)
		return
	}
	h.logger.Infow("login", "user_id", u.ID)
	httpx.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: tok.Value,
		TokenType:   "bearer",
		ExpiresIn:   int(h.resolver.tokens.TTL().Seconds()),
	})
}

// Me returns the resolved principal.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := MustPrincipal(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}
