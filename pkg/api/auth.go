package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/auth"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
)

// AuthRouter creates the router for account registration and login.
func AuthRouter(sessions *auth.Service) http.Handler {
	routes := &authRoutes{sessions: sessions}
	r := chi.NewRouter()
	r.Post("/register", routes.register)
	r.Post("/login", routes.login)
	r.Post("/deactivate", routes.deactivate)
	return r
}

type authRoutes struct {
	sessions *auth.Service
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type registerResponse struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (a *authRoutes) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := a.sessions.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, registerResponse{
			UserID:  user.ID,
			Message: "Account created successfully",
		})
	case errors.Is(err, auth.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "Invalid email address")
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "Email already registered")
	default:
		logger.Errorf("Registration failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	JWTToken  string    `json:"jwt_token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      loginUser `json:"user"`
}

type loginUser struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

func (a *authRoutes) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, bearer, expiresAt, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, loginResponse{
			JWTToken:  bearer,
			ExpiresAt: expiresAt,
			User: loginUser{
				UserID:      user.ID,
				Email:       user.Email,
				DisplayName: user.DisplayName,
			},
		})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserInactive):
		// One message for both unknown email and wrong password.
		writeError(w, http.StatusBadRequest, "Invalid email or password")
	default:
		logger.Errorf("Login failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
	}
}

// deactivate soft-deactivates the authenticated account and evicts its
// cached provider bindings. Requires a valid bearer session.
func (a *authRoutes) deactivate(w http.ResponseWriter, r *http.Request) {
	bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || bearer == "" {
		writeError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	user, _, err := a.sessions.Authenticate(r.Context(), bearer)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}

	if err := a.sessions.Deactivate(r.Context(), user.ID); err != nil {
		logger.Errorf("Deactivation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Deactivation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deactivated"})
}
