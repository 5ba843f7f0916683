package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/oauth"
)

// OAuthRouter creates the router for the provider linkage flow.
func OAuthRouter(linker *oauth.Service) http.Handler {
	routes := &oauthRoutes{linker: linker}
	r := chi.NewRouter()
	r.Get("/auth/{provider}/{user_id}", routes.beginLink)
	r.Get("/callback/{provider}", routes.callback)
	return r
}

type oauthRoutes struct {
	linker *oauth.Service
}

type beginLinkResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
	Instructions     string `json:"instructions"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

func (o *oauthRoutes) beginLink(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	userID := chi.URLParam(r, "user_id")

	link, err := o.linker.BeginLink(r.Context(), userID, provider)
	if err != nil {
		switch {
		case errors.Is(err, oauth.ErrUnsupportedProvider):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, oauth.ErrUnknownUser):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			logger.Errorf("Failed to begin %s link: %v", provider, err)
			writeError(w, http.StatusInternalServerError, "Failed to start authorization")
		}
		return
	}

	writeJSON(w, http.StatusOK, beginLinkResponse{
		AuthorizationURL: link.AuthorizationURL,
		State:            link.State,
		Instructions:     fmt.Sprintf("Visit the URL to authorize %s access, then you will be redirected back.", provider),
		ExpiresInMinutes: int(link.TTL.Minutes()),
	})
}

type callbackResponse struct {
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider"`
	ExpiresAt time.Time `json:"expires_at"`
	Scope     string    `json:"scope"`
}

func (o *oauthRoutes) callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "Missing code or state parameter")
		return
	}

	result, err := o.linker.CompleteLink(r.Context(), code, state, provider)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, callbackResponse{
			UserID:    result.UserID,
			Provider:  result.Provider,
			ExpiresAt: result.ExpiresAt,
			Scope:     result.Scope,
		})
	case errors.Is(err, oauth.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "Invalid or expired state parameter")
	case errors.Is(err, oauth.ErrUnsupportedProvider):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, oauth.ErrExchangeFailed):
		logger.Warnf("Token exchange failed for %s: %v", provider, err)
		writeError(w, http.StatusBadGateway, "Token exchange with provider failed")
	default:
		logger.Errorf("OAuth callback failed for %s: %v", provider, err)
		writeError(w, http.StatusInternalServerError, "Failed to complete authorization")
	}
}
