package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// LogoutResponse defines the structure of the logout response.
type LogoutResponse struct {
	Message string `json:"message"`
}

// Handler holds the authentication handlers and dependencies.
type Handler struct {
	Broker     *Broker
	Middleware *Middleware
	Logger     *logrus.Logger
}

// NewHandler initializes a new authentication handler.
func NewHandler(broker *Broker, logger *logrus.Logger) *Handler {
	return &Handler{
		Broker:     broker,
		Middleware: NewMiddleware(broker, logger),
		Logger:     logger,
	}
}

// AuthMiddleware returns the authentication middleware.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return h.Middleware.AuthMiddleware(next)
}

// RegisterRoutes mounts the broker endpoints on r, typically a /auth subrouter.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/authorize/{provider}", h.HandleAuthorize).Methods(http.MethodGet)
	r.HandleFunc("/callback/{provider}", h.HandleCallback).Methods(http.MethodGet)
	r.HandleFunc("/refresh", h.HandleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.HandleLogout).Methods(http.MethodPost)
	r.Handle("/status", h.AuthMiddleware(http.HandlerFunc(h.HandleStatus))).Methods(http.MethodGet)
}

// HandleAuthorize redirects the browser to the provider consent page for a
// state created by BeginAuthorization.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	providerName := mux.Vars(r)["provider"]
	state := r.URL.Query().Get("state")

	target, err := h.Broker.AuthorizeURL(r.Context(), providerName, state)
	if err != nil {
		h.Logger.WithError(err).WithField("provider", providerName).Warn("Invalid authorize request")
		if errors.Is(err, ErrStateNotFound) || errors.Is(err, ErrUnknownProvider) {
			WriteErrorResponse(w, "Invalid authorize request", http.StatusBadRequest)
			return
		}
		WriteErrorResponse(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleCallback handles the provider redirect and sends the browser back to
// the app with either tokens or an error.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	providerName := mux.Vars(r)["provider"]
	query := r.URL.Query()

	target, err := h.Broker.CompleteAuthorization(r.Context(), providerName, CallbackParams{
		State:            query.Get("state"),
		Code:             query.Get("code"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	})
	if err != nil {
		h.Logger.WithError(err).WithField("provider", providerName).Warn("Invalid callback")
		if errors.Is(err, ErrStateNotFound) || errors.Is(err, ErrUnknownProvider) {
			WriteErrorResponse(w, "Invalid or expired state", http.StatusBadRequest)
			return
		}
		WriteErrorResponse(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleStatus checks authentication status and returns user info.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		WriteJSONResponse(w, http.StatusInternalServerError, &HttpResp{
			Status: "error",
			Data: StatusResponse{
				Authenticated: false,
				Message:       "Failed to retrieve user information",
			},
		})
		return
	}

	WriteSuccessResponse(w, "Authenticated", StatusResponse{
		Authenticated: true,
		User:          userInfoFromClaims(claims),
	})
}

// HandleRefresh rotates the refresh token from the JSON body or cookie.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := refreshTokenFromRequest(r)
	if refreshToken == "" {
		WriteErrorResponse(w, "Refresh token not found", http.StatusUnauthorized)
		return
	}

	tokens, err := h.Broker.RotateRefreshToken(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			h.Logger.WithError(err).Warn("Invalid refresh token")
			WriteErrorResponse(w, "Invalid or expired refresh token", http.StatusUnauthorized)
			return
		}
		h.Logger.WithError(err).Error("Failed to refresh tokens")
		WriteErrorResponse(w, "Failed to refresh tokens", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tokens); err != nil {
		h.Logger.WithError(err).Error("Failed to encode token response")
	}
}

// HandleLogout blacklists the access token and revokes the refresh token.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	accessToken := extractToken(r, "access_token")
	refreshToken := refreshTokenFromRequest(r)

	if err := h.Broker.Revoke(r.Context(), accessToken, refreshToken); err != nil {
		h.Logger.WithError(err).Error("Failed to logout")
		WriteErrorResponse(w, "Failed to logout", http.StatusInternalServerError)
		return
	}

	WriteSuccessResponse(w, "Successfully logged out", LogoutResponse{
		Message: "Successfully logged out",
	})
}

func refreshTokenFromRequest(r *http.Request) string {
	if r.Body != nil && r.ContentLength != 0 {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
			return req.RefreshToken
		}
	}
	return extractToken(r, "refresh_token")
}
