package webserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/y0ug/glanceauth/internal/navigator"
	"github.com/y0ug/glanceauth/pkg/auth"
	"golang.org/x/time/rate"
)

const maxLinkSize = 8 << 10

// LinkDeliverer accepts deep links for the running instance.
type LinkDeliverer interface {
	Deliver(rawURL string) error
}

// SessionDismisser closes the open in-app browser session.
type SessionDismisser interface {
	Dismiss() bool
}

// ViewSource exposes the navigator view.
type ViewSource interface {
	View() navigator.View
}

// WebServer holds the data needed for handling HTTP requests.
type WebServer struct {
	config      *WebserverConfig
	authHandler *auth.Handler
	links       LinkDeliverer
	browser     SessionDismisser
	views       ViewSource
	limiter     *rate.Limiter
	Logger      *logrus.Logger
}

// NewWebServer initializes a new WebServer.
func NewWebServer(config *WebserverConfig, authHandler *auth.Handler, links LinkDeliverer, browser SessionDismisser, views ViewSource, logger *logrus.Logger) *WebServer {
	return &WebServer{
		config:      config,
		authHandler: authHandler,
		links:       links,
		browser:     browser,
		views:       views,
		limiter:     rate.NewLimiter(config.LinkRateLimit, config.LinkBurst),
		Logger:      logger,
	}
}

// StartWebServer starts the HTTP server.
func StartWebServer(ctx context.Context, ws *WebServer) (*http.Server, error) {
	router := ws.InitRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   ws.config.CorsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		Debug:            false,
	}
	handler := cors.New(corsOptions).Handler(router)

	server := &http.Server{
		Addr:    ws.config.ListenTo,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		ws.Logger.Infof("Server starting on %s", ws.config.ListenTo)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.Logger.Errorf("ListenAndServe(): %v", err)
		}
	}()

	return server, nil
}

// InitRouter initializes the HTTP routes.
func (ws *WebServer) InitRouter() *mux.Router {
	r := mux.NewRouter()

	if ws.authHandler != nil {
		ws.authHandler.RegisterRoutes(r.PathPrefix("/auth").Subrouter())
	}

	r.HandleFunc("/links", ws.handleDeliverLink).Methods(http.MethodPost)
	r.HandleFunc("/links/dismiss", ws.handleDismiss).Methods(http.MethodPost)
	r.HandleFunc("/--/auth-callback", ws.handleAuthCallbackRelay).Methods(http.MethodGet)
	r.HandleFunc("/app/status", ws.handleAppStatus).Methods(http.MethodGet)

	return r
}

// handleDeliverLink handles the POST /links endpoint. The body is the URL.
func (ws *WebServer) handleDeliverLink(w http.ResponseWriter, r *http.Request) {
	if !ws.limiter.Allow() {
		ws.Logger.WithField("ip", auth.GetClientIP(r)).Warn("Deep link rate limit exceeded")
		auth.WriteErrorResponse(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxLinkSize))
	if err != nil {
		ws.Logger.WithError(err).Error("Failed to read deep link")
		auth.WriteErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	link := strings.TrimSpace(string(body))
	if link == "" {
		auth.WriteErrorResponse(w, "Deep link is required", http.StatusBadRequest)
		return
	}

	if err := ws.links.Deliver(link); err != nil {
		ws.Logger.WithError(err).Warn("Rejected deep link")
		auth.WriteErrorResponse(w, "Invalid deep link", http.StatusBadRequest)
		return
	}

	auth.WriteSuccessResponse(w, "Deep link delivered", nil)
}

// handleDismiss handles the POST /links/dismiss endpoint.
func (ws *WebServer) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if !ws.browser.Dismiss() {
		auth.WriteErrorResponse(w, "No auth session is open", http.StatusConflict)
		return
	}
	auth.WriteSuccessResponse(w, "Auth session dismissed", nil)
}

// handleAppStatus handles the GET /app/status endpoint.
func (ws *WebServer) handleAppStatus(w http.ResponseWriter, r *http.Request) {
	auth.WriteSuccessResponse(w, "Navigator status", ws.views.View())
}
