package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/y0ug/glanceauth/internal/browser"
	"github.com/y0ug/glanceauth/internal/database"
	"github.com/y0ug/glanceauth/internal/envutil"
	"github.com/y0ug/glanceauth/internal/linking"
	"github.com/y0ug/glanceauth/internal/navigator"
	"github.com/y0ug/glanceauth/internal/notifications"
	"github.com/y0ug/glanceauth/internal/webserver"
	"github.com/y0ug/glanceauth/pkg/auth"
	"github.com/y0ug/glanceauth/pkg/authflow"
)

func newLogger() *logrus.Logger {
	logger := logrus.New()
	if strings.EqualFold(envutil.Get("LOG_FORMAT", "text"), "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(envutil.Get("LOG_LEVEL", "info"))
	if err != nil {
		logger.Warnf("Invalid LOG_LEVEL, using info: %v", err)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func main() {
	deliverFlag := flag.String("deliver", "", "Forward a deep link to the running instance and exit")
	serverFlag := flag.String("server", "", "Base URL of the running instance (default http://localhost:$PORT)")
	initialURLFlag := flag.String("initial-url", "", "URL the app was launched with")
	signInFlag := flag.Bool("signin", false, "Start a sign-in once the session check settles")
	signOutFlag := flag.Bool("signout", false, "Sign out on startup")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found. Proceeding with environment variables.")
	}

	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *deliverFlag != "" {
		serverURL := *serverFlag
		if serverURL == "" {
			serverURL = "http://localhost:" + envutil.Get("PORT", "8081")
		}
		if err := webserver.DeliverLink(ctx, serverURL, *deliverFlag); err != nil {
			logger.Fatalf("Failed to deliver deep link: %v", err)
		}
		logger.Info("Deep link delivered")
		return
	}

	dbConfig, err := database.LoadDatabaseConfig()
	if err != nil {
		logger.Fatalf("Failed to load database configuration: %v", err)
	}
	db, err := database.New(dbConfig, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize %s database: %v", dbConfig.Type, err)
	}
	defer db.Close(context.Background())
	logger.WithField("type", dbConfig.Type).Info("Database initialized successfully")

	authConfig, err := auth.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to initialize auth config: %v", err)
	}
	for name := range authConfig.Providers {
		logger.Infof("Auth provider: %s", name)
	}
	broker := auth.NewBroker(authConfig, db, logger)
	authHandler := auth.NewHandler(broker, logger)
	client := auth.NewClient(broker, db, logger)

	flowConfig, err := authflow.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load sign-in configuration: %v", err)
	}

	linker := linking.NewLinker(*initialURLFlag, logger)
	authBrowser := browser.New(browser.SystemOpener{}, linker, logger)
	resolver := authflow.NewRedirectResolver(flowConfig.Redirect, linker, logger)
	controller := authflow.NewController(flowConfig.Provider, resolver, client, authBrowser, logger)

	store := authflow.NewStore(client, logger)
	defer store.Close()

	notificationCfg, err := notifications.LoadNotificationConfig()
	if err != nil {
		logger.Fatalf("Failed to load notification configuration: %v", err)
	}
	notifier, err := notifications.NewNotifier(notificationCfg.ShoutrrrURLs, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize notifier: %v", err)
	}

	navConfig, err := navigator.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load navigator configuration: %v", err)
	}
	nav := navigator.New(store, db, notifier, *navConfig, clockwork.NewRealClock(), logger)
	defer nav.Stop()
	nav.Watch(func(phase navigator.Phase) {
		logger.WithField("phase", phase).Info("Navigator phase")
	})

	webServerConfig, err := webserver.NewWebserverConfig()
	if err != nil {
		logger.Fatalf("Failed to load webserver configuration: %v", err)
	}
	webServer := webserver.NewWebServer(webServerConfig, authHandler, linker, authBrowser, nav, logger)

	g, gctx := errgroup.WithContext(ctx)

	server, err := webserver.StartWebServer(gctx, webServer)
	if err != nil {
		logger.Fatalf("Failed to start web server: %v", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	cleaner := database.NewCleaner(db, dbConfig.CleanupInterval, clockwork.NewRealClock(), logger)
	g.Go(func() error {
		cleaner.Start(gctx)
		return nil
	})

	nav.Start(gctx)
	if err := store.Start(gctx); err != nil {
		logger.WithError(err).Warn("Initial session check failed")
	}

	// A callback delivered as the launch URL is turned into a session directly.
	if *initialURLFlag != "" && browser.MatchesReturnURI(*initialURLFlag, resolver.Resolve(gctx)) {
		session, err := store.CreateSessionFromURL(gctx, *initialURLFlag)
		switch {
		case err != nil:
			logger.WithError(err).Error("Failed to create session from launch URL")
		case session != nil:
			logger.WithField("user", session.User.Email).Info("Session created from launch URL")
		}
	}

	if *signOutFlag {
		if err := store.SignOut(gctx); err != nil {
			logger.WithError(err).Error("Sign-out failed")
		}
	}

	if *signInFlag {
		g.Go(func() error {
			outcome := nav.SignIn(gctx, controller)
			logger.WithFields(logrus.Fields{
				"status": outcome.Status,
				"reason": outcome.Reason,
			}).Info("Sign-in finished")
			return nil
		})
	}

	view := nav.View()
	logger.WithFields(logrus.Fields{"phase": view.Phase, "screen": view.Screen}).Info("Ready")

	if err := g.Wait(); err != nil {
		logger.Errorf("Shutdown error: %v", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete. Exiting.")
}
