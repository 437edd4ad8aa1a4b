package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/taskfolders/internal/auth"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/config"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/database"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/folders"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/logging"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/oauth"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/server"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sessionPurgeInterval = 15 * time.Minute

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskfolders-api",
		Short: "Task Folders web service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Duration("session-ttl", defaults.GetDuration("session.ttl"), "Absolute session lifetime")
	cmd.PersistentFlags().Bool("cookie-secure", defaults.GetBool("session.cookie_secure"), "Mark the session cookie Secure")
	cmd.PersistentFlags().StringSlice("cors-origins", nil, "Origins allowed to make cross-origin requests")
	cmd.PersistentFlags().String("google-client-id", "", "Google OAuth client ID")
	cmd.PersistentFlags().String("google-jwks-url", defaults.GetString("google.jwks_url"), "Google JWKS URL")
	cmd.PersistentFlags().String("facebook-app-id", "", "Facebook OAuth app ID")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "session.ttl", "session-ttl")
	bindFlag(cmd, "session.cookie_secure", "cookie-secure")
	bindFlag(cmd, "cors.allowed_origins", "cors-origins")
	bindFlag(cmd, "google.client_id", "google-client-id")
	bindFlag(cmd, "google.jwks_url", "google-jwks-url")
	bindFlag(cmd, "facebook.app_id", "facebook-app-id")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	idProvider := users.NewUUIDProvider()

	identityService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	sessionManager, err := auth.NewSessionManager(auth.SessionManagerConfig{
		Database:      db,
		Principals:    identityService,
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		TTL:           appConfig.SessionTTL,
		IDProvider:    idProvider,
		Clock:         time.Now,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	folderService, err := folders.NewService(folders.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	providers, err := buildProviders(appConfig, logger)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Identities:     identityService,
		Sessions:       sessionManager,
		Folders:        folderService,
		Providers:      providers,
		CookieName:     appConfig.SessionCookieName,
		CookieSecure:   appConfig.SessionCookieSecure,
		SessionTTL:     sessionManager.TTL(),
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		purgeExpiredSessions(groupCtx, sessionManager, logger)
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func buildProviders(appConfig config.AppConfig, logger *zap.Logger) ([]oauth.Provider, error) {
	var providers []oauth.Provider

	if appConfig.Google.Enabled() {
		verifier, err := oauth.NewGoogleVerifier(oauth.GoogleVerifierConfig{
			Audience:       appConfig.Google.ClientID,
			JWKSURL:        appConfig.Google.JWKSURL,
			AllowedIssuers: []string{"https://accounts.google.com", "accounts.google.com"},
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		google, err := oauth.NewGoogleProvider(oauth.GoogleConfig{
			ClientID:     appConfig.Google.ClientID,
			ClientSecret: appConfig.Google.ClientSecret,
			CallbackURL:  appConfig.Google.CallbackURL,
			Verifier:     verifier,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, google)
	}

	if appConfig.Facebook.Enabled() {
		facebook, err := oauth.NewFacebookProvider(oauth.FacebookConfig{
			AppID:       appConfig.Facebook.AppID,
			AppSecret:   appConfig.Facebook.AppSecret,
			CallbackURL: appConfig.Facebook.CallbackURL,
			GraphURL:    appConfig.Facebook.GraphURL,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, facebook)
	}

	return providers, nil
}

func purgeExpiredSessions(ctx context.Context, sessions *auth.SessionManager, logger *zap.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := sessions.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("session purge failed", zap.Error(err))
				continue
			}
			if purged > 0 {
				logger.Info("expired sessions purged", zap.Int64("count", purged))
			}
		}
	}
}
