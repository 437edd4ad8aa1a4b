package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/taskfolders/internal/folders"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/oauth"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	principalContextKey = "taskfolders_principal"
	defaultCookieName   = "taskfolders_session"
)

var (
	errMissingIdentityResolver = errors.New("identity resolver dependency required")
	errMissingSessionManager   = errors.New("session manager dependency required")
	errMissingFolderEditor     = errors.New("folder editor dependency required")
)

// IdentityResolver registers local principals and resolves credentials to principals.
type IdentityResolver interface {
	Register(ctx context.Context, registration users.Registration) (users.Principal, error)
	Resolve(ctx context.Context, credentials users.Credentials) (users.Principal, error)
}

// SessionManager issues, resolves and revokes session tokens.
type SessionManager interface {
	Establish(ctx context.Context, principal users.Principal) (string, time.Time, error)
	Resolve(ctx context.Context, token string) (users.Principal, error)
	Terminate(ctx context.Context, token string) error
}

// FolderEditor edits the folder tree of a single owner.
type FolderEditor interface {
	CreateFolder(ctx context.Context, owner users.Principal, title string) (folders.Folder, error)
	DeleteFolder(ctx context.Context, owner users.Principal, folderID string) error
	ListFolders(ctx context.Context, owner users.Principal) ([]folders.Folder, error)
	GetFolder(ctx context.Context, owner users.Principal, folderID string) (folders.Folder, error)
	CreateTask(ctx context.Context, owner users.Principal, folderID string, name string) (folders.Task, error)
	DeleteTask(ctx context.Context, owner users.Principal, folderID string, taskID string) error
}

type Dependencies struct {
	Identities     IdentityResolver
	Sessions       SessionManager
	Folders        FolderEditor
	Providers      []oauth.Provider
	CookieName     string
	CookieSecure   bool
	SessionTTL     time.Duration
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Identities == nil {
		return nil, errMissingIdentityResolver
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionManager
	}
	if deps.Folders == nil {
		return nil, errMissingFolderEditor
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cookieName := deps.CookieName
	if cookieName == "" {
		cookieName = defaultCookieName
	}
	sessionTTL := deps.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionCookieTTL
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	scripts, err := staticFiles()
	if err != nil {
		return nil, err
	}

	handler := &httpHandler{
		identities:   deps.Identities,
		sessions:     deps.Sessions,
		folders:      deps.Folders,
		providers:    make(map[string]oauth.Provider, len(deps.Providers)),
		cookieName:   cookieName,
		cookieSecure: deps.CookieSecure,
		sessionTTL:   sessionTTL,
		logger:       logger,
	}

	router := gin.New()
	router.SetHTMLTemplate(templates)
	router.Use(gin.CustomRecovery(handler.recoverPanic))
	if len(deps.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(deps.AllowedOrigins))
	}
	router.NoRoute(handler.renderNotFound)
	router.StaticFS("/js", scripts)

	router.GET("/", handler.showPage(pageHome))
	router.GET("/about", handler.showPage(pageAbout))
	router.GET("/reset-password", handler.showPage(pageResetPassword))
	router.GET("/sign-up", handler.showPage(pageSignUp))
	router.POST("/sign-up", handler.handleSignUp)
	router.GET("/login", handler.showPage(pageLogin))
	router.POST("/login", handler.handleLogin)

	for _, provider := range deps.Providers {
		if provider == nil {
			continue
		}
		callbackPath, ok := providerCallbackPaths[provider.Name()]
		if !ok {
			logger.Warn("oauth provider without callback route", zap.String("provider", provider.Name()))
			continue
		}
		handler.providers[provider.Name()] = provider
		router.GET("/auth/"+provider.Name(), handler.handleProviderStart(provider))
		router.GET(callbackPath, handler.handleProviderCallback(provider))
	}

	protected := router.Group("/")
	protected.Use(handler.requirePrincipal)
	protected.GET("/dashboard", handler.handleDashboard)
	protected.POST("/create-task", handler.handleCreateFolder)
	protected.GET("/tasks/:folderId", handler.handleShowFolder)
	protected.POST("/delete-task/:folderId", handler.handleDeleteFolder)
	protected.POST("/tasks/:folderId/create-task", handler.handleCreateTask)
	protected.POST("/tasks/:folderId/delete-task/:taskId", handler.handleDeleteTask)
	protected.POST("/logout", handler.handleLogout)

	return router, nil
}

type httpHandler struct {
	identities   IdentityResolver
	sessions     SessionManager
	folders      FolderEditor
	providers    map[string]oauth.Provider
	cookieName   string
	cookieSecure bool
	sessionTTL   time.Duration
	logger       *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			config.AllowAllOrigins = true
			config.AllowCredentials = false
			return cors.New(config)
		}
	}
	config.AllowOrigins = allowedOrigins
	return cors.New(config)
}

func (h *httpHandler) showPage(page string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.render(c, http.StatusOK, page, pageData{})
	}
}

func (h *httpHandler) recoverPanic(c *gin.Context, recovered any) {
	h.logger.Error("request panicked",
		zap.Any("panic", recovered),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path))
	h.renderServerError(c)
}

// fail logs an unexpected service error with its code and renders the error page.
func (h *httpHandler) fail(c *gin.Context, message string, err error) {
	fields := []zap.Field{zap.Error(err), zap.String("path", c.Request.URL.Path)}
	var usersErr *users.ServiceError
	var foldersErr *folders.ServiceError
	switch {
	case errors.As(err, &usersErr):
		fields = append(fields, zap.String("code", usersErr.Code()))
	case errors.As(err, &foldersErr):
		fields = append(fields, zap.String("code", foldersErr.Code()))
	}
	h.logger.Error(message, fields...)
	h.renderServerError(c)
}
