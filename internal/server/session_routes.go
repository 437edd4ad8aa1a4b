package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/taskfolders/internal/auth"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/oauth"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	warningMissingCredentials = "Username and password are required!"
	warningInvalidCredentials = "Incorrect username or password. Please try again."

	defaultSessionCookieTTL = auth.DefaultSessionTTL
	stateCookiePrefix       = "taskfolders_oauth_state_"
	stateCookieMaxAge       = 10 * time.Minute
)

var providerCallbackPaths = map[string]string{
	oauth.ProviderGoogle:   "/auth/google/todolist",
	oauth.ProviderFacebook: "/auth/facebook/callback",
}

type signUpForm struct {
	Username string `form:"username"`
	Email    string `form:"email"`
	Password string `form:"password"`
}

type loginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

func (h *httpHandler) handleSignUp(c *gin.Context) {
	var form signUpForm
	if err := c.ShouldBind(&form); err != nil {
		h.render(c, http.StatusBadRequest, pageSignUp, pageData{Warning: "Fill all fields!"})
		return
	}

	_, err := h.identities.Register(c.Request.Context(), users.Registration{
		Username: form.Username,
		Secret:   form.Password,
		Email:    form.Email,
	})
	var validationErr *users.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.render(c, http.StatusOK, pageSignUp, pageData{
			Warning:  validationErr.Message,
			Username: form.Username,
			Email:    form.Email,
		})
		return
	case err != nil:
		h.fail(c, "registration failed", err)
		return
	}
	c.Redirect(http.StatusFound, "/login")
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var form loginForm
	_ = c.ShouldBind(&form)
	if strings.TrimSpace(form.Username) == "" || strings.TrimSpace(form.Password) == "" {
		h.render(c, http.StatusOK, pageLogin, pageData{Warning: warningMissingCredentials, Username: form.Username})
		return
	}

	principal, err := h.identities.Resolve(c.Request.Context(), users.LocalCredentials{
		Username: form.Username,
		Secret:   form.Password,
	})
	switch {
	case errors.Is(err, users.ErrInvalidCredentials), errors.Is(err, users.ErrValidation):
		h.render(c, http.StatusOK, pageLogin, pageData{Warning: warningInvalidCredentials, Username: form.Username})
		return
	case err != nil:
		h.fail(c, "login failed", err)
		return
	}

	if !h.startSession(c, principal) {
		return
	}
	c.Redirect(http.StatusFound, "/dashboard")
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	token, _ := c.Cookie(h.cookieName)
	if err := h.sessions.Terminate(c.Request.Context(), token); err != nil {
		h.fail(c, "logout failed", err)
		return
	}
	h.clearSessionCookie(c)
	c.Redirect(http.StatusFound, "/")
}

func (h *httpHandler) handleProviderStart(provider oauth.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := oauth.NewState()
		if err != nil {
			h.fail(c, "oauth state generation failed", err)
			return
		}
		h.setCookie(c, stateCookiePrefix+provider.Name(), state, int(stateCookieMaxAge.Seconds()))
		c.Redirect(http.StatusFound, provider.AuthCodeURL(state))
	}
}

func (h *httpHandler) handleProviderCallback(provider oauth.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		stateCookie := stateCookiePrefix + provider.Name()
		expectedState, _ := c.Cookie(stateCookie)
		h.setCookie(c, stateCookie, "", -1)

		if providerErr := c.Query("error"); providerErr != "" {
			h.logger.Info("oauth sign-in declined",
				zap.String("provider", provider.Name()),
				zap.String("error", providerErr))
			c.Redirect(http.StatusFound, "/login")
			return
		}
		if err := oauth.CheckState(expectedState, c.Query("state")); err != nil {
			h.logger.Warn("oauth callback rejected", zap.String("provider", provider.Name()), zap.Error(err))
			c.Redirect(http.StatusFound, "/login")
			return
		}

		credentials, err := provider.Exchange(c.Request.Context(), c.Query("code"))
		if err != nil {
			h.logger.Warn("oauth exchange failed", zap.String("provider", provider.Name()), zap.Error(err))
			c.Redirect(http.StatusFound, "/login")
			return
		}

		principal, err := h.identities.Resolve(c.Request.Context(), credentials)
		if errors.Is(err, users.ErrValidation) {
			h.logger.Info("oauth profile rejected", zap.String("provider", provider.Name()), zap.Error(err))
			c.Redirect(http.StatusFound, "/login")
			return
		}
		if err != nil {
			h.fail(c, "oauth sign-in failed", err)
			return
		}

		if !h.startSession(c, principal) {
			return
		}
		c.Redirect(http.StatusFound, "/dashboard")
	}
}

// requirePrincipal resolves the session cookie and stores the principal on the context, or redirects to /login.
func (h *httpHandler) requirePrincipal(c *gin.Context) {
	token, err := c.Cookie(h.cookieName)
	if err != nil || strings.TrimSpace(token) == "" {
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
		return
	}

	principal, err := h.sessions.Resolve(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			h.fail(c, "session lookup failed", err)
			return
		}
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		h.clearSessionCookie(c)
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
		return
	}

	c.Set(principalContextKey, principal)
	c.Next()
}

func currentPrincipal(c *gin.Context) (users.Principal, bool) {
	value, ok := c.Get(principalContextKey)
	if !ok {
		return users.Principal{}, false
	}
	principal, ok := value.(users.Principal)
	return principal, ok
}

func (h *httpHandler) startSession(c *gin.Context, principal users.Principal) bool {
	token, _, err := h.sessions.Establish(c.Request.Context(), principal)
	if err != nil {
		h.fail(c, "session establishment failed", err)
		return false
	}
	h.setCookie(c, h.cookieName, token, int(h.sessionTTL.Seconds()))
	return true
}

func (h *httpHandler) clearSessionCookie(c *gin.Context) {
	h.setCookie(c, h.cookieName, "", -1)
}

func (h *httpHandler) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", h.cookieSecure, true)
}
