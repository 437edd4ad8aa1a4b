package server

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/taskfolders/internal/folders"
	"github.com/gin-gonic/gin"
)

const (
	pageHome          = "home.tmpl"
	pageAbout         = "about.tmpl"
	pageSignUp        = "sign-up.tmpl"
	pageLogin         = "login.tmpl"
	pageDashboard     = "dashboard.tmpl"
	pageTask          = "task.tmpl"
	pageResetPassword = "reset-password.tmpl"
	pageNotFound      = "404.tmpl"
	pageServerError   = "500.tmpl"

	folderDateLayout = "01/02/06"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// pageData is the single view model shared by every template.
type pageData struct {
	Title         string
	Authenticated bool
	Warning       string
	Username      string
	Email         string
	DisplayName   string
	Folders       []folders.Folder
	Folder        folders.Folder
}

func loadTemplates() (*template.Template, error) {
	return template.New("pages").
		Funcs(template.FuncMap{"formatDate": formatDate}).
		ParseFS(templateFS, "templates/*.tmpl")
}

func staticFiles() (http.FileSystem, error) {
	scripts, err := fs.Sub(staticFS, "static/js")
	if err != nil {
		return nil, err
	}
	return http.FS(scripts), nil
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format(folderDateLayout)
}

// capitalizeUsername upper-cases the first letter and lower-cases the rest.
func capitalizeUsername(username string) string {
	if username == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(username)
	return string(unicode.ToUpper(first)) + strings.ToLower(username[size:])
}

func (h *httpHandler) render(c *gin.Context, status int, page string, data pageData) {
	if data.Title == "" {
		data.Title = pageTitles[page]
	}
	if !data.Authenticated {
		_, data.Authenticated = currentPrincipal(c)
	}
	c.HTML(status, page, data)
}

func (h *httpHandler) renderNotFound(c *gin.Context) {
	h.render(c, http.StatusNotFound, pageNotFound, pageData{})
	c.Abort()
}

func (h *httpHandler) renderServerError(c *gin.Context) {
	h.render(c, http.StatusInternalServerError, pageServerError, pageData{})
	c.Abort()
}

var pageTitles = map[string]string{
	pageAbout:         "About",
	pageSignUp:        "Sign up",
	pageLogin:         "Log in",
	pageDashboard:     "Dashboard",
	pageResetPassword: "Reset password",
	pageNotFound:      "Not found",
	pageServerError:   "Error",
}
