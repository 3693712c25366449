package server

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

//go:embed templates/login.html
var templateFiles embed.FS

// loginPageData contains data for rendering the login page
type loginPageData struct {
	AppName    string
	ClientName string
	Params     url.Values // authorization request, carried as hidden fields
	Error      string
	Email      string // Preserve email on error
}

func parseLoginTemplate() (*template.Template, error) {
	return template.ParseFS(templateFiles, "templates/login.html")
}

func (s *Server) renderLogin(w http.ResponseWriter, status int, data loginPageData) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := s.loginTmpl.Execute(w, data); err != nil {
		log.Err(err).Msg("Failed to render login template")
	}
}
