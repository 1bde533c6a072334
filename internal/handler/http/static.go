package http

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
)

//go:embed templates/password.html
var templateFS embed.FS

var passwordPage = template.Must(template.ParseFS(templateFS, "templates/password.html"))

// PasswordPage handles GET /{shortCode}/password. The page carries only the
// short code; the target is revealed by POST /api/verify-password.
func (h *Handler) PasswordPage(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := passwordPage.Execute(w, struct{ ShortCode string }{shortCode}); err != nil {
		h.logger.Error("Failed to render password page", "short_code", shortCode, "error", err)
	}
}
