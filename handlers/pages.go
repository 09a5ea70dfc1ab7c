package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"

	"eTEats_web/loaders"
	"eTEats_web/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"plural": func(n int, one, many string) string {
		if n == 1 {
			return one
		}
		return many
	},
}

var pages = map[string]*template.Template{
	"home":   parsePage("home.html"),
	"list":   parsePage("list.html"),
	"detail": parsePage("detail.html"),
}

func parsePage(name string) *template.Template {
	return template.Must(template.New("layout.html").Funcs(funcs).
		ParseFS(templateFS, "templates/layout.html", "templates/"+name))
}

type pageData struct {
	Title string
	User  *middleware.User
	Data  interface{}
}

func render(w http.ResponseWriter, r *http.Request, status int, name, title string, data interface{}) {
	user, _ := middleware.UserFrom(r.Context())

	var buf bytes.Buffer
	if err := pages[name].Execute(&buf, pageData{Title: title, User: user, Data: data}); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("page", name).Msg("render failed")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func HomePage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "home", "Recipes", nil)
}

func RecipeListPage(loader *loaders.Loader, w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "list", "All Recipes", loader.List(r.Context()))
}

func RecipeDetailPage(loader *loaders.Loader, w http.ResponseWriter, r *http.Request) {
	page := loader.Detail(r.Context(), mux.Vars(r)["slug"])

	if page.NotFound {
		render(w, r, http.StatusNotFound, "detail", "Recipe not found", page)
		return
	}
	title := "Recipe"
	if page.Recipe != nil {
		title = page.Recipe.Title
	}
	render(w, r, http.StatusOK, "detail", title, page)
}
