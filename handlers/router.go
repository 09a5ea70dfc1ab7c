package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"eTEats_web/assets"
	"eTEats_web/config"
	"eTEats_web/ingest"
	"eTEats_web/loaders"
	"eTEats_web/middleware"
)

// Deps is everything the HTTP surface needs. Assets may be nil, in which case
// /static and the service worker are not mounted.
type Deps struct {
	Config  config.Config
	Log     zerolog.Logger
	Loader  *loaders.Loader
	Ingest  *ingest.Service
	Assets  *assets.Worker
	Images  *http.Client
	Version string
}

func NewRouter(d Deps) http.Handler {
	if d.Images == nil {
		d.Images = &http.Client{Timeout: 15 * time.Second}
	}

	r := mux.NewRouter()

	r.HandleFunc("/", HomePage).Methods("GET")

	r.HandleFunc("/recipes", func(w http.ResponseWriter, r *http.Request) {
		RecipeListPage(d.Loader, w, r)
	}).Methods("GET")

	r.HandleFunc("/recipes/{slug}", func(w http.ResponseWriter, r *http.Request) {
		RecipeDetailPage(d.Loader, w, r)
	}).Methods("GET")

	r.HandleFunc("/api/recipes", func(w http.ResponseWriter, r *http.Request) {
		GetRecipes(d.Loader, w, r)
	}).Methods("GET")

	r.HandleFunc("/api/recipes/ingest-sql", func(w http.ResponseWriter, r *http.Request) {
		IngestSQL(d.Ingest, d.Config.Ingest.MaxBodyBytes, w, r)
	}).Methods("POST")
	// keeps GET from falling through to the slug route
	r.HandleFunc("/api/recipes/ingest-sql", methodNotAllowed("POST"))

	r.HandleFunc("/api/recipes/{slug}", func(w http.ResponseWriter, r *http.Request) {
		GetRecipe(d.Loader, w, r)
	}).Methods("GET")

	r.HandleFunc("/images/cover", func(w http.ResponseWriter, r *http.Request) {
		FetchImageHandler(d.Images, w, r)
	}).Methods("GET")

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": d.Version})
	}).Methods("GET")

	if d.Assets != nil {
		r.Handle("/service-worker.js", d.Assets.ServiceWorker("/static/")).Methods("GET")
		r.PathPrefix("/static/").Handler(d.Assets.Handler("/static/"))
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   d.Config.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	mws := append(middleware.Logging(d.Log),
		middleware.Recover,
		middleware.Session(d.Config.Auth.CookieName, []byte(d.Config.Auth.JWTSecret)),
	)
	return middleware.Chain(c.Handler(r), mws...)
}
