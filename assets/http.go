package assets

import (
	"bytes"
	"embed"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"text/template"
)

//go:embed service-worker.js.tmpl
var templateFS embed.FS

var swTemplate = template.Must(template.New("service-worker.js.tmpl").Funcs(template.FuncMap{
	"json": func(v interface{}) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}).ParseFS(templateFS, "service-worker.js.tmpl"))

// Handler serves assets under prefix, network first and cache second. The
// X-Cache header says which one answered.
func (w *Worker) Handler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			rw.Header().Set("Allow", "GET, HEAD")
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		asset, fromCache, err := w.Fetch(r.Context(), r.URL.Path)
		if err != nil {
			// assets outside the manifest were never cacheable
			if !w.inManifest(cleanName(r.URL.Path)) {
				http.NotFound(rw, r)
				return
			}
			http.Error(rw, "asset unavailable", http.StatusBadGateway)
			return
		}

		source := "network"
		if fromCache {
			source = "cache"
		}
		rw.Header().Set("Content-Type", asset.ContentType)
		rw.Header().Set("Content-Length", strconv.Itoa(len(asset.Body)))
		rw.Header().Set("X-Cache", source)
		rw.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			rw.Write(asset.Body)
		}
	}))
}

func (w *Worker) inManifest(name string) bool {
	for _, p := range w.Manifest() {
		if p == name {
			return true
		}
	}
	return false
}

// ServiceWorker renders the browser-side worker for the current version.
// Asset URLs are the manifest entries under prefix.
func (w *Worker) ServiceWorker(prefix string) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		manifest := w.Manifest()
		urls := make([]string, 0, len(manifest))
		for _, p := range manifest {
			urls = append(urls, strings.TrimSuffix(prefix, "/")+"/"+p)
		}

		var buf bytes.Buffer
		err := swTemplate.Execute(&buf, struct {
			CacheName string
			Assets    []string
		}{
			CacheName: CacheName(w.Version()),
			Assets:    urls,
		})
		if err != nil {
			w.log.Error().Err(err).Msg("render service worker")
			http.Error(rw, "internal error", http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		rw.Header().Set("Cache-Control", "no-cache")
		rw.Header().Set("Service-Worker-Allowed", "/")
		rw.Write(buf.Bytes())
	})
}
