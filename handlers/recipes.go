package handlers

import (
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"github.com/sahilm/fuzzy"

	"eTEats_web/ingest"
	"eTEats_web/loaders"
	"eTEats_web/models"
)

const coverHeight = 500

type messageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// titles lets sahilm/fuzzy search recipe titles.
type titles []models.Recipe

func (t titles) String(i int) string { return t[i].Title }
func (t titles) Len() int            { return len(t) }

// GetRecipes returns the public recipe list. With ?q= the list is narrowed to
// fuzzy title matches, best match first.
func GetRecipes(loader *loaders.Loader, w http.ResponseWriter, r *http.Request) {
	page := loader.List(r.Context())

	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		matches := fuzzy.FindFrom(q, titles(page.Recipes))
		filtered := make([]models.Recipe, 0, len(matches))
		for _, m := range matches {
			filtered = append(filtered, page.Recipes[m.Index])
		}
		page.Recipes = filtered
	}

	writeJSON(w, http.StatusOK, page)
}

func GetRecipe(loader *loaders.Loader, w http.ResponseWriter, r *http.Request) {
	page := loader.Detail(r.Context(), mux.Vars(r)["slug"])

	status := http.StatusOK
	if page.NotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, page)
}

type ingestRequest struct {
	Text string `json:"text"`
}

// IngestSQL accepts {"text": "..."} and creates one recipe from it.
func IngestSQL(svc *ingest.Service, maxBytes int64, w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, messageResponse{
				Message: fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		hlog.FromRequest(r).Debug().Err(err).Msg("undecodable ingest body")
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: ingest.ErrValidation.Error()})
		return
	}

	res, err := svc.Ingest(r.Context(), req.Text)
	if err != nil {
		status, resp := ingestFailure(err)
		if status >= http.StatusInternalServerError {
			hlog.FromRequest(r).Error().Err(err).Msg("ingest failed")
		}
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: res.Message, ID: res.ID, Title: res.Title})
}

func ingestFailure(err error) (int, messageResponse) {
	var extractErr *ingest.ExtractionError
	var insertErr *ingest.InsertError
	switch {
	case errors.Is(err, ingest.ErrValidation):
		return http.StatusBadRequest, messageResponse{Message: err.Error()}
	case errors.Is(err, ingest.ErrUnavailable):
		return http.StatusInternalServerError, messageResponse{Message: err.Error()}
	case errors.As(err, &extractErr):
		return http.StatusBadRequest, messageResponse{Message: "Failed to process recipe", Error: extractErr.Error()}
	case errors.As(err, &insertErr):
		return http.StatusBadRequest, messageResponse{Message: "Failed to process recipe", Error: insertErr.Error()}
	}
	return http.StatusInternalServerError, messageResponse{Message: err.Error()}
}

// FetchImageHandler fetches a cover image, scales it to a fixed height and
// returns it in its original format.
func FetchImageHandler(client *http.Client, w http.ResponseWriter, r *http.Request) {
	imageURL := r.URL.Query().Get("url")
	if imageURL == "" {
		http.Error(w, "URL parameter is required", http.StatusBadRequest)
		return
	}
	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		http.Error(w, "URL must be absolute http(s)", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		http.Error(w, "Failed to fetch image", http.StatusBadRequest)
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("url", imageURL).Msg("image fetch failed")
		http.Error(w, "Failed to fetch image", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		http.Error(w, "Failed to fetch image", http.StatusBadGateway)
		return
	}

	img, format, err := image.Decode(resp.Body)
	if err != nil {
		http.Error(w, "Failed to decode image", http.StatusUnsupportedMediaType)
		return
	}

	// width 0 keeps the aspect ratio
	resized := resize.Resize(0, coverHeight, img, resize.Lanczos3)

	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		w.Header().Set("Content-Type", "image/jpeg")
		err = jpeg.Encode(w, resized, nil)
	case "png":
		w.Header().Set("Content-Type", "image/png")
		err = png.Encode(w, resized)
	default:
		http.Error(w, "Unsupported image format", http.StatusUnsupportedMediaType)
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode resized image")
	}
}

// methodNotAllowed answers every request with 405 and the allowed methods.
func methodNotAllowed(allowed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allowed)
		writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: "Method not allowed"})
	}
}
