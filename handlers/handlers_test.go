package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eTEats_web/assets"
	"eTEats_web/config"
	"eTEats_web/gateway"
	"eTEats_web/ingest"
	"eTEats_web/loaders"
	"eTEats_web/models"
)

const tomatoSoup = "INSERT INTO recipes (title, slug, servings) VALUES ('Tomato Soup', 'tomato-soup', 4)"

// spyWriter counts calls that reach the privileged store.
type spyWriter struct {
	ingest.Writer
	calls int
}

func (s *spyWriter) InsertRecipe(ctx context.Context, r *models.Recipe) error {
	s.calls++
	return s.Writer.InsertRecipe(ctx, r)
}

func (s *spyWriter) ExecuteSQL(ctx context.Context, sqlText string) error {
	s.calls++
	return s.Writer.ExecuteSQL(ctx, sqlText)
}

type failingReader struct{}

func (failingReader) ListPublicRecipes(context.Context) ([]models.Recipe, error) {
	return nil, errors.New("connection refused")
}

func (failingReader) RecipeBySlug(context.Context, string) (*models.Recipe, error) {
	return nil, errors.New("connection refused")
}

func (failingReader) Ingredients(context.Context, string) ([]models.Ingredient, error) {
	return nil, errors.New("connection refused")
}

func (failingReader) Steps(context.Context, string) ([]models.Step, error) {
	return nil, errors.New("connection refused")
}

type testEnv struct {
	store  *gateway.SQLStore
	writer *spyWriter
	cfg    config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := gateway.OpenSQLite(filepath.Join(t.TempDir(), "recipes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	return &testEnv{store: store, writer: &spyWriter{Writer: store}, cfg: cfg}
}

func (e *testEnv) router(t *testing.T, reader loaders.Reader) http.Handler {
	t.Helper()
	if reader == nil {
		reader = e.store
	}
	fsys := fstest.MapFS{"app.css": {Data: []byte("body{}")}}
	manifest, err := assets.BuildManifest(fsys)
	require.NoError(t, err)
	worker := assets.NewWorker("test", manifest, assets.NewFSOrigin(fsys), zerolog.Nop())
	require.NoError(t, worker.Install(context.Background()))

	return NewRouter(Deps{
		Config:  e.cfg,
		Log:     zerolog.Nop(),
		Loader:  loaders.New(reader, zerolog.Nop()),
		Ingest:  ingest.NewService(e.writer, true, zerolog.Nop()),
		Assets:  worker,
		Version: "test",
	})
}

func (e *testEnv) seed(t *testing.T, slug, title string, created time.Time) *models.Recipe {
	t.Helper()
	r := &models.Recipe{
		ID:        uuid.NewString(),
		Slug:      slug,
		Title:     title,
		Servings:  2,
		IsPublic:  true,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, e.store.InsertRecipe(context.Background(), r))
	return r
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestIngestSQL_MissingText(t *testing.T) {
	env := newTestEnv(t)
	h := env.router(t, nil)

	for _, body := range []string{`{}`, `{"text":"   "}`, `not json`, `{"text": 42}`} {
		rec := do(h, http.MethodPost, "/api/recipes/ingest-sql", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"message":"Missing text in request body"}`, rec.Body.String())
	}
	assert.Zero(t, env.writer.calls, "the data service must not be contacted")
}

func TestIngestSQL_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Ingest.MaxBodyBytes = 64
	h := env.router(t, nil)

	body, err := json.Marshal(map[string]string{"text": strings.Repeat("x", 200)})
	require.NoError(t, err)
	rec := do(h, http.MethodPost, "/api/recipes/ingest-sql", string(body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"message":"Request body exceeds 64 bytes"}`, rec.Body.String())
	assert.Zero(t, env.writer.calls)
}

func TestIngestSQL_OnlyPost(t *testing.T) {
	env := newTestEnv(t)
	h := env.router(t, nil)

	rec := do(h, http.MethodGet, "/api/recipes/ingest-sql", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
	assert.JSONEq(t, `{"message":"Method not allowed"}`, rec.Body.String())
}

func TestIngestSQL_FallbackInsertsRecipe(t *testing.T) {
	env := newTestEnv(t)
	h := env.router(t, nil)

	body, err := json.Marshal(map[string]string{"text": tomatoSoup})
	require.NoError(t, err)
	rec := do(h, http.MethodPost, "/api/recipes/ingest-sql", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, "Recipe added successfully", out["message"])
	assert.Equal(t, "Tomato Soup", out["title"])
	_, err = uuid.Parse(out["id"].(string))
	assert.NoError(t, err)

	rec = do(h, http.MethodGet, "/api/recipes/tomato-soup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page loaders.DetailPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.NotNil(t, page.Recipe)
	assert.Equal(t, 4, page.Recipe.Servings)
	assert.True(t, page.Recipe.IsPublic)
	assert.Nil(t, page.Recipe.Description)
	assert.Empty(t, page.Ingredients)
	assert.Empty(t, page.Steps)
}

func TestIngestSQL_Failures(t *testing.T) {
	env := newTestEnv(t)
	h := env.router(t, nil)
	env.seed(t, "tomato-soup", "Tomato Soup", time.Now().UTC())

	rec := do(h, http.MethodPost, "/api/recipes/ingest-sql", `{"text":"DELETE FROM recipes"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Failed to process recipe","error":"Could not parse recipe data from SQL"}`, rec.Body.String())

	body, err := json.Marshal(map[string]string{"text": tomatoSoup})
	require.NoError(t, err)
	rec = do(h, http.MethodPost, "/api/recipes/ingest-sql", string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "Failed to process recipe", out["message"])
	assert.Equal(t, "Recipe insert failed: slug already exists", out["error"])
}

func TestIngestSQL_NoPrivilegedStore(t *testing.T) {
	env := newTestEnv(t)
	h := NewRouter(Deps{
		Config: env.cfg,
		Log:    zerolog.Nop(),
		Loader: loaders.New(env.store, zerolog.Nop()),
		Ingest: ingest.NewService(nil, true, zerolog.Nop()),
	})

	rec := do(h, http.MethodPost, "/api/recipes/ingest-sql", `{"text":"INSERT INTO recipes"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"data service not available on server"}`, rec.Body.String())
}

func TestRecipeDetail_NotFound(t *testing.T) {
	env := newTestEnv(t)
	h := env.router(t, nil)

	rec := do(h, http.MethodGet, "/api/recipes/nonexistent-slug", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"recipe":null,"ingredients":[],"steps":[]}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/recipes/nonexistent-slug", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Recipe not found")
}

func TestRecipeDetailPage(t *testing.T) {
	env := newTestEnv(t)
	h := env.router(t, nil)
	ctx := context.Background()

	r := env.seed(t, "pancakes", "Pancakes", time.Now().UTC())
	cup, timer := "1 cup", 90
	require.NoError(t, env.store.InsertIngredients(ctx, []models.Ingredient{
		{ID: uuid.NewString(), RecipeID: r.ID, Position: 2, ItemName: "milk", CreatedAt: r.CreatedAt},
		{ID: uuid.NewString(), RecipeID: r.ID, Position: 1, ItemName: "flour", QtyText: &cup, CreatedAt: r.CreatedAt},
	}))
	require.NoError(t, env.store.InsertSteps(ctx, []models.Step{
		{ID: uuid.NewString(), RecipeID: r.ID, Position: 1, Text: "Whisk everything.", TimerSeconds: &timer, CreatedAt: r.CreatedAt},
	}))

	rec := do(h, http.MethodGet, "/recipes/pancakes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>Pancakes</h1>")
	assert.Contains(t, body, "1 cup flour")
	assert.Less(t, strings.Index(body, "flour"), strings.Index(body, "milk"))
	assert.Contains(t, body, `<span class="timer">1:30</span>`)
}

func TestRecipeList(t *testing.T) {
	env := newTestEnv(t)
	h := env.router(t, nil)
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	env.seed(t, "tomato-soup", "Tomato Soup", base)
	env.seed(t, "pancakes", "Pancakes", base.Add(time.Hour))

	rec := do(h, http.MethodGet, "/api/recipes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page loaders.ListPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Recipes, 2)
	assert.Equal(t, "pancakes", page.Recipes[0].Slug)

	rec = do(h, http.MethodGet, "/api/recipes?q=tmt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = loaders.ListPage{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Recipes, 1)
	assert.Equal(t, "Tomato Soup", page.Recipes[0].Title)

	rec = do(h, http.MethodGet, "/recipes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/recipes/tomato-soup"`)
	assert.Contains(t, rec.Body.String(), "2 servings")
}

func TestRecipeList_RemoteDown(t *testing.T) {
	env := newTestEnv(t)
	h := env.router(t, failingReader{})

	rec := do(h, http.MethodGet, "/api/recipes", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"recipes":[],"degraded":true}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/recipes", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Recipes are unavailable right now")

	rec = do(h, http.MethodGet, "/recipes/anything", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not be loaded")
}

func TestHomePage(t *testing.T) {
	env := newTestEnv(t)
	h := env.router(t, nil)

	rec := do(h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<a class="button" href="/recipes">Browse Recipes</a>`)
	assert.NotContains(t, rec.Body.String(), "Signed in as")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "cook@example.com",
	}).SignedString([]byte(env.cfg.Auth.JWTSecret))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: env.cfg.Auth.CookieName, Value: token})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "Signed in as cook@example.com")
}

func TestHealthzAndStatic(t *testing.T) {
	env := newTestEnv(t)
	h := env.router(t, nil)

	rec := do(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(h, http.MethodGet, "/static/app.css", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())

	rec = do(h, http.MethodGet, "/service-worker.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cache-test"`)
}

func TestFetchImageHandler(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cover.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		png.Encode(w, image.NewRGBA(image.Rect(0, 0, 40, 20)))
	}))
	defer upstream.Close()

	env := newTestEnv(t)
	h := env.router(t, nil)

	rec := do(h, http.MethodGet, "/images/cover?url="+upstream.URL+"/cover.png", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 500, img.Bounds().Dy())
	assert.Equal(t, 1000, img.Bounds().Dx())

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/images/cover", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/images/cover?url=file:///etc/passwd", "").Code)
	assert.Equal(t, http.StatusBadGateway, do(h, http.MethodGet, "/images/cover?url="+upstream.URL+"/missing.png", "").Code)
}
