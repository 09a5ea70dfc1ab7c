// Package loaders fetch and shape the data behind each page. They never
// return errors: a failed remote call degrades to an empty page so the page
// still renders, and the Degraded flag tells the caller it happened.
package loaders

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"eTEats_web/gateway"
	"eTEats_web/models"
)

// Reader is the read-only side of the gateway.
type Reader interface {
	ListPublicRecipes(ctx context.Context) ([]models.Recipe, error)
	RecipeBySlug(ctx context.Context, slug string) (*models.Recipe, error)
	Ingredients(ctx context.Context, recipeID string) ([]models.Ingredient, error)
	Steps(ctx context.Context, recipeID string) ([]models.Step, error)
}

type ListPage struct {
	Recipes  []models.Recipe `json:"recipes"`
	Degraded bool            `json:"degraded,omitempty"`
}

type DetailPage struct {
	Recipe      *models.Recipe      `json:"recipe"`
	Ingredients []models.Ingredient `json:"ingredients"`
	Steps       []models.Step       `json:"steps"`
	NotFound    bool                `json:"-"`
	Degraded    bool                `json:"degraded,omitempty"`
}

type Loader struct {
	reader Reader
	log    zerolog.Logger
}

func New(reader Reader, log zerolog.Logger) *Loader {
	return &Loader{reader: reader, log: log}
}

// List loads every public recipe, newest first.
func (l *Loader) List(ctx context.Context) ListPage {
	recipes, err := l.reader.ListPublicRecipes(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("list recipes failed")
		return ListPage{Recipes: []models.Recipe{}, Degraded: true}
	}
	if recipes == nil {
		recipes = []models.Recipe{}
	}
	return ListPage{Recipes: recipes}
}

// Detail loads a recipe with its ingredients and steps in position order.
// An unknown slug yields a nil recipe with empty sequences.
func (l *Loader) Detail(ctx context.Context, slug string) DetailPage {
	page := DetailPage{
		Ingredients: []models.Ingredient{},
		Steps:       []models.Step{},
	}

	recipe, err := l.reader.RecipeBySlug(ctx, slug)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		page.NotFound = true
		return page
	case err != nil:
		l.log.Error().Err(err).Str("slug", slug).Msg("get recipe failed")
		page.Degraded = true
		return page
	case recipe == nil:
		page.NotFound = true
		return page
	}
	page.Recipe = recipe

	// Each child query degrades on its own, so the group never fails.
	var ingredientsFailed, stepsFailed bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ingredients, err := l.reader.Ingredients(gctx, recipe.ID)
		if err != nil {
			l.log.Error().Err(err).Str("recipe_id", recipe.ID).Msg("list ingredients failed")
			ingredientsFailed = true
			return nil
		}
		if ingredients != nil {
			page.Ingredients = ingredients
		}
		return nil
	})
	g.Go(func() error {
		steps, err := l.reader.Steps(gctx, recipe.ID)
		if err != nil {
			l.log.Error().Err(err).Str("recipe_id", recipe.ID).Msg("list steps failed")
			stepsFailed = true
			return nil
		}
		if steps != nil {
			page.Steps = steps
		}
		return nil
	})
	_ = g.Wait()
	page.Degraded = ingredientsFailed || stepsFailed

	return page
}
