package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"eTEats_web/models"
)

type seedIngredient struct {
	qty, unit, item string
}

type seedStep struct {
	text  string
	timer int
}

type seedRecipe struct {
	slug, title, description string
	servings, prep, cook     int
	ingredients              []seedIngredient
	steps                    []seedStep
}

var demoRecipes = []seedRecipe{
	{
		slug:        "tomato-soup",
		title:       "Tomato Soup",
		description: "Roasted tomatoes blended with stock and a little cream.",
		servings:    4,
		prep:        15,
		cook:        40,
		ingredients: []seedIngredient{
			{"1", "kg", "ripe tomatoes"},
			{"1", "", "onion"},
			{"2", "cloves", "garlic"},
			{"500", "ml", "vegetable stock"},
			{"", "", "salt and pepper"},
		},
		steps: []seedStep{
			{"Halve the tomatoes and roast with the onion and garlic.", 1800},
			{"Blend with the stock until smooth.", 0},
			{"Simmer and season to taste.", 600},
		},
	},
	{
		slug:        "buttermilk-pancakes",
		title:       "Buttermilk Pancakes",
		description: "Thick, fluffy pancakes for a slow weekend.",
		servings:    2,
		prep:        10,
		cook:        15,
		ingredients: []seedIngredient{
			{"200", "g", "flour"},
			{"1", "tsp", "baking powder"},
			{"250", "ml", "buttermilk"},
			{"1", "", "egg"},
		},
		steps: []seedStep{
			{"Whisk the dry ingredients together.", 0},
			{"Beat in the buttermilk and egg until just combined.", 0},
			{"Cook ladlefuls on a hot pan, flipping once.", 120},
		},
	},
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Seed inserts the demo recipes that are not already present and returns how
// many were added.
func (s *SQLStore) Seed(ctx context.Context) (int, error) {
	added := 0
	now := time.Now().UTC()
	for i, demo := range demoRecipes {
		if _, err := s.RecipeBySlug(ctx, demo.slug); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return added, err
		}

		created := now.Add(-time.Duration(i) * time.Hour)
		recipe := &models.Recipe{
			ID:          uuid.NewString(),
			Slug:        demo.slug,
			Title:       demo.title,
			Description: optional(demo.description),
			Servings:    demo.servings,
			PrepMinutes: demo.prep,
			CookMinutes: demo.cook,
			IsPublic:    true,
			CreatedAt:   created,
			UpdatedAt:   created,
		}
		if err := s.InsertRecipe(ctx, recipe); err != nil {
			return added, err
		}

		ingredients := make([]models.Ingredient, 0, len(demo.ingredients))
		for pos, in := range demo.ingredients {
			ingredients = append(ingredients, models.Ingredient{
				ID:        uuid.NewString(),
				RecipeID:  recipe.ID,
				Position:  pos + 1,
				ItemName:  in.item,
				QtyText:   optional(in.qty),
				Unit:      optional(in.unit),
				CreatedAt: created,
			})
		}
		if err := s.InsertIngredients(ctx, ingredients); err != nil {
			return added, err
		}

		steps := make([]models.Step, 0, len(demo.steps))
		for pos, st := range demo.steps {
			step := models.Step{
				ID:        uuid.NewString(),
				RecipeID:  recipe.ID,
				Position:  pos + 1,
				Text:      st.text,
				CreatedAt: created,
			}
			if st.timer > 0 {
				timer := st.timer
				step.TimerSeconds = &timer
			}
			steps = append(steps, step)
		}
		if err := s.InsertSteps(ctx, steps); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
