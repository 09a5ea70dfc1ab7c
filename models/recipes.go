package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type Recipe struct {
	bun.BaseModel `bun:"table:recipes,alias:r" firestore:"-" json:"-"`

	ID            string    `bun:"id,pk" firestore:"id" json:"id"`
	UserID        *string   `bun:"user_id" firestore:"user_id" json:"user_id"`
	Slug          string    `bun:"slug,notnull,unique" firestore:"slug" json:"slug"`
	Title         string    `bun:"title,notnull" firestore:"title" json:"title"`
	Description   *string   `bun:"description" firestore:"description" json:"description"`
	Servings      int       `bun:"servings,notnull" firestore:"servings" json:"servings"`
	PrepMinutes   int       `bun:"prep_minutes,notnull" firestore:"prep_minutes" json:"prep_minutes"`
	CookMinutes   int       `bun:"cook_minutes,notnull" firestore:"cook_minutes" json:"cook_minutes"`
	ImageCoverURL *string   `bun:"image_cover_url" firestore:"image_cover_url" json:"image_cover_url"`
	Cuisine       *string   `bun:"cuisine" firestore:"cuisine" json:"cuisine,omitempty"`
	Difficulty    *string   `bun:"difficulty" firestore:"difficulty" json:"difficulty,omitempty"`
	Tags          []string  `bun:"-" firestore:"tags" json:"tags,omitempty"`
	IsPublic      bool      `bun:"is_public,notnull" firestore:"is_public" json:"is_public"`
	CreatedAt     time.Time `bun:"created_at,notnull" firestore:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" firestore:"updated_at" json:"updated_at"`
}

// TotalMinutes is prep plus cook time.
func (r *Recipe) TotalMinutes() int {
	return r.PrepMinutes + r.CookMinutes
}

type Ingredient struct {
	bun.BaseModel `bun:"table:recipe_ingredients,alias:ri" firestore:"-" json:"-"`

	ID        string    `bun:"id,pk" firestore:"id" json:"id"`
	RecipeID  string    `bun:"recipe_id,notnull,unique:recipe_ingredient_position" firestore:"recipe_id" json:"recipe_id"`
	Position  int       `bun:"position,notnull,unique:recipe_ingredient_position" firestore:"position" json:"position"`
	ItemName  string    `bun:"item_name,notnull" firestore:"item_name" json:"item_name"`
	QtyText   *string   `bun:"qty_text" firestore:"qty_text" json:"qty_text"`
	Unit      *string   `bun:"unit" firestore:"unit" json:"unit"`
	Note      *string   `bun:"note" firestore:"note" json:"note"`
	CreatedAt time.Time `bun:"created_at,notnull" firestore:"created_at" json:"created_at"`
}

type Step struct {
	bun.BaseModel `bun:"table:recipe_steps,alias:rs" firestore:"-" json:"-"`

	ID           string    `bun:"id,pk" firestore:"id" json:"id"`
	RecipeID     string    `bun:"recipe_id,notnull,unique:recipe_step_position" firestore:"recipe_id" json:"recipe_id"`
	Position     int       `bun:"position,notnull,unique:recipe_step_position" firestore:"position" json:"position"`
	Text         string    `bun:"text,notnull" firestore:"text" json:"text"`
	TimerSeconds *int      `bun:"timer_seconds" firestore:"timer_seconds" json:"timer_seconds"`
	CreatedAt    time.Time `bun:"created_at,notnull" firestore:"created_at" json:"created_at"`
}

// Timer formats the step timer as m:ss, or "" when the step has none.
func (s *Step) Timer() string {
	if s.TimerSeconds == nil || *s.TimerSeconds <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", *s.TimerSeconds/60, *s.TimerSeconds%60)
}
