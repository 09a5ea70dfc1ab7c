// Package gateway is the boundary to the external data service. Every read
// and write of recipes, ingredients and steps goes through a Store; the
// Gateway pairs the read-only store used by pages with the privileged store
// used by ingestion.
package gateway

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"eTEats_web/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrRPCUnsupported is returned by backends that cannot call remote procedures.
	ErrRPCUnsupported = errors.New("remote procedures are not supported by this backend")
	// ErrSlugTaken is returned when an insert collides with an existing slug.
	ErrSlugTaken = errors.New("slug already exists")
)

// RemoteError wraps a failure reported by the external service.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func remote(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}

// Store is one connection to the external service. Implementations add no
// retries or caching of their own.
type Store interface {
	// ListPublicRecipes returns public recipes, newest first.
	ListPublicRecipes(ctx context.Context) ([]models.Recipe, error)
	// RecipeBySlug returns ErrNotFound when no recipe has the slug.
	RecipeBySlug(ctx context.Context, slug string) (*models.Recipe, error)
	// Ingredients returns a recipe's ingredients ordered by position.
	Ingredients(ctx context.Context, recipeID string) ([]models.Ingredient, error)
	// Steps returns a recipe's steps ordered by position.
	Steps(ctx context.Context, recipeID string) ([]models.Step, error)
	InsertRecipe(ctx context.Context, r *models.Recipe) error
	// ExecuteSQL calls the execute_sql remote procedure with sqlText as its
	// only argument.
	ExecuteSQL(ctx context.Context, sqlText string) error
	Close() error
}

// Gateway holds the stores built once at startup. Service may be nil when no
// privileged credentials are configured.
type Gateway struct {
	Public  Store
	Service Store
}

func New(public, service Store) *Gateway {
	return &Gateway{Public: public, Service: service}
}

// Close closes both stores, once each.
func (g *Gateway) Close() error {
	var firstErr error
	if g.Public != nil {
		firstErr = g.Public.Close()
	}
	if g.Service != nil && g.Service != g.Public {
		if err := g.Service.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
