package gateway

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"

	"eTEats_web/models"
)

const (
	recipesCollection     = "recipes"
	ingredientsCollection = "recipe_ingredients"
	stepsCollection       = "recipe_steps"
)

// FirestoreStore keeps each table as a collection whose document IDs are the
// record IDs. Firestore has no stored procedures, so ExecuteSQL always fails.
//
// The list and child queries need the composite indexes in
// firestore.indexes.json (deploy with `firebase deploy --only firestore:indexes`);
// without them Firestore answers FailedPrecondition.
type FirestoreStore struct {
	client *firestore.Client
}

// OpenFirestore uses application default credentials, or the emulator when
// FIRESTORE_EMULATOR_HOST is set.
func OpenFirestore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create firestore client")
	}
	return &FirestoreStore{client: client}, nil
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) ListPublicRecipes(ctx context.Context) ([]models.Recipe, error) {
	iter := s.client.Collection(recipesCollection).
		Where("is_public", "==", true).
		OrderBy("created_at", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	recipes := make([]models.Recipe, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, remote("list recipes", err)
		}
		var recipe models.Recipe
		if err := doc.DataTo(&recipe); err != nil {
			return nil, remote("decode recipe", err)
		}
		recipes = append(recipes, recipe)
	}
	return recipes, nil
}

func (s *FirestoreStore) RecipeBySlug(ctx context.Context, slug string) (*models.Recipe, error) {
	iter := s.client.Collection(recipesCollection).Where("slug", "==", slug).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, remote("get recipe", err)
	}
	var recipe models.Recipe
	if err := doc.DataTo(&recipe); err != nil {
		return nil, remote("decode recipe", err)
	}
	return &recipe, nil
}

func (s *FirestoreStore) Ingredients(ctx context.Context, recipeID string) ([]models.Ingredient, error) {
	iter := s.children(ctx, ingredientsCollection, recipeID)
	defer iter.Stop()

	ingredients := make([]models.Ingredient, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, remote("list ingredients", err)
		}
		var ingredient models.Ingredient
		if err := doc.DataTo(&ingredient); err != nil {
			return nil, remote("decode ingredient", err)
		}
		ingredients = append(ingredients, ingredient)
	}
	return ingredients, nil
}

func (s *FirestoreStore) Steps(ctx context.Context, recipeID string) ([]models.Step, error) {
	iter := s.children(ctx, stepsCollection, recipeID)
	defer iter.Stop()

	steps := make([]models.Step, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, remote("list steps", err)
		}
		var step models.Step
		if err := doc.DataTo(&step); err != nil {
			return nil, remote("decode step", err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (s *FirestoreStore) children(ctx context.Context, collection, recipeID string) *firestore.DocumentIterator {
	return s.client.Collection(collection).
		Where("recipe_id", "==", recipeID).
		OrderBy("position", firestore.Asc).
		Documents(ctx)
}

// InsertRecipe checks the slug and creates the document in one transaction,
// standing in for the unique index a relational backend would have.
func (s *FirestoreStore) InsertRecipe(ctx context.Context, r *models.Recipe) error {
	recipes := s.client.Collection(recipesCollection)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(recipes.Where("slug", "==", r.Slug).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrSlugTaken
		}
		return tx.Create(recipes.Doc(r.ID), r)
	})
	return remote("insert recipe", err)
}

func (s *FirestoreStore) ExecuteSQL(context.Context, string) error {
	return remote("execute_sql", ErrRPCUnsupported)
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
