package gateway

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"eTEats_web/models"
)

const pgUniqueViolation = "23505"

// SQLStore talks to a relational backend through bun. Postgres is the hosted
// service; sqlite is used for local development and tests.
type SQLStore struct {
	db       *bun.DB
	postgres bool
}

// OpenPostgres connects with the pgx driver. The DSN decides which database
// role, and therefore which privileges, the store runs with.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}
	return &SQLStore{db: bun.NewDB(sqldb, pgdialect.New()), postgres: true}, nil
}

// OpenSQLite opens (creating if needed) a sqlite database at path with
// foreign keys enforced.
func OpenSQLite(path string) (*SQLStore, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	sqldb, err := sql.Open("sqlite3", path+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite")
	}
	// sqlite allows a single writer
	sqldb.SetMaxOpenConns(1)
	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, errors.Wrap(err, "failed to connect to sqlite")
	}
	return &SQLStore{db: bun.NewDB(sqldb, sqlitedialect.New())}, nil
}

// DB exposes the bun handle for seeding and migrations.
func (s *SQLStore) DB() *bun.DB {
	return s.db
}

// Migrate creates the recipe tables if they are missing. The hosted service
// owns its schema; this exists for sqlite.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*models.Recipe)(nil)).IfNotExists().Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to create recipes")
	}
	children := []interface{}{(*models.Ingredient)(nil), (*models.Step)(nil)}
	for _, model := range children {
		_, err := s.db.NewCreateTable().
			Model(model).
			IfNotExists().
			ForeignKey(`("recipe_id") REFERENCES "recipes" ("id") ON DELETE CASCADE`).
			Exec(ctx)
		if err != nil {
			return errors.Wrapf(err, "failed to create %T", model)
		}
	}
	return nil
}

func (s *SQLStore) ListPublicRecipes(ctx context.Context) ([]models.Recipe, error) {
	recipes := make([]models.Recipe, 0)
	err := s.db.NewSelect().
		Model(&recipes).
		Where("is_public = ?", true).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, remote("list recipes", err)
	}
	return recipes, nil
}

func (s *SQLStore) RecipeBySlug(ctx context.Context, slug string) (*models.Recipe, error) {
	recipe := new(models.Recipe)
	err := s.db.NewSelect().
		Model(recipe).
		Where("slug = ?", slug).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, remote("get recipe", err)
	}
	return recipe, nil
}

func (s *SQLStore) Ingredients(ctx context.Context, recipeID string) ([]models.Ingredient, error) {
	ingredients := make([]models.Ingredient, 0)
	err := s.db.NewSelect().
		Model(&ingredients).
		Where("recipe_id = ?", recipeID).
		OrderExpr("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, remote("list ingredients", err)
	}
	return ingredients, nil
}

func (s *SQLStore) Steps(ctx context.Context, recipeID string) ([]models.Step, error) {
	steps := make([]models.Step, 0)
	err := s.db.NewSelect().
		Model(&steps).
		Where("recipe_id = ?", recipeID).
		OrderExpr("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, remote("list steps", err)
	}
	return steps, nil
}

func (s *SQLStore) InsertRecipe(ctx context.Context, r *models.Recipe) error {
	if _, err := s.db.NewInsert().Model(r).Exec(ctx); err != nil {
		if isSlugViolation(err) {
			return remote("insert recipe", ErrSlugTaken)
		}
		return remote("insert recipe", err)
	}
	return nil
}

// InsertIngredients and InsertSteps are used by seeding; ingestion never
// creates child rows.
func (s *SQLStore) InsertIngredients(ctx context.Context, ingredients []models.Ingredient) error {
	if len(ingredients) == 0 {
		return nil
	}
	_, err := s.db.NewInsert().Model(&ingredients).Exec(ctx)
	return remote("insert ingredients", err)
}

func (s *SQLStore) InsertSteps(ctx context.Context, steps []models.Step) error {
	if len(steps) == 0 {
		return nil
	}
	_, err := s.db.NewInsert().Model(&steps).Exec(ctx)
	return remote("insert steps", err)
}

func (s *SQLStore) ExecuteSQL(ctx context.Context, sqlText string) error {
	if !s.postgres {
		return remote("execute_sql", ErrRPCUnsupported)
	}
	_, err := s.db.ExecContext(ctx, "SELECT execute_sql(sql_string => ?)", sqlText)
	return remote("execute_sql", err)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// isSlugViolation reports a unique violation on the slug column only. Other
// key collisions stay plain remote errors.
func isSlugViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation && strings.Contains(pgErr.ConstraintName, "slug")
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
			strings.Contains(liteErr.Error(), ".slug")
	}
	return false
}
