// Package ingest turns raw SQL-like text into a new recipe, either by handing
// it to the execute_sql remote procedure or by extracting fields from it and
// inserting a row.
package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"eTEats_web/gateway"
	"eTEats_web/models"
)

const SuccessMessage = "Recipe added successfully"

var (
	// ErrValidation is returned for blank input; nothing is sent to the store.
	ErrValidation = errors.New("Missing text in request body")
	// ErrUnavailable is returned when no privileged store is configured.
	ErrUnavailable = errors.New("data service not available on server")
	// ErrRemoteSQLDisabled sends every request straight to the fallback path.
	ErrRemoteSQLDisabled = errors.New("remote SQL execution is disabled")
	// ErrStatementRefused is returned for text that is not a single INSERT.
	ErrStatementRefused = errors.New("only a single INSERT INTO statement is forwarded")

	singleInsert = regexp.MustCompile(`(?is)^insert\s+into\s+[^;]+;?\s*$`)
)

// InsertError wraps a store failure on the fallback path.
type InsertError struct {
	Err error
}

func (e *InsertError) Error() string {
	msg := e.Err.Error()
	var remoteErr *gateway.RemoteError
	if errors.As(e.Err, &remoteErr) {
		msg = remoteErr.Err.Error()
	}
	return "Recipe insert failed: " + msg
}

func (e *InsertError) Unwrap() error {
	return e.Err
}

// Writer is the privileged side of the gateway.
type Writer interface {
	InsertRecipe(ctx context.Context, r *models.Recipe) error
	ExecuteSQL(ctx context.Context, sqlText string) error
}

// Result describes a successful ingestion. ID and Title are only known when
// the fallback path inserted the row itself.
type Result struct {
	Message  string `json:"message"`
	ID       string `json:"id,omitempty"`
	Title    string `json:"title,omitempty"`
	Fallback bool   `json:"fallback"`
}

type Service struct {
	writer    Writer
	remoteSQL bool
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// NewService builds the ingestion service. writer may be nil, in which case
// every call fails with ErrUnavailable.
func NewService(writer Writer, remoteSQL bool, log zerolog.Logger) *Service {
	return &Service{
		writer:    writer,
		remoteSQL: remoteSQL,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Ingest runs the primary path and, if it fails for any reason, the
// fallback. On success exactly one recipe exists that did not before, and no
// ingredient or step rows are written by the fallback.
func (s *Service) Ingest(ctx context.Context, text string) (*Result, error) {
	sqlText := strings.TrimSpace(text)
	if sqlText == "" {
		return nil, ErrValidation
	}
	if s.writer == nil {
		return nil, ErrUnavailable
	}

	err := s.executeRemote(ctx, sqlText)
	if err == nil {
		s.log.Info().Msg("statement executed remotely")
		return &Result{Message: SuccessMessage}, nil
	}
	if errors.Is(err, ErrRemoteSQLDisabled) {
		s.log.Debug().Msg("remote execution disabled, extracting fields")
	} else {
		s.log.Warn().Err(err).Msg("remote execution failed, extracting fields")
	}

	return s.insertExtracted(ctx, sqlText)
}

func (s *Service) executeRemote(ctx context.Context, sqlText string) (err error) {
	if !s.remoteSQL {
		return ErrRemoteSQLDisabled
	}
	if !singleInsert.MatchString(sqlText) {
		return ErrStatementRefused
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execute_sql panicked: %v", r)
		}
	}()
	return s.writer.ExecuteSQL(ctx, sqlText)
}

func (s *Service) insertExtracted(ctx context.Context, sqlText string) (*Result, error) {
	partial, err := ExtractFields(sqlText)
	if err != nil {
		return nil, err
	}

	now := s.now()
	recipe := &models.Recipe{
		ID:          s.newID(),
		Slug:        partial.Slug,
		Title:       partial.Title,
		Description: partial.Description,
		Servings:    partial.Servings,
		IsPublic:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.writer.InsertRecipe(ctx, recipe); err != nil {
		return nil, &InsertError{Err: err}
	}

	s.log.Info().Str("id", recipe.ID).Str("slug", recipe.Slug).Msg("recipe inserted from extracted fields")
	return &Result{
		Message:  SuccessMessage,
		ID:       recipe.ID,
		Title:    recipe.Title,
		Fallback: true,
	}, nil
}
