// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept primitives and small input structs, never HTTP types,
// and return apperror values. Handlers translate those to status codes.
// The notification scheduler and the CLI call the same services.
//
// DEPENDENCY INJECTION:
// Every service takes repository interfaces, not *sqlite.DB, so tests can
// use an in-memory database or a hand-written fake.
package service

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/sakif/gifteo/internal/apperror"
)

// Clock returns the current time. Services default to time.Now; tests pin it.
type Clock func() time.Time

// bestEffort runs a side effect whose failure must not undo or fail the
// primary operation that already committed. Failures are logged with the
// effect's name so they can be found and replayed by hand.
//
// The side effect gets a context detached from request cancellation: the
// client hanging up after the commit should not leave half the effect done.
func bestEffort(ctx context.Context, logger *slog.Logger, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := fn(ctx); err != nil {
		logger.Warn("best-effort side effect failed",
			slog.String("effect", name),
			slog.String("error", err.Error()),
		)
	}
}

// requireLength validates a trimmed, sanitized string field.
func requireLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	switch {
	case n < min && min == 1:
		return apperror.ValidationFailed(field, field+" is required")
	case n < min:
		return apperror.ValidationFailed(field, field+" is too short")
	case n > max:
		return apperror.ValidationFailed(field, field+" is too long")
	}
	return nil
}
