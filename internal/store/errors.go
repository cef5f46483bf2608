package store

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pricebook/pricebook/internal/shared"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
	pgDataExceptionClass  = "22"
)

// classify maps a backend failure onto the shared taxonomy.
// The store's own message is preserved so it can be shown to the user.
func classify(err error, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	var kind *shared.Error
	if errors.As(err, &kind) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return &shared.Error{Kind: shared.ErrConflict, Message: pgMessage(pgErr), Err: err}
		case pgErr.Code == pgForeignKeyViolation:
			return &shared.Error{Kind: shared.ErrConflict, Message: pgMessage(pgErr), Err: err}
		case pgErr.Code == pgNotNullViolation, pgErr.Code == pgCheckViolation,
			strings.HasPrefix(pgErr.Code, pgDataExceptionClass):
			return &shared.Error{Kind: shared.ErrValidation, Message: pgMessage(pgErr), Err: err}
		}
		return &shared.Error{Kind: shared.ErrTransport, Message: pgMessage(pgErr), Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return &shared.Error{Kind: shared.ErrTransport, Message: "store did not respond within " + timeout.String(), Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &shared.Error{Kind: shared.ErrTransport, Message: "store call cancelled", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &shared.Error{Kind: shared.ErrTransport, Message: "store unreachable: " + netErr.Error(), Err: err}
	}
	return shared.Wrap(shared.ErrTransport, err)
}

func pgMessage(e *pgconn.PgError) string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}
