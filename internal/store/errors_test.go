package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/pricebook/pricebook/internal/shared"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind error
	}{
		{"unique", &pgconn.PgError{Code: "23505", Message: "duplicate key value", Detail: "Key (prodcode, effdate) already exists."}, shared.ErrConflict},
		{"foreign key", &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"}, shared.ErrConflict},
		{"data exception", &pgconn.PgError{Code: "22007", Message: "invalid input syntax for type date"}, shared.ErrValidation},
		{"check", &pgconn.PgError{Code: "23514", Message: `new row for relation "product" violates check constraint "product_description_check"`}, shared.ErrValidation},
		{"not null", &pgconn.PgError{Code: "23502", Message: `null value in column "unit" violates not-null constraint`}, shared.ErrValidation},
		{"other pg", &pgconn.PgError{Code: "57P01", Message: "terminating connection"}, shared.ErrTransport},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), shared.ErrTransport},
		{"plain", fmt.Errorf("connection reset"), shared.ErrTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(tc.err, 5*time.Second)
			require.ErrorIs(t, err, tc.kind)
		})
	}

	err := classify(&pgconn.PgError{Code: "23505", Message: "duplicate key value", Detail: "Key exists."}, time.Second)
	require.Equal(t, "duplicate key value: Key exists.", err.Error())
	require.Contains(t, classify(context.DeadlineExceeded, 5*time.Second).Error(), "5s")
}
