package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricebook/pricebook/internal/shared"
)

type partial struct{ err error }

func (p partial) Error() string        { return "removed but not saved" }
func (p partial) Is(target error) bool { return target == shared.ErrPartialEdit }
func (p partial) Unwrap() error        { return p.err }

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.FieldError("code", "invalid code"), http.StatusBadRequest},
		{shared.Errorf(shared.ErrNotFound, "gone"), http.StatusNotFound},
		{shared.Errorf(shared.ErrConflict, "duplicate key"), http.StatusConflict},
		{shared.Errorf(shared.ErrAllocation, "exhausted"), http.StatusUnprocessableEntity},
		{shared.Errorf(shared.ErrEmptyData, "empty"), http.StatusUnprocessableEntity},
		{shared.Errorf(shared.ErrTransport, "timeout"), http.StatusServiceUnavailable},
		{partial{err: shared.Errorf(shared.ErrTransport, "timeout")}, http.StatusInternalServerError},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := Status(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
}

func TestRespondErrorWritesProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.FieldError("unit", "unit is required"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "unit is required", p.Detail)
	assert.Equal(t, "unit is required", p.Errors["unit"])

	rec = httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("secret internals"))
	var internal ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &internal))
	assert.Equal(t, http.StatusInternalServerError, internal.Status)
	assert.Empty(t, internal.Detail)
}
