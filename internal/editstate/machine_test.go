package editstate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricebook/pricebook/internal/shared"
)

type priceDraft struct {
	Date  string `json:"date"`
	Price string `json:"price"`
}

func openRows(m *Machine[priceDraft], keys ...string) int {
	n := 0
	for _, k := range keys {
		if m.IsEditing(k) {
			n++
		}
	}
	return n
}

func TestBeginOnSecondRowCancelsFirst(t *testing.T) {
	var m Machine[priceDraft]
	keys := []string{"2023-01-01", "2023-06-01", NewRecord}

	assert.Empty(t, m.Begin("2023-01-01", priceDraft{Date: "2023-01-01", Price: "11"}))
	assert.Equal(t, Editing, m.PhaseOf("2023-01-01"))

	cancelled := m.Begin("2023-06-01", priceDraft{Date: "2023-06-01", Price: "12.50"})
	assert.Equal(t, "2023-01-01", cancelled)
	assert.Equal(t, Viewing, m.PhaseOf("2023-01-01"))
	assert.Equal(t, 1, openRows(&m, keys...))

	cancelled = m.Begin(NewRecord, priceDraft{})
	assert.Equal(t, "2023-06-01", cancelled)
	assert.Equal(t, 1, openRows(&m, keys...))
	key, draft, ok := m.Open()
	require.True(t, ok)
	assert.Equal(t, NewRecord, key)
	assert.Equal(t, priceDraft{}, draft)
}

func TestSaveLifecycle(t *testing.T) {
	var m Machine[priceDraft]
	m.Begin("AD0001", priceDraft{Price: "1"})
	require.NoError(t, m.Update("AD0001", priceDraft{Price: "2"}))

	ticket, draft, err := m.Submit("AD0001")
	require.NoError(t, err)
	assert.Equal(t, "2", draft.Price)
	assert.Equal(t, Saving, m.PhaseOf("AD0001"))

	assert.True(t, m.Complete(ticket, errors.New("conflict")))
	assert.Equal(t, Editing, m.PhaseOf("AD0001"), "failed save keeps the draft open")

	ticket, _, err = m.Submit("AD0001")
	require.NoError(t, err)
	assert.True(t, m.Complete(ticket, nil))
	assert.Equal(t, Viewing, m.PhaseOf("AD0001"))
	_, _, ok := m.Open()
	assert.False(t, ok)
}

func TestLateResultIsDropped(t *testing.T) {
	var m Machine[priceDraft]
	m.Begin("A", priceDraft{})
	ticket, _, err := m.Submit("A")
	require.NoError(t, err)

	m.Begin("B", priceDraft{})
	assert.False(t, m.Complete(ticket, nil))
	assert.Equal(t, Editing, m.PhaseOf("B"))

	m.Cancel("B")
	m.Begin("A", priceDraft{})
	assert.False(t, m.Complete(ticket, nil), "ticket from an earlier edit of the same row is stale")
}

func TestOperationsOnClosedRowFail(t *testing.T) {
	var m Machine[priceDraft]
	require.ErrorIs(t, m.Update("A", priceDraft{}), ErrNotEditing)
	_, _, err := m.Submit("A")
	require.ErrorIs(t, err, ErrNotEditing)
	m.Cancel("A")
	assert.Equal(t, Viewing, m.PhaseOf("A"))
}

func TestSessionRoundTrip(t *testing.T) {
	sess := &shared.Session{}
	m := Load[priceDraft](sess, "prices:AD0001")
	m.Begin("2023-01-01", priceDraft{Date: "2023-01-01", Price: "10.00"})
	require.NoError(t, Save(sess, "prices:AD0001", m))

	restored := Load[priceDraft](sess, "prices:AD0001")
	assert.Equal(t, Editing, restored.PhaseOf("2023-01-01"))
	_, draft, _ := restored.Open()
	assert.Equal(t, "10.00", draft.Price)

	other := Load[priceDraft](sess, "products")
	_, _, ok := other.Open()
	assert.False(t, ok)

	sess.Set(sessionKey("broken"), "{not json")
	_, _, ok = Load[priceDraft](sess, "broken").Open()
	assert.False(t, ok)
}
