// Package editstate holds the inline edit state shared by every editable list.
//
// A Machine tracks which row of a list is being edited. Only one row, or the
// "new record" form, can be Editing or Saving at a time: beginning an edit on
// another row cancels the open one and discards its draft.
package editstate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pricebook/pricebook/internal/shared"
)

// NewRecord is the key of the "add" form of a list.
const NewRecord = "+new"

// Phase of a row.
type Phase string

const (
	Viewing Phase = "viewing"
	Editing Phase = "editing"
	Saving  Phase = "saving"
)

// ErrNotEditing is returned when a row is not in the phase an operation needs.
var ErrNotEditing = errors.New("editstate: row is not being edited")

// Ticket identifies one save attempt. Results carrying a stale ticket are ignored.
type Ticket struct {
	Key string `json:"key"`
	Gen uint64 `json:"gen"`
}

// Machine is the edit state of one list. The zero value has every row Viewing.
type Machine[D any] struct {
	Key   string `json:"key,omitempty"`
	Phase Phase  `json:"phase,omitempty"`
	Draft D      `json:"draft"`
	Gen   uint64 `json:"gen"`
}

// Begin puts key into Editing with draft. Any other open row is cancelled and
// its key returned.
func (m *Machine[D]) Begin(key string, draft D) (cancelled string) {
	if m.active() && m.Key != key {
		cancelled = m.Key
	}
	m.Gen++
	m.Key = key
	m.Phase = Editing
	m.Draft = draft
	return cancelled
}

// Update replaces the draft of the row being edited.
func (m *Machine[D]) Update(key string, draft D) error {
	if m.Key != key || m.Phase != Editing {
		return fmt.Errorf("%w: %s", ErrNotEditing, key)
	}
	m.Draft = draft
	return nil
}

// Submit moves key from Editing to Saving and returns the draft to persist.
func (m *Machine[D]) Submit(key string) (Ticket, D, error) {
	var zero D
	if m.Key != key || m.Phase != Editing {
		return Ticket{}, zero, fmt.Errorf("%w: %s", ErrNotEditing, key)
	}
	m.Phase = Saving
	return Ticket{Key: key, Gen: m.Gen}, m.Draft, nil
}

// Complete records the outcome of a save. On success the row returns to
// Viewing; on failure it goes back to Editing with its draft intact.
// It reports false when the ticket is stale and the outcome was dropped.
func (m *Machine[D]) Complete(t Ticket, err error) bool {
	if m.Key != t.Key || m.Gen != t.Gen || m.Phase != Saving {
		return false
	}
	if err != nil {
		m.Phase = Editing
		return true
	}
	m.reset()
	return true
}

// Cancel discards the edit of key. Cancelling a row that is not open is a no-op.
func (m *Machine[D]) Cancel(key string) {
	if m.Key == key {
		m.reset()
	}
}

// PhaseOf reports the phase of key.
func (m *Machine[D]) PhaseOf(key string) Phase {
	if m.Key == key && m.active() {
		return m.Phase
	}
	return Viewing
}

// IsEditing reports whether key is open in Editing or Saving.
func (m *Machine[D]) IsEditing(key string) bool {
	return m.PhaseOf(key) != Viewing
}

// Open returns the row currently open, if any.
func (m *Machine[D]) Open() (string, D, bool) {
	if !m.active() {
		var zero D
		return "", zero, false
	}
	return m.Key, m.Draft, true
}

func (m *Machine[D]) active() bool {
	return m.Phase == Editing || m.Phase == Saving
}

func (m *Machine[D]) reset() {
	var zero D
	m.Key = ""
	m.Phase = Viewing
	m.Draft = zero
}

// Load restores the machine stored under name in the session.
// A missing or unreadable value yields a machine with every row Viewing.
func Load[D any](sess *shared.Session, name string) *Machine[D] {
	m := &Machine[D]{}
	if sess == nil {
		return m
	}
	raw := sess.Get(sessionKey(name))
	if raw == "" {
		return m
	}
	if err := json.Unmarshal([]byte(raw), m); err != nil {
		return &Machine[D]{}
	}
	return m
}

// Save writes the machine into the session under name.
func Save[D any](sess *shared.Session, name string, m *Machine[D]) error {
	if sess == nil || m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("editstate: encode %s: %w", name, err)
	}
	sess.Set(sessionKey(name), string(raw))
	return nil
}

func sessionKey(name string) string {
	return "edit:" + name
}
