package recipient

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

func newTestBook() *Book {
	b := NewBook()
	n := 0
	b.newID = func() string {
		n++
		return fmt.Sprintf("r%d", n)
	}
	return b
}

func TestBook_AddNormalizesAndDefaults(t *testing.T) {
	b := newTestBook()

	r, err := b.Add("  Alice ", "+1 (555) 010-0001")
	require.NoError(t, err)

	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, "Alice", r.Name)
	assert.Equal(t, "+15550100001", r.Phone)
	assert.True(t, r.Selected)
	assert.Equal(t, model.Idle, r.DeliveryStatus)

	unnamed, err := b.Add("", "+2")
	require.NoError(t, err)
	assert.Equal(t, "+2", unnamed.Name)
}

func TestBook_AddRejectsInvalidPhone(t *testing.T) {
	b := newTestBook()

	_, err := b.Add("Bob", "555-0100")
	require.ErrorIs(t, err, ErrInvalidPhone)
	assert.Empty(t, b.Snapshot(), "rejected entries must never be stored")
}

func TestBook_Import(t *testing.T) {
	b := newTestBook()

	added, rejected := b.Import("Alice,+1 555\n\n+2\nBroken,12345\nDoe, Jane,+3")

	require.Len(t, added, 3)
	assert.Equal(t, "+1555", added[0].Phone)
	assert.Equal(t, "+2", added[1].Phone)
	assert.Equal(t, "Doe, Jane", added[2].Name)

	require.Len(t, rejected, 1)
	assert.Equal(t, 4, rejected[0].Line)
	assert.Equal(t, "Broken,12345", rejected[0].Input)

	assert.Len(t, b.Snapshot(), 3)
}

func TestBook_SelectionAndRemoval(t *testing.T) {
	b := newTestBook()
	a, _ := b.Add("A", "+1")
	c, _ := b.Add("C", "+3")

	got, err := b.SetSelected(a.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Selected)

	_, err = b.SetSelected("missing", true)
	assert.ErrorIs(t, err, ErrNotFound)

	b.SelectAll(false)
	for _, r := range b.Snapshot() {
		assert.False(t, r.Selected)
	}

	require.NoError(t, b.Remove(a.ID))
	assert.ErrorIs(t, b.Remove(a.ID), ErrNotFound)

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, c.ID, snap[0].ID)
}

func TestBook_ApplyCopiesDeliveryStateOnly(t *testing.T) {
	b := newTestBook()
	a, _ := b.Add("A", "+1")
	c, _ := b.Add("C", "+3")

	updated := b.Snapshot()
	updated[0].DeliveryStatus = model.Error
	updated[0].ErrorDetail = "network error"
	updated[0].Selected = false
	updated = append(updated, model.Recipient{ID: "gone", DeliveryStatus: model.Success})

	require.NoError(t, b.Remove(c.ID))
	b.Apply(updated)

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, a.ID, snap[0].ID)
	assert.Equal(t, model.Error, snap[0].DeliveryStatus)
	assert.Equal(t, "network error", snap[0].ErrorDetail)
	assert.True(t, snap[0].Selected)
}

func TestBook_SnapshotIsACopy(t *testing.T) {
	b := newTestBook()
	_, _ = b.Add("A", "+1")

	snap := b.Snapshot()
	snap[0].Name = "mutated"

	assert.Equal(t, "A", b.Snapshot()[0].Name)
}
