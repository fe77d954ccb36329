package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardfolio-api/internal/model"
)

// runStoreContract exercises the DocumentStore behaviour every adapter must
// share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) DocumentStore) {
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	t.Run("read absent returns nil", func(t *testing.T) {
		s := newStore(t)
		doc, err := s.Read(ctx, UsersCollection, "nobody")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("create then read round-trips native types", func(t *testing.T) {
		s := newStore(t)
		added := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		id, err := s.Create(ctx, CardsCollection("u1"), model.Document{
			model.FieldName:      "Pikachu",
			model.FieldPrice:     decimal.RequireFromString("12.50"),
			model.FieldAddedDate: added,
			model.FieldIsGraded:  true,
		})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		doc, err := s.Read(ctx, CardsCollection("u1"), id)
		require.NoError(t, err)
		item := model.InventoryItemFromDocument(id, doc)
		assert.Equal(t, "Pikachu", item.Name)
		assert.True(t, item.Price.Equal(decimal.RequireFromString("12.5")))
		assert.True(t, item.AddedDate.Equal(added))
		require.NotNil(t, item.IsGraded)
		assert.True(t, *item.IsGraded)
	})

	t.Run("update merges and leaves other fields untouched", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, UsersCollection, "u1", model.Document{
			model.FieldUsername: "ash",
			model.FieldEmail:    "ash@example.com",
			model.FieldFriends:  []string{"a"},
		}))

		require.NoError(t, s.Update(ctx, UsersCollection, "u1", model.Document{
			model.FieldUsername: "Ash",
			model.FieldFriends:  ArrayUnion{"a", "b"},
		}))

		doc, err := s.Read(ctx, UsersCollection, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ash", doc.String(model.FieldUsername))
		assert.Equal(t, "ash@example.com", doc.String(model.FieldEmail))
		assert.Equal(t, []string{"a", "b"}, doc.Strings(model.FieldFriends))

		require.NoError(t, s.Update(ctx, UsersCollection, "u1", model.Document{
			model.FieldFriends: ArrayRemove{"a", "zzz"},
		}))
		doc, err = s.Read(ctx, UsersCollection, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, doc.Strings(model.FieldFriends))
	})

	t.Run("update absent wraps ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(ctx, UsersCollection, "ghost", model.Document{"x": 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, ValuationCollection, "p1", model.Document{model.FieldUserID: "u1"}))
		require.NoError(t, s.Delete(ctx, ValuationCollection, "p1"))
		require.NoError(t, s.Delete(ctx, ValuationCollection, "p1"))

		doc, err := s.Read(ctx, ValuationCollection, "p1")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("query filters by owner and range, orders and limits", func(t *testing.T) {
		s := newStore(t)
		put := func(id, owner string, d int) {
			require.NoError(t, s.Put(ctx, ActionLogCollection, id, model.Document{
				model.FieldUserID: owner,
				model.FieldDate:   day(d),
			}))
		}
		put("e1", "u1", 1)
		put("e2", "u1", 5)
		put("e3", "u1", 9)
		put("e4", "u2", 6)

		records, err := s.Query(ctx, ActionLogCollection, Query{
			Filters: []Filter{
				Where(model.FieldUserID, OpEqual, "u1"),
				Where(model.FieldDate, OpGreaterEqual, day(5)),
			},
			OrderBy:    model.FieldDate,
			Descending: true,
		})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "e3", records[0].ID)
		assert.Equal(t, "e2", records[1].ID)

		records, err = s.Query(ctx, ActionLogCollection, Query{
			Filters: []Filter{Where(model.FieldUserID, OpEqual, "u1")},
			OrderBy: model.FieldDate,
			Limit:   1,
		})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "e1", records[0].ID)
	})

	t.Run("stats counts documents", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, UsersCollection, model.Document{model.FieldUsername: "x"})
		require.NoError(t, err)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, stats["total_documents"])
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) DocumentStore {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) DocumentStore {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "docs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStore_ReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, UsersCollection, "u1", model.Document{model.FieldFriends: []string{"a"}}))

	doc, err := s.Read(ctx, UsersCollection, "u1")
	require.NoError(t, err)
	doc[model.FieldFriends] = []string{"mutated"}

	again, err := s.Read(ctx, UsersCollection, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Strings(model.FieldFriends))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Read(ctx, UsersCollection, "u1")
	assert.Error(t, err)
}
