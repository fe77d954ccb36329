package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardfolio-api/internal/model"
	"cardfolio-api/internal/repository"
	"cardfolio-api/pkg/apierror"
	"cardfolio-api/pkg/uid"
)

func putEntry(t *testing.T, h *harness, e model.ActionLogEntry) {
	t.Helper()
	_, err := h.mem.Create(context.Background(), repository.ActionLogCollection, e.ToDocument())
	require.NoError(t, err)
}

func TestActionLog_LogAddDistinguishesAcquired(t *testing.T) {
	h := newHarness(t)
	h.signIn("alice")
	c := NewActionLogCache(h.deps)
	ctx := context.Background()

	plain := card("c1", "Pikachu", "10", h.clock.Now())
	bought := card("c2", "Charizard", "300", h.clock.Now())
	bought.PurchasePrice = decPtr("250")

	require.NoError(t, c.LogAdd(ctx, plain))
	h.clock.Advance(time.Second)
	require.NoError(t, c.LogAdd(ctx, bought))

	entries := c.Store().Value()
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActionAcquired, entries[0].ActionType, "newest first")
	assert.Equal(t, "c2", entries[0].CardID)
	assert.True(t, dec("250").Equal(*entries[0].PurchasePrice))
	assert.Equal(t, model.ActionAdded, entries[1].ActionType)
	assert.Nil(t, entries[1].PurchasePrice)
	assert.True(t, uid.IsTemp(entries[0].ID))
	assert.Equal(t, "alice", entries[0].UserID)
}

func TestActionLog_LogSaleProfit(t *testing.T) {
	h := newHarness(t)
	h.signIn("alice")
	c := NewActionLogCache(h.deps)
	ctx := context.Background()

	withCost := card("c1", "Mew", "120", h.clock.Now())
	withCost.PurchasePrice = decPtr("100")
	sold := h.clock.Now().Add(-time.Hour)
	require.NoError(t, c.LogSale(ctx, withCost, dec("150"), &sold))
	require.NoError(t, c.LogSale(ctx, card("c2", "Eevee", "5", h.clock.Now()), dec("8"), nil))

	entries, err := c.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	noCost := entries[0]
	assert.Equal(t, model.ActionSold, noCost.ActionType)
	assert.Nil(t, noCost.Profit, "unknown profit is not zero")
	require.NotNil(t, noCost.SaleDate)
	assert.Equal(t, h.clock.Now(), *noCost.SaleDate)

	priced := entries[1]
	require.NotNil(t, priced.Profit)
	assert.True(t, dec("50").Equal(*priced.Profit))
	assert.True(t, dec("150").Equal(*priced.SalePrice))
	assert.Equal(t, sold, *priced.SaleDate)

	recs, err := h.mem.Query(ctx, repository.ActionLogCollection, repository.Query{
		Filters: []repository.Filter{repository.Where(model.FieldCardID, repository.OpEqual, "c2")},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Data.Has(model.FieldProfit))
}

func TestActionLog_LoadsNewestFirst(t *testing.T) {
	h := newHarness(t)
	h.signIn("alice")
	now := h.clock.Now()
	putEntry(t, h, model.ActionLogEntry{UserID: "alice", Date: now.Add(-2 * time.Hour), ActionType: model.ActionAdded, CardID: "old"})
	putEntry(t, h, model.ActionLogEntry{UserID: "alice", Date: now.Add(-time.Hour), ActionType: model.ActionRemoved, CardID: "new"})
	putEntry(t, h, model.ActionLogEntry{UserID: "bob", Date: now, ActionType: model.ActionAdded, CardID: "other"})

	c := NewActionLogCache(h.deps)
	entries, err := c.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].CardID)
	assert.Equal(t, "old", entries[1].CardID)
}

func TestActionLog_FailedCreateLeavesCache(t *testing.T) {
	h := newHarness(t)
	h.signIn("alice")
	c := NewActionLogCache(h.deps)
	ctx := context.Background()

	h.store.failOn("create", repository.ActionLogCollection, errBackend)
	err := c.LogRemoval(ctx, card("c1", "Mew", "1", h.clock.Now()))
	require.Error(t, err)

	assert.Empty(t, c.Store().Value())
}

func TestActionLog_LoadPeriodBounds(t *testing.T) {
	h := newHarness(t)
	h.signIn("alice")
	now := h.clock.Now()
	putEntry(t, h, model.ActionLogEntry{UserID: "alice", Date: now.AddDate(0, 0, -3), CardID: "recent"})
	putEntry(t, h, model.ActionLogEntry{UserID: "alice", Date: now.AddDate(0, 0, -20), CardID: "weeks"})
	putEntry(t, h, model.ActionLogEntry{UserID: "alice", Date: now.AddDate(0, -5, 0), CardID: "months"})
	putEntry(t, h, model.ActionLogEntry{UserID: "alice", Date: now.AddDate(-1, -6, 0), CardID: "ancient"})

	c := NewActionLogCache(h.deps)
	ctx := context.Background()

	ids := func(v PeriodView) []string {
		out := make([]string, 0, len(v.Entries))
		for _, e := range v.Entries {
			out = append(out, e.CardID)
		}
		return out
	}

	cases := []struct {
		period model.Period
		want   []string
	}{
		{model.PeriodWeek, []string{"recent"}},
		{model.PeriodMonth, []string{"recent", "weeks"}},
		{model.Period6Months, []string{"recent", "weeks", "months"}},
		{model.Period2Years, []string{"recent", "weeks", "months", "ancient"}},
		{model.Period("forever"), []string{"recent"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.period), func(t *testing.T) {
			view, err := c.LoadPeriod(ctx, tc.period)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(view))
			assert.Equal(t, view.Period, c.PeriodEntries().Value().Period)
		})
	}

	view := c.PeriodEntries().Value()
	assert.Equal(t, model.PeriodWeek, view.Period, "unknown period falls back to one week")
	assert.Equal(t, now.AddDate(0, 0, -7), view.Since)
}

func TestActionLog_AppendUpdatesPeriodView(t *testing.T) {
	h := newHarness(t)
	h.signIn("alice")
	c := NewActionLogCache(h.deps)
	ctx := context.Background()

	_, err := c.LoadPeriod(ctx, model.PeriodMonth)
	require.NoError(t, err)
	require.NoError(t, c.LogAdd(ctx, card("c1", "Mew", "1", h.clock.Now())))

	view := c.PeriodEntries().Value()
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "c1", view.Entries[0].CardID)
}

func TestActionLog_SignOutResetsPeriodView(t *testing.T) {
	h := newHarness(t)
	h.signIn("alice")
	c := NewActionLogCache(h.deps)
	c.Start(context.Background())
	t.Cleanup(c.Stop)
	ctx := context.Background()

	putEntry(t, h, model.ActionLogEntry{UserID: "alice", Date: h.clock.Now(), CardID: "c1"})
	require.Eventually(t, c.Store().HasCachedData, time.Second, 5*time.Millisecond)
	_, err := c.LoadPeriod(ctx, model.PeriodWeek)
	require.NoError(t, err)
	require.Len(t, c.PeriodEntries().Value().Entries, 1)

	h.session.SignOut(ctx)
	assert.Nil(t, c.PeriodEntries().Value().Entries)
	assert.False(t, c.Store().HasCachedData())
}

func TestActionLog_RequiresSignIn(t *testing.T) {
	h := newHarness(t)
	c := NewActionLogCache(h.deps)

	_, err := c.LoadPeriod(context.Background(), model.PeriodWeek)
	require.Error(t, err)
	assert.Equal(t, apierror.KindAuthentication, apierror.Classify(err).Kind)

	err = c.LogAdd(context.Background(), card("c1", "Mew", "1", h.clock.Now()))
	require.Error(t, err)
}

func TestActionLog_SameInstantEntriesKeepDistinctIDs(t *testing.T) {
	h := newHarness(t)
	h.signIn("alice")
	c := NewActionLogCache(h.deps)
	ctx := context.Background()

	it := card("c1", "Mew", "120", h.clock.Now())
	require.NoError(t, c.LogRemoval(ctx, it))
	require.NoError(t, c.LogAdd(ctx, it))

	entries := c.Store().Value()
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.True(t, uid.IsTemp(entries[0].ID))
	assert.True(t, uid.IsTemp(entries[1].ID))
}
