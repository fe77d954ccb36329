package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cardfolio-api/internal/cache"
	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/metrics"
	"cardfolio-api/internal/model"
	"cardfolio-api/internal/repository"
	"cardfolio-api/internal/stream"
	"cardfolio-api/internal/validate"
	"cardfolio-api/pkg/apierror"
)

const inventoryCacheName = "inventory"

// InventoryCache owns the signed-in user's cards, newest first. Mutations
// write to the store and then swap in a new slice; a failed write restores
// the previous slice. Profile stats, the valuation point and the action log
// are updated afterwards on a best effort basis.
type InventoryCache struct {
	store    *cache.Store[[]model.InventoryItem]
	total    *stream.Subject[decimal.Decimal]
	repo     repository.DocumentStore
	session  Session
	validate *validate.Validator
	log      *zap.Logger
	metrics  *metrics.Collector
	now      func() time.Time
	bind     binding

	profile   *ProfileCache
	valuation *ValuationHistoryCache
	actions   *ActionLogCache
}

// NewInventoryCache creates an empty inventory cache. The collaborating
// caches receive the secondary effects of each mutation; any of them may be
// nil.
func NewInventoryCache(d Deps, profile *ProfileCache, valuation *ValuationHistoryCache, actions *ActionLogCache) *InventoryCache {
	d = d.withDefaults()
	c := &InventoryCache{
		total:     stream.New(decimal.Zero, func(a, b decimal.Decimal) bool { return a.Equal(b) }),
		repo:      d.Store,
		session:   d.Session,
		validate:  d.Validator,
		log:       logger.Named(d.Logger, inventoryCacheName),
		metrics:   d.Metrics,
		now:       d.Now,
		profile:   profile,
		valuation: valuation,
		actions:   actions,
	}
	c.store = cache.New(cache.Config[[]model.InventoryItem]{
		Name:         inventoryCacheName,
		Fetch:        c.fetch,
		Equal:        stream.SameSlice[model.InventoryItem],
		FetchTimeout: d.FetchTimeout,
		Accept:       activeOwner(d.Session),
		OnChange: func(items []model.InventoryItem) {
			c.total.Publish(totalValue(items))
		},
		Logger:  d.Logger,
		Metrics: d.Metrics,
	})
	return c
}

// Store exposes the underlying cache.
func (c *InventoryCache) Store() *cache.Store[[]model.InventoryItem] { return c.store }

// TotalValue streams the sum of all card prices.
func (c *InventoryCache) TotalValue() *stream.Subject[decimal.Decimal] { return c.total }

// Start follows the session. After the first load of a user the valuation
// history is seeded with the current total if it is still empty.
func (c *InventoryCache) Start(ctx context.Context) {
	c.bind.start(ctx, c.session, c.store.Clear, func(ctx context.Context, uid string) {
		c.store.GetData(ctx, uid)
		if c.store.HasCachedData() && c.store.Owner() == uid {
			c.seedValuation(ctx)
		}
	})
}

// Stop detaches from the session.
func (c *InventoryCache) Stop() { c.bind.stop() }

func (c *InventoryCache) fetch(ctx context.Context, owner string) ([]model.InventoryItem, error) {
	recs, err := c.repo.Query(ctx, repository.CardsCollection(owner), repository.Query{
		OrderBy:    model.FieldAddedDate,
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	items := make([]model.InventoryItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, model.InventoryItemFromDocument(r.ID, r.Data))
	}
	return items, nil
}

// Items returns the signed-in user's cards, loading them if needed.
func (c *InventoryCache) Items(ctx context.Context) ([]model.InventoryItem, error) {
	owner, err := currentUser(c.session)
	if err != nil {
		return nil, err
	}
	ensureLoaded(ctx, c.session, c.store, owner)
	if !c.store.HasCachedData() && c.store.Errored().Value() {
		return nil, apierror.Cache("inventory unavailable", nil)
	}
	return c.store.Value(), nil
}

// Reload fetches the inventory again and seeds the valuation history if it
// is empty.
func (c *InventoryCache) Reload(ctx context.Context) error {
	if err := c.store.Reload(ctx); err != nil {
		return err
	}
	c.seedValuation(ctx)
	return nil
}

func (c *InventoryCache) seedValuation(ctx context.Context) {
	if c.valuation == nil {
		return
	}
	if err := c.valuation.InitializeIfEmpty(ctx, c.total.Value()); err != nil {
		c.log.Warn("failed to seed valuation history", zap.Error(err))
	}
}

// Item returns the cached card with id.
func (c *InventoryCache) Item(id string) (model.InventoryItem, bool) {
	return findItem(c.store.Value(), id)
}

// LatestItems returns up to n of the most recently added cards.
func (c *InventoryCache) LatestItems(n int) []model.InventoryItem {
	items := c.store.Value()
	if n < 0 {
		n = 0
	}
	if n > len(items) {
		n = len(items)
	}
	return append([]model.InventoryItem(nil), items[:n]...)
}

// MostValuableItem returns the card with the highest price. Ties go to the
// first one in collection order.
func (c *InventoryCache) MostValuableItem() (model.InventoryItem, bool) {
	items := c.store.Value()
	if len(items) == 0 {
		return model.InventoryItem{}, false
	}
	best := items[0]
	for _, it := range items[1:] {
		if it.Price.GreaterThan(best.Price) {
			best = it
		}
	}
	return best, true
}

// AddItem stores a new card and puts it first in the collection.
func (c *InventoryCache) AddItem(ctx context.Context, in model.ItemInput) (model.InventoryItem, error) {
	if err := c.validate.Struct(in); err != nil {
		return model.InventoryItem{}, err
	}
	owner, err := currentUser(c.session)
	if err != nil {
		return model.InventoryItem{}, err
	}
	ensureLoaded(ctx, c.session, c.store, owner)
	previous := c.store.Value()

	item := model.InventoryItem{
		Name:          in.Name,
		ImageURL:      in.ImageURL,
		Price:         in.Price,
		AddedDate:     c.now(),
		PurchaseDate:  in.PurchaseDate,
		PurchasePrice: in.PurchasePrice,
		IsGraded:      in.IsGraded,
	}
	id, err := c.repo.Create(ctx, repository.CardsCollection(owner), item.ToDocument())
	if err != nil {
		c.rollback(owner, "add", previous, err)
		return model.InventoryItem{}, err
	}
	item.ID = id

	c.store.MutateOwned(owner, func(cur []model.InventoryItem) []model.InventoryItem {
		next := make([]model.InventoryItem, 0, len(cur)+1)
		next = append(next, item)
		return append(next, cur...)
	})

	c.syncStats(ctx)
	if c.actions != nil {
		c.secondary("log add", c.actions.LogAdd(ctx, item))
	}
	return item, nil
}

// UpdateItem applies patch to the card with id and stamps its modification
// date. Fields not set in patch are untouched.
func (c *InventoryCache) UpdateItem(ctx context.Context, id string, patch model.ItemPatch) error {
	if err := c.validate.Struct(patch); err != nil {
		return err
	}
	owner, err := currentUser(c.session)
	if err != nil {
		return err
	}
	ensureLoaded(ctx, c.session, c.store, owner)
	previous := c.store.Value()

	modified := c.now()
	doc := patch.ToDocument()
	doc[model.FieldLastModificationDate] = modified

	if err := c.repo.Update(ctx, repository.CardsCollection(owner), id, doc); err != nil {
		c.rollback(owner, "update", previous, err)
		return err
	}

	c.store.MutateOwned(owner, func(cur []model.InventoryItem) []model.InventoryItem {
		idx := indexOf(cur, id)
		if idx < 0 {
			return cur
		}
		updated := patch.Apply(cur[idx])
		updated.LastModificationDate = &modified

		next := make([]model.InventoryItem, 0, len(cur))
		next = append(next, cur[:idx]...)
		next = append(next, updated)
		return append(next, cur[idx+1:]...)
	})

	c.syncStats(ctx)
	return nil
}

// RemoveItem deletes the card with id.
func (c *InventoryCache) RemoveItem(ctx context.Context, id string) error {
	owner, err := currentUser(c.session)
	if err != nil {
		return err
	}
	ensureLoaded(ctx, c.session, c.store, owner)
	previous := c.store.Value()
	item, found := findItem(previous, id)

	if err := c.repo.Delete(ctx, repository.CardsCollection(owner), id); err != nil {
		c.rollback(owner, "remove", previous, err)
		return err
	}
	c.store.MutateOwned(owner, func(cur []model.InventoryItem) []model.InventoryItem {
		return without(cur, id)
	})

	c.syncStats(ctx)
	if found && c.actions != nil {
		c.secondary("log removal", c.actions.LogRemoval(ctx, item))
	}
	return nil
}

// SellItem removes the card with id from the collection and records the
// sale. It returns the realized profit, or nil when the card has no purchase
// price. A nil saleDate means now.
func (c *InventoryCache) SellItem(ctx context.Context, id string, salePrice decimal.Decimal, saleDate *time.Time) (*decimal.Decimal, error) {
	if err := c.validate.Struct(model.SaleInput{SalePrice: salePrice, SaleDate: saleDate}); err != nil {
		return nil, err
	}
	owner, err := currentUser(c.session)
	if err != nil {
		return nil, err
	}
	ensureLoaded(ctx, c.session, c.store, owner)
	previous := c.store.Value()
	item, found := findItem(previous, id)
	if !found {
		return nil, apierror.NotFound("card not found")
	}

	if err := c.repo.Delete(ctx, repository.CardsCollection(owner), id); err != nil {
		c.rollback(owner, "sell", previous, err)
		return nil, err
	}
	c.store.MutateOwned(owner, func(cur []model.InventoryItem) []model.InventoryItem {
		return without(cur, id)
	})

	profit := model.Profit(salePrice, item.PurchasePrice)
	if profit != nil && c.profile != nil {
		c.secondary("update cumulative profit", c.profile.UpdateCumulativeProfit(ctx, *profit))
	}
	if c.actions != nil {
		c.secondary("log sale", c.actions.LogSale(ctx, item, salePrice, saleDate))
	}
	c.syncStats(ctx)
	return profit, nil
}

// rollback restores previous if the cache still belongs to owner.
func (c *InventoryCache) rollback(owner, op string, previous []model.InventoryItem, cause error) {
	c.store.MutateOwned(owner, func([]model.InventoryItem) []model.InventoryItem {
		return previous
	})
	c.metrics.Rollback(inventoryCacheName, op)
	c.log.Warn("inventory write failed, rolled back",
		zap.String("operation", op),
		zap.String("user_id", owner),
		zap.Error(cause))
}

// syncStats pushes the collection size and value to the profile and today's
// valuation point.
func (c *InventoryCache) syncStats(ctx context.Context) {
	items := c.store.Value()
	total := totalValue(items)
	if c.profile != nil {
		c.secondary("update stats", c.profile.UpdateStats(ctx, len(items), total))
	}
	if c.valuation != nil {
		c.secondary("record valuation", c.valuation.RecordValue(ctx, total))
	}
}

func (c *InventoryCache) secondary(what string, err error) {
	if err != nil {
		c.log.Warn("secondary effect failed", zap.String("effect", what), zap.Error(err))
	}
}

func totalValue(items []model.InventoryItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Price)
	}
	return sum
}

func indexOf(items []model.InventoryItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func findItem(items []model.InventoryItem, id string) (model.InventoryItem, bool) {
	if i := indexOf(items, id); i >= 0 {
		return items[i], true
	}
	return model.InventoryItem{}, false
}

func without(items []model.InventoryItem, id string) []model.InventoryItem {
	next := make([]model.InventoryItem, 0, len(items))
	for _, it := range items {
		if it.ID != id {
			next = append(next, it)
		}
	}
	return next
}
