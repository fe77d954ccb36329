package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cardfolio-api/internal/cache"
	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/model"
	"cardfolio-api/internal/repository"
	"cardfolio-api/internal/stream"
	"cardfolio-api/pkg/uid"
)

// PeriodView is the result of the latest period-scoped action log read.
type PeriodView struct {
	Period  model.Period           `json:"period"`
	Since   time.Time              `json:"since"`
	Entries []model.ActionLogEntry `json:"entries"`
}

// ActionLogCache is the signed-in user's append-only action log, newest
// first. Period reads bypass the cache and publish on their own stream.
type ActionLogCache struct {
	store   *cache.Store[[]model.ActionLogEntry]
	repo    repository.DocumentStore
	session Session
	log     *zap.Logger
	now     func() time.Time
	bind    binding

	periodMu  sync.Mutex
	periodSeq uint64
	period    *stream.Subject[PeriodView]
}

// NewActionLogCache creates an empty action log cache.
func NewActionLogCache(d Deps) *ActionLogCache {
	d = d.withDefaults()
	c := &ActionLogCache{
		repo:    d.Store,
		session: d.Session,
		log:     logger.Named(d.Logger, "actionlog"),
		now:     d.Now,
		period:  stream.New(PeriodView{}, nil),
	}
	c.store = cache.New(cache.Config[[]model.ActionLogEntry]{
		Name:         "actionlog",
		Fetch:        c.fetch,
		Equal:        stream.SameSlice[model.ActionLogEntry],
		FetchTimeout: d.FetchTimeout,
		Accept:       activeOwner(d.Session),
		Logger:       d.Logger,
		Metrics:      d.Metrics,
	})
	return c
}

// Store exposes the underlying cache.
func (c *ActionLogCache) Store() *cache.Store[[]model.ActionLogEntry] { return c.store }

// PeriodEntries streams the result of the latest LoadPeriod call.
func (c *ActionLogCache) PeriodEntries() *stream.Subject[PeriodView] { return c.period }

// Start follows the session.
func (c *ActionLogCache) Start(ctx context.Context) {
	c.bind.start(ctx, c.session, c.clear, func(ctx context.Context, uid string) {
		c.store.GetData(ctx, uid)
	})
}

// Stop detaches from the session.
func (c *ActionLogCache) Stop() { c.bind.stop() }

func (c *ActionLogCache) clear() {
	c.store.Clear()
	c.periodMu.Lock()
	c.periodSeq++
	c.periodMu.Unlock()
	c.period.Publish(PeriodView{})
}

func (c *ActionLogCache) fetch(ctx context.Context, owner string) ([]model.ActionLogEntry, error) {
	return c.query(ctx, owner, time.Time{})
}

func (c *ActionLogCache) query(ctx context.Context, owner string, since time.Time) ([]model.ActionLogEntry, error) {
	filters := []repository.Filter{repository.Where(model.FieldUserID, repository.OpEqual, owner)}
	if !since.IsZero() {
		filters = append(filters, repository.Where(model.FieldDate, repository.OpGreaterEqual, since))
	}
	recs, err := c.repo.Query(ctx, repository.ActionLogCollection, repository.Query{
		Filters:    filters,
		OrderBy:    model.FieldDate,
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]model.ActionLogEntry, 0, len(recs))
	for _, r := range recs {
		entries = append(entries, model.ActionLogEntryFromDocument(r.ID, r.Data))
	}
	return entries, nil
}

// Entries returns the full log, loading it if needed.
func (c *ActionLogCache) Entries(ctx context.Context) ([]model.ActionLogEntry, error) {
	owner, err := currentUser(c.session)
	if err != nil {
		return nil, err
	}
	ensureLoaded(ctx, c.session, c.store, owner)
	return c.store.Value(), nil
}

// LoadPeriod reads the entries of the given period and publishes them on
// PeriodEntries. Unknown periods fall back to one week. Only the latest call
// publishes.
func (c *ActionLogCache) LoadPeriod(ctx context.Context, period model.Period) (PeriodView, error) {
	owner, err := currentUser(c.session)
	if err != nil {
		return PeriodView{}, err
	}
	period = model.ParsePeriod(string(period))
	since := period.Since(c.now())

	c.periodMu.Lock()
	c.periodSeq++
	seq := c.periodSeq
	c.periodMu.Unlock()

	entries, err := c.query(ctx, owner, since)
	if err != nil {
		c.log.Warn("period load failed", zap.String("period", string(period)), zap.Error(err))
		return PeriodView{}, err
	}

	view := PeriodView{Period: period, Since: since, Entries: entries}
	c.periodMu.Lock()
	if seq == c.periodSeq {
		c.period.Publish(view)
	}
	c.periodMu.Unlock()
	return view, nil
}

// LogAdd records that item was added. Items with acquisition details are
// logged as acquired.
func (c *ActionLogCache) LogAdd(ctx context.Context, item model.InventoryItem) error {
	action := model.ActionAdded
	if item.HasAcquisition() {
		action = model.ActionAcquired
	}
	return c.append(ctx, c.entryFor(item, action))
}

// LogSale records that item was sold. Profit is only set when the item has a
// purchase price. A nil saleDate means now.
func (c *ActionLogCache) LogSale(ctx context.Context, item model.InventoryItem, salePrice decimal.Decimal, saleDate *time.Time) error {
	e := c.entryFor(item, model.ActionSold)
	sold := e.Date
	if saleDate != nil {
		sold = *saleDate
	}
	price := salePrice
	e.SaleDate = &sold
	e.SalePrice = &price
	e.Profit = model.Profit(salePrice, item.PurchasePrice)
	return c.append(ctx, e)
}

// LogRemoval records that item was deleted.
func (c *ActionLogCache) LogRemoval(ctx context.Context, item model.InventoryItem) error {
	return c.append(ctx, c.entryFor(item, model.ActionRemoved))
}

func (c *ActionLogCache) entryFor(item model.InventoryItem, action model.ActionType) model.ActionLogEntry {
	return model.ActionLogEntry{
		Date:          c.now(),
		ActionType:    action,
		CardName:      item.Name,
		CardID:        item.ID,
		CardImageURL:  item.ImageURL,
		PurchaseDate:  item.PurchaseDate,
		PurchasePrice: item.PurchasePrice,
	}
}

// append persists e, then prepends a copy with a temporary id to the cached
// log and the current period view.
func (c *ActionLogCache) append(ctx context.Context, e model.ActionLogEntry) error {
	owner, err := currentUser(c.session)
	if err != nil {
		return err
	}
	e.UserID = owner
	ensureLoaded(ctx, c.session, c.store, owner)
	if _, err := c.repo.Create(ctx, repository.ActionLogCollection, e.ToDocument()); err != nil {
		return err
	}
	e.ID = uid.Temp(c.now())

	c.store.MutateOwned(owner, func(cur []model.ActionLogEntry) []model.ActionLogEntry {
		return prependEntry(e, cur)
	})

	c.periodMu.Lock()
	if view := c.period.Value(); view.Entries != nil {
		view.Entries = prependEntry(e, view.Entries)
		c.period.Publish(view)
	}
	c.periodMu.Unlock()

	c.log.Debug("logged action", zap.String("user_id", owner), zap.String("action", string(e.ActionType)), zap.String("card_id", e.CardID))
	return nil
}

func prependEntry(e model.ActionLogEntry, cur []model.ActionLogEntry) []model.ActionLogEntry {
	next := make([]model.ActionLogEntry, 0, len(cur)+1)
	next = append(next, e)
	return append(next, cur...)
}
