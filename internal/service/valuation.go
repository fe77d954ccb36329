package service

import (
	"context"
	"sort"
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

// chartDateLayout renders chart labels as dd/mm/yy.
const chartDateLayout = "02/01/06"

// ValuationHistoryCache keeps one collection value point per day for the
// signed-in user, oldest first.
type ValuationHistoryCache struct {
	store   *cache.Store[[]model.ValuationPoint]
	repo    repository.DocumentStore
	session Session
	log     *zap.Logger
	now     func() time.Time
	bind    binding
}

// NewValuationHistoryCache creates an empty valuation history cache.
func NewValuationHistoryCache(d Deps) *ValuationHistoryCache {
	d = d.withDefaults()
	c := &ValuationHistoryCache{
		repo:    d.Store,
		session: d.Session,
		log:     logger.Named(d.Logger, "valuation"),
		now:     d.Now,
	}
	c.store = cache.New(cache.Config[[]model.ValuationPoint]{
		Name:         "valuation",
		Fetch:        c.fetch,
		Equal:        stream.SameSlice[model.ValuationPoint],
		FetchTimeout: d.FetchTimeout,
		Accept:       activeOwner(d.Session),
		Logger:       d.Logger,
		Metrics:      d.Metrics,
	})
	return c
}

// Store exposes the underlying cache.
func (c *ValuationHistoryCache) Store() *cache.Store[[]model.ValuationPoint] { return c.store }

// Start follows the session.
func (c *ValuationHistoryCache) Start(ctx context.Context) {
	c.bind.start(ctx, c.session, c.store.Clear, func(ctx context.Context, uid string) {
		c.store.GetData(ctx, uid)
	})
}

// Stop detaches from the session.
func (c *ValuationHistoryCache) Stop() { c.bind.stop() }

func (c *ValuationHistoryCache) fetch(ctx context.Context, owner string) ([]model.ValuationPoint, error) {
	recs, err := c.repo.Query(ctx, repository.ValuationCollection, repository.Query{
		Filters: []repository.Filter{repository.Where(model.FieldUserID, repository.OpEqual, owner)},
		OrderBy: model.FieldDate,
	})
	if err != nil {
		return nil, err
	}
	points := make([]model.ValuationPoint, 0, len(recs))
	for _, r := range recs {
		points = append(points, model.ValuationPointFromDocument(r.ID, r.Data))
	}
	return points, nil
}

// Points returns the signed-in user's history, loading it if needed.
func (c *ValuationHistoryCache) Points(ctx context.Context) ([]model.ValuationPoint, error) {
	owner, err := currentUser(c.session)
	if err != nil {
		return nil, err
	}
	ensureLoaded(ctx, c.session, c.store, owner)
	return c.store.Value(), nil
}

// RecordValue stores value as today's point, replacing any earlier point of
// the same day.
func (c *ValuationHistoryCache) RecordValue(ctx context.Context, value decimal.Decimal) error {
	owner, err := currentUser(c.session)
	if err != nil {
		return err
	}
	ensureLoaded(ctx, c.session, c.store, owner)

	today := model.StartOfDay(c.now())
	for _, p := range c.store.Value() {
		if !model.SameDay(today, p.Date) {
			continue
		}
		if err := c.deletePoint(ctx, owner, p); err != nil {
			return err
		}
	}

	point := model.ValuationPoint{UserID: owner, Date: today, Value: value}
	if _, err := c.repo.Create(ctx, repository.ValuationCollection, point.ToDocument()); err != nil {
		return err
	}
	point.ID = uid.Temp(c.now())

	c.store.MutateOwned(owner, func(cur []model.ValuationPoint) []model.ValuationPoint {
		next := make([]model.ValuationPoint, 0, len(cur)+1)
		for _, p := range cur {
			if !model.SameDay(today, p.Date) {
				next = append(next, p)
			}
		}
		next = append(next, point)
		sort.SliceStable(next, func(i, j int) bool { return next[i].Date.Before(next[j].Date) })
		return next
	})
	return nil
}

// deletePoint removes p from the store. Points cached under a temporary id
// are located by owner and date instead.
func (c *ValuationHistoryCache) deletePoint(ctx context.Context, owner string, p model.ValuationPoint) error {
	if !uid.IsTemp(p.ID) {
		return c.repo.Delete(ctx, repository.ValuationCollection, p.ID)
	}
	recs, err := c.repo.Query(ctx, repository.ValuationCollection, repository.Query{
		Filters: []repository.Filter{
			repository.Where(model.FieldUserID, repository.OpEqual, owner),
			repository.Where(model.FieldDate, repository.OpEqual, p.Date),
		},
	})
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := c.repo.Delete(ctx, repository.ValuationCollection, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// InitializeIfEmpty records value as today's point when the loaded history
// is empty.
func (c *ValuationHistoryCache) InitializeIfEmpty(ctx context.Context, value decimal.Decimal) error {
	owner, err := currentUser(c.session)
	if err != nil {
		return err
	}
	ensureLoaded(ctx, c.session, c.store, owner)
	if !c.store.HasCachedData() || c.store.Owner() != owner || len(c.store.Value()) > 0 {
		return nil
	}

	c.log.Info("initializing valuation history", zap.String("user_id", owner), zap.String("value", value.String()))
	return c.RecordValue(ctx, value)
}

// ChartData projects the cached history onto chart labels and values.
func (c *ValuationHistoryCache) ChartData() model.ChartData {
	return chartData(c.store.Value(), c.now().Location())
}

func chartData(points []model.ValuationPoint, loc *time.Location) model.ChartData {
	out := model.ChartData{
		Labels: make([]string, 0, len(points)),
		Values: make([]float64, 0, len(points)),
	}
	for _, p := range points {
		out.Labels = append(out.Labels, p.Date.In(loc).Format(chartDateLayout))
		f, _ := p.Value.Float64()
		out.Values = append(out.Values, f)
	}
	return out
}
