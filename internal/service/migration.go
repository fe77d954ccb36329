package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/model"
	"cardfolio-api/internal/repository"
	"cardfolio-api/pkg/apierror"
)

// migrationConcurrency bounds the users processed at once.
const migrationConcurrency = 8

// MigrationResult summarizes one migration run.
type MigrationResult struct {
	Users     int      `json:"users"`
	Updated   int      `json:"updated"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// Migrations are admin-only data repairs across every user.
type Migrations struct {
	repo    repository.DocumentStore
	profile *ProfileCache
	log     *zap.Logger
	running atomic.Bool
}

// NewMigrations creates the migration runner.
func NewMigrations(d Deps, profile *ProfileCache) *Migrations {
	return &Migrations{
		repo:    d.Store,
		profile: profile,
		log:     logger.Named(d.Logger, "migration"),
	}
}

// Running reports whether a migration is in progress.
func (m *Migrations) Running() bool { return m.running.Load() }

// RecomputeTotalProfit sets every user's cumulative profit to the sum of the
// profits recorded on their sales. Sales without a known profit count as
// nothing.
func (m *Migrations) RecomputeTotalProfit(ctx context.Context) (MigrationResult, error) {
	var result MigrationResult
	err := m.run(ctx, "total_profit", func(ctx context.Context, users []repository.Record) error {
		var mu sync.Mutex
		totals := make(map[string]decimal.Decimal, len(users))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(migrationConcurrency)
		for _, u := range users {
			g.Go(func() error {
				total, err := m.userProfit(gctx, u.ID)
				if err == nil {
					err = m.repo.Update(gctx, repository.UsersCollection, u.ID, model.Document{model.FieldTotalProfit: total})
				}

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					m.log.Warn("profit migration failed for user", zap.String("user_id", u.ID), zap.Error(err))
					result.Failed++
					result.FailedIDs = append(result.FailedIDs, u.ID)
					return nil
				}
				result.Updated++
				totals[u.ID] = total
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if uid := m.profile.session.CurrentUserID(); uid != "" {
			if total, ok := totals[uid]; ok {
				m.profile.patch(uid, func(p *model.UserProfile) { p.TotalProfit = total })
			}
		}
		result.Users = len(users)
		return nil
	})
	return result, err
}

func (m *Migrations) userProfit(ctx context.Context, userID string) (decimal.Decimal, error) {
	recs, err := m.repo.Query(ctx, repository.ActionLogCollection, repository.Query{
		Filters: []repository.Filter{
			repository.Where(model.FieldUserID, repository.OpEqual, userID),
			repository.Where(model.FieldActionType, repository.OpEqual, string(model.ActionSold)),
		},
	})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range recs {
		if p, ok := r.Data.Decimal(model.FieldProfit); ok {
			total = total.Add(p)
		}
	}
	return total, nil
}

// BackfillVisibility marks every profile without a visibility flag as
// public.
func (m *Migrations) BackfillVisibility(ctx context.Context) (MigrationResult, error) {
	var result MigrationResult
	err := m.run(ctx, "visibility", func(ctx context.Context, users []repository.Record) error {
		result.Users = len(users)
		for _, u := range users {
			if u.Data.Has(model.FieldIsPublic) {
				continue
			}
			if err := m.repo.Update(ctx, repository.UsersCollection, u.ID, model.Document{model.FieldIsPublic: true}); err != nil {
				m.log.Warn("visibility migration failed for user", zap.String("user_id", u.ID), zap.Error(err))
				result.Failed++
				result.FailedIDs = append(result.FailedIDs, u.ID)
				continue
			}
			result.Updated++
		}
		return nil
	})
	return result, err
}

// run checks the caller is an admin, loads all users and runs fn. Only one
// migration runs at a time.
func (m *Migrations) run(ctx context.Context, name string, fn func(ctx context.Context, users []repository.Record) error) error {
	me, err := m.profile.Get(ctx)
	if err != nil {
		return err
	}
	if !me.IsAdmin {
		return apierror.Forbidden("only administrators can run migrations")
	}
	if !m.running.CompareAndSwap(false, true) {
		return apierror.Conflict("a migration is already running")
	}
	defer m.running.Store(false)

	users, err := m.repo.Query(ctx, repository.UsersCollection, repository.Query{})
	if err != nil {
		return err
	}

	m.log.Info("migration started", zap.String("migration", name), zap.Int("users", len(users)))
	if err := fn(ctx, users); err != nil {
		return err
	}
	m.log.Info("migration finished", zap.String("migration", name))
	return nil
}
