package handler

import (
	"context"
	"net/http"
	"time"

	"cardfolio-api/internal/repository"
	"cardfolio-api/internal/service"
	"cardfolio-api/pkg/apierror"
	"cardfolio-api/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	profile    *service.ProfileCache
	migrations *service.Migrations
	snapshots  *service.SnapshotScheduler
	store      repository.DocumentStore
	storeType  string
	startTime  time.Time
}

// NewAdminHandler creates a new admin handler. snapshots may be nil.
func NewAdminHandler(
	profile *service.ProfileCache,
	migrations *service.Migrations,
	snapshots *service.SnapshotScheduler,
	store repository.DocumentStore,
	storeType string,
) *AdminHandler {
	return &AdminHandler{
		profile:    profile,
		migrations: migrations,
		snapshots:  snapshots,
		store:      store,
		storeType:  storeType,
		startTime:  time.Now(),
	}
}

// requireAdmin answers 403 unless the signed-in user is an administrator.
func (h *AdminHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	me, err := h.profile.Get(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return false
	}
	if !me.IsAdmin {
		response.Error(w, r, apierror.Forbidden("administrator access required"))
		return false
	}
	return true
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	stats := map[string]interface{}{
		"server_time":       time.Now().Format(time.RFC3339),
		"store_type":        h.storeType,
		"runtime":           runtimeStats(h.startTime),
		"migration_running": h.migrations.Running(),
	}

	storeStats, err := h.store.Stats(r.Context())
	if err != nil {
		stats["store"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		storeStats["status"] = "connected"
		stats["store"] = storeStats
	}

	response.OK(w, stats)
}

// RecomputeProfit handles POST /api/v1/admin/migrations/total-profit
func (h *AdminHandler) RecomputeProfit(w http.ResponseWriter, r *http.Request) {
	h.migrate(w, r, h.migrations.RecomputeTotalProfit)
}

// BackfillVisibility handles POST /api/v1/admin/migrations/visibility
func (h *AdminHandler) BackfillVisibility(w http.ResponseWriter, r *http.Request) {
	h.migrate(w, r, h.migrations.BackfillVisibility)
}

func (h *AdminHandler) migrate(w http.ResponseWriter, r *http.Request, run func(ctx context.Context) (service.MigrationResult, error)) {
	res, err := run(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.OK(w, res)
}

// Snapshot handles POST /api/v1/admin/snapshot
func (h *AdminHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if h.snapshots == nil {
		response.Error(w, r, apierror.ServiceUnavailable("snapshot scheduler is disabled"))
		return
	}
	recorded, err := h.snapshots.RunNow(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.OK(w, map[string]bool{"recorded": recorded})
}
