package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"cardfolio-api/internal/model"
	"cardfolio-api/internal/service"
	"cardfolio-api/pkg/response"
)

// HistoryHandler serves the valuation history and the action log.
type HistoryHandler struct {
	valuation *service.ValuationHistoryCache
	actions   *service.ActionLogCache
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(valuation *service.ValuationHistoryCache, actions *service.ActionLogCache) *HistoryHandler {
	return &HistoryHandler{valuation: valuation, actions: actions}
}

// Valuation handles GET /api/v1/history/valuation
func (h *HistoryHandler) Valuation(w http.ResponseWriter, r *http.Request) {
	points, err := h.valuation.Points(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, points, response.Meta{Total: len(points)})
}

// Chart handles GET /api/v1/history/valuation/chart
func (h *HistoryHandler) Chart(w http.ResponseWriter, r *http.Request) {
	if _, err := h.valuation.Points(r.Context()); err != nil {
		response.Error(w, r, err)
		return
	}
	response.OK(w, h.valuation.ChartData())
}

// ValueRequest is the body of POST /api/v1/history/valuation.
type ValueRequest struct {
	Value *decimal.Decimal `json:"value"`
}

// RecordValue handles POST /api/v1/history/valuation
func (h *HistoryHandler) RecordValue(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if req.Value == nil {
		response.Error(w, r, badField("value", "is required"))
		return
	}
	if req.Value.IsNegative() {
		response.Error(w, r, badField("value", "must be zero or positive"))
		return
	}
	if err := h.valuation.RecordValue(r.Context(), *req.Value); err != nil {
		response.Error(w, r, err)
		return
	}
	h.Valuation(w, r)
}

// Actions handles GET /api/v1/history/actions?period=1week
//
// Without a period the whole cached log is returned.
func (h *HistoryHandler) Actions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		entries, err := h.actions.Entries(r.Context())
		if err != nil {
			response.Error(w, r, err)
			return
		}
		response.JSONWithMeta(w, http.StatusOK, entries, response.Meta{Total: len(entries)})
		return
	}

	view, err := h.actions.LoadPeriod(r.Context(), model.Period(raw))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, view.Entries, response.Meta{
		Total:  len(view.Entries),
		Period: string(view.Period),
	})
}
