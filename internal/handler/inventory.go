package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"cardfolio-api/internal/model"
	"cardfolio-api/internal/service"
	"cardfolio-api/pkg/apierror"
	"cardfolio-api/pkg/response"
)

// defaultLatest is the number of cards GET /inventory/latest returns.
const defaultLatest = 5

// InventoryHandler handles inventory-related HTTP requests.
type InventoryHandler struct {
	inventory *service.InventoryCache
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(inventory *service.InventoryCache) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

// List handles GET /api/v1/inventory
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.inventory.Items(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, items, response.Meta{Total: len(items)})
}

// Reload handles POST /api/v1/inventory/reload
func (h *InventoryHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.Reload(r.Context()); err != nil {
		response.Error(w, r, err)
		return
	}
	h.List(w, r)
}

// Get handles GET /api/v1/inventory/{id}
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, err := h.inventory.Items(r.Context()); err != nil {
		response.Error(w, r, err)
		return
	}
	item, ok := h.inventory.Item(chi.URLParam(r, "id"))
	if !ok {
		response.Error(w, r, apierror.NotFound("card not found"))
		return
	}
	response.OK(w, item)
}

// Latest handles GET /api/v1/inventory/latest?limit=n
func (h *InventoryHandler) Latest(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLatest)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if _, err := h.inventory.Items(r.Context()); err != nil {
		response.Error(w, r, err)
		return
	}
	items := h.inventory.LatestItems(limit)
	response.JSONWithMeta(w, http.StatusOK, items, response.Meta{Total: len(items)})
}

// Top handles GET /api/v1/inventory/top
func (h *InventoryHandler) Top(w http.ResponseWriter, r *http.Request) {
	if _, err := h.inventory.Items(r.Context()); err != nil {
		response.Error(w, r, err)
		return
	}
	item, ok := h.inventory.MostValuableItem()
	if !ok {
		response.OK(w, nil)
		return
	}
	response.OK(w, item)
}

// TotalResponse is the body of GET /api/v1/inventory/total.
type TotalResponse struct {
	TotalCards int             `json:"totalCards"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// Total handles GET /api/v1/inventory/total
func (h *InventoryHandler) Total(w http.ResponseWriter, r *http.Request) {
	items, err := h.inventory.Items(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.OK(w, TotalResponse{
		TotalCards: len(items),
		TotalValue: h.inventory.TotalValue().Value(),
	})
}

// Add handles POST /api/v1/inventory
func (h *InventoryHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req model.ItemInput
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	item, err := h.inventory.AddItem(r.Context(), req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Created(w, item)
}

// Update handles PATCH /api/v1/inventory/{id}
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.ItemPatch
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.inventory.UpdateItem(r.Context(), id, req); err != nil {
		response.Error(w, r, err)
		return
	}
	item, ok := h.inventory.Item(id)
	if !ok {
		response.NoContent(w)
		return
	}
	response.OK(w, item)
}

// Delete handles DELETE /api/v1/inventory/{id}
func (h *InventoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.RemoveItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.Error(w, r, err)
		return
	}
	response.NoContent(w)
}

// SaleResponse is the body of POST /api/v1/inventory/{id}/sell.
type SaleResponse struct {
	ID     string           `json:"id"`
	Profit *decimal.Decimal `json:"profit"`
}

// Sell handles POST /api/v1/inventory/{id}/sell
func (h *InventoryHandler) Sell(w http.ResponseWriter, r *http.Request) {
	var req model.SaleInput
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	profit, err := h.inventory.SellItem(r.Context(), id, req.SalePrice, req.SaleDate)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.OK(w, SaleResponse{ID: id, Profit: profit})
}
