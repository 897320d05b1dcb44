package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	logger *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(logger *slog.Logger) *CartHandler {
	return &CartHandler{logger: logger}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding one unit of a food item.
type AddItemRequest struct {
	ID              string          `json:"id" validate:"required,max=128"`
	Name            string          `json:"name" validate:"required,min=1,max=500"`
	Price           decimal.Decimal `json:"price" validate:"gte=0"`
	Image           string          `json:"image" validate:"max=2048"`
	IsDiscount      bool            `json:"is_discount"`
	DiscountPercent decimal.Decimal `json:"discount" validate:"gte=0,lte=100"`
	DiscountPrice   decimal.Decimal `json:"discount_price" validate:"gte=0"`
}

func (req AddItemRequest) input() domain.AddItemInput {
	in := domain.AddItemInput{
		ID:        req.ID,
		Name:      req.Name,
		UnitPrice: req.Price,
		Image:     req.Image,
	}
	if req.IsDiscount {
		in.Discount = &domain.Discount{
			Active:              true,
			Percent:             req.DiscountPercent,
			DiscountedUnitPrice: req.DiscountPrice,
		}
	}
	return in
}

// UpdateQuantityRequest is the JSON request body for setting an item's
// quantity. Zero or less removes the item.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// --- Response views ---

type cartItemView struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Image              string `json:"image,omitempty"`
	Quantity           int    `json:"quantity"`
	UnitPrice          string `json:"unit_price"`
	EffectiveUnitPrice string `json:"effective_unit_price"`
	Discounted         bool   `json:"discounted"`
	LineTotal          string `json:"line_total"`
}

type cartView struct {
	Items     []cartItemView `json:"items"`
	Total     string         `json:"total"`
	ItemCount int            `json:"item_count"`
	Version   uint64         `json:"version"`
}

func newCartView(snap domain.CartSnapshot) cartView {
	items := make([]cartItemView, 0, len(snap.Items))
	for _, it := range snap.Items {
		effective := it.EffectiveUnitPrice()
		items = append(items, cartItemView{
			ID:                 it.ID,
			Name:               it.Name,
			Image:              it.Image,
			Quantity:           it.Quantity,
			UnitPrice:          domain.FormatAmount(it.UnitPrice),
			EffectiveUnitPrice: domain.FormatAmount(effective),
			Discounted:         !effective.Equal(it.UnitPrice),
			LineTotal:          domain.FormatAmount(it.LineTotal()),
		})
	}
	return cartView{
		Items:     items,
		Total:     domain.FormatAmount(snap.Total),
		ItemCount: snap.ItemCount,
		Version:   snap.Version,
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartView(sess.Cart()))
}

// AddItem handles POST /api/v1/cart/items.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	snap, err := sess.AddItem(r.Context(), req.input())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartView(snap))
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{id}.
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	snap, err := sess.SetQuantity(r.Context(), chi.URLParam(r, "id"), *req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartView(snap))
}

// RemoveItem handles DELETE /api/v1/cart/items/{id}.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	snap, err := sess.RemoveItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartView(snap))
}

// ClearCart handles DELETE /api/v1/cart.
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	snap, err := sess.ClearCart(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartView(snap))
}

func (h *CartHandler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	return requireSession(w, r, h.logger)
}

// requireSession fetches the session stored by Sessions. Routes are always
// mounted behind that middleware, so a miss is a wiring bug.
func requireSession(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*service.Session, bool) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, fmt.Errorf("no session in request context"), logger)
		return nil, false
	}
	return sess, true
}
