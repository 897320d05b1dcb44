package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// AddressHandler proxies the shopper's address book on the food API.
type AddressHandler struct {
	storefront *service.Storefront
	logger     *slog.Logger
}

// NewAddressHandler creates a new address book HTTP handler.
func NewAddressHandler(storefront *service.Storefront, logger *slog.Logger) *AddressHandler {
	return &AddressHandler{
		storefront: storefront,
		logger:     logger,
	}
}

// CreateAddressRequest is the JSON request body for saving a new address.
type CreateAddressRequest struct {
	Title      string `json:"title" validate:"max=100"`
	Street     string `json:"street" validate:"required,max=255"`
	City       string `json:"city" validate:"required,max=100"`
	District   string `json:"district" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
	Phone      string `json:"phone" validate:"required,max=32,phone"`
	IsDefault  bool   `json:"is_default"`
}

// ListAddresses handles GET /api/v1/addresses.
func (h *AddressHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}

	addrs, err := h.storefront.ListAddresses(r.Context(), sess)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, nonNil(addrs))
}

// CreateAddress handles POST /api/v1/addresses.
func (h *AddressHandler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateAddressRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	addrs, err := h.storefront.CreateAddress(r.Context(), sess, domain.Address{
		Title:      req.Title,
		Street:     req.Street,
		City:       req.City,
		District:   req.District,
		PostalCode: req.PostalCode,
		Phone:      req.Phone,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, nonNil(addrs))
}

// SetDefaultAddress handles PUT /api/v1/addresses/{id}/default.
func (h *AddressHandler) SetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}

	addrs, err := h.storefront.SetDefaultAddress(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, nonNil(addrs))
}

// DeleteAddress handles DELETE /api/v1/addresses/{id}.
func (h *AddressHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}

	addrs, err := h.storefront.DeleteAddress(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, nonNil(addrs))
}

func nonNil(addrs []domain.Address) []domain.Address {
	if addrs == nil {
		return []domain.Address{}
	}
	return addrs
}
