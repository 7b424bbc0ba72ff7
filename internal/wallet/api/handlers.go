package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"logiplatform/internal/common/api"
	"logiplatform/internal/common/middleware"
	"logiplatform/internal/common/money"
	"logiplatform/internal/wallet"
)

// Handler handles wallet HTTP requests
type Handler struct {
	service *wallet.Service
}

// NewHandler creates a new wallet handler
func NewHandler(service *wallet.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the wallet routes. All routes require a company scope via
// the X-Company-ID header.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireCompany)

	r.Get("/balance", h.GetBalance)
	r.Get("/transactions", h.ListTransactions)

	r.Post("/credit", h.Credit)
	r.Post("/charges/shipping", h.ChargeShipping)
	r.Post("/charges/rto", h.ChargeRTO)
	r.Post("/remittances/cod", h.RemitCOD)

	r.Get("/auto-recharge", h.GetAutoRechargeSettings)
	r.Put("/auto-recharge", h.UpdateAutoRechargeSettings)
	r.Get("/recharge-logs", h.ListRechargeLogs)

	return r
}

// GetBalance handles GET /balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())

	balance, err := h.service.GetBalance(r.Context(), companyID)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, balance)
}

// ListTransactions handles GET /transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	p := api.GetPaginationParams(r, 50, 100)

	txns, total, err := h.service.ListTransactions(r.Context(), companyID, p.Limit, p.Offset)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	api.WritePaginated(w, txns, &api.Pagination{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Total:   total,
		HasMore: int64(p.Offset+len(txns)) < total,
	})
}

// CreditRequest is the API request for a manual wallet top-up
type CreditRequest struct {
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
	Description string `json:"description" validate:"max=255"`
	ReferenceID string `json:"reference_id"`
}

// Credit handles POST /credit
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())

	var req CreditRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	amount := money.New(req.AmountMinor, money.Currency(req.Currency))
	res, err := h.service.Credit(r.Context(), companyID, amount, wallet.ReferenceManual, req.Description, req.ReferenceID)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, res)
}

// ChargeRequest is the API request for shipment-linked debits
type ChargeRequest struct {
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
	ShipmentID  string `json:"shipment_id" validate:"required"`
}

// ChargeShipping handles POST /charges/shipping
func (h *Handler) ChargeShipping(w http.ResponseWriter, r *http.Request) {
	h.charge(w, r, h.service.HandleShippingCost)
}

// ChargeRTO handles POST /charges/rto
func (h *Handler) ChargeRTO(w http.ResponseWriter, r *http.Request) {
	h.charge(w, r, h.service.HandleRTOCharge)
}

type chargeFn func(ctx context.Context, companyID string, amount money.Money, shipmentID string) (*wallet.MutationResult, error)

func (h *Handler) charge(w http.ResponseWriter, r *http.Request, fn chargeFn) {
	companyID := middleware.GetCompanyID(r.Context())

	var req ChargeRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	amount := money.New(req.AmountMinor, money.Currency(req.Currency))
	res, err := fn(r.Context(), companyID, amount, req.ShipmentID)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, res)
}

// RemitCODRequest is the API request for crediting a COD remittance
type RemitCODRequest struct {
	AmountMinor  int64  `json:"amount_minor" validate:"required,gt=0"`
	Currency     string `json:"currency" validate:"required,len=3"`
	RemittanceID string `json:"remittance_id" validate:"required"`
}

// RemitCOD handles POST /remittances/cod
func (h *Handler) RemitCOD(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())

	var req RemitCODRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	amount := money.New(req.AmountMinor, money.Currency(req.Currency))
	res, err := h.service.HandleCODRemittance(r.Context(), companyID, amount, req.RemittanceID)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, res)
}

// GetAutoRechargeSettings handles GET /auto-recharge
func (h *Handler) GetAutoRechargeSettings(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())

	settings, err := h.service.GetAutoRechargeSettings(r.Context(), companyID)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, settings)
}

// UpdateAutoRechargeRequest is the API request for PUT /auto-recharge
type UpdateAutoRechargeRequest struct {
	Enabled           bool   `json:"enabled"`
	ThresholdMinor    int64  `json:"threshold_minor" validate:"gte=0"`
	AmountMinor       int64  `json:"amount_minor" validate:"gte=0"`
	Currency          string `json:"currency" validate:"required,len=3"`
	PaymentMethodID   string `json:"payment_method_id"`
	DailyLimitMinor   *int64 `json:"daily_limit_minor,omitempty"`
	MonthlyLimitMinor *int64 `json:"monthly_limit_minor,omitempty"`
}

// UpdateAutoRechargeSettings handles PUT /auto-recharge
func (h *Handler) UpdateAutoRechargeSettings(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())

	var req UpdateAutoRechargeRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	currency := money.Currency(req.Currency)
	update := wallet.SettingsUpdate{
		Enabled:         req.Enabled,
		Threshold:       money.New(req.ThresholdMinor, currency),
		Amount:          money.New(req.AmountMinor, currency),
		PaymentMethodID: req.PaymentMethodID,
	}
	if req.DailyLimitMinor != nil {
		m := money.New(*req.DailyLimitMinor, currency)
		update.DailyLimit = &m
	}
	if req.MonthlyLimitMinor != nil {
		m := money.New(*req.MonthlyLimitMinor, currency)
		update.MonthlyLimit = &m
	}

	if err := h.service.UpdateAutoRechargeSettings(r.Context(), companyID, update); err != nil {
		writeWalletError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, map[string]string{"status": "updated"})
}

// ListRechargeLogs handles GET /recharge-logs
func (h *Handler) ListRechargeLogs(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	p := api.GetPaginationParams(r, 50, 100)

	logs, total, err := h.service.ListRechargeLogs(r.Context(), companyID, p.Limit, p.Offset)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	api.WritePaginated(w, logs, &api.Pagination{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Total:   total,
		HasMore: int64(p.Offset+len(logs)) < total,
	})
}

// writeWalletError maps service errors onto the API envelope. Sentinel error
// messages pass through unchanged.
func writeWalletError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wallet.ErrCompanyNotFound):
		api.NotFound(w, "company not found")
	case errors.Is(err, wallet.ErrInsufficientBalance):
		api.WriteError(w, http.StatusPaymentRequired, api.ErrCodeInsufficientFunds, err.Error())
	case wallet.IsValidation(err):
		api.UnprocessableEntity(w, api.ErrCodeValidation, err.Error())
	default:
		api.InternalError(w, "internal error")
	}
}
