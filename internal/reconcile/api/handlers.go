package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"logiplatform/internal/common/api"
	"logiplatform/internal/common/middleware"
	"logiplatform/internal/common/money"
	"logiplatform/internal/reconcile"
)

// Handler handles billing reconciliation HTTP requests
type Handler struct {
	service *reconcile.Service
}

// NewHandler creates a new reconciliation handler
func NewHandler(service *reconcile.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the reconciliation routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/import", h.ImportBilling)
	r.Get("/cases", h.ListCases)
	r.Post("/cases/{id}/review", h.StartReview)
	r.Post("/cases/{id}/close", h.CloseCase)

	return r
}

// ImportRecordInput is one billed row plus its expected amount.
type ImportRecordInput struct {
	Provider      string `json:"provider" validate:"required"`
	AWB           string `json:"awb" validate:"required"`
	CompanyID     string `json:"company_id" validate:"required"`
	BilledMinor   int64  `json:"billed_minor" validate:"required,gt=0"`
	ExpectedMinor int64  `json:"expected_minor" validate:"required,gt=0"`
	Currency      string `json:"currency" validate:"required,len=3"`
}

// ImportBillingRequest is the API request for a billing file import
type ImportBillingRequest struct {
	Records []ImportRecordInput `json:"records" validate:"required,min=1,dive"`
}

// ImportBillingResponse summarizes one import run
type ImportBillingResponse struct {
	Processed   int                       `json:"processed"`
	CasesOpened []*reconcile.VarianceCase `json:"cases_opened"`
	Errors      []string                  `json:"errors,omitempty"`
}

// ImportBilling handles POST /import
func (h *Handler) ImportBilling(w http.ResponseWriter, r *http.Request) {
	var req ImportBillingRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	var cases []*reconcile.VarianceCase
	var errs []string
	for _, in := range req.Records {
		vc, err := h.service.Reconcile(r.Context(),
			money.New(in.ExpectedMinor, money.Currency(in.Currency)),
			reconcile.ImportRecord{
				Provider:    in.Provider,
				AWB:         in.AWB,
				CompanyID:   in.CompanyID,
				BilledMinor: in.BilledMinor,
				Currency:    in.Currency,
			})
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if vc != nil {
			cases = append(cases, vc)
		}
	}

	api.WriteData(w, http.StatusOK, ImportBillingResponse{
		Processed:   len(req.Records),
		CasesOpened: cases,
		Errors:      errs,
	})
}

// ListCases handles GET /cases
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	status := reconcile.CaseStatus(r.URL.Query().Get("status"))
	p := api.GetPaginationParams(r, 50, 100)

	cases, total, err := h.service.ListCases(r.Context(), companyID, status, p.Limit, p.Offset)
	if err != nil {
		api.InternalError(w, "failed to list variance cases")
		return
	}

	api.WritePaginated(w, cases, &api.Pagination{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Total:   total,
		HasMore: int64(p.Offset+len(cases)) < total,
	})
}

// ReviewRequest is the API request for starting a case review
type ReviewRequest struct {
	Note string `json:"note" validate:"max=1024"`
}

// StartReview handles POST /cases/{id}/review
func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "case ID required")
		return
	}

	var req ReviewRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	vc, err := h.service.StartReview(r.Context(), id, req.Note)
	if err != nil {
		writeCaseError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, vc)
}

// CloseRequest is the API request for closing a case
type CloseRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=resolved waived"`
	Note       string `json:"note" validate:"max=1024"`
}

// CloseCase handles POST /cases/{id}/close
func (h *Handler) CloseCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "case ID required")
		return
	}

	var req CloseRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	vc, err := h.service.Close(r.Context(), id, reconcile.Resolution(req.Resolution), req.Note)
	if err != nil {
		writeCaseError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, vc)
}

func writeCaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reconcile.ErrCaseNotFound):
		api.NotFound(w, "variance case not found")
	case errors.Is(err, reconcile.ErrInvalidTransition):
		api.Conflict(w, err.Error())
	default:
		api.InternalError(w, "internal error")
	}
}
