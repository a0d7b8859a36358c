package workorders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/foundry-mes/foundry-mes/internal/bom"
	"github.com/foundry-mes/foundry-mes/internal/materials"
	"github.com/foundry-mes/foundry-mes/internal/platform/httpx"
	"github.com/foundry-mes/foundry-mes/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Post("/{id}/start", h.start)
	r.Post("/{id}/complete", h.complete)
	r.Get("/{id}/batch", h.batch)
}

type createRequest struct {
	ProductionRequestID int64  `json:"production_request_id" validate:"required,gt=0"`
	ProductID           int64  `json:"product_id" validate:"required,gt=0"`
	Quantity            int64  `json:"quantity" validate:"required,gt=0"`
	AssignedLine        string `json:"assigned_line" validate:"max=64"`
}

type completeRequest struct {
	QuantityProduced int64      `json:"quantity_produced" validate:"required"`
	BatchCode        string     `json:"batch_code" validate:"max=64"`
	ExpiryDate       *time.Time `json:"expiry_date"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := ListFilter{
		Status: Status(r.URL.Query().Get("status")),
		Page:   page,
		Limit:  limit,
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list work orders", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), CreateInput{
		ProductionRequestID: req.ProductionRequestID,
		ProductID:           req.ProductID,
		Quantity:            req.Quantity,
		AssignedLine:        req.AssignedLine,
		ActorID:             shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("create work order", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	order, request, err := h.service.Start(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("start work order", slog.Any("error", err), slog.Int64("id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"work_order":       order,
		"material_request": request,
	})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, batch, err := h.service.Complete(r.Context(), id, CompleteInput{
		QuantityProduced:  req.QuantityProduced,
		ActorID:           shared.ActorFromContext(r.Context()),
		BatchCodeOverride: req.BatchCode,
		ExpiryDate:        req.ExpiryDate,
	})
	if err != nil {
		h.logger.Error("complete work order", slog.Any("error", err), slog.Int64("id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"work_order": order,
		"batch":      batch,
	})
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	batch, instances, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"batch":     batch,
		"instances": instances,
	})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "invalid-quantity", "Invalid Quantity", err.Error())
	case errors.Is(err, ErrRequestNotApproved), errors.Is(err, ErrProductMismatch):
		httpx.ProblemKind(w, http.StatusConflict, "request-not-eligible", "Request Not Eligible", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.ProblemKind(w, http.StatusConflict, "duplicate-completion", "Duplicate Completion", err.Error())
	case errors.Is(err, materials.ErrRequestExists):
		httpx.ProblemKind(w, http.StatusConflict, "request-exists", "Request Exists", err.Error())
	case errors.Is(err, bom.ErrNoBOMDefined):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "no-bom-defined", "No BOM Defined", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
