package materials

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/foundry-mes/foundry-mes/internal/bom"
	"github.com/foundry-mes/foundry-mes/internal/inventory"
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
	r.Post("/{id}/approve", h.approve)
	r.Get("/{id}/dispatch-slip", h.dispatchSlip)
}

type createRequest struct {
	WorkOrderID int64 `json:"work_order_id" validate:"required,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, total, err := h.service.List(r.Context(), Status(r.URL.Query().Get("status")), page, limit)
	if err != nil {
		h.logger.Error("list material requests", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	request, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, request)
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
	created, err := h.service.CreateFromWorkOrder(r.Context(), req.WorkOrderID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create material request", slog.Any("error", err), slog.Int64("work_order_id", req.WorkOrderID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	approved, err := h.service.Approve(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("approve material request", slog.Any("error", err), slog.Int64("id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, approved)
}

func (h *Handler) dispatchSlip(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	slip, err := h.service.GetDispatchSlip(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, slip)
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
	var shortfall *inventory.InsufficientStockError
	switch {
	case errors.As(err, &shortfall):
		httpx.ProblemKind(w, http.StatusConflict, "insufficient-stock", "Insufficient Stock", shortfall.Error())
	case errors.Is(err, ErrNotApproved):
		httpx.ProblemKind(w, http.StatusConflict, "not-approved", "Not Approved", err.Error())
	case errors.Is(err, ErrRequestExists):
		httpx.ProblemKind(w, http.StatusConflict, "request-exists", "Request Exists", err.Error())
	case errors.Is(err, ErrWorkOrderCompleted):
		httpx.ProblemKind(w, http.StatusConflict, "work-order-completed", "Work Order Completed", err.Error())
	case errors.Is(err, bom.ErrNoBOMDefined):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "no-bom-defined", "No BOM Defined", err.Error())
	case errors.Is(err, ErrNoLines):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
