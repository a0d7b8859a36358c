package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/foundry-mes/foundry-mes/internal/platform/httpx"
	"github.com/foundry-mes/foundry-mes/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock-levels", h.handleStockLevels)
	r.Get("/transactions", h.handleTransactions)
	r.Post("/adjustments", h.handleAdjustment)
}

type adjustmentRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	ComponentID int64  `json:"component_id" validate:"required,gt=0"`
	Delta       int64  `json:"delta" validate:"required"`
	Note        string `json:"note" validate:"max=500"`
}

func (h *Handler) handleStockLevels(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	if err != nil || warehouseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "warehouse_id is required")
		return
	}
	stocks, err := h.service.GetStockLevels(r.Context(), warehouseID)
	if err != nil {
		h.logger.Error("get stock levels", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": stocks})
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	filter := TransactionFilter{}
	q := r.URL.Query()
	if v := q.Get("warehouse_id"); v != "" {
		filter.WarehouseID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("component_id"); v != "" {
		filter.ComponentID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("type"); v != "" {
		filter.Type = TransactionType(v)
	}
	if v := q.Get("from"); v != "" {
		if from, err := time.Parse("2006-01-02", v); err == nil {
			filter.From = from
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err := time.Parse("2006-01-02", v); err == nil {
			filter.To = to.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	entries, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.logger.Error("list transactions", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	stock, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		WarehouseID: req.WarehouseID,
		ComponentID: req.ComponentID,
		Delta:       req.Delta,
		Note:        req.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("post adjustment", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		httpx.ProblemKind(w, http.StatusConflict, "insufficient-stock", "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "invalid-quantity", "Invalid Quantity", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
