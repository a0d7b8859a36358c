package procurement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

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
	r.Post("/{id}/submit", h.action(func(s *Service) actionFn { return s.Submit }))
	r.Post("/{id}/approve", h.action(func(s *Service) actionFn { return s.Approve }))
	r.Post("/{id}/cancel", h.action(func(s *Service) actionFn { return s.Cancel }))
	r.Post("/{id}/receive", h.receive)
}

type actionFn func(ctx context.Context, id, actorID int64) error

type createRequest struct {
	SupplierID  int64         `json:"supplier_id" validate:"required,gt=0"`
	WarehouseID int64         `json:"warehouse_id" validate:"required,gt=0"`
	Note        string        `json:"note" validate:"max=1024"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type lineRequest struct {
	ComponentID int64  `json:"component_id" validate:"required,gt=0"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice   string `json:"unit_price"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, total, err := h.service.List(r.Context(), Status(r.URL.Query().Get("status")), page, limit)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
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
	input := CreateInput{
		SupplierID:  req.SupplierID,
		WarehouseID: req.WarehouseID,
		Note:        req.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
	}
	for _, line := range req.Lines {
		price := decimal.Zero
		if line.UnitPrice != "" {
			parsed, err := decimal.NewFromString(line.UnitPrice)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit_price")
				return
			}
			price = parsed
		}
		input.Lines = append(input.Lines, LineInput{
			ComponentID: line.ComponentID,
			Quantity:    line.Quantity,
			UnitPrice:   price,
		})
	}
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create purchase order", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) action(pick func(*Service) actionFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r)
		if !ok {
			return
		}
		if err := pick(h.service)(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
			h.logger.Error("purchase order transition", slog.Any("error", err), slog.Int64("id", id))
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
	}
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Receive(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("receive purchase order", slog.Any("error", err), slog.Int64("id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
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
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrNoLines):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotEditable):
		httpx.ProblemKind(w, http.StatusConflict, "not-editable", "Not Editable", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
