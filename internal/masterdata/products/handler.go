package products

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/foundry-mes/foundry-mes/internal/masterdata/shared"
	"github.com/foundry-mes/foundry-mes/internal/platform/httpx"
	internalshared "github.com/foundry-mes/foundry-mes/internal/shared"
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
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)

	r.Get("/{id}/composition", h.listLines)
	r.Post("/{id}/composition", h.addLine)
	r.Put("/{id}/composition/{lineID}", h.updateLine)
	r.Delete("/{id}/composition/{lineID}", h.deleteLine)
}

type productRequest struct {
	Code        string `json:"code" validate:"required,max=64"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=1024"`
	Unit        string `json:"unit" validate:"required,max=32"`
	IsActive    *bool  `json:"is_active"`
}

type compositionRequest struct {
	ComponentID    int64  `json:"component_id" validate:"required,gt=0"`
	QuantityNeeded string `json:"quantity_needed" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filters := shared.ListFilters{Page: page, Limit: limit, Search: r.URL.Query().Get("search")}
	filters.Normalize()

	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": internalshared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	product, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), product)
	if err != nil {
		h.logger.Error("create product", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	product, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.service.Update(r.Context(), id, product); err != nil {
		h.logger.Error("update product", slog.Any("error", err), slog.Int64("id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete product", slog.Any("error", err), slog.Int64("id", id))
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listLines(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	lines, err := h.service.ListLines(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": lines})
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	line, ok := h.decodeLine(w, r)
	if !ok {
		return
	}
	line.ProductID = id
	created, err := h.service.AddLine(r.Context(), line)
	if err != nil {
		h.logger.Error("add composition line", slog.Any("error", err), slog.Int64("product_id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	line, ok := h.decodeLine(w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateLine(r.Context(), lineID, line); err != nil {
		h.logger.Error("update composition line", slog.Any("error", err), slog.Int64("line_id", lineID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) deleteLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	if err := h.service.DeleteLine(r.Context(), lineID); err != nil {
		h.logger.Error("delete composition line", slog.Any("error", err), slog.Int64("line_id", lineID))
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Product, bool) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return Product{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Product{}, false
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Product{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Unit:        req.Unit,
		IsActive:    active,
	}, true
}

func (h *Handler) decodeLine(w http.ResponseWriter, r *http.Request) (CompositionLine, bool) {
	var req compositionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return CompositionLine{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CompositionLine{}, false
	}
	qty, err := decimal.NewFromString(req.QuantityNeeded)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quantity_needed")
		return CompositionLine{}, false
	}
	return CompositionLine{ComponentID: req.ComponentID, QuantityNeeded: qty}, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.ProblemKind(w, http.StatusNotFound, "not-found", "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		httpx.ProblemKind(w, http.StatusConflict, "duplicate-code", "Duplicate Code", err.Error())
	case errors.Is(err, ErrDuplicateLine):
		httpx.ProblemKind(w, http.StatusConflict, "duplicate-composition-line", "Duplicate Composition Line", err.Error())
	case errors.Is(err, ErrProductInUse):
		httpx.ProblemKind(w, http.StatusConflict, "product-in-use", "Product In Use", err.Error())
	case errors.Is(err, ErrCodeImmutable):
		httpx.ProblemKind(w, http.StatusConflict, "code-immutable", "Code Immutable", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrUnknownComponent),
		errors.Is(err, shared.ErrRequiredField), errors.Is(err, shared.ErrInvalidID):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
