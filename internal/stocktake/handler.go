package stocktake

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

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
	r.Post("/", h.open)
	r.Get("/{id}", h.show)
	r.Post("/{id}/counts", h.recordCounts)
	r.Post("/{id}/finalize", h.finalize)
	r.Get("/{id}/variance", h.variance)
}

type openRequest struct {
	WarehouseID int64 `json:"warehouse_id" validate:"required,gt=0"`
}

type countsRequest struct {
	Counts []Count `json:"counts" validate:"required,min=1,dive"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, total, err := h.service.ListSessions(r.Context(), warehouseID, page, limit)
	if err != nil {
		h.logger.Error("list stocktake sessions", slog.Any("error", err))
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
	session, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	session, err := h.service.OpenSession(r.Context(), req.WarehouseID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("open stocktake session", slog.Any("error", err), slog.Int64("warehouse_id", req.WarehouseID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, session)
}

func (h *Handler) recordCounts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req countsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.RecordCounts(r.Context(), id, shared.ActorFromContext(r.Context()), req.Counts); err != nil {
		h.logger.Error("record stocktake counts", slog.Any("error", err), slog.Int64("session_id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"recorded": len(req.Counts)})
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Finalize(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("finalize stocktake session", slog.Any("error", err), slog.Int64("session_id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) variance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	lines, err := h.service.VarianceReport(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": lines})
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
	case errors.Is(err, ErrSessionAlreadyActive):
		httpx.ProblemKind(w, http.StatusConflict, "session-already-active", "Session Already Active", err.Error())
	case errors.Is(err, ErrIncompleteCount):
		httpx.ProblemKind(w, http.StatusConflict, "incomplete-count", "Incomplete Count", err.Error())
	case errors.Is(err, ErrSessionClosed):
		httpx.ProblemKind(w, http.StatusConflict, "session-closed", "Session Closed", err.Error())
	case errors.Is(err, ErrUnexpectedComponent), errors.Is(err, ErrNegativeCount):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
