// handler.go — общий обработчик API: зависимости, JSON-ответы,
// пагинация и преобразование ошибок сервисного слоя в HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/xiaocunxcx/ServerSentinel/internal/api/errors"
	"github.com/xiaocunxcx/ServerSentinel/internal/api/middleware"
	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
	"github.com/xiaocunxcx/ServerSentinel/internal/service"
)

// ReservationService — операции с резервированиями, используемые API.
type ReservationService interface {
	Create(ctx context.Context, actor model.Identity, clientIP string, req service.CreateReservationRequest) (*model.Reservation, error)
	Get(ctx context.Context, actor model.Identity, id int64) (*model.Reservation, error)
	List(ctx context.Context, actor model.Identity, p service.ListParams) ([]*model.Reservation, int, error)
	ListMine(ctx context.Context, actor model.Identity, p service.ListParams) ([]*model.Reservation, int, error)
	Delete(ctx context.Context, actor model.Identity, clientIP string, id int64) error
}

// CatalogService — операции каталога узлов, используемые API.
type CatalogService interface {
	GetNode(ctx context.Context, id int64) (*model.NodeWithDevices, error)
	ListNodes(ctx context.Context, limit, offset int) ([]*model.NodeWithDevices, int, error)
	CreateNode(ctx context.Context, actor model.Identity, clientIP string, p service.CreateNodeParams) (*model.Node, error)
	AddDevice(ctx context.Context, actor model.Identity, clientIP string, nodeID int64, index int, modelName *string) (*model.Device, error)
}

// APIHandler — обработчик /api/v1.
type APIHandler struct {
	reservations ReservationService
	catalog      CatalogService
	logger       *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(reservations ReservationService, catalog CatalogService, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		reservations: reservations,
		catalog:      catalog,
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// listResponse — конверт постраничного списка.
type listResponse[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

func newListResponse[T any](items []T, total, limit, offset int) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(items) < total,
	}
}

// pageParams — параметры пагинации из query.
type pageParams struct {
	Limit  *int
	Offset *int
	// Skip — синоним Offset; Offset имеет приоритет
	Skip *int
}

// bindPage разбирает limit/offset/skip. Диапазоны проверяет сервисный слой.
func bindPage(r *http.Request) (pageParams, error) {
	var p pageParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &p.Limit); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", q, &p.Offset); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "skip", q, &p.Skip); err != nil {
		return p, err
	}
	return p, nil
}

// values возвращает limit и offset с умолчаниями (100, 0).
func (p pageParams) values() (int, int) {
	limit := service.DefaultLimit
	if p.Limit != nil {
		limit = *p.Limit
	}
	offset := 0
	switch {
	case p.Offset != nil:
		offset = *p.Offset
	case p.Skip != nil:
		offset = *p.Skip
	}
	return limit, offset
}

// bindID разбирает path-параметр {id}.
func bindID(r *http.Request) (int64, error) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		return 0, err
	}
	if id < 1 {
		return 0, errors.New("id должен быть положительным")
	}
	return id, nil
}

// decodeJSON читает тело запроса в dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(dst)
}

// identity возвращает субъект запроса. Отсутствие субъекта — 401.
func identity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
	}
	return id, ok
}

// writeServiceError преобразует ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var conflictErr *service.ConflictError
	var devicesErr *service.InvalidDevicesError

	switch {
	case errors.As(err, &conflictErr):
		var details map[string]any
		if conflictErr.ReservationID != 0 {
			details = map[string]any{"conflicting_reservation_id": conflictErr.ReservationID}
		}
		apierrors.WriteErrorWithDetails(w, http.StatusConflict, apierrors.CodeConflict, conflictErr.Error(), details)
	case errors.As(err, &devicesErr):
		apierrors.WriteErrorWithDetails(w, http.StatusBadRequest, apierrors.CodeValidationError, devicesErr.Error(),
			map[string]any{"invalid_device_ids": devicesErr.DeviceIDs})
	case errors.Is(err, service.ErrInvalidRequest):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	default:
		h.logger.Error("Внутренняя ошибка обработки запроса",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
