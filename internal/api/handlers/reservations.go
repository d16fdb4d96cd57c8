// reservations.go — обработчики /api/v1/reservations.
package handlers

import (
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/xiaocunxcx/ServerSentinel/internal/api/errors"
	"github.com/xiaocunxcx/ServerSentinel/internal/api/middleware"
	"github.com/xiaocunxcx/ServerSentinel/internal/service"
)

// CreateReservation — POST /api/v1/reservations.
func (h *APIHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	var body createReservationRequest
	if err := decodeJSON(w, r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	res, err := h.reservations.Create(r.Context(), actor, middleware.ClientIP(r), service.CreateReservationRequest{
		NodeID:    body.NodeID,
		Type:      body.Type,
		StartTime: body.StartTime,
		EndTime:   body.EndTime,
		DeviceIDs: body.DeviceIDs,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationResponse(res))
}

// ListReservations — GET /api/v1/reservations.
func (h *APIHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	p, ok := bindListParams(w, r, true)
	if !ok {
		return
	}

	items, total, err := h.reservations.List(r.Context(), actor, p)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(toReservationResponses(items), total, p.Limit, p.Offset))
}

// ListMyReservations — GET /api/v1/reservations/my.
func (h *APIHandler) ListMyReservations(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	p, ok := bindListParams(w, r, false)
	if !ok {
		return
	}

	items, total, err := h.reservations.ListMine(r.Context(), actor, p)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(toReservationResponses(items), total, p.Limit, p.Offset))
}

// GetReservation — GET /api/v1/reservations/{id}.
func (h *APIHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, err := bindID(r)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный id: "+err.Error())
		return
	}

	res, err := h.reservations.Get(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

// DeleteReservation — DELETE /api/v1/reservations/{id}.
func (h *APIHandler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, err := bindID(r)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный id: "+err.Error())
		return
	}

	if err := h.reservations.Delete(r.Context(), actor, middleware.ClientIP(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bindListParams разбирает фильтры списка. withUser — принимать ли user_id.
func bindListParams(w http.ResponseWriter, r *http.Request, withUser bool) (service.ListParams, bool) {
	var p service.ListParams
	q := r.URL.Query()

	page, err := bindPage(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return p, false
	}
	p.Limit, p.Offset = page.values()

	if withUser {
		if err := runtime.BindQueryParameter("form", true, false, "user_id", q, &p.UserID); err != nil {
			apierrors.ValidationError(w, err.Error())
			return p, false
		}
	}
	if err := runtime.BindQueryParameter("form", true, false, "node_id", q, &p.NodeID); err != nil {
		apierrors.ValidationError(w, err.Error())
		return p, false
	}

	var start, end *time.Time
	if err := runtime.BindQueryParameter("form", true, false, "start_date", q, &start); err != nil {
		apierrors.ValidationError(w, err.Error())
		return p, false
	}
	if err := runtime.BindQueryParameter("form", true, false, "end_date", q, &end); err != nil {
		apierrors.ValidationError(w, err.Error())
		return p, false
	}
	p.StartDate, p.EndDate = start, end
	return p, true
}
