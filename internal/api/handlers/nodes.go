// nodes.go — обработчики каталога узлов /api/v1/nodes.
package handlers

import (
	"net/http"

	apierrors "github.com/xiaocunxcx/ServerSentinel/internal/api/errors"
	"github.com/xiaocunxcx/ServerSentinel/internal/api/middleware"
	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
	"github.com/xiaocunxcx/ServerSentinel/internal/service"
)

// ListNodes — GET /api/v1/nodes.
func (h *APIHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	page, err := bindPage(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	limit, offset := page.values()
	if limit < 1 || limit > service.MaxLimit || offset < 0 {
		apierrors.ValidationError(w, "limit должен быть в диапазоне 1-1000, offset >= 0")
		return
	}

	nodes, total, err := h.catalog.ListNodes(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]nodeResponse, len(nodes))
	for i, n := range nodes {
		items[i] = toNodeResponse(n)
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

// GetNode — GET /api/v1/nodes/{id}.
func (h *APIHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	id, err := bindID(r)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный id: "+err.Error())
		return
	}

	node, err := h.catalog.GetNode(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNodeResponse(node))
}

// CreateNode — POST /api/v1/nodes (admin).
func (h *APIHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	var body createNodeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	node, err := h.catalog.CreateNode(r.Context(), actor, middleware.ClientIP(r), service.CreateNodeParams{
		Name:      body.Name,
		IPAddress: body.IPAddress,
		SSHPort:   body.SSHPort,
		Status:    body.Status,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNodeResponse(&model.NodeWithDevices{Node: *node}))
}

// AddDevice — POST /api/v1/nodes/{id}/devices (admin).
func (h *APIHandler) AddDevice(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	nodeID, err := bindID(r)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный id: "+err.Error())
		return
	}

	var body addDeviceRequest
	if err := decodeJSON(w, r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}
	if body.DeviceIndex == nil {
		apierrors.ValidationError(w, "Поле device_index обязательно")
		return
	}

	device, err := h.catalog.AddDevice(r.Context(), actor, middleware.ClientIP(r), nodeID, *body.DeviceIndex, body.ModelName)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeviceResponse(*device))
}
