package handlers

import (
	"time"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
)

// deviceResponse — устройство в ответах API.
type deviceResponse struct {
	ID          int64     `json:"id"`
	NodeID      int64     `json:"node_id"`
	DeviceIndex int       `json:"device_index"`
	ModelName   *string   `json:"model_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// nodeResponse — узел вместе с устройствами.
type nodeResponse struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	IPAddress string           `json:"ip_address"`
	SSHPort   int              `json:"ssh_port"`
	Status    string           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Devices   []deviceResponse `json:"devices"`
}

// reservationResponse — резервирование в ответах API.
type reservationResponse struct {
	ID              int64            `json:"id"`
	NodeID          int64            `json:"node_id"`
	UserID          string           `json:"user_id"`
	Type            string           `json:"type"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	ReservedDevices []deviceResponse `json:"reserved_devices"`
}

// createReservationRequest — тело POST /api/v1/reservations.
type createReservationRequest struct {
	NodeID    int64     `json:"node_id"`
	Type      string    `json:"type"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	DeviceIDs []int64   `json:"device_ids"`
}

// createNodeRequest — тело POST /api/v1/nodes.
type createNodeRequest struct {
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
	SSHPort   int    `json:"ssh_port"`
	Status    string `json:"status"`
}

// addDeviceRequest — тело POST /api/v1/nodes/{id}/devices.
type addDeviceRequest struct {
	DeviceIndex *int    `json:"device_index"`
	ModelName   *string `json:"model_name"`
}

func toDeviceResponse(d model.Device) deviceResponse {
	return deviceResponse{
		ID:          d.ID,
		NodeID:      d.NodeID,
		DeviceIndex: d.DeviceIndex,
		ModelName:   d.ModelName,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

func toDeviceResponses(devices []model.Device) []deviceResponse {
	out := make([]deviceResponse, len(devices))
	for i, d := range devices {
		out[i] = toDeviceResponse(d)
	}
	return out
}

func toNodeResponse(n *model.NodeWithDevices) nodeResponse {
	return nodeResponse{
		ID:        n.Node.ID,
		Name:      n.Node.Name,
		IPAddress: n.Node.IPAddress,
		SSHPort:   n.Node.SSHPort,
		Status:    n.Node.Status,
		CreatedAt: n.Node.CreatedAt.UTC(),
		UpdatedAt: n.Node.UpdatedAt.UTC(),
		Devices:   toDeviceResponses(n.Devices),
	}
}

func toReservationResponse(r *model.Reservation) reservationResponse {
	return reservationResponse{
		ID:              r.ID,
		NodeID:          r.NodeID,
		UserID:          r.UserID,
		Type:            string(r.Type),
		StartTime:       r.StartTime.UTC(),
		EndTime:         r.EndTime.UTC(),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
		ReservedDevices: toDeviceResponses(r.Devices),
	}
}

func toReservationResponses(items []*model.Reservation) []reservationResponse {
	out := make([]reservationResponse, len(items))
	for i, r := range items {
		out[i] = toReservationResponse(r)
	}
	return out
}
