// Пакет model — доменные сущности ServerSentinel.
package model

import "time"

// Node — сервер с ускорителями.
// Хранится в таблице nodes.
type Node struct {
	// ID — идентификатор узла
	ID int64
	// Name — уникальное имя узла
	Name string
	// IPAddress — уникальный сетевой адрес
	IPAddress string
	// SSHPort — порт управления
	SSHPort int
	// Status — справочная метка (online, offline, ...). На допуск резервирований не влияет.
	Status string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Device — ускоритель узла.
// Хранится в таблице devices. DeviceIndex уникален в пределах узла.
type Device struct {
	ID          int64
	NodeID      int64
	DeviceIndex int
	// ModelName — модель устройства (может быть nil)
	ModelName *string
	CreatedAt time.Time
}

// NodeWithDevices — узел вместе с набором его устройств (запись каталога).
type NodeWithDevices struct {
	Node    Node
	Devices []Device
}

// HasDevice сообщает, принадлежит ли устройство deviceID узлу.
func (n *NodeWithDevices) HasDevice(deviceID int64) bool {
	for i := range n.Devices {
		if n.Devices[i].ID == deviceID {
			return true
		}
	}
	return false
}
