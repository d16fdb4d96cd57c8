package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
	"github.com/xiaocunxcx/ServerSentinel/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- NodeRepository ---

type fakeNodeRepo struct {
	mu      sync.Mutex
	nodes   map[int64]model.Node
	devices map[int64][]model.Device
	nextID  int64
	// getCalls — количество обращений GetNode (для проверки кэша)
	getCalls int
}

func newFakeNodeRepo() *fakeNodeRepo {
	return &fakeNodeRepo{nodes: map[int64]model.Node{}, devices: map[int64][]model.Device{}}
}

func (f *fakeNodeRepo) CreateNode(_ context.Context, n *model.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.nodes {
		if existing.Name == n.Name || existing.IPAddress == n.IPAddress {
			return repository.ErrConflict
		}
	}
	f.nextID++
	n.ID = f.nextID
	if n.SSHPort == 0 {
		n.SSHPort = 22
	}
	if n.Status == "" {
		n.Status = "offline"
	}
	n.CreatedAt = time.Now()
	n.UpdatedAt = n.CreatedAt
	f.nodes[n.ID] = *n
	return nil
}

func (f *fakeNodeRepo) GetNode(_ context.Context, id int64) (*model.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	n, ok := f.nodes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &n, nil
}

func (f *fakeNodeRepo) ListNodes(_ context.Context, limit, offset int) ([]*model.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.nodes))
	for id := range f.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var result []*model.Node
	for i := offset; i < len(ids) && len(result) < limit; i++ {
		n := f.nodes[ids[i]]
		result = append(result, &n)
	}
	return result, nil
}

func (f *fakeNodeRepo) CountNodes(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.nodes), nil
}

func (f *fakeNodeRepo) AddDevice(_ context.Context, d *model.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[d.NodeID]; !ok {
		return repository.ErrReference
	}
	for _, existing := range f.devices[d.NodeID] {
		if existing.DeviceIndex == d.DeviceIndex {
			return repository.ErrConflict
		}
	}
	f.nextID++
	d.ID = f.nextID
	d.CreatedAt = time.Now()
	f.devices[d.NodeID] = append(f.devices[d.NodeID], *d)
	return nil
}

func (f *fakeNodeRepo) ListDevices(_ context.Context, nodeID int64) ([]model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Device(nil), f.devices[nodeID]...), nil
}

func (f *fakeNodeRepo) ListDevicesByNodes(ctx context.Context, nodeIDs []int64) (map[int64][]model.Device, error) {
	result := make(map[int64][]model.Device, len(nodeIDs))
	for _, id := range nodeIDs {
		list, _ := f.ListDevices(ctx, id)
		if len(list) > 0 {
			result[id] = list
		}
	}
	return result, nil
}

// seed создаёт узел с n устройствами и возвращает их.
func (f *fakeNodeRepo) seed(name string, n int) (model.Node, []model.Device) {
	node := &model.Node{Name: name, IPAddress: "10.0.0." + name}
	_ = f.CreateNode(context.Background(), node)
	devices := make([]model.Device, n)
	for i := 0; i < n; i++ {
		devices[i] = model.Device{NodeID: node.ID, DeviceIndex: i}
		_ = f.AddDevice(context.Background(), &devices[i])
	}
	return *node, devices
}

// --- ReservationRepository ---

// fakeReservationRepo сериализует Admit мьютексом, как это делают
// ограничения БД для пересекающихся вставок.
type fakeReservationRepo struct {
	mu     sync.Mutex
	rows   map[int64]model.Reservation
	nextID int64
	// admitErr — ошибка, которую вернёт следующий Admit (до вызова decide)
	admitErr error
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{rows: map[int64]model.Reservation{}}
}

func (f *fakeReservationRepo) overlapping(nodeID int64, start, end time.Time) []model.Reservation {
	var result []model.Reservation
	for _, r := range f.rows {
		if r.NodeID == nodeID && r.Overlaps(start, end) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (f *fakeReservationRepo) Admit(_ context.Context, r *model.Reservation, decide repository.DecideFunc) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.admitErr; err != nil {
		f.admitErr = nil
		return nil, err
	}
	if c := decide(f.overlapping(r.NodeID, r.StartTime, r.EndTime)); c != nil {
		return c, nil
	}

	f.nextID++
	r.ID = f.nextID
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	stored := *r
	stored.DeviceIDs = append([]int64(nil), r.DeviceIDs...)
	stored.Devices = append([]model.Device(nil), r.Devices...)
	f.rows[r.ID] = stored
	return nil, nil
}

func (f *fakeReservationRepo) FindOverlapping(_ context.Context, nodeID int64, start, end time.Time) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlapping(nodeID, start, end), nil
}

func (f *fakeReservationRepo) GetByID(_ context.Context, id int64) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (f *fakeReservationRepo) match(flt model.ReservationFilter) []*model.Reservation {
	var result []*model.Reservation
	for _, r := range f.rows {
		if flt.UserID != nil && r.UserID != *flt.UserID {
			continue
		}
		if flt.NodeID != nil && r.NodeID != *flt.NodeID {
			continue
		}
		if flt.StartDate != nil && !r.EndTime.After(*flt.StartDate) {
			continue
		}
		if flt.EndDate != nil && !r.StartTime.Before(*flt.EndDate) {
			continue
		}
		r := r
		result = append(result, &r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (f *fakeReservationRepo) List(_ context.Context, flt model.ReservationFilter) ([]*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.match(flt)
	if flt.Offset >= len(all) {
		return nil, nil
	}
	all = all[flt.Offset:]
	if len(all) > flt.Limit {
		all = all[:flt.Limit]
	}
	return all, nil
}

func (f *fakeReservationRepo) Count(_ context.Context, flt model.ReservationFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.match(flt)), nil
}

func (f *fakeReservationRepo) Delete(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return false, nil
	}
	delete(f.rows, id)
	return true, nil
}

func (f *fakeReservationRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// --- Аудит ---

type memRecorder struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (m *memRecorder) Record(e model.AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *memRecorder) all() []model.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditEntry(nil), m.entries...)
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	err     error
}

func (f *fakeAuditRepo) Insert(_ context.Context, e *model.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeAuditRepo) ListByResource(_ context.Context, resourceType string, resourceID int64, limit int) ([]*model.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.AuditEntry
	for i := range f.entries {
		e := f.entries[i]
		if e.ResourceType == resourceType && e.ResourceID != nil && *e.ResourceID == resourceID {
			result = append(result, &e)
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeAuditRepo) all() []model.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AuditEntry(nil), f.entries...)
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}
