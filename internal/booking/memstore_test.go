package booking

import (
	"context"
	"sync"

	"equiploan-api/internal/models"
)

// memStore is an in-memory Store used by the unit tests. It mimics the SQL
// store's semantics: deep-copied reads, transactional writes under one lock,
// and stale-stage detection on SaveDecision.
type memStore struct {
	mu          sync.Mutex
	assetTypes  map[int64]models.AssetType
	templates   map[int64]models.FlowTemplate
	departments map[int64]bool
	sections    map[int64]bool
	units       map[int64]models.AssetUnit
	tickets     map[int64]*models.BorrowTicket
	nextTicket  int64
	nextStage   int64
}

func newMemStore() *memStore {
	return &memStore{
		assetTypes:  make(map[int64]models.AssetType),
		templates:   make(map[int64]models.FlowTemplate),
		departments: make(map[int64]bool),
		sections:    make(map[int64]bool),
		units:       make(map[int64]models.AssetUnit),
		tickets:     make(map[int64]*models.BorrowTicket),
	}
}

func (m *memStore) GetAssetType(ctx context.Context, id int64) (*models.AssetType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.assetTypes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &at, nil
}

func (m *memStore) GetFlowTemplate(ctx context.Context, id int64) (*models.FlowTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	steps := make([]models.FlowStep, len(tpl.Steps))
	copy(steps, tpl.Steps)
	tpl.Steps = steps
	return &tpl, nil
}

func (m *memStore) ScopeExists(ctx context.Context, departmentID, sectionID *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sectionID != nil {
		return m.sections[*sectionID], nil
	}
	if departmentID != nil {
		return m.departments[*departmentID], nil
	}
	return true, nil
}

func (m *memStore) ListUnits(ctx context.Context, assetTypeID int64) ([]models.AssetUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AssetUnit
	for _, u := range m.units {
		if u.AssetTypeID == assetTypeID && u.DeletedAt == nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) ActiveWindows(ctx context.Context, assetTypeID int64) (map[int64][]Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64][]Window)
	for _, t := range m.tickets {
		if t.AssetTypeID != assetTypeID || t.Status.IsTerminal() {
			continue
		}
		for _, uid := range t.UnitIDs {
			out[uid] = append(out[uid], Window{Start: t.StartAt, End: t.EndAt})
		}
	}
	return out, nil
}

func (m *memStore) CreateTicket(ctx context.Context, t *models.BorrowTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTicket++
	t.ID = m.nextTicket
	for i := range t.Stages {
		m.nextStage++
		t.Stages[i].ID = m.nextStage
		t.Stages[i].TicketID = t.ID
	}
	m.tickets[t.ID] = copyTicket(t)
	return nil
}

func (m *memStore) GetTicket(ctx context.Context, id int64) (*models.BorrowTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTicket(t), nil
}

func (m *memStore) SaveDecision(ctx context.Context, t *models.BorrowTicket, stage *models.TicketStage, unitStatus models.UnitStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tickets[t.ID]
	if !ok {
		return ErrNotFound
	}
	var storedStage *models.TicketStage
	for i := range stored.Stages {
		if stored.Stages[i].ID == stage.ID {
			storedStage = &stored.Stages[i]
		}
	}
	if storedStage == nil {
		return ErrNotFound
	}
	if storedStage.Status != models.StagePending {
		return ErrStaleStage
	}
	*storedStage = *stage
	stored.Status = t.Status
	stored.RejectReason = t.RejectReason
	stored.UpdatedAt = t.UpdatedAt
	m.applyUnitStatus(stored.UnitIDs, unitStatus)
	return nil
}

func (m *memStore) UpdateTicketStatus(ctx context.Context, t *models.BorrowTicket, unitStatus models.UnitStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tickets[t.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = t.Status
	stored.UpdatedAt = t.UpdatedAt
	m.applyUnitStatus(stored.UnitIDs, unitStatus)
	return nil
}

func (m *memStore) applyUnitStatus(unitIDs []int64, status models.UnitStatus) {
	if status == "" {
		return
	}
	for _, id := range unitIDs {
		u := m.units[id]
		u.Status = status
		m.units[id] = u
	}
}

func (m *memStore) unitStatus(id int64) models.UnitStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.units[id].Status
}

func copyTicket(t *models.BorrowTicket) *models.BorrowTicket {
	c := *t
	c.UnitIDs = append([]int64(nil), t.UnitIDs...)
	c.Stages = append([]models.TicketStage(nil), t.Stages...)
	return &c
}

// memDirectory is an in-memory Directory for the resolver and service tests.
type memDirectory struct {
	mu    sync.Mutex
	users map[int64]models.User
}

func newMemDirectory() *memDirectory {
	return &memDirectory{users: make(map[int64]models.User)}
}

func (d *memDirectory) add(u models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *memDirectory) GetUser(ctx context.Context, id int64) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (d *memDirectory) ListUsersByRoleAndScope(ctx context.Context, role string, departmentID, sectionID *int64) ([]models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.User
	for _, u := range d.users {
		if !u.CanApprove(role) {
			continue
		}
		if departmentID != nil && (u.DepartmentID == nil || *u.DepartmentID != *departmentID) {
			continue
		}
		if sectionID != nil && (u.SectionID == nil || *u.SectionID != *sectionID) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(ctx context.Context, userIDs []int64, event Event, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) seen(event Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}
