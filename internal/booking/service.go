package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"equiploan-api/internal/models"
)

// Store is the persistence boundary for the reservation and approval engine.
// Implementations must make CreateTicket, SaveDecision and UpdateTicketStatus
// atomic across the rows they touch, and SaveDecision must fail with
// ErrStaleStage when the stage row is no longer PENDING.
type Store interface {
	GetAssetType(ctx context.Context, id int64) (*models.AssetType, error)
	GetFlowTemplate(ctx context.Context, id int64) (*models.FlowTemplate, error)
	// ScopeExists reports whether a department or section id still refers to
	// a live (non-deleted) scope.
	ScopeExists(ctx context.Context, departmentID, sectionID *int64) (bool, error)
	// ListUnits returns the non-deleted units of an asset type.
	ListUnits(ctx context.Context, assetTypeID int64) ([]models.AssetUnit, error)
	// ActiveWindows returns, per unit of the asset type, the windows held by
	// non-terminal tickets. Terminal (historical) tickets contribute nothing.
	ActiveWindows(ctx context.Context, assetTypeID int64) (map[int64][]Window, error)
	// CreateTicket persists the ticket, its stage snapshot and its unit holds
	// in one transaction, assigning IDs.
	CreateTicket(ctx context.Context, t *models.BorrowTicket) error
	GetTicket(ctx context.Context, id int64) (*models.BorrowTicket, error)
	// SaveDecision persists a resolved stage together with the derived ticket
	// status, and applies unitStatus to the ticket's units when non-empty.
	SaveDecision(ctx context.Context, t *models.BorrowTicket, stage *models.TicketStage, unitStatus models.UnitStatus) error
	// UpdateTicketStatus persists a pickup/return transition, applying
	// unitStatus to the ticket's units when non-empty.
	UpdateTicketStatus(ctx context.Context, t *models.BorrowTicket, unitStatus models.UnitStatus) error
}

// keyedMutex provides one mutex per int64 key. Entries are small and kept for
// the process lifetime.
type keyedMutex struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func (k *keyedMutex) lock(id int64) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[int64]*sync.Mutex)
	}
	l, ok := k.m[id]
	if !ok {
		l = &sync.Mutex{}
		k.m[id] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Service drives the ticket lifecycle: submission with unit holds, the
// multi-stage approval chain, pickup and return. Submissions are serialized
// per asset type so two concurrent requests cannot both observe capacity and
// both commit; approvals are serialized per ticket.
type Service struct {
	store    Store
	dir      Directory
	resolver *Resolver
	notifier Notifier
	now      func() time.Time

	typeLocks   keyedMutex
	ticketLocks keyedMutex
}

// NewService creates a booking service.
func NewService(store Store, dir Directory, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		store:    store,
		dir:      dir,
		resolver: NewResolver(dir),
		notifier: notifier,
		now:      time.Now,
	}
}

// Resolver exposes the service's approval scope resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// SubmitTicket validates the request, selects free units under the per-type
// lock, snapshots the approval chain from the asset type's flow template and
// persists everything atomically. The window is validated before the pool is
// touched so validity errors and capacity errors stay distinguishable.
func (s *Service) SubmitTicket(ctx context.Context, requesterID int64, req models.SubmitTicketRequest) (*models.BorrowTicket, error) {
	w := Window{Start: req.StartAt, End: req.EndAt}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	at, err := s.store.GetAssetType(ctx, req.AssetTypeID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.store.GetFlowTemplate(ctx, at.FlowTemplateID)
	if err != nil {
		return nil, err
	}

	stages := SnapshotStages(tpl)
	if err := ValidateStages(stages); err != nil {
		return nil, err
	}
	for i := range stages {
		st := &stages[i]
		if st.DepartmentID == nil && st.SectionID == nil {
			continue
		}
		ok, err := s.store.ScopeExists(ctx, st.DepartmentID, st.SectionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ConfigError{Reason: fmt.Sprintf("step %d references a deleted scope", st.StepOrder)}
		}
	}

	// Find-then-hold must be mutually exclusive per asset type, or two
	// concurrent submissions could both see the same free unit.
	unlock := s.typeLocks.lock(req.AssetTypeID)
	defer unlock()

	free, err := s.findAvailable(ctx, req.AssetTypeID, w, req.Quantity)
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := &models.BorrowTicket{
		RequesterID: requesterID,
		AssetTypeID: req.AssetTypeID,
		Quantity:    req.Quantity,
		UnitIDs:     unitIDs(free),
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Purpose:     req.Purpose,
		Location:    req.Location,
		Status:      models.TicketPending,
		Stages:      stages,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		return nil, err
	}

	s.notifyStageCandidates(ctx, t, CurrentStage(t.Stages), EventTicketSubmitted)
	return t, nil
}

// Approve marks the current stage approved by the actor. On the last stage
// the ticket becomes APPROVED and the unit reservation is committed in the
// same store transaction; otherwise the chain simply advances.
func (s *Service) Approve(ctx context.Context, ticketID, actorID int64) (*models.BorrowTicket, error) {
	unlock := s.ticketLocks.lock(ticketID)
	defer unlock()

	t, cur, err := s.loadActionable(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, t, cur, actorID); err != nil {
		return nil, err
	}

	resolveStage(t, cur, true, actorID, "", s.now())

	unitStatus := models.UnitStatus("")
	if t.Status == models.TicketApproved {
		unitStatus = models.UnitBorrowed // reservation commit
	}
	if err := s.store.SaveDecision(ctx, t, cur, unitStatus); err != nil {
		return nil, err
	}

	if t.Status == models.TicketApproved {
		s.notifyUsers(ctx, []int64{t.RequesterID}, EventTicketApproved, t)
	} else {
		s.notifyStageCandidates(ctx, t, CurrentStage(t.Stages), EventStageApproved)
	}
	return t, nil
}

// Reject marks the current stage rejected with a reason. Rejection is
// terminal: later stages stay untouched and the tentative unit holds are
// released in the same store transaction. The hold never changed unit
// status, so none is written back; a unit marked REPAIRING while the
// ticket was pending keeps that status.
func (s *Service) Reject(ctx context.Context, ticketID, actorID int64, reason string) (*models.BorrowTicket, error) {
	unlock := s.ticketLocks.lock(ticketID)
	defer unlock()

	t, cur, err := s.loadActionable(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, t, cur, actorID); err != nil {
		return nil, err
	}

	resolveStage(t, cur, false, actorID, reason, s.now())

	if err := s.store.SaveDecision(ctx, t, cur, ""); err != nil {
		return nil, err
	}

	s.notifyUsers(ctx, []int64{t.RequesterID}, EventTicketRejected, t)
	return t, nil
}

// MarkPickedUp records the physical handover: APPROVED -> IN_USE.
func (s *Service) MarkPickedUp(ctx context.Context, ticketID int64) (*models.BorrowTicket, error) {
	unlock := s.ticketLocks.lock(ticketID)
	defer unlock()

	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TicketApproved {
		return nil, fmt.Errorf("%w: pickup requires APPROVED, ticket is %s", ErrBadTransition, t.Status)
	}
	t.Status = models.TicketInUse
	t.UpdatedAt = s.now()
	if err := s.store.UpdateTicketStatus(ctx, t, ""); err != nil {
		return nil, err
	}
	s.notifyUsers(ctx, []int64{t.RequesterID}, EventTicketPickedUp, t)
	return t, nil
}

// MarkReturned records the return: IN_USE -> COMPLETED, units revert to READY.
func (s *Service) MarkReturned(ctx context.Context, ticketID int64) (*models.BorrowTicket, error) {
	unlock := s.ticketLocks.lock(ticketID)
	defer unlock()

	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TicketInUse {
		return nil, fmt.Errorf("%w: return requires IN_USE, ticket is %s", ErrBadTransition, t.Status)
	}
	t.Status = models.TicketCompleted
	t.UpdatedAt = s.now()
	if err := s.store.UpdateTicketStatus(ctx, t, models.UnitReady); err != nil {
		return nil, err
	}
	s.notifyUsers(ctx, []int64{t.RequesterID}, EventTicketReturned, t)
	return t, nil
}

// GetAvailability returns the free/busy unit split for an asset type over a
// window, for pre-submission UI display.
func (s *Service) GetAvailability(ctx context.Context, assetTypeID int64, w Window) (*models.Availability, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetAssetType(ctx, assetTypeID); err != nil {
		return nil, err
	}

	units, err := s.store.ListUnits(ctx, assetTypeID)
	if err != nil {
		return nil, err
	}
	active, err := s.store.ActiveWindows(ctx, assetTypeID)
	if err != nil {
		return nil, err
	}

	avail := &models.Availability{
		AssetTypeID:  assetTypeID,
		ReadyUnitIDs: []int64{},
		BusyUnitIDs:  []int64{},
	}
	for _, u := range units {
		if unitFree(u, w, active[u.ID]) {
			avail.ReadyUnitIDs = append(avail.ReadyUnitIDs, u.ID)
		} else {
			avail.BusyUnitIDs = append(avail.BusyUnitIDs, u.ID)
		}
	}
	return avail, nil
}

// findAvailable enumerates free units for the window and fails all-or-nothing
// when fewer than quantity are free.
func (s *Service) findAvailable(ctx context.Context, assetTypeID int64, w Window, quantity int) ([]models.AssetUnit, error) {
	units, err := s.store.ListUnits(ctx, assetTypeID)
	if err != nil {
		return nil, err
	}
	active, err := s.store.ActiveWindows(ctx, assetTypeID)
	if err != nil {
		return nil, err
	}

	var free []models.AssetUnit
	for _, u := range units {
		if unitFree(u, w, active[u.ID]) {
			free = append(free, u)
		}
	}
	if len(free) < quantity {
		return nil, fmt.Errorf("%w: need %d, %d free", ErrInsufficientCapacity, quantity, len(free))
	}
	return free[:quantity], nil
}

// unitFree applies the pool rule: a unit is a candidate when READY, or when
// BORROWED with no remaining active reservation; REPAIRING, DAMAGED and LOST
// units never qualify. Candidates are then checked for window conflicts
// against active (non-terminal) reservations only.
func unitFree(u models.AssetUnit, w Window, activeWindows []Window) bool {
	switch u.Status {
	case models.UnitReady:
	case models.UnitBorrowed:
		if len(activeWindows) > 0 {
			return false
		}
	default:
		return false
	}
	return !ConflictsAny(w, activeWindows)
}

// loadActionable fetches a ticket and its current stage, enforcing the
// terminal guard and the existence of a pending stage.
func (s *Service) loadActionable(ctx context.Context, ticketID int64) (*models.BorrowTicket, *models.TicketStage, error) {
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if t.Status.IsTerminal() {
		return nil, nil, ErrAlreadyTerminal
	}
	cur := CurrentStage(t.Stages)
	if cur == nil {
		return nil, nil, ErrNotCurrentStage
	}
	return t, cur, nil
}

// authorize gates a stage transition on the resolver. Denials are logged
// with actor and stage for security review, never downgraded to a no-op.
func (s *Service) authorize(ctx context.Context, t *models.BorrowTicket, stage *models.TicketStage, actorID int64) error {
	actor, err := s.dir.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("audit: unknown actor %d on ticket %d stage %d", actorID, t.ID, stage.StepOrder)
			return ErrForbidden
		}
		return err
	}
	if !s.resolver.CanAct(actor, stage) {
		log.Printf("audit: user %d denied on ticket %d stage %d (role %s)", actorID, t.ID, stage.StepOrder, stage.Role)
		return ErrForbidden
	}
	return nil
}

func (s *Service) notifyStageCandidates(ctx context.Context, t *models.BorrowTicket, stage *models.TicketStage, ev Event) {
	if stage == nil {
		return
	}
	candidates, err := s.resolver.CandidatesFor(ctx, stage.Role, stage.DepartmentID, stage.SectionID)
	if err != nil {
		log.Printf("notify: resolving candidates for ticket %d stage %d: %v", t.ID, stage.StepOrder, err)
		return
	}
	ids := make([]int64, 0, len(candidates))
	for _, u := range candidates {
		ids = append(ids, u.ID)
	}
	s.notifyUsers(ctx, ids, ev, t)
}

func (s *Service) notifyUsers(ctx context.Context, userIDs []int64, ev Event, t *models.BorrowTicket) {
	if len(userIDs) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, userIDs, ev, t); err != nil {
		log.Printf("notify: %s for ticket %d: %v", ev, t.ID, err)
	}
}

func unitIDs(units []models.AssetUnit) []int64 {
	ids := make([]int64, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	return ids
}
