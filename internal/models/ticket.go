package models

import "time"

// TicketStatus is the overall status of a borrow ticket
type TicketStatus string

const (
	TicketPending   TicketStatus = "PENDING"
	TicketApproved  TicketStatus = "APPROVED"
	TicketInUse     TicketStatus = "IN_USE"
	TicketCompleted TicketStatus = "COMPLETED"
	TicketRejected  TicketStatus = "REJECTED"
)

// IsTerminal reports whether no further transitions are possible
func (s TicketStatus) IsTerminal() bool {
	return s == TicketRejected || s == TicketCompleted
}

// StageStatus is the status of one instantiated approval step
type StageStatus string

const (
	StagePending  StageStatus = "PENDING"
	StageApproved StageStatus = "APPROVED"
	StageRejected StageStatus = "REJECTED"
)

// TicketStage is one step of a specific ticket's approval chain, snapshotted
// from the flow template at submission time.
type TicketStage struct {
	ID           int64       `json:"id"`
	TicketID     int64       `json:"ticket_id"`
	StepOrder    int         `json:"step_order"`
	Role         string      `json:"role"`
	DepartmentID *int64      `json:"department_id,omitempty"`
	SectionID    *int64      `json:"section_id,omitempty"`
	Status       StageStatus `json:"status"`
	ActedBy      *int64      `json:"acted_by,omitempty"`
	ActedAt      *time.Time  `json:"acted_at,omitempty"`
}

// BorrowTicket is the borrow request aggregate: the requested window, the
// units held for it, and the ordered approval stages.
type BorrowTicket struct {
	ID           int64         `json:"id"`
	RequesterID  int64         `json:"requester_id"`
	AssetTypeID  int64         `json:"asset_type_id"`
	Quantity     int           `json:"quantity"`
	UnitIDs      []int64       `json:"unit_ids"`
	StartAt      time.Time     `json:"start_at"`
	EndAt        time.Time     `json:"end_at"`
	Purpose      string        `json:"purpose"`
	Location     string        `json:"location"`
	Status       TicketStatus  `json:"status"`
	RejectReason *string       `json:"reject_reason,omitempty"`
	Stages       []TicketStage `json:"stages,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	DeletedAt    *time.Time    `json:"deleted_at,omitempty"`
}

// SubmitTicketRequest represents the request body for submitting a borrow ticket
type SubmitTicketRequest struct {
	AssetTypeID int64     `json:"asset_type_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"required,min=1"`
	StartAt     time.Time `json:"start_at" validate:"required"`
	EndAt       time.Time `json:"end_at" validate:"required"`
	Purpose     string    `json:"purpose"`
	Location    string    `json:"location"`
}

// RejectTicketRequest represents the request body for rejecting a ticket
type RejectTicketRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Availability is the free/busy breakdown for an asset type over a window
type Availability struct {
	AssetTypeID  int64   `json:"asset_type_id"`
	ReadyUnitIDs []int64 `json:"ready_unit_ids"`
	BusyUnitIDs  []int64 `json:"busy_unit_ids"`
}
