package booking

import (
	"fmt"
	"time"

	"equiploan-api/internal/models"
)

// SnapshotStages instantiates a ticket's stages from a flow template. The
// snapshot decouples in-flight tickets from later template edits.
func SnapshotStages(tpl *models.FlowTemplate) []models.TicketStage {
	stages := make([]models.TicketStage, 0, len(tpl.Steps))
	for _, step := range tpl.Steps {
		stages = append(stages, models.TicketStage{
			StepOrder:    step.StepOrder,
			Role:         step.Role,
			DepartmentID: step.DepartmentID,
			SectionID:    step.SectionID,
			Status:       models.StagePending,
		})
	}
	return stages
}

// ValidateStages checks snapshot invariants at ticket creation. Duplicate
// step orders are a fatal configuration error, never silently tie-broken.
func ValidateStages(stages []models.TicketStage) error {
	if len(stages) == 0 {
		return &ConfigError{Reason: "flow has no steps"}
	}
	seen := make(map[int]bool, len(stages))
	for _, st := range stages {
		if seen[st.StepOrder] {
			return &ConfigError{Reason: fmt.Sprintf("duplicate step order %d", st.StepOrder)}
		}
		seen[st.StepOrder] = true
		if st.Role == "" {
			return &ConfigError{Reason: fmt.Sprintf("step %d has no role", st.StepOrder)}
		}
	}
	return nil
}

// CurrentStage returns the lowest-ordered PENDING stage, or nil when the
// chain is fully resolved.
func CurrentStage(stages []models.TicketStage) *models.TicketStage {
	var cur *models.TicketStage
	for i := range stages {
		st := &stages[i]
		if st.Status != models.StagePending {
			continue
		}
		if cur == nil || st.StepOrder < cur.StepOrder {
			cur = st
		}
	}
	return cur
}

// DeriveStatus recomputes the approval-phase ticket status from its stages.
// REJECTED if any stage is rejected, PENDING while any stage is pending,
// APPROVED once all stages are approved. The status is always derived, never
// maintained independently, so the two cannot drift apart.
func DeriveStatus(stages []models.TicketStage) models.TicketStatus {
	pending := false
	for _, st := range stages {
		switch st.Status {
		case models.StageRejected:
			return models.TicketRejected
		case models.StagePending:
			pending = true
		}
	}
	if pending {
		return models.TicketPending
	}
	return models.TicketApproved
}

// resolveStage records the actor's decision on the current stage and
// recomputes the ticket status.
func resolveStage(t *models.BorrowTicket, stage *models.TicketStage, approve bool, actorID int64, reason string, now time.Time) {
	if approve {
		stage.Status = models.StageApproved
	} else {
		stage.Status = models.StageRejected
		t.RejectReason = &reason
	}
	stage.ActedBy = &actorID
	stage.ActedAt = &now
	t.Status = DeriveStatus(t.Stages)
	t.UpdatedAt = now
}
