package models

import "time"

// FlowStep is one role-gated checkpoint in an approval flow template.
// DepartmentID/SectionID narrow who may act: section beats department,
// neither means any holder of the role.
type FlowStep struct {
	ID           int64  `json:"id"`
	TemplateID   int64  `json:"template_id"`
	StepOrder    int    `json:"step_order"`
	Role         string `json:"role"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	SectionID    *int64 `json:"section_id,omitempty"`
}

// FlowTemplate is a named, ordered approval chain referenced by asset types.
// Tickets snapshot the steps at submission, so later edits never affect
// in-flight approvals.
type FlowTemplate struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Steps     []FlowStep `json:"steps"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CreateFlowStepRequest represents one step in a template creation request
type CreateFlowStepRequest struct {
	StepOrder    int    `json:"step_order" validate:"required"`
	Role         string `json:"role" validate:"required"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	SectionID    *int64 `json:"section_id,omitempty"`
}

// CreateFlowTemplateRequest represents the request body for creating a template
type CreateFlowTemplateRequest struct {
	Name  string                  `json:"name" validate:"required"`
	Steps []CreateFlowStepRequest `json:"steps" validate:"required,min=1"`
}
