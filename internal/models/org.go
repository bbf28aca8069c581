package models

import "time"

// Department represents a top-level organizational unit
type Department struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Section represents a subdivision of a department
type Section struct {
	ID           int64      `json:"id"`
	DepartmentID int64      `json:"department_id"`
	Name         string     `json:"name"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// CreateDepartmentRequest represents the request body for creating a department
type CreateDepartmentRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// CreateSectionRequest represents the request body for creating a section
type CreateSectionRequest struct {
	DepartmentID int64  `json:"department_id" validate:"required"`
	Name         string `json:"name" validate:"required,min=1,max=255"`
}

// DepartmentStats summarizes activity within a department
type DepartmentStats struct {
	DepartmentID  int64 `json:"department_id"`
	UserCount     int   `json:"user_count"`
	SectionCount  int   `json:"section_count"`
	OpenTickets   int   `json:"open_tickets"`
	ClosedTickets int   `json:"closed_tickets"`
}
