package booking

import (
	"context"

	"equiploan-api/internal/models"
)

// Directory is the identity/org lookup the resolver consumes. Backed by the
// users table in production; faked in tests.
type Directory interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	// ListUsersByRoleAndScope returns active, non-deleted users holding the
	// role, optionally narrowed to a department or section.
	ListUsersByRoleAndScope(ctx context.Context, role string, departmentID, sectionID *int64) ([]models.User, error)
}

// Resolver computes, for an approval stage, which users currently have
// authority to act. Candidates are always resolved live from role and scope;
// membership changes over time and a cached set would misroute approvals.
type Resolver struct {
	dir Directory
}

// NewResolver creates a resolver over the given directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// CandidatesFor returns the current candidate set for a required role and
// organizational scope. Precedence: a section scope matches on section id
// alone, a department scope on department id, no scope matches the role
// system-wide. Section-level approvers are a strict refinement of
// department-level ones and are never conflated.
func (r *Resolver) CandidatesFor(ctx context.Context, role string, departmentID, sectionID *int64) ([]models.User, error) {
	var users []models.User
	var err error
	switch {
	case sectionID != nil:
		users, err = r.dir.ListUsersByRoleAndScope(ctx, role, nil, sectionID)
	case departmentID != nil:
		users, err = r.dir.ListUsersByRoleAndScope(ctx, role, departmentID, nil)
	default:
		users, err = r.dir.ListUsersByRoleAndScope(ctx, role, nil, nil)
	}
	if err != nil {
		return nil, err
	}

	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if !u.CanApprove(role) {
			continue
		}
		switch {
		case sectionID != nil:
			if u.SectionID == nil || *u.SectionID != *sectionID {
				continue
			}
		case departmentID != nil:
			if u.DepartmentID == nil || *u.DepartmentID != *departmentID {
				continue
			}
		}
		out = append(out, u)
	}
	return out, nil
}

// CanAct reports whether the user may act on the stage. Equivalent to
// membership in CandidatesFor(stage.Role, stage scope), evaluated against
// the user record directly.
func (r *Resolver) CanAct(user *models.User, stage *models.TicketStage) bool {
	if user == nil || stage == nil {
		return false
	}
	if !user.CanApprove(stage.Role) {
		return false
	}
	if stage.SectionID != nil {
		return user.SectionID != nil && *user.SectionID == *stage.SectionID
	}
	if stage.DepartmentID != nil {
		return user.DepartmentID != nil && *user.DepartmentID == *stage.DepartmentID
	}
	return true
}
