package internal

import (
	"context"
	"database/sql"
	"fmt"

	"equiploan-api/internal/booking"
	"equiploan-api/internal/models"

	"github.com/lib/pq"
)

// SQLStore is the Postgres-backed persistence layer for the booking engine.
// It implements booking.Store and booking.Directory over the same database
// the HTTP handlers query directly.
type SQLStore struct {
	DB *sql.DB
}

// NewSQLStore creates a SQLStore
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

func (s *SQLStore) GetAssetType(ctx context.Context, id int64) (*models.AssetType, error) {
	var at models.AssetType
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, name, category, description, flow_template_id, created_at, updated_at
		FROM asset_types WHERE id = $1`, id).
		Scan(&at.ID, &at.Name, &at.Category, &at.Description, &at.FlowTemplateID, &at.CreatedAt, &at.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}

func (s *SQLStore) GetFlowTemplate(ctx context.Context, id int64) (*models.FlowTemplate, error) {
	var tpl models.FlowTemplate
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM flow_templates WHERE id = $1`, id).
		Scan(&tpl.ID, &tpl.Name, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, template_id, step_order, role, department_id, section_id
		FROM flow_steps WHERE template_id = $1
		ORDER BY step_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var st models.FlowStep
		if err := rows.Scan(&st.ID, &st.TemplateID, &st.StepOrder, &st.Role, &st.DepartmentID, &st.SectionID); err != nil {
			return nil, err
		}
		tpl.Steps = append(tpl.Steps, st)
	}
	return &tpl, rows.Err()
}

func (s *SQLStore) ScopeExists(ctx context.Context, departmentID, sectionID *int64) (bool, error) {
	var query string
	var id int64
	switch {
	case sectionID != nil:
		query = `SELECT EXISTS(SELECT 1 FROM sections WHERE id = $1 AND deleted_at IS NULL)`
		id = *sectionID
	case departmentID != nil:
		query = `SELECT EXISTS(SELECT 1 FROM departments WHERE id = $1 AND deleted_at IS NULL)`
		id = *departmentID
	default:
		return true, nil
	}
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *SQLStore) ListUnits(ctx context.Context, assetTypeID int64) ([]models.AssetUnit, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, asset_type_id, serial, tag_code, status, notes, created_at, updated_at
		FROM asset_units
		WHERE asset_type_id = $1 AND deleted_at IS NULL
		ORDER BY id`, assetTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []models.AssetUnit
	for rows.Next() {
		var u models.AssetUnit
		if err := rows.Scan(&u.ID, &u.AssetTypeID, &u.Serial, &u.TagCode, &u.Status, &u.Notes, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (s *SQLStore) ActiveWindows(ctx context.Context, assetTypeID int64) (map[int64][]booking.Window, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT tu.unit_id, t.start_at, t.end_at
		FROM tickets t
		JOIN ticket_units tu ON tu.ticket_id = t.id
		WHERE t.asset_type_id = $1
		  AND t.status NOT IN ('REJECTED', 'COMPLETED')
		  AND t.deleted_at IS NULL`, assetTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]booking.Window)
	for rows.Next() {
		var unitID int64
		var w booking.Window
		if err := rows.Scan(&unitID, &w.Start, &w.End); err != nil {
			return nil, err
		}
		out[unitID] = append(out[unitID], w)
	}
	return out, rows.Err()
}

// CreateTicket persists the ticket, its stage snapshot and its unit holds in
// one transaction. The unit rows are locked FOR UPDATE for the duration so a
// concurrent submission from another process cannot interleave its holds.
func (s *SQLStore) CreateTicket(ctx context.Context, t *models.BorrowTicket) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Lock the selected units for the span of the hold
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM asset_units WHERE id = ANY($1) AND deleted_at IS NULL FOR UPDATE`,
		pq.Array(t.UnitIDs))
	if err != nil {
		return err
	}
	var locked int
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		locked++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if locked != len(t.UnitIDs) {
		return fmt.Errorf("%w: %d of %d selected units", booking.ErrNotFound, locked, len(t.UnitIDs))
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO tickets (requester_id, asset_type_id, quantity, start_at, end_at, purpose, location, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		t.RequesterID, t.AssetTypeID, t.Quantity, t.StartAt, t.EndAt, t.Purpose, t.Location, t.Status).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range t.Stages {
		st := &t.Stages[i]
		st.TicketID = t.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO ticket_stages (ticket_id, step_order, role, department_id, section_id, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			t.ID, st.StepOrder, st.Role, st.DepartmentID, st.SectionID, st.Status).
			Scan(&st.ID)
		if err != nil {
			return err
		}
	}

	for _, unitID := range t.UnitIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ticket_units (ticket_id, unit_id) VALUES ($1, $2)`, t.ID, unitID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLStore) GetTicket(ctx context.Context, id int64) (*models.BorrowTicket, error) {
	var t models.BorrowTicket
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, requester_id, asset_type_id, quantity, start_at, end_at, purpose, location,
		       status, reject_reason, created_at, updated_at
		FROM tickets WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&t.ID, &t.RequesterID, &t.AssetTypeID, &t.Quantity, &t.StartAt, &t.EndAt,
			&t.Purpose, &t.Location, &t.Status, &t.RejectReason, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT unit_id FROM ticket_units WHERE ticket_id = $1 ORDER BY unit_id`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var unitID int64
		if err := rows.Scan(&unitID); err != nil {
			rows.Close()
			return nil, err
		}
		t.UnitIDs = append(t.UnitIDs, unitID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stageRows, err := s.DB.QueryContext(ctx, `
		SELECT id, ticket_id, step_order, role, department_id, section_id, status, acted_by, acted_at
		FROM ticket_stages WHERE ticket_id = $1
		ORDER BY step_order`, id)
	if err != nil {
		return nil, err
	}
	defer stageRows.Close()
	for stageRows.Next() {
		var st models.TicketStage
		if err := stageRows.Scan(&st.ID, &st.TicketID, &st.StepOrder, &st.Role,
			&st.DepartmentID, &st.SectionID, &st.Status, &st.ActedBy, &st.ActedAt); err != nil {
			return nil, err
		}
		t.Stages = append(t.Stages, st)
	}
	return &t, stageRows.Err()
}

// SaveDecision persists a resolved stage and the derived ticket status in one
// transaction. The stage update is guarded on status = PENDING so a stage
// already resolved by a concurrent actor fails with ErrStaleStage instead of
// being overwritten.
func (s *SQLStore) SaveDecision(ctx context.Context, t *models.BorrowTicket, stage *models.TicketStage, unitStatus models.UnitStatus) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE ticket_stages SET status = $1, acted_by = $2, acted_at = $3
		WHERE id = $4 AND status = 'PENDING'`,
		stage.Status, stage.ActedBy, stage.ActedAt, stage.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrStaleStage
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tickets SET status = $1, reject_reason = $2, updated_at = $3 WHERE id = $4`,
		t.Status, t.RejectReason, t.UpdatedAt, t.ID); err != nil {
		return err
	}

	if err := applyUnitStatus(ctx, tx, t.ID, unitStatus); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) UpdateTicketStatus(ctx context.Context, t *models.BorrowTicket, unitStatus models.UnitStatus) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE tickets SET status = $1, updated_at = $2 WHERE id = $3`,
		t.Status, t.UpdatedAt, t.ID); err != nil {
		return err
	}
	if err := applyUnitStatus(ctx, tx, t.ID, unitStatus); err != nil {
		return err
	}
	return tx.Commit()
}

func applyUnitStatus(ctx context.Context, tx *sql.Tx, ticketID int64, status models.UnitStatus) error {
	if status == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE asset_units SET status = $1, updated_at = now()
		WHERE id IN (SELECT unit_id FROM ticket_units WHERE ticket_id = $2)`,
		status, ticketID)
	return err
}

// GetUser implements booking.Directory.
func (s *SQLStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	var firstName, lastName sql.NullString
	var lastLoginAt, deletedAt sql.NullTime
	var roles pq.StringArray

	err := s.DB.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, department_id, section_id, roles, is_active,
		       created_at, updated_at, deleted_at, last_login_at
		FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Email, &firstName, &lastName, &user.DepartmentID, &user.SectionID,
			&roles, &user.IsActive, &user.CreatedAt, &user.UpdatedAt, &deletedAt, &lastLoginAt)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if firstName.Valid {
		user.FirstName = &firstName.String
	}
	if lastName.Valid {
		user.LastName = &lastName.String
	}
	if deletedAt.Valid {
		user.DeletedAt = &deletedAt.Time
	}
	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}
	user.Roles = roles
	return &user, nil
}

// ListUsersByRoleAndScope implements booking.Directory. The scope narrowing
// mirrors the resolver's precedence so the candidate set is computed in one
// query.
func (s *SQLStore) ListUsersByRoleAndScope(ctx context.Context, role string, departmentID, sectionID *int64) ([]models.User, error) {
	query := `
		SELECT id, email, first_name, last_name, department_id, section_id, roles, is_active,
		       created_at, updated_at, last_login_at
		FROM users
		WHERE roles && ARRAY[$1] AND is_active = true AND deleted_at IS NULL`
	args := []interface{}{role}

	switch {
	case sectionID != nil:
		query += " AND section_id = $2"
		args = append(args, *sectionID)
	case departmentID != nil:
		query += " AND department_id = $2"
		args = append(args, *departmentID)
	}
	query += " ORDER BY id"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var firstName, lastName sql.NullString
		var lastLoginAt sql.NullTime
		var roles pq.StringArray
		if err := rows.Scan(&user.ID, &user.Email, &firstName, &lastName,
			&user.DepartmentID, &user.SectionID, &roles, &user.IsActive,
			&user.CreatedAt, &user.UpdatedAt, &lastLoginAt); err != nil {
			return nil, err
		}
		if firstName.Valid {
			user.FirstName = &firstName.String
		}
		if lastName.Valid {
			user.LastName = &lastName.String
		}
		if lastLoginAt.Valid {
			user.LastLoginAt = &lastLoginAt.Time
		}
		user.Roles = roles
		users = append(users, user)
	}
	return users, rows.Err()
}
