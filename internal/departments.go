package internal

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"equiploan-api/internal/models"

	"github.com/go-chi/chi/v5"
)

// listDepartments handles listing all departments
func (s *Server) listDepartments(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM departments
		WHERE deleted_at IS NULL
		ORDER BY name`

	rows, err := s.DB.QueryContext(r.Context(), query)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var departments []models.Department
	for rows.Next() {
		var dept models.Department
		err := rows.Scan(&dept.ID, &dept.Name, &dept.CreatedAt, &dept.UpdatedAt)
		if err != nil {
			http.Error(w, "Failed to scan department", http.StatusInternalServerError)
			return
		}
		departments = append(departments, dept)
	}

	if err := rows.Err(); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(departments)
}

// getDepartment handles getting a specific department
func (s *Server) getDepartment(w http.ResponseWriter, r *http.Request) {
	deptID := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(deptID, 10, 64)
	if err != nil {
		http.Error(w, "Invalid department ID", http.StatusBadRequest)
		return
	}

	query := `
		SELECT id, name, created_at, updated_at
		FROM departments
		WHERE id = $1 AND deleted_at IS NULL`

	var dept models.Department
	err = s.DB.QueryRowContext(r.Context(), query, id).Scan(
		&dept.ID, &dept.Name, &dept.CreatedAt, &dept.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		http.Error(w, "Department not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dept)
}

// createDepartment handles creating a new department
func (s *Server) createDepartment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Validate request
	if req.Name == "" {
		http.Error(w, "Department name is required", http.StatusBadRequest)
		return
	}

	query := `
		INSERT INTO departments (name)
		VALUES ($1)
		RETURNING id, created_at, updated_at`

	var dept models.Department
	err := s.DB.QueryRowContext(r.Context(), query, req.Name).Scan(
		&dept.ID, &dept.CreatedAt, &dept.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "Department with this name already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create department", http.StatusInternalServerError)
		return
	}

	dept.Name = req.Name

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(dept)
}

// updateDepartment handles renaming a department
func (s *Server) updateDepartment(w http.ResponseWriter, r *http.Request) {
	deptID := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(deptID, 10, 64)
	if err != nil {
		http.Error(w, "Invalid department ID", http.StatusBadRequest)
		return
	}

	var req models.CreateDepartmentRequest // Same structure for update
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Validate request
	if req.Name == "" {
		http.Error(w, "Department name is required", http.StatusBadRequest)
		return
	}

	query := `
		UPDATE departments
		SET name = $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL
		RETURNING id, name, created_at, updated_at`

	var dept models.Department
	err = s.DB.QueryRowContext(r.Context(), query, req.Name, id).Scan(
		&dept.ID, &dept.Name, &dept.CreatedAt, &dept.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		http.Error(w, "Department not found", http.StatusNotFound)
		return
	}
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "Department with this name already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to update department", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dept)
}

// deleteDepartment handles removing a department. A department that still has
// users, sections or approval flow steps pointing at it cannot be removed,
// otherwise in-flight tickets would reference a dangling scope.
func (s *Server) deleteDepartment(w http.ResponseWriter, r *http.Request) {
	deptID := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(deptID, 10, 64)
	if err != nil {
		http.Error(w, "Invalid department ID", http.StatusBadRequest)
		return
	}

	var userCount int
	err = s.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM users WHERE department_id = $1 AND deleted_at IS NULL`, id).Scan(&userCount)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if userCount > 0 {
		http.Error(w, "Cannot delete department with assigned users", http.StatusBadRequest)
		return
	}

	var sectionCount int
	err = s.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM sections WHERE department_id = $1 AND deleted_at IS NULL`, id).Scan(&sectionCount)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if sectionCount > 0 {
		http.Error(w, "Cannot delete department with existing sections", http.StatusBadRequest)
		return
	}

	var stepCount int
	err = s.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM flow_steps WHERE department_id = $1`, id).Scan(&stepCount)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if stepCount > 0 {
		http.Error(w, "Cannot delete department referenced by approval flows", http.StatusBadRequest)
		return
	}

	result, err := s.DB.ExecContext(r.Context(),
		`UPDATE departments SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		http.Error(w, "Failed to delete department", http.StatusInternalServerError)
		return
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	if rowsAffected == 0 {
		http.Error(w, "Department not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getDepartmentStats returns lending activity statistics for a department
func (s *Server) getDepartmentStats(w http.ResponseWriter, r *http.Request) {
	deptID := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(deptID, 10, 64)
	if err != nil {
		http.Error(w, "Invalid department ID", http.StatusBadRequest)
		return
	}

	var exists bool
	err = s.DB.QueryRowContext(r.Context(),
		`SELECT EXISTS(SELECT 1 FROM departments WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&exists)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "Department not found", http.StatusNotFound)
		return
	}

	stats := models.DepartmentStats{DepartmentID: id}

	err = s.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM users WHERE department_id = $1 AND deleted_at IS NULL`, id).Scan(&stats.UserCount)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	err = s.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM sections WHERE department_id = $1 AND deleted_at IS NULL`, id).Scan(&stats.SectionCount)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	err = s.DB.QueryRowContext(r.Context(), `
		SELECT COUNT(*) FROM tickets t
		JOIN users u ON u.id = t.requester_id
		WHERE u.department_id = $1
		  AND t.status NOT IN ('REJECTED', 'COMPLETED')
		  AND t.deleted_at IS NULL`, id).Scan(&stats.OpenTickets)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	err = s.DB.QueryRowContext(r.Context(), `
		SELECT COUNT(*) FROM tickets t
		JOIN users u ON u.id = t.requester_id
		WHERE u.department_id = $1
		  AND t.status IN ('REJECTED', 'COMPLETED')
		  AND t.deleted_at IS NULL`, id).Scan(&stats.ClosedTickets)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// listSections handles listing sections, optionally within one department
func (s *Server) listSections(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT id, department_id, name, created_at, updated_at
		FROM sections
		WHERE deleted_at IS NULL`

	args := []interface{}{}
	if deptFilter := r.URL.Query().Get("department_id"); deptFilter != "" {
		deptID, err := strconv.ParseInt(deptFilter, 10, 64)
		if err != nil {
			http.Error(w, "Invalid department_id parameter", http.StatusBadRequest)
			return
		}
		query += " AND department_id = $1"
		args = append(args, deptID)
	}
	query += " ORDER BY department_id, name"

	rows, err := s.DB.QueryContext(r.Context(), query, args...)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var sections []models.Section
	for rows.Next() {
		var sec models.Section
		err := rows.Scan(&sec.ID, &sec.DepartmentID, &sec.Name, &sec.CreatedAt, &sec.UpdatedAt)
		if err != nil {
			http.Error(w, "Failed to scan section", http.StatusInternalServerError)
			return
		}
		sections = append(sections, sec)
	}

	if err := rows.Err(); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sections)
}

// createSection handles creating a new section under a department
func (s *Server) createSection(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Validate request
	if req.Name == "" || req.DepartmentID == 0 {
		http.Error(w, "Section name and department_id are required", http.StatusBadRequest)
		return
	}

	var exists bool
	err := s.DB.QueryRowContext(r.Context(),
		`SELECT EXISTS(SELECT 1 FROM departments WHERE id = $1 AND deleted_at IS NULL)`, req.DepartmentID).Scan(&exists)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "Department does not exist", http.StatusBadRequest)
		return
	}

	query := `
		INSERT INTO sections (department_id, name)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	sec := models.Section{
		DepartmentID: req.DepartmentID,
		Name:         req.Name,
	}
	err = s.DB.QueryRowContext(r.Context(), query, req.DepartmentID, req.Name).Scan(
		&sec.ID, &sec.CreatedAt, &sec.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "Section with this name already exists in the department", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create section", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sec)
}

// updateSection handles renaming a section
func (s *Server) updateSection(w http.ResponseWriter, r *http.Request) {
	secID := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(secID, 10, 64)
	if err != nil {
		http.Error(w, "Invalid section ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Section name is required", http.StatusBadRequest)
		return
	}

	query := `
		UPDATE sections
		SET name = $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL
		RETURNING id, department_id, name, created_at, updated_at`

	var sec models.Section
	err = s.DB.QueryRowContext(r.Context(), query, req.Name, id).Scan(
		&sec.ID, &sec.DepartmentID, &sec.Name, &sec.CreatedAt, &sec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		http.Error(w, "Section not found", http.StatusNotFound)
		return
	}
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "Section with this name already exists in the department", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to update section", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sec)
}

// deleteSection handles removing a section. Sections with users or flow step
// references cannot be removed.
func (s *Server) deleteSection(w http.ResponseWriter, r *http.Request) {
	secID := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(secID, 10, 64)
	if err != nil {
		http.Error(w, "Invalid section ID", http.StatusBadRequest)
		return
	}

	var userCount int
	err = s.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM users WHERE section_id = $1 AND deleted_at IS NULL`, id).Scan(&userCount)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if userCount > 0 {
		http.Error(w, "Cannot delete section with assigned users", http.StatusBadRequest)
		return
	}

	var stepCount int
	err = s.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM flow_steps WHERE section_id = $1`, id).Scan(&stepCount)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if stepCount > 0 {
		http.Error(w, "Cannot delete section referenced by approval flows", http.StatusBadRequest)
		return
	}

	result, err := s.DB.ExecContext(r.Context(),
		`UPDATE sections SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		http.Error(w, "Failed to delete section", http.StatusInternalServerError)
		return
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	if rowsAffected == 0 {
		http.Error(w, "Section not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
