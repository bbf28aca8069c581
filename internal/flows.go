package internal

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"equiploan-api/internal/models"

	"github.com/go-chi/chi/v5"
)

// listFlowTemplates handles flow template listing with their steps
func (s *Server) listFlowTemplates(w http.ResponseWriter, r *http.Request) {
	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT id, name, created_at, updated_at
		FROM flow_templates
		ORDER BY id`)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	templates := []models.FlowTemplate{}
	byID := map[int64]int{}
	for rows.Next() {
		var tpl models.FlowTemplate
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		byID[tpl.ID] = len(templates)
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	stepRows, err := s.DB.QueryContext(r.Context(), `
		SELECT id, template_id, step_order, role, department_id, section_id
		FROM flow_steps
		ORDER BY template_id, step_order`)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer stepRows.Close()

	for stepRows.Next() {
		var st models.FlowStep
		if err := stepRows.Scan(&st.ID, &st.TemplateID, &st.StepOrder, &st.Role, &st.DepartmentID, &st.SectionID); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if i, ok := byID[st.TemplateID]; ok {
			templates[i].Steps = append(templates[i].Steps, st)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(templates); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// getFlowTemplate handles getting a single flow template with its steps
func (s *Server) getFlowTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid flow template id", 400)
		return
	}

	tpl, err := s.Store.GetFlowTemplate(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tpl); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// createFlowTemplate handles creating a flow template with its ordered steps
func (s *Server) createFlowTemplate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateFlowTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}

	if req.Name == "" || len(req.Steps) == 0 {
		http.Error(w, "name and at least one step are required", 400)
		return
	}

	seen := map[int]bool{}
	for _, st := range req.Steps {
		if st.StepOrder <= 0 {
			http.Error(w, "step_order must be positive", 400)
			return
		}
		if seen[st.StepOrder] {
			http.Error(w, "duplicate step_order", 400)
			return
		}
		seen[st.StepOrder] = true
		if !models.IsValidRole(st.Role) {
			http.Error(w, "invalid step role", 400)
			return
		}
		if st.SectionID != nil || st.DepartmentID != nil {
			ok, err := s.Store.ScopeExists(r.Context(), st.DepartmentID, st.SectionID)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			if !ok {
				http.Error(w, "step scope does not exist", 400)
				return
			}
		}
	}

	tx, err := s.DB.BeginTx(r.Context(), nil)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	var tpl models.FlowTemplate
	tpl.Name = req.Name
	err = tx.QueryRowContext(r.Context(), `
		INSERT INTO flow_templates (name)
		VALUES ($1)
		RETURNING id, created_at, updated_at`, req.Name).
		Scan(&tpl.ID, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			http.Error(w, "flow template with this name already exists", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}

	for _, st := range req.Steps {
		step := models.FlowStep{
			TemplateID:   tpl.ID,
			StepOrder:    st.StepOrder,
			Role:         st.Role,
			DepartmentID: st.DepartmentID,
			SectionID:    st.SectionID,
		}
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO flow_steps (template_id, step_order, role, department_id, section_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`, tpl.ID, st.StepOrder, st.Role, st.DepartmentID, st.SectionID).
			Scan(&step.ID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		tpl.Steps = append(tpl.Steps, step)
	}

	if err := tx.Commit(); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(tpl); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// deleteFlowTemplate handles deleting a flow template. Templates referenced by
// asset types stay in place; tickets keep their stage snapshots either way.
func (s *Server) deleteFlowTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var referenced bool
	err := s.DB.QueryRowContext(r.Context(),
		`SELECT EXISTS(SELECT 1 FROM asset_types WHERE flow_template_id = $1)`, id).Scan(&referenced)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if referenced {
		http.Error(w, "flow template is referenced by asset types", http.StatusConflict)
		return
	}

	tx, err := s.DB.BeginTx(r.Context(), nil)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(r.Context(), `DELETE FROM flow_steps WHERE template_id = $1`, id); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	res, err := tx.ExecContext(r.Context(), `DELETE FROM flow_templates WHERE id = $1`, id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := tx.Commit(); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
