package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"equiploan-api/internal/models"

	"github.com/go-chi/chi/v5"
)

// listAssetTypes handles asset type listing with filters and pagination
func (s *Server) listAssetTypes(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	// Cap limit at 100
	if params.limit > 100 {
		params.limit = 100
	}

	clauses := []string{}
	args := []interface{}{}
	arg := 1

	// optional category filter
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		clauses = append(clauses, fmt.Sprintf("category = $%d", arg))
		args = append(args, category)
		arg++
	}

	// optional text search on name
	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf("name ILIKE $%d", arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	// Build the main query with COUNT(*) OVER() to get total count
	sqlStr := fmt.Sprintf(`
		SELECT id, name, category, description, flow_template_id, created_at, updated_at,
		       COUNT(*) OVER() as total_count
		FROM asset_types%s`, whereClause)

	allowedSort := map[string]string{
		"id":         "id",
		"name":       "name",
		"category":   "category",
		"created_at": "created_at",
		"updated_at": "updated_at",
	}
	sqlStr += buildOrderBy(params.sort, allowedSort)
	sqlStr += fmt.Sprintf(" LIMIT %d OFFSET %d", params.limit, params.offset)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, args...)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	types := []interface{}{}
	var totalCount int
	for rows.Next() {
		var at models.AssetType
		if err := rows.Scan(&at.ID, &at.Name, &at.Category, &at.Description, &at.FlowTemplateID, &at.CreatedAt, &at.UpdatedAt, &totalCount); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		types = append(types, at)
	}

	sendListResponse(w, types, totalCount, params)
}

// getAssetType handles getting a single asset type by ID
func (s *Server) getAssetType(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var at models.AssetType
	err := s.DB.QueryRowContext(r.Context(), `
		SELECT id, name, category, description, flow_template_id, created_at, updated_at
		FROM asset_types WHERE id = $1`, id).
		Scan(&at.ID, &at.Name, &at.Category, &at.Description, &at.FlowTemplateID, &at.CreatedAt, &at.UpdatedAt)
	if err == sql.ErrNoRows {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(at); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// listAssetTypeUnits lists the units registered under one asset type
func (s *Server) listAssetTypeUnits(w http.ResponseWriter, r *http.Request) {
	typeID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid asset type id", 400)
		return
	}

	units, err := s.Store.ListUnits(r.Context(), typeID)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(units); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// createAssetType handles creating a new asset type
func (s *Server) createAssetType(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAssetTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}

	if req.Name == "" || req.FlowTemplateID == 0 {
		http.Error(w, "name and flow_template_id are required", 400)
		return
	}

	// The referenced approval flow must exist
	var exists bool
	if err := s.DB.QueryRowContext(r.Context(),
		`SELECT EXISTS(SELECT 1 FROM flow_templates WHERE id = $1)`, req.FlowTemplateID).Scan(&exists); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if !exists {
		http.Error(w, "flow template does not exist", 400)
		return
	}

	at := models.AssetType{
		Name:           req.Name,
		Category:       req.Category,
		Description:    req.Description,
		FlowTemplateID: req.FlowTemplateID,
	}

	err := s.DB.QueryRowContext(r.Context(), `
		INSERT INTO asset_types (name, category, description, flow_template_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, req.Name, nullIfEmpty(req.Category), nullIfEmpty(req.Description), req.FlowTemplateID).
		Scan(&at.ID, &at.CreatedAt, &at.UpdatedAt)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			http.Error(w, "asset type with this name already exists", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(at); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// updateAssetType handles updating an existing asset type
func (s *Server) updateAssetType(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.UpdateAssetTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}

	type set struct {
		sql string
		val interface{}
	}
	sets := make([]set, 0, 4)
	arg := 1

	if req.Name != nil {
		sets = append(sets, set{fmt.Sprintf("name = $%d", arg), *req.Name})
		arg++
	}
	if req.Category != nil {
		sets = append(sets, set{fmt.Sprintf("category = $%d", arg), nullIfEmpty(req.Category)})
		arg++
	}
	if req.Description != nil {
		sets = append(sets, set{fmt.Sprintf("description = $%d", arg), nullIfEmpty(req.Description)})
		arg++
	}
	if req.FlowTemplateID != nil {
		var exists bool
		if err := s.DB.QueryRowContext(r.Context(),
			`SELECT EXISTS(SELECT 1 FROM flow_templates WHERE id = $1)`, *req.FlowTemplateID).Scan(&exists); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if !exists {
			http.Error(w, "flow template does not exist", 400)
			return
		}
		sets = append(sets, set{fmt.Sprintf("flow_template_id = $%d", arg), *req.FlowTemplateID})
		arg++
	}

	if len(sets) == 0 {
		http.Error(w, "no fields to update", 400)
		return
	}

	args := make([]interface{}, 0, len(sets)+1)
	sqlStr := "UPDATE asset_types SET "
	for i, sset := range sets {
		if i > 0 {
			sqlStr += ", "
		}
		sqlStr += sset.sql
		args = append(args, sset.val)
	}
	sqlStr += fmt.Sprintf(", updated_at = now() WHERE id = $%d RETURNING id, name, category, description, flow_template_id, created_at, updated_at", len(args)+1)
	args = append(args, id)

	var out models.AssetType
	if err := s.DB.QueryRowContext(r.Context(), sqlStr, args...).
		Scan(&out.ID, &out.Name, &out.Category, &out.Description, &out.FlowTemplateID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			http.Error(w, "asset type with this name already exists", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// deleteAssetType handles deleting an asset type. Types with registered units
// or tickets cannot be removed.
func (s *Server) deleteAssetType(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var inUse bool
	err := s.DB.QueryRowContext(r.Context(), `
		SELECT EXISTS(SELECT 1 FROM asset_units WHERE asset_type_id = $1 AND deleted_at IS NULL)
		    OR EXISTS(SELECT 1 FROM tickets WHERE asset_type_id = $1 AND deleted_at IS NULL)`, id).Scan(&inUse)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if inUse {
		http.Error(w, "asset type has units or tickets and cannot be deleted", http.StatusConflict)
		return
	}

	res, err := s.DB.ExecContext(r.Context(), `DELETE FROM asset_types WHERE id = $1`, id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
