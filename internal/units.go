package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"equiploan-api/internal/models"

	"github.com/go-chi/chi/v5"
)

// listUnits handles asset unit listing with filters and pagination
func (s *Server) listUnits(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	// Cap limit at 100
	if params.limit > 100 {
		params.limit = 100
	}

	clauses := []string{"deleted_at IS NULL"}
	args := []interface{}{}
	arg := 1

	// optional asset type filter
	if typeIDStr := strings.TrimSpace(r.URL.Query().Get("asset_type_id")); typeIDStr != "" {
		if typeID, err := strconv.ParseInt(typeIDStr, 10, 64); err == nil {
			clauses = append(clauses, fmt.Sprintf("asset_type_id = $%d", arg))
			args = append(args, typeID)
			arg++
		}
	}

	// optional status filter
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		if !models.IsValidUnitStatus(models.UnitStatus(status)) {
			http.Error(w, "invalid status filter", 400)
			return
		}
		clauses = append(clauses, fmt.Sprintf("status = $%d", arg))
		args = append(args, status)
		arg++
	}

	// optional text search on tag code or serial
	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf("(tag_code ILIKE $%d OR serial ILIKE $%d)", arg, arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}

	whereClause := " WHERE " + strings.Join(clauses, " AND ")

	// Build the main query with COUNT(*) OVER() to get total count
	sqlStr := fmt.Sprintf(`
		SELECT id, asset_type_id, serial, tag_code, status, notes, created_at, updated_at,
		       COUNT(*) OVER() as total_count
		FROM asset_units%s`, whereClause)

	allowedSort := map[string]string{
		"id":         "id",
		"tag_code":   "tag_code",
		"status":     "status",
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

	units := []interface{}{}
	var totalCount int
	for rows.Next() {
		var u models.AssetUnit
		if err := rows.Scan(&u.ID, &u.AssetTypeID, &u.Serial, &u.TagCode, &u.Status, &u.Notes, &u.CreatedAt, &u.UpdatedAt, &totalCount); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		units = append(units, u)
	}

	sendListResponse(w, units, totalCount, params)
}

// getUnit handles getting a single asset unit by ID
func (s *Server) getUnit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var u models.AssetUnit
	err := s.DB.QueryRowContext(r.Context(), `
		SELECT id, asset_type_id, serial, tag_code, status, notes, created_at, updated_at
		FROM asset_units WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&u.ID, &u.AssetTypeID, &u.Serial, &u.TagCode, &u.Status, &u.Notes, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(u); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// createUnit handles registering a new asset unit
func (s *Server) createUnit(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAssetUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", 400)
		return
	}

	if req.AssetTypeID == 0 || req.TagCode == "" {
		http.Error(w, "asset_type_id and tag_code are required", 400)
		return
	}

	var exists bool
	if err := s.DB.QueryRowContext(r.Context(),
		`SELECT EXISTS(SELECT 1 FROM asset_types WHERE id = $1)`, req.AssetTypeID).Scan(&exists); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if !exists {
		http.Error(w, "asset type does not exist", 400)
		return
	}

	u := models.AssetUnit{
		AssetTypeID: req.AssetTypeID,
		Serial:      req.Serial,
		TagCode:     req.TagCode,
		Status:      models.UnitReady,
		Notes:       req.Notes,
	}

	err := s.DB.QueryRowContext(r.Context(), `
		INSERT INTO asset_units (asset_type_id, serial, tag_code, status, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, req.AssetTypeID, nullIfEmpty(req.Serial), req.TagCode, models.UnitReady, nullIfEmpty(req.Notes)).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			http.Error(w, "unit with this tag code already exists", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(u); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// updateUnit handles updating an existing asset unit
func (s *Server) updateUnit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.UpdateAssetUnitRequest
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

	if req.Serial != nil {
		sets = append(sets, set{fmt.Sprintf("serial = $%d", arg), nullIfEmpty(req.Serial)})
		arg++
	}
	if req.TagCode != nil {
		sets = append(sets, set{fmt.Sprintf("tag_code = $%d", arg), *req.TagCode})
		arg++
	}
	if req.Status != nil {
		if !models.IsValidUnitStatus(*req.Status) {
			http.Error(w, "invalid status", 400)
			return
		}
		// BORROWED is driven by the ticket lifecycle, not manual edits
		if *req.Status == models.UnitBorrowed {
			http.Error(w, "BORROWED is set by the ticket lifecycle", 400)
			return
		}
		held, err := s.unitHeld(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if held {
			http.Error(w, "unit is held by an active ticket", http.StatusConflict)
			return
		}
		sets = append(sets, set{fmt.Sprintf("status = $%d", arg), *req.Status})
		arg++
	}
	if req.Notes != nil {
		sets = append(sets, set{fmt.Sprintf("notes = $%d", arg), nullIfEmpty(req.Notes)})
		arg++
	}

	if len(sets) == 0 {
		http.Error(w, "no fields to update", 400)
		return
	}

	args := make([]interface{}, 0, len(sets)+1)
	sqlStr := "UPDATE asset_units SET "
	for i, sset := range sets {
		if i > 0 {
			sqlStr += ", "
		}
		sqlStr += sset.sql
		args = append(args, sset.val)
	}
	sqlStr += fmt.Sprintf(", updated_at = now() WHERE id = $%d AND deleted_at IS NULL RETURNING id, asset_type_id, serial, tag_code, status, notes, created_at, updated_at", len(args)+1)
	args = append(args, id)

	var out models.AssetUnit
	if err := s.DB.QueryRowContext(r.Context(), sqlStr, args...).
		Scan(&out.ID, &out.AssetTypeID, &out.Serial, &out.TagCode, &out.Status, &out.Notes, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			http.Error(w, "unit with this tag code already exists", http.StatusConflict)
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

// unitHeld reports whether a non-terminal ticket still references the unit.
func (s *Server) unitHeld(ctx context.Context, id string) (bool, error) {
	var held bool
	err := s.DB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM ticket_units tu
			JOIN tickets t ON t.id = tu.ticket_id
			WHERE tu.unit_id = $1
			  AND t.status NOT IN ('REJECTED', 'COMPLETED')
			  AND t.deleted_at IS NULL
		)`, id).Scan(&held)
	return held, err
}

// deleteUnit handles retiring an asset unit. Units referenced by non-terminal
// tickets cannot be removed; retired units stay resolvable from history.
func (s *Server) deleteUnit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	held, err := s.unitHeld(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if held {
		http.Error(w, "unit is held by an active ticket", http.StatusConflict)
		return
	}

	res, err := s.DB.ExecContext(r.Context(),
		`UPDATE asset_units SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
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
