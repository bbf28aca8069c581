package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"equiploan-api/internal/auth"
	"equiploan-api/internal/booking"
	"equiploan-api/internal/models"

	"github.com/go-chi/chi/v5"
)

// writeBookingError maps booking engine errors to HTTP responses
func writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrInvalidWindow),
		errors.Is(err, booking.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrInsufficientCapacity):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrForbidden):
		http.Error(w, "Not allowed to act on this stage", http.StatusForbidden)
	case errors.Is(err, booking.ErrNotCurrentStage),
		errors.Is(err, booking.ErrStaleStage),
		errors.Is(err, booking.ErrAlreadyTerminal),
		errors.Is(err, booking.ErrBadTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case booking.IsConfigError(err):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// submitTicket handles borrow ticket submission
func (s *Server) submitTicket(w http.ResponseWriter, r *http.Request) {
	requesterID := auth.UserIDFromContext(r.Context())
	if requesterID == 0 {
		http.Error(w, "User ID not found in context", http.StatusInternalServerError)
		return
	}

	var req models.SubmitTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.AssetTypeID <= 0 {
		http.Error(w, "asset_type_id is required", http.StatusBadRequest)
		return
	}

	ticket, err := s.Booking.SubmitTicket(r.Context(), requesterID, req)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	s.Metrics.TicketsSubmitted.Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ticket)
}

// listTickets handles ticket listing with filters and pagination
func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	p := parseListParams(r)

	query := `
		SELECT t.id, t.requester_id, t.asset_type_id, t.quantity, t.start_at, t.end_at,
		       t.purpose, t.location, t.status, t.reject_reason, t.created_at, t.updated_at,
		       COUNT(*) OVER() AS total
		FROM tickets t
		WHERE t.deleted_at IS NULL`

	args := []interface{}{}
	argIndex := 1

	if statusFilter := r.URL.Query().Get("status"); statusFilter != "" {
		query += fmt.Sprintf(" AND t.status = $%d", argIndex)
		args = append(args, statusFilter)
		argIndex++
	}

	if requesterFilter := r.URL.Query().Get("requester_id"); requesterFilter != "" {
		requesterID, err := strconv.ParseInt(requesterFilter, 10, 64)
		if err != nil {
			http.Error(w, "Invalid requester_id parameter", http.StatusBadRequest)
			return
		}
		query += fmt.Sprintf(" AND t.requester_id = $%d", argIndex)
		args = append(args, requesterID)
		argIndex++
	}

	if typeFilter := r.URL.Query().Get("asset_type_id"); typeFilter != "" {
		typeID, err := strconv.ParseInt(typeFilter, 10, 64)
		if err != nil {
			http.Error(w, "Invalid asset_type_id parameter", http.StatusBadRequest)
			return
		}
		query += fmt.Sprintf(" AND t.asset_type_id = $%d", argIndex)
		args = append(args, typeID)
		argIndex++
	}

	// Requesters only see their own tickets
	claims := auth.ClaimsFromContext(r.Context())
	if claims != nil && !claims.HasRole("section_head", "dept_head", "asset_admin", "admin") {
		query += fmt.Sprintf(" AND t.requester_id = $%d", argIndex)
		args = append(args, claims.UserID)
		argIndex++
	}

	allowedSort := map[string]string{
		"id":         "t.id",
		"status":     "t.status",
		"start_at":   "t.start_at",
		"created_at": "t.created_at",
	}
	query += buildOrderBy(p.sort, allowedSort)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, p.limit, p.offset)

	rows, err := s.DB.QueryContext(r.Context(), query, args...)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var tickets []models.BorrowTicket
	var total int
	for rows.Next() {
		var t models.BorrowTicket
		err := rows.Scan(&t.ID, &t.RequesterID, &t.AssetTypeID, &t.Quantity, &t.StartAt, &t.EndAt,
			&t.Purpose, &t.Location, &t.Status, &t.RejectReason, &t.CreatedAt, &t.UpdatedAt, &total)
		if err != nil {
			http.Error(w, "Failed to scan ticket", http.StatusInternalServerError)
			return
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tickets": tickets,
		"total":   total,
		"limit":   p.limit,
		"offset":  p.offset,
	})
}

// getTicket handles getting one ticket with its stages and units
func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ticket ID", http.StatusBadRequest)
		return
	}

	ticket, err := s.Store.GetTicket(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	// Requesters only see their own tickets
	claims := auth.ClaimsFromContext(r.Context())
	if claims != nil && ticket.RequesterID != claims.UserID &&
		!claims.HasRole("section_head", "dept_head", "asset_admin", "admin") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ticket)
}

// approveTicket handles approving the current stage of a ticket
func (s *Server) approveTicket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ticket ID", http.StatusBadRequest)
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	ticket, err := s.Booking.Approve(r.Context(), id, actorID)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	s.Metrics.StageDecisions.WithLabelValues("approved").Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ticket)
}

// rejectTicket handles rejecting the current stage of a ticket
func (s *Server) rejectTicket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ticket ID", http.StatusBadRequest)
		return
	}

	var req models.RejectTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		http.Error(w, "Rejection reason is required", http.StatusBadRequest)
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	ticket, err := s.Booking.Reject(r.Context(), id, actorID, req.Reason)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	s.Metrics.StageDecisions.WithLabelValues("rejected").Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ticket)
}

// pickupTicket records the physical handover of the units
func (s *Server) pickupTicket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ticket ID", http.StatusBadRequest)
		return
	}

	ticket, err := s.Booking.MarkPickedUp(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ticket)
}

// returnTicket records the return of the units
func (s *Server) returnTicket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ticket ID", http.StatusBadRequest)
		return
	}

	ticket, err := s.Booking.MarkReturned(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	s.Metrics.TicketsCompleted.Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ticket)
}

// getAvailability previews free and busy units for an asset type and window
func (s *Server) getAvailability(w http.ResponseWriter, r *http.Request) {
	typeID, err := strconv.ParseInt(r.URL.Query().Get("asset_type_id"), 10, 64)
	if err != nil || typeID <= 0 {
		http.Error(w, "asset_type_id is required", http.StatusBadRequest)
		return
	}

	startAt, err := time.Parse(time.RFC3339, r.URL.Query().Get("start_at"))
	if err != nil {
		http.Error(w, "start_at must be RFC3339", http.StatusBadRequest)
		return
	}
	endAt, err := time.Parse(time.RFC3339, r.URL.Query().Get("end_at"))
	if err != nil {
		http.Error(w, "end_at must be RFC3339", http.StatusBadRequest)
		return
	}

	avail, err := s.Booking.GetAvailability(r.Context(), typeID, booking.Window{Start: startAt, End: endAt})
	if err != nil {
		writeBookingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(avail)
}
