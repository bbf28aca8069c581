//go:build integration

package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"equiploan-api/internal/models"
	"equiploan-api/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Seeded fixture IDs from db/seeds/seed.sql.
const (
	seedAdminID       = 1
	seedAssetAdminID  = 2
	seedDeptHeadID    = 3
	seedSectionHeadID = 4
	seedRequesterID   = 5

	seedLaptopTypeID = 2
)

func doJSON(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	testServer.Router.ServeHTTP(w, req)
	return w
}

func decodeTicket(t *testing.T, w *httptest.ResponseRecorder) models.BorrowTicket {
	t.Helper()
	var ticket models.BorrowTicket
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ticket))
	return ticket
}

func TestTicketLifecycle(t *testing.T) {
	testutil.RequireIntegration(t)
	testutil.ResetSchema(t, testDB)

	dept := int64(1)
	section := int64(1)

	requester := tokenFor(t, seedRequesterID, &dept, &section, "requester")
	sectionHead := tokenFor(t, seedSectionHeadID, &dept, &section, "section_head")
	assetAdmin := tokenFor(t, seedAssetAdminID, nil, nil, "asset_admin")

	startAt := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	endAt := startAt.Add(4 * time.Hour)

	// Submit a laptop request that runs the standard two-stage flow
	w := doJSON(t, "POST", "/tickets", requester, models.SubmitTicketRequest{
		AssetTypeID: seedLaptopTypeID,
		Quantity:    2,
		StartAt:     startAt,
		EndAt:       endAt,
		Purpose:     "workshop",
		Location:    "lab 3",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	ticket := decodeTicket(t, w)
	assert.Equal(t, models.TicketPending, ticket.Status)
	assert.Len(t, ticket.UnitIDs, 2)
	require.Len(t, ticket.Stages, 2)
	assert.Equal(t, "section_head", ticket.Stages[0].Role)
	assert.Equal(t, "asset_admin", ticket.Stages[1].Role)

	ticketPath := fmt.Sprintf("/tickets/%d", ticket.ID)

	// Held units reduce availability while the ticket is pending
	availPath := fmt.Sprintf("/availability?asset_type_id=%d&start_at=%s&end_at=%s",
		seedLaptopTypeID, startAt.Format(time.RFC3339), endAt.Format(time.RFC3339))
	w = doJSON(t, "GET", availPath, requester, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var avail models.Availability
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &avail))
	assert.Len(t, avail.ReadyUnitIDs, 1)

	// The requester is not a candidate for the section head stage
	w = doJSON(t, "POST", ticketPath+"/approve", requester, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Section head approves stage one
	w = doJSON(t, "POST", ticketPath+"/approve", sectionHead, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ticket = decodeTicket(t, w)
	assert.Equal(t, models.TicketPending, ticket.Status)

	// Approving again must not double-decide the stage
	w = doJSON(t, "POST", ticketPath+"/approve", sectionHead, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Asset admin approves the final stage
	w = doJSON(t, "POST", ticketPath+"/approve", assetAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ticket = decodeTicket(t, w)
	assert.Equal(t, models.TicketApproved, ticket.Status)

	// Handout and return
	w = doJSON(t, "POST", ticketPath+"/pickup", assetAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ticket = decodeTicket(t, w)
	assert.Equal(t, models.TicketInUse, ticket.Status)

	w = doJSON(t, "POST", ticketPath+"/return", assetAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ticket = decodeTicket(t, w)
	assert.Equal(t, models.TicketCompleted, ticket.Status)

	// All seeded laptops are free again
	w = doJSON(t, "GET", availPath, requester, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &avail))
	assert.Len(t, avail.ReadyUnitIDs, 3)
}

func TestTicketRejection(t *testing.T) {
	testutil.RequireIntegration(t)
	testutil.ResetSchema(t, testDB)

	dept := int64(1)
	section := int64(1)
	requester := tokenFor(t, seedRequesterID, &dept, &section, "requester")
	sectionHead := tokenFor(t, seedSectionHeadID, &dept, &section, "section_head")

	startAt := time.Now().Add(48 * time.Hour).Truncate(time.Hour)

	w := doJSON(t, "POST", "/tickets", requester, models.SubmitTicketRequest{
		AssetTypeID: seedLaptopTypeID,
		Quantity:    3,
		StartAt:     startAt,
		EndAt:       startAt.Add(2 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ticket := decodeTicket(t, w)

	// A rejection needs a reason
	ticketPath := fmt.Sprintf("/tickets/%d", ticket.ID)
	w = doJSON(t, "POST", ticketPath+"/reject", sectionHead, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, "POST", ticketPath+"/reject", sectionHead, map[string]string{"reason": "no loans during audit"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ticket = decodeTicket(t, w)
	assert.Equal(t, models.TicketRejected, ticket.Status)
	require.NotNil(t, ticket.RejectReason)
	assert.Equal(t, "no loans during audit", *ticket.RejectReason)

	// Terminal tickets cannot be decided again
	w = doJSON(t, "POST", ticketPath+"/approve", sectionHead, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The hold was released
	availPath := fmt.Sprintf("/availability?asset_type_id=%d&start_at=%s&end_at=%s",
		seedLaptopTypeID, startAt.Format(time.RFC3339), startAt.Add(2*time.Hour).Format(time.RFC3339))
	w = doJSON(t, "GET", availPath, requester, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var avail models.Availability
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &avail))
	assert.Len(t, avail.ReadyUnitIDs, 3)
}

func TestOverlappingTicketsExhaustCapacity(t *testing.T) {
	testutil.RequireIntegration(t)
	testutil.ResetSchema(t, testDB)

	dept := int64(1)
	section := int64(1)
	requester := tokenFor(t, seedRequesterID, &dept, &section, "requester")

	startAt := time.Now().Add(72 * time.Hour).Truncate(time.Hour)
	endAt := startAt.Add(3 * time.Hour)

	w := doJSON(t, "POST", "/tickets", requester, models.SubmitTicketRequest{
		AssetTypeID: seedLaptopTypeID,
		Quantity:    2,
		StartAt:     startAt,
		EndAt:       endAt,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Only one unit is left in the overlapping window
	w = doJSON(t, "POST", "/tickets", requester, models.SubmitTicketRequest{
		AssetTypeID: seedLaptopTypeID,
		Quantity:    2,
		StartAt:     startAt.Add(time.Hour),
		EndAt:       endAt.Add(time.Hour),
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// A disjoint window is unaffected
	w = doJSON(t, "POST", "/tickets", requester, models.SubmitTicketRequest{
		AssetTypeID: seedLaptopTypeID,
		Quantity:    2,
		StartAt:     endAt,
		EndAt:       endAt.Add(2 * time.Hour),
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestRequesterTicketVisibility(t *testing.T) {
	testutil.RequireIntegration(t)
	testutil.ResetSchema(t, testDB)

	dept := int64(1)
	section := int64(1)
	requester := tokenFor(t, seedRequesterID, &dept, &section, "requester")
	otherRequester := tokenFor(t, seedDeptHeadID, &dept, nil, "requester")

	startAt := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	w := doJSON(t, "POST", "/tickets", requester, models.SubmitTicketRequest{
		AssetTypeID: seedLaptopTypeID,
		Quantity:    1,
		StartAt:     startAt,
		EndAt:       startAt.Add(2 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ticket := decodeTicket(t, w)

	// Another plain requester cannot see it
	w = doJSON(t, "GET", fmt.Sprintf("/tickets/%d", ticket.ID), otherRequester, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The owner can
	w = doJSON(t, "GET", fmt.Sprintf("/tickets/%d", ticket.ID), requester, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHeldUnitStatusEditRefused(t *testing.T) {
	testutil.RequireIntegration(t)
	testutil.ResetSchema(t, testDB)

	dept := int64(1)
	section := int64(1)
	requester := tokenFor(t, seedRequesterID, &dept, &section, "requester")
	sectionHead := tokenFor(t, seedSectionHeadID, &dept, &section, "section_head")
	assetAdmin := tokenFor(t, seedAssetAdminID, nil, nil, "asset_admin")

	startAt := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	w := doJSON(t, "POST", "/tickets", requester, models.SubmitTicketRequest{
		AssetTypeID: seedLaptopTypeID,
		Quantity:    1,
		StartAt:     startAt,
		EndAt:       startAt.Add(2 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ticket := decodeTicket(t, w)
	require.Len(t, ticket.UnitIDs, 1)
	heldID := ticket.UnitIDs[0]

	// Find a laptop unit the ticket did not reserve
	var freeID int64
	for _, id := range []int64{3, 4, 5} {
		if id != heldID {
			freeID = id
			break
		}
	}

	repairing := models.UnitRepairing

	// Units held by a pending ticket refuse manual status edits
	w = doJSON(t, "PUT", fmt.Sprintf("/units/%d", heldID), assetAdmin,
		models.UpdateAssetUnitRequest{Status: &repairing})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	// A free unit of the same type accepts the edit
	w = doJSON(t, "PUT", fmt.Sprintf("/units/%d", freeID), assetAdmin,
		models.UpdateAssetUnitRequest{Status: &repairing})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Simulate an out-of-band maintenance flag on the held unit
	_, err := testDB.Exec(`UPDATE asset_units SET status = 'REPAIRING' WHERE id = $1`, heldID)
	require.NoError(t, err)

	w = doJSON(t, "POST", fmt.Sprintf("/tickets/%d/reject", ticket.ID), sectionHead,
		map[string]string{"reason": "inventory check"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Rejection releases the hold without rewriting unit status
	var unit models.AssetUnit
	w = doJSON(t, "GET", fmt.Sprintf("/units/%d", heldID), assetAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &unit))
	assert.Equal(t, models.UnitRepairing, unit.Status)

	// The formerly held unit is editable again once the ticket is terminal
	ready := models.UnitReady
	w = doJSON(t, "PUT", fmt.Sprintf("/units/%d", heldID), assetAdmin,
		models.UpdateAssetUnitRequest{Status: &ready})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
