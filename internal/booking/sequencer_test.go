package booking

import (
	"testing"

	"equiploan-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stages(statuses ...models.StageStatus) []models.TicketStage {
	out := make([]models.TicketStage, 0, len(statuses))
	for i, st := range statuses {
		out = append(out, models.TicketStage{StepOrder: i + 1, Role: "dept_head", Status: st})
	}
	return out
}

func TestValidateStagesDuplicateOrder(t *testing.T) {
	bad := []models.TicketStage{
		{StepOrder: 1, Role: "section_head", Status: models.StagePending},
		{StepOrder: 1, Role: "dept_head", Status: models.StagePending},
	}
	err := ValidateStages(bad)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestValidateStagesEmpty(t *testing.T) {
	err := ValidateStages(nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestValidateStagesOK(t *testing.T) {
	assert.NoError(t, ValidateStages(stages(models.StagePending, models.StagePending)))
}

func TestCurrentStageLowestPending(t *testing.T) {
	sts := stages(models.StageApproved, models.StagePending, models.StagePending)
	cur := CurrentStage(sts)
	require.NotNil(t, cur)
	assert.Equal(t, 2, cur.StepOrder)

	// All resolved
	assert.Nil(t, CurrentStage(stages(models.StageApproved, models.StageApproved)))
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, models.TicketPending, DeriveStatus(stages(models.StagePending, models.StagePending)))
	assert.Equal(t, models.TicketPending, DeriveStatus(stages(models.StageApproved, models.StagePending)))
	assert.Equal(t, models.TicketApproved, DeriveStatus(stages(models.StageApproved, models.StageApproved)))
	assert.Equal(t, models.TicketRejected, DeriveStatus(stages(models.StageApproved, models.StageRejected, models.StagePending)))
}

func TestSnapshotStages(t *testing.T) {
	tpl := &models.FlowTemplate{
		ID:   1,
		Name: "it-equipment",
		Steps: []models.FlowStep{
			{StepOrder: 1, Role: "section_head", SectionID: i64(10)},
			{StepOrder: 2, Role: "dept_head", DepartmentID: i64(1)},
			{StepOrder: 3, Role: "asset_admin"},
		},
	}
	sts := SnapshotStages(tpl)
	require.Len(t, sts, 3)
	for i, st := range sts {
		assert.Equal(t, models.StagePending, st.Status)
		assert.Equal(t, tpl.Steps[i].StepOrder, st.StepOrder)
		assert.Equal(t, tpl.Steps[i].Role, st.Role)
	}
	assert.Equal(t, i64(10), sts[0].SectionID)
	assert.Equal(t, i64(1), sts[1].DepartmentID)
}
