package flowconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFlows(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempFlows(t, `
version: 1
templates:
  - name: standard-loan
    description: Section head then asset admin
    steps:
      - order: 1
        role: section_head
      - order: 2
        role: asset_admin
  - name: high-value-loan
    steps:
      - order: 2
        role: asset_admin
      - order: 1
        role: dept_head
        department_id: 3
`)

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Templates, 2)

	assert.Equal(t, "standard-loan", f.Templates[0].Name)
	assert.Equal(t, "Section head then asset admin", f.Templates[0].Description)

	steps := f.Templates[1].SortedSteps()
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].Order)
	assert.Equal(t, "dept_head", steps[0].Role)
	require.NotNil(t, steps[0].DepartmentID)
	assert.Equal(t, int64(3), *steps[0].DepartmentID)
	assert.Equal(t, "asset_admin", steps[1].Role)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no templates",
			content: "version: 1\ntemplates: []\n",
			wantErr: "no templates",
		},
		{
			name: "duplicate template name",
			content: `
templates:
  - name: a
    steps: [{order: 1, role: admin}]
  - name: a
    steps: [{order: 1, role: admin}]
`,
			wantErr: "duplicate template name",
		},
		{
			name: "template without steps",
			content: `
templates:
  - name: a
    steps: []
`,
			wantErr: "has no steps",
		},
		{
			name: "non-positive step order",
			content: `
templates:
  - name: a
    steps: [{order: 0, role: admin}]
`,
			wantErr: "order must be positive",
		},
		{
			name: "duplicate step order",
			content: `
templates:
  - name: a
    steps: [{order: 1, role: admin}, {order: 1, role: asset_admin}]
`,
			wantErr: "duplicate step order",
		},
		{
			name: "invalid role",
			content: `
templates:
  - name: a
    steps: [{order: 1, role: requester}]
`,
			wantErr: "invalid step role",
		},
		{
			name: "section without department",
			content: `
templates:
  - name: a
    steps: [{order: 1, role: section_head, section_id: 7}]
`,
			wantErr: "section scope requires a department",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempFlows(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
