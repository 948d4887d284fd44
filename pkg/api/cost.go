package api

import (
	"time"
)

// CostField names a grouping column of a CostRow.
type CostField string

const (
	CostFieldTaskName        CostField = "task_name"
	CostFieldCostDescription CostField = "cost_description"
	CostFieldMachineSpec     CostField = "machine_spec"
	CostFieldProjectID       CostField = "google_project_id"
)

// CostRow is one billing line item attributed to a workflow task. The
// machine columns are descriptive and carried through unchanged.
type CostRow struct {
	ProjectID       string    `json:"google_project_id,omitempty"`
	WorkflowID      string    `json:"cromwell_id,omitempty"`
	SubmissionID    string    `json:"submission_id,omitempty"`
	Task            TaskName  `json:"task_name"`
	MachineSpec     string    `json:"machine_spec,omitempty"`
	MachineCores    string    `json:"machine_cores,omitempty"`
	MachineMemory   string    `json:"machine_memory,omitempty"`
	UsageStart      time.Time `json:"usage_start_time"`
	CostDescription string    `json:"cost_description"`
	Cost            float64   `json:"cost"`
}

// Key returns the row's value for a grouping column; ok is false for
// columns that cannot be grouped on.
func (r CostRow) Key(field CostField) (string, bool) {
	switch field {
	case CostFieldTaskName:
		return string(r.Task), true
	case CostFieldCostDescription:
		return r.CostDescription, true
	case CostFieldMachineSpec:
		return r.MachineSpec, true
	case CostFieldProjectID:
		return r.ProjectID, true
	default:
		return "", false
	}
}

// CostFields lists the columns a CostRow can be grouped on.
var CostFields = []CostField{CostFieldTaskName, CostFieldCostDescription, CostFieldMachineSpec, CostFieldProjectID}
