package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/cost"
)

// CostReport is the billing rows selected for a workflow.
type CostReport struct {
	WorkflowID       string        `json:"workflow_id"`
	GroupBy          api.CostField `json:"group_by"`
	ThresholdPercent *float64      `json:"threshold_percent,omitempty"`
	Groups           []cost.Group  `json:"groups"`
	Rows             []api.CostRow `json:"rows"`
	Total            float64       `json:"total"`
	WorkflowTotal    float64       `json:"workflow_total"`
}

func (r *CostReport) Render(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Cost of workflow %s by %s\n", r.WorkflowID, r.GroupBy); err != nil {
		return err
	}
	groups := tablewriter.NewWriter(w)
	groups.SetHeader([]string{string(r.GroupBy), "rows", "cost (USD)", "share"})
	for _, group := range r.Groups {
		groups.Append([]string{group.Key, fmt.Sprintf("%d", group.Rows), formatCost(group.Total), formatShare(group.Total, r.WorkflowTotal)})
	}
	groups.SetFooter([]string{"", "", formatCost(r.Total), formatShare(r.Total, r.WorkflowTotal)})
	groups.Render()

	rows := tablewriter.NewWriter(w)
	rows.SetHeader([]string{"task", "description", "machine", "cores", "memory", "cost (USD)"})
	for _, row := range r.Rows {
		rows.Append([]string{string(row.Task), row.CostDescription, row.MachineSpec, row.MachineCores, row.MachineMemory, formatCost(row.Cost)})
	}
	rows.Render()
	return nil
}

func formatCost(value float64) string {
	return fmt.Sprintf("%.4f", value)
}

func formatShare(part, total float64) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*part/total)
}
