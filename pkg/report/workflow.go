package report

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/openshift/cromwell-monitor/pkg/workflowsummary"
)

// WorkflowReport lists the tasks of a workflow from longest to shortest.
type WorkflowReport struct {
	WorkflowIDs []string                      `json:"workflow_ids"`
	Duration    string                        `json:"workflow_duration"`
	Tasks       []workflowsummary.TaskSummary `json:"tasks"`
}

func NewWorkflowReport(workflowIDs []string, duration time.Duration, summary *workflowsummary.Summary) *WorkflowReport {
	return &WorkflowReport{
		WorkflowIDs: workflowIDs,
		Duration:    duration.String(),
		Tasks:       summary.SortedByDuration(),
	}
}

func (r *WorkflowReport) Render(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Workflow duration: %s\n", r.Duration); err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"task", "duration", "shards"})
	var shards int
	for _, task := range r.Tasks {
		table.Append([]string{string(task.Task), formatSeconds(task.Duration), fmt.Sprintf("%d", task.ShardCount)})
		shards += task.ShardCount
	}
	table.SetFooter([]string{fmt.Sprintf("%d tasks", len(r.Tasks)), "", fmt.Sprintf("%d", shards)})
	table.Render()
	return nil
}

func formatSeconds(seconds float64) string {
	return (time.Duration(seconds) * time.Second).String()
}
