package cromwellmonitor

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Overall usage
// 1. fetch the monitoring data of one or more workflows from BigQuery and
//    keep it as a snapshot, locally or in a GCS bucket
// 2. summarize the tasks of the workflows: how long each ran and how many
//    shards it was scattered over
// 3. drill into the shards of one task and find the ones whose resource
//    usage lies outside the Tukey fences of the task
// 4. read the billing export for a workflow and keep the tasks or services
//    that make up most of its cost
//
// Report commands read the snapshot when there is one, so BigQuery is only
// queried once per workflow unless --refresh is passed.

func NewCromwellMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:  "cromwell-monitor",
		Long: `Commands to summarize resource usage and cost of Cromwell workflows`,
	}

	cmd.AddCommand(NewFetchCommand())
	cmd.AddCommand(NewWorkflowSummaryCommand())
	cmd.AddCommand(NewShardSummaryCommand())
	cmd.AddCommand(NewCostCommand())

	return cmd
}

// noArgs rejects positional arguments, as workflows are selected with
// --workflow-id. Empty arguments left over by shell quoting are ignored.
func noArgs(cmd *cobra.Command, args []string) error {
	var extra []string
	for _, arg := range args {
		if arg != "" {
			extra = append(extra, arg)
		}
	}
	if len(extra) > 0 {
		return fmt.Errorf("%s takes no arguments, select workflows with --workflow-id instead of %q", cmd.CommandPath(), extra)
	}
	return nil
}
