package cromwellmonitor

import (
	"context"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/monitoring"
	"github.com/openshift/cromwell-monitor/pkg/report"
	"github.com/openshift/cromwell-monitor/pkg/workflowsummary"
)

type WorkflowSummaryFlags struct {
	Source *SourceFlags
	Output *OutputFlags

	Tasks []string
}

func NewWorkflowSummaryFlags() *WorkflowSummaryFlags {
	return &WorkflowSummaryFlags{
		Source: NewSourceFlags(),
		Output: NewOutputFlags(),
	}
}

func (f *WorkflowSummaryFlags) BindFlags(fs *pflag.FlagSet) {
	f.Source.BindFlags(fs)
	f.Output.BindFlags(fs)
	fs.StringSliceVar(&f.Tasks, "task", f.Tasks, "task to summarize, may be repeated; all tasks by default")
}

func (f *WorkflowSummaryFlags) Validate() error {
	if err := f.Source.Validate(); err != nil {
		return err
	}
	return f.Output.Validate()
}

func (f *WorkflowSummaryFlags) ToOptions(ctx context.Context) (*WorkflowSummaryOptions, error) {
	registry := prometheus.NewRegistry()
	source, err := f.Source.ToOptions(ctx, monitoring.NewMetrics(registry))
	if err != nil {
		return nil, err
	}
	var tasks []api.TaskName
	for _, task := range f.Tasks {
		tasks = append(tasks, api.TaskName(task))
	}
	return &WorkflowSummaryOptions{
		source:   source,
		output:   f.Output,
		registry: registry,
		tasks:    tasks,
		out:      os.Stdout,
	}, nil
}

type WorkflowSummaryOptions struct {
	source   *datasetSource
	output   *OutputFlags
	registry *prometheus.Registry
	tasks    []api.TaskName
	out      io.Writer
}

func (o *WorkflowSummaryOptions) Run(ctx context.Context) error {
	logger := logrus.WithField("component", "workflow-summary")
	snap, err := o.source.load(ctx, logger)
	if err != nil {
		return err
	}
	duration, err := workflowsummary.WorkflowDuration(snap.Samples)
	if err != nil {
		return err
	}
	summary := workflowsummary.SummarizeTasks(o.tasks, snap.Samples, logger)
	if err := report.Write(o.out, o.output.format(), report.NewWorkflowReport(snap.WorkflowIDs, duration, summary)); err != nil {
		return err
	}
	return o.output.writeMetrics(o.registry)
}

func NewWorkflowSummaryCommand() *cobra.Command {
	f := NewWorkflowSummaryFlags()

	cmd := &cobra.Command{
		Use:          "workflow-summary",
		Short:        "Print the duration of workflows and how long each of their tasks ran",
		SilenceUsage: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if err := f.Validate(); err != nil {
				logrus.WithError(err).Fatal("Flags are invalid")
			}
			f.Output.configureLogging()
			o, err := f.ToOptions(ctx)
			if err != nil {
				logrus.WithError(err).Fatal("Failed to build runtime options")
			}

			if err := o.Run(ctx); err != nil {
				logrus.WithError(err).Fatal("Command failed")
			}

			return nil
		},

		Args: noArgs,
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
