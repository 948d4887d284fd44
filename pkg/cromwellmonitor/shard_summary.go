package cromwellmonitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/monitoring"
	"github.com/openshift/cromwell-monitor/pkg/report"
	"github.com/openshift/cromwell-monitor/pkg/results"
	"github.com/openshift/cromwell-monitor/pkg/shardmetrics"
)

type ShardSummaryFlags struct {
	Source *SourceFlags
	Output *OutputFlags

	Task       string
	Shard      string
	Dimensions []string

	target     *api.ShardID
	dimensions []api.Dimension
}

func NewShardSummaryFlags() *ShardSummaryFlags {
	f := &ShardSummaryFlags{
		Source: NewSourceFlags(),
		Output: NewOutputFlags(),
	}
	for _, dimension := range api.Dimensions {
		f.Dimensions = append(f.Dimensions, string(dimension))
	}
	return f
}

func (f *ShardSummaryFlags) BindFlags(fs *pflag.FlagSet) {
	f.Source.BindFlags(fs)
	f.Output.BindFlags(fs)
	fs.StringVar(&f.Task, "task", f.Task, "task whose shards are summarized")
	fs.StringVar(&f.Shard, "shard", f.Shard, "shard to show the runtime of and mark in the tables")
	fs.StringSliceVar(&f.Dimensions, "dimension", f.Dimensions, "dimension to summarize, may be repeated")
}

func (f *ShardSummaryFlags) Validate() error {
	if f.Task == "" {
		return errors.New("--task is required")
	}
	if f.Shard != "" {
		shard, err := strconv.Atoi(f.Shard)
		if err != nil {
			return fmt.Errorf("--shard must be an integer: %w", err)
		}
		target := api.ShardID(shard)
		f.target = &target
	}
	if len(f.Dimensions) == 0 {
		return errors.New("at least one --dimension is required")
	}
	known := shardmetrics.DefaultReducers()
	f.dimensions = nil
	for _, dimension := range f.Dimensions {
		if _, ok := known[api.Dimension(dimension)]; !ok {
			return fmt.Errorf("--dimension must be one of %v, not %q", known.Dimensions(), dimension)
		}
		f.dimensions = append(f.dimensions, api.Dimension(dimension))
	}
	if err := f.Source.Validate(); err != nil {
		return err
	}
	return f.Output.Validate()
}

func (f *ShardSummaryFlags) ToOptions(ctx context.Context) (*ShardSummaryOptions, error) {
	registry := prometheus.NewRegistry()
	source, err := f.Source.ToOptions(ctx, monitoring.NewMetrics(registry))
	if err != nil {
		return nil, err
	}
	defaults := shardmetrics.DefaultReducers()
	reducers := shardmetrics.Reducers{}
	for _, dimension := range f.dimensions {
		reducers[dimension] = defaults[dimension]
	}
	return &ShardSummaryOptions{
		source:     source,
		output:     f.Output,
		registry:   registry,
		task:       api.TaskName(f.Task),
		target:     f.target,
		dimensions: f.dimensions,
		reducers:   reducers,
		out:        os.Stdout,
	}, nil
}

type ShardSummaryOptions struct {
	source     *datasetSource
	output     *OutputFlags
	registry   *prometheus.Registry
	task       api.TaskName
	target     *api.ShardID
	dimensions []api.Dimension
	reducers   shardmetrics.Reducers
	out        io.Writer
}

func (o *ShardSummaryOptions) Run(ctx context.Context) error {
	logger := logrus.WithFields(logrus.Fields{"component": "shard-summary", "task": o.task})
	snap, err := o.source.load(ctx, logger)
	if err != nil {
		return err
	}
	if len(api.ShardsForTask(o.task, snap.Samples)) == 0 {
		return results.ForReason(results.ReasonMissingTask).Errorf("task %s has no samples in workflows %v", o.task, snap.WorkflowIDs)
	}
	if o.target != nil {
		if err := shardmetrics.ValidateShard(o.task, *o.target, snap.Samples); err != nil {
			return err
		}
	}

	result, err := shardmetrics.Aggregate(o.task, nil, snap.Samples, o.reducers, logger)
	if err != nil {
		return err
	}
	shardReport := report.NewShardReport(result, o.dimensions, logger)
	if o.target != nil {
		shardReport = shardReport.WithTarget(*o.target, snap.Runtimes)
	}
	if err := report.Write(o.out, o.output.format(), shardReport); err != nil {
		return err
	}
	return o.output.writeMetrics(o.registry)
}

func NewShardSummaryCommand() *cobra.Command {
	f := NewShardSummaryFlags()

	cmd := &cobra.Command{
		Use:          "shard-summary",
		Short:        "Print the resource usage of the shards of a task and flag the outliers",
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
