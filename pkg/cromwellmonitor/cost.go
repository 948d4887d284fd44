package cromwellmonitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/utils/ptr"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/cost"
	"github.com/openshift/cromwell-monitor/pkg/monitoring"
	"github.com/openshift/cromwell-monitor/pkg/report"
	"github.com/openshift/cromwell-monitor/pkg/snapshot"
	"github.com/openshift/cromwell-monitor/pkg/workflowsummary"
)

type CostFlags struct {
	Source *SourceFlags
	Output *OutputFlags

	BillingTable     string
	GroupBy          string
	ThresholdPercent string
	Task             string
	Start            string
	End              string
	DatePadding      int

	table     monitoring.TableID
	threshold *float64
	start     time.Time
	end       time.Time
}

func NewCostFlags() *CostFlags {
	return &CostFlags{
		Source:      NewSourceFlags(),
		Output:      NewOutputFlags(),
		GroupBy:     string(api.CostFieldTaskName),
		DatePadding: 1,
	}
}

func (f *CostFlags) BindFlags(fs *pflag.FlagSet) {
	f.Source.BindFlags(fs)
	f.Output.BindFlags(fs)
	fs.StringVar(&f.BillingTable, "billing-table", f.BillingTable, "billing export table, as project.dataset.table")
	fs.StringVar(&f.GroupBy, "group-by", f.GroupBy, fmt.Sprintf("field to rank costs by, one of %v", api.CostFields))
	fs.StringVar(&f.ThresholdPercent, "threshold-percent", f.ThresholdPercent, "keep the most expensive groups making up this percentage of the total; all groups when unset")
	fs.StringVar(&f.Task, "task", f.Task, "only report the cost of this task")
	fs.StringVar(&f.Start, "start", f.Start, "start of the workflow in RFC3339; the first sample of the workflow when unset")
	fs.StringVar(&f.End, "end", f.End, "end of the workflow in RFC3339; the last sample of the workflow when unset")
	fs.IntVar(&f.DatePadding, "date-padding", f.DatePadding, "days to widen the billing window by on each side")
}

func (f *CostFlags) Validate() error {
	if len(f.Source.WorkflowIDs) != 1 {
		return errors.New("exactly one --workflow-id is required")
	}
	table, err := monitoring.ParseTableID(f.BillingTable)
	if err != nil {
		return fmt.Errorf("--billing-table invalid: %w", err)
	}
	f.table = table

	if _, ok := (api.CostRow{}).Key(api.CostField(f.GroupBy)); !ok {
		return fmt.Errorf("--group-by must be one of %v, not %q", api.CostFields, f.GroupBy)
	}
	f.threshold = nil
	if f.ThresholdPercent != "" {
		threshold, err := strconv.ParseFloat(f.ThresholdPercent, 64)
		if err != nil {
			return fmt.Errorf("--threshold-percent must be a number: %w", err)
		}
		if !(threshold >= 0 && threshold <= 100) {
			return fmt.Errorf("--threshold-percent must be between 0 and 100, not %v", threshold)
		}
		f.threshold = ptr.To(threshold)
	}
	if f.DatePadding < 0 {
		return errors.New("--date-padding must not be negative")
	}

	if (f.Start == "") != (f.End == "") {
		return errors.New("--start and --end must be set together")
	}
	if f.Start != "" {
		if f.start, err = time.Parse(time.RFC3339, f.Start); err != nil {
			return fmt.Errorf("--start invalid: %w", err)
		}
		if f.end, err = time.Parse(time.RFC3339, f.End); err != nil {
			return fmt.Errorf("--end invalid: %w", err)
		}
		if f.end.Before(f.start) {
			return errors.New("--end must not be before --start")
		}
		if f.Source.SnapshotDir != "" && f.Source.SnapshotBucket != "" {
			return errors.New("--snapshot-dir and --snapshot-bucket are mutually exclusive")
		}
		if err := f.Source.Authentication.Validate(); err != nil {
			return err
		}
	} else if err := f.Source.Validate(); err != nil {
		return err
	}
	return f.Output.Validate()
}

// windowed is set when the billing window was given and the monitoring
// data is not needed to find it.
func (f *CostFlags) windowed() bool {
	return f.Start != ""
}

func (f *CostFlags) ToOptions(ctx context.Context) (*CostOptions, error) {
	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)
	source, err := f.Source.ToOptions(ctx, metrics)
	if err != nil {
		return nil, err
	}
	projectID := f.Source.DataCoordinates.ProjectID
	if projectID == "" {
		projectID = f.table.ProjectID
	}
	o := &CostOptions{
		source:   source,
		output:   f.Output,
		registry: registry,
		query: monitoring.CostQuery{
			WorkflowID:  f.Source.WorkflowIDs[0],
			Table:       f.table,
			DatePadding: f.DatePadding,
		},
		groupBy:   api.CostField(f.GroupBy),
		threshold: f.threshold,
		refresh:   f.Source.Refresh,
		out:       os.Stdout,
		newCostClient: func(ctx context.Context) (monitoring.CostClient, error) {
			bigQueryClient, err := f.Source.newBigQueryClient(ctx, projectID)
			if err != nil {
				return nil, err
			}
			return monitoring.NewRetryingCostClient(
				monitoring.NewCostClient(bigQueryClient, metrics, logrus.WithField("component", "cost-client")),
			), nil
		},
	}
	if f.Task != "" {
		o.task = ptr.To(api.TaskName(f.Task))
	}
	if f.windowed() {
		o.query.Start, o.query.End = f.start, f.end
	}
	return o, nil
}

type CostOptions struct {
	source        *datasetSource
	output        *OutputFlags
	registry      *prometheus.Registry
	query         monitoring.CostQuery
	groupBy       api.CostField
	threshold     *float64
	task          *api.TaskName
	refresh       bool
	out           io.Writer
	newCostClient func(ctx context.Context) (monitoring.CostClient, error)
}

func (o *CostOptions) Run(ctx context.Context) error {
	logger := logrus.WithFields(logrus.Fields{"component": "cost", "workflow_id": o.query.WorkflowID})

	var snap *snapshot.Snapshot
	var err error
	if o.query.Start.IsZero() {
		snap, err = o.source.load(ctx, logger)
	} else {
		snap, err = o.source.cached(ctx, logger)
	}
	if err != nil {
		return err
	}
	if o.query.Start.IsZero() {
		start, end, err := workflowsummary.WorkflowWindow(snap.Samples)
		if err != nil {
			return fmt.Errorf("could not find when the workflow ran: %w", err)
		}
		o.query.Start, o.query.End = start, end
	}

	rows, err := o.costs(ctx, snap, logger)
	if err != nil {
		return err
	}
	workflowTotal := cost.Total(rows)
	if o.task != nil {
		if rows, err = cost.ForTask(rows, *o.task); err != nil {
			return err
		}
	}

	groups, err := cost.Rank(rows, o.groupBy)
	if err != nil {
		return err
	}
	if groups, err = cost.Select(groups, o.threshold); err != nil {
		return err
	}
	selected, err := cost.RankAndFilter(rows, o.groupBy, o.threshold)
	if err != nil {
		return err
	}
	costReport := &report.CostReport{
		WorkflowID:       o.query.WorkflowID,
		GroupBy:          o.groupBy,
		ThresholdPercent: o.threshold,
		Groups:           groups,
		Rows:             selected,
		Total:            cost.Total(selected),
		WorkflowTotal:    workflowTotal,
	}
	if err := report.Write(o.out, o.output.format(), costReport); err != nil {
		return err
	}
	return o.output.writeMetrics(o.registry)
}

// costs reads the billing rows of the workflow, from the snapshot when it
// has them. Queried rows are added to the snapshot.
func (o *CostOptions) costs(ctx context.Context, snap *snapshot.Snapshot, logger *logrus.Entry) ([]api.CostRow, error) {
	if snap != nil && len(snap.Costs) > 0 && !o.refresh {
		logger.Debugf("Using %d cost rows from the snapshot.", len(snap.Costs))
		return snap.Costs, nil
	}
	client, err := o.newCostClient(ctx)
	if err != nil {
		return nil, err
	}
	if err := client.CheckQuery(ctx, o.query); err != nil {
		return nil, err
	}
	rows, err := client.ListCosts(ctx, o.query)
	if err != nil {
		return nil, err
	}
	logger.Infof("Read %d cost rows.", len(rows))
	if snap != nil {
		snap.Costs = rows
		if err := o.source.store(ctx, snap, logger); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func NewCostCommand() *cobra.Command {
	f := NewCostFlags()

	cmd := &cobra.Command{
		Use:          "cost",
		Short:        "Print the billing rows that make up most of the cost of a workflow",
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
