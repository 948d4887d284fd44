package cromwellmonitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/openshift/cromwell-monitor/pkg/monitoring"
	"github.com/openshift/cromwell-monitor/pkg/results"
	"github.com/openshift/cromwell-monitor/pkg/snapshot"
)

// SourceFlags select the workflows to report on and where their data
// comes from.
type SourceFlags struct {
	DataCoordinates *monitoring.DataCoordinates
	Authentication  *monitoring.GoogleAuthenticationFlags

	WorkflowIDs    []string
	DaysBackUpper  int
	DaysBackLower  int
	Parallelism    int
	QueriesPerSec  float64
	SnapshotDir    string
	SnapshotBucket string
	SnapshotPrefix string
	Refresh        bool
}

func NewSourceFlags() *SourceFlags {
	return &SourceFlags{
		DataCoordinates: monitoring.NewDataCoordinates(),
		Authentication:  monitoring.NewGoogleAuthenticationFlags(),
		DaysBackUpper:   30,
		Parallelism:     monitoring.DefaultParallelism,
		QueriesPerSec:   monitoring.DefaultQueriesPerSecond,
	}
}

func (f *SourceFlags) BindFlags(fs *pflag.FlagSet) {
	f.DataCoordinates.BindFlags(fs)
	f.Authentication.BindFlags(fs)

	fs.StringSliceVar(&f.WorkflowIDs, "workflow-id", f.WorkflowIDs, "Cromwell workflow ID, may be repeated")
	fs.IntVar(&f.DaysBackUpper, "days-back-upper", f.DaysBackUpper, "oldest day to scan the monitoring tables for, in days before today")
	fs.IntVar(&f.DaysBackLower, "days-back-lower", f.DaysBackLower, "most recent day to scan the monitoring tables for, in days before today")
	fs.IntVar(&f.Parallelism, "parallelism", f.Parallelism, "number of metrics queries to run at once")
	fs.Float64Var(&f.QueriesPerSec, "queries-per-second", f.QueriesPerSec, "rate at which monitoring queries are started")
	fs.StringVar(&f.SnapshotDir, "snapshot-dir", f.SnapshotDir, "local directory to keep snapshots of fetched data in")
	fs.StringVar(&f.SnapshotBucket, "snapshot-bucket", f.SnapshotBucket, "GCS bucket to keep snapshots of fetched data in")
	fs.StringVar(&f.SnapshotPrefix, "snapshot-prefix", f.SnapshotPrefix, "object prefix for snapshots in --snapshot-bucket")
	fs.BoolVar(&f.Refresh, "refresh", f.Refresh, "query BigQuery even when a snapshot exists")
}

func (f *SourceFlags) Validate() error {
	if len(f.WorkflowIDs) == 0 {
		return errors.New("at least one --workflow-id is required")
	}
	for _, id := range f.WorkflowIDs {
		if id == "" {
			return errors.New("--workflow-id must not be empty")
		}
	}
	if f.DaysBackUpper < f.DaysBackLower {
		return fmt.Errorf("--days-back-upper (%d) must not be less than --days-back-lower (%d)", f.DaysBackUpper, f.DaysBackLower)
	}
	if f.DaysBackLower < 0 {
		return errors.New("--days-back-lower must not be negative")
	}
	if f.Parallelism < 1 {
		return errors.New("--parallelism must be positive")
	}
	if f.QueriesPerSec <= 0 {
		return errors.New("--queries-per-second must be positive")
	}
	if f.SnapshotDir != "" && f.SnapshotBucket != "" {
		return errors.New("--snapshot-dir and --snapshot-bucket are mutually exclusive")
	}
	if f.SnapshotBucket != "" || f.mustQuery() {
		if err := f.Authentication.Validate(); err != nil {
			return err
		}
	}
	if f.mustQuery() {
		if err := f.DataCoordinates.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// mustQuery is set when no snapshot can be read instead of BigQuery.
func (f *SourceFlags) mustQuery() bool {
	return f.Refresh || (f.SnapshotDir == "" && f.SnapshotBucket == "")
}

func (f *SourceFlags) newBigQueryClient(ctx context.Context, projectID string) (*bigquery.Client, error) {
	if err := f.Authentication.Validate(); err != nil {
		return nil, err
	}
	client, err := f.Authentication.NewBigQueryClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("could not create BigQuery client: %w", err)
	}
	return client, nil
}

func (f *SourceFlags) ToOptions(ctx context.Context, metrics *monitoring.Metrics) (*datasetSource, error) {
	source := &datasetSource{
		workflowIDs: f.WorkflowIDs,
		query: monitoring.WorkflowQuery{
			WorkflowIDs:   f.WorkflowIDs,
			DaysBackUpper: f.DaysBackUpper,
			DaysBackLower: f.DaysBackLower,
		},
		parallelism: f.Parallelism,
		refresh:     f.Refresh,
		newClient: func(ctx context.Context) (monitoring.MonitoringClient, error) {
			if err := f.DataCoordinates.Validate(); err != nil {
				return nil, err
			}
			bigQueryClient, err := f.newBigQueryClient(ctx, f.DataCoordinates.ProjectID)
			if err != nil {
				return nil, err
			}
			return monitoring.NewRetryingMonitoringClient(
				monitoring.NewThrottledMonitoringClient(
					monitoring.NewMonitoringClient(*f.DataCoordinates, bigQueryClient, metrics),
					rate.NewLimiter(rate.Limit(f.QueriesPerSec), f.Parallelism),
				),
			), nil
		},
	}

	switch {
	case f.SnapshotDir != "":
		source.cache = &snapshot.Directory{Path: f.SnapshotDir}
	case f.SnapshotBucket != "":
		gcsClient, err := f.Authentication.NewGCSClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not create GCS client: %w", err)
		}
		source.cache = &snapshot.Bucket{Handle: gcsClient.Bucket(f.SnapshotBucket), Prefix: f.SnapshotPrefix}
	}
	return source, nil
}

// datasetSource reads the data of the workflows from their snapshot, and
// queries BigQuery when there is none or a refresh was asked for.
type datasetSource struct {
	workflowIDs []string
	query       monitoring.WorkflowQuery
	parallelism int
	refresh     bool
	cache       snapshot.Storage
	newClient   func(ctx context.Context) (monitoring.MonitoringClient, error)
}

func (s *datasetSource) name() string {
	return snapshot.Name(s.workflowIDs...)
}

func (s *datasetSource) load(ctx context.Context, logger *logrus.Entry) (*snapshot.Snapshot, error) {
	snap, err := s.cached(ctx, logger)
	if err != nil || snap != nil {
		return snap, err
	}
	return s.fetch(ctx, logger)
}

// cached reads the snapshot of the workflows. There is none without a
// cache, when it was never stored, or when a refresh was asked for.
func (s *datasetSource) cached(ctx context.Context, logger *logrus.Entry) (*snapshot.Snapshot, error) {
	if s.cache == nil || s.refresh {
		return nil, nil
	}
	updated, err := snapshot.LastUpdated(ctx, s.cache, s.name())
	switch {
	case snapshot.IsNotExist(err):
		logger.WithField("snapshot", s.name()).Info("No snapshot found.")
		return nil, nil
	case err != nil:
		return nil, results.ForReason(results.ReasonSnapshot).WithError(err).Errorf("could not determine age of snapshot %s: %v", s.name(), err)
	}
	logger.WithField("snapshot", s.name()).Debugf("Snapshot was stored %s ago.", time.Since(updated).Round(time.Second))
	return snapshot.Load(ctx, s.cache, s.name(), logger)
}

// fetch queries the monitoring data and stores it as the snapshot of the
// workflows.
func (s *datasetSource) fetch(ctx context.Context, logger *logrus.Entry) (*snapshot.Snapshot, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}
	dataset, err := monitoring.Fetch(ctx, client, s.query, s.parallelism, logger)
	if err != nil {
		return nil, err
	}
	snap := &snapshot.Snapshot{
		WorkflowIDs:      s.workflowIDs,
		Fetched:          time.Now().UTC(),
		Samples:          dataset.Samples,
		Runtimes:         dataset.Runtimes,
		MissingInstances: dataset.MissingInstances,
	}
	if err := s.store(ctx, snap, logger); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *datasetSource) store(ctx context.Context, snap *snapshot.Snapshot, logger *logrus.Entry) error {
	if s.cache == nil {
		return nil
	}
	return snapshot.Store(ctx, s.cache, s.name(), snap, logger)
}
